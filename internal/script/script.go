package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
)

// ErrInvalidScript is wrapped by every validation failure.
var ErrInvalidScript = errors.New("invalid script")

// Format is a script document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension, YAML by default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Mode selects how the chain is finished.
type Mode string

const (
	// ModeCollection returns the matched elements.
	ModeCollection Mode = "collection"
	// ModePlain returns the collection as a structural copy.
	ModePlain Mode = "plain"
	// ModeValue reads the value accessor given as the last step.
	ModeValue Mode = "value"
)

// Step is one recorded call. Func, when set, is appended to Args as a
// function argument.
type Step struct {
	Method string `json:"method" yaml:"method" toml:"method"`
	Args   []any  `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	Func   string `json:"func,omitempty" yaml:"func,omitempty" toml:"func,omitempty"`
}

func (s Step) arguments() []any {
	args := append([]any(nil), s.Args...)
	if s.Func != "" {
		args = append(args, jquery.Func(s.Func))
	}
	return args
}

// Wait makes the script wait for its selector before running.
type Wait struct {
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Polling   string `json:"polling,omitempty" yaml:"polling,omitempty" toml:"polling,omitempty"`
	Interval  string `json:"interval,omitempty" yaml:"interval,omitempty" toml:"interval,omitempty"`
	OnTimeout string `json:"on_timeout,omitempty" yaml:"on_timeout,omitempty" toml:"on_timeout,omitempty"`
}

// Options converts the wait section into jquery.WaitOptions.
func (w Wait) Options() (jquery.WaitOptions, error) {
	opts := jquery.WaitOptions{
		Polling:   jquery.Polling(w.Polling),
		OnTimeout: jquery.OnTimeout(w.OnTimeout),
	}
	var err error
	if w.Timeout != "" {
		if opts.Timeout, err = time.ParseDuration(w.Timeout); err != nil {
			return opts, fmt.Errorf("%w: wait timeout: %v", ErrInvalidScript, err)
		}
	}
	if w.Interval != "" {
		if opts.Interval, err = time.ParseDuration(w.Interval); err != nil {
			return opts, fmt.Errorf("%w: wait interval: %v", ErrInvalidScript, err)
		}
	}
	switch opts.Polling {
	case "", jquery.PollingRAF, jquery.PollingMutation, jquery.PollingInterval:
	default:
		return opts, fmt.Errorf("%w: unknown polling %q", ErrInvalidScript, w.Polling)
	}
	switch opts.OnTimeout {
	case "", jquery.OnTimeoutError, jquery.OnTimeoutIgnore:
	default:
		return opts, fmt.Errorf("%w: unknown on_timeout %q", ErrInvalidScript, w.OnTimeout)
	}
	return opts, nil
}

// Script is a query document: a selector, the calls applied to it and
// how the result is returned.
type Script struct {
	Name     string         `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Selector string         `json:"selector" yaml:"selector" toml:"selector"`
	Steps    []Step         `json:"steps,omitempty" yaml:"steps,omitempty" toml:"steps,omitempty"`
	Mode     Mode           `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode,omitempty"`
	Locals   map[string]any `json:"locals,omitempty" yaml:"locals,omitempty" toml:"locals,omitempty"`
	Wait     *Wait          `json:"wait,omitempty" yaml:"wait,omitempty" toml:"wait,omitempty"`
}

// Parse decodes and validates a script document.
func Parse(data []byte, format Format) (*Script, error) {
	var s Script
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &s)
	case FormatTOML:
		err = toml.Unmarshal(data, &s)
	case FormatJSON:
		err = sonic.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidScript, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidScript, format, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseFile reads a script, choosing the format from the extension.
func ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks the script without running it and fills in the
// default mode.
func (s *Script) Validate() error {
	if strings.TrimSpace(s.Selector) == "" {
		return fmt.Errorf("%w: selector is required", ErrInvalidScript)
	}
	switch s.Mode {
	case "":
		s.Mode = ModeCollection
	case ModeCollection, ModePlain, ModeValue:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidScript, s.Mode)
	}

	for i, step := range s.Steps {
		if !jquery.IsSupported(step.Method) {
			return fmt.Errorf("%w: step %d: %w: %q", ErrInvalidScript, i, jquery.ErrUnsupportedMethod, step.Method)
		}
		accessor := jquery.IsValueAccessor(step.Method, len(step.arguments()))
		last := i == len(s.Steps)-1
		if accessor && !(last && s.Mode == ModeValue) {
			return fmt.Errorf("%w: step %d: %w: %s", ErrInvalidScript, i, jquery.ErrValueAccessor, step.Method)
		}
		if last && s.Mode == ModeValue && !accessor {
			return fmt.Errorf("%w: value mode needs a value accessor as last step, got %s", ErrInvalidScript, step.Method)
		}
	}
	if s.Mode == ModeValue && len(s.Steps) == 0 {
		return fmt.Errorf("%w: value mode needs a value accessor step", ErrInvalidScript)
	}
	if s.Wait != nil {
		if _, err := s.Wait.Options(); err != nil {
			return err
		}
	}
	return nil
}

package script

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
)

// Result is the outcome of running a script.
type Result struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Mode  Mode   `json:"mode" yaml:"mode"`
	Chain string `json:"chain" yaml:"chain"`
	// Count is the number of matched elements in collection mode.
	Count int `json:"count" yaml:"count"`
	// Elements holds the outer HTML of each matched element.
	Elements []string `json:"elements,omitempty" yaml:"elements,omitempty"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Options tunes Run.
type Options struct {
	// Sanitize, when set, is applied to every element's markup.
	Sanitize func(string) string
}

// Build records the script's steps on a chain. In value mode the last
// step is returned separately since it is read rather than recorded.
func Build(b *jquery.Bridge, s *Script) (jquery.Chain, *Step, error) {
	steps := s.Steps
	var accessor *Step
	if s.Mode == ModeValue && len(steps) > 0 {
		last := steps[len(steps)-1]
		accessor = &last
		steps = steps[:len(steps)-1]
	}

	chain := b.Query(s.Selector)
	for _, step := range steps {
		chain = chain.Call(step.Method, step.arguments()...)
	}
	if err := chain.Err(); err != nil {
		return chain, nil, err
	}
	return chain, accessor, nil
}

// Run executes s on b. Element handles are summarized and released
// before Run returns.
func Run(ctx context.Context, b *jquery.Bridge, s *Script, opts Options) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	chain, accessor, err := Build(b, s)
	if err != nil {
		return nil, err
	}
	res := &Result{Name: s.Name, Mode: s.Mode, Chain: chain.String()}

	if s.Wait != nil {
		wopts, err := s.Wait.Options()
		if err != nil {
			return nil, err
		}
		found, err := b.WaitFor(ctx, s.Selector, wopts)
		if err != nil {
			return nil, err
		}
		jquery.Release(ctx, found...)
	}

	switch s.Mode {
	case ModeValue:
		res.Value, err = chain.ValueWith(ctx, s.Locals, accessor.Method, accessor.arguments()...)
		if err != nil {
			return nil, err
		}
	case ModePlain:
		res.Value, err = chain.POJO(ctx, s.Locals)
		if err != nil {
			return nil, err
		}
		if list, ok := res.Value.([]any); ok {
			res.Count = len(list)
		}
	default:
		els, err := chain.Exec(ctx, s.Locals)
		if err != nil {
			return nil, err
		}
		res.Count = len(els)
		res.Elements, err = OuterHTML(ctx, b.Target(), els)
		if err != nil {
			return nil, err
		}
		if opts.Sanitize != nil {
			for i, markup := range res.Elements {
				res.Elements[i] = opts.Sanitize(markup)
			}
		}
	}
	return res, nil
}

// OuterHTML returns the markup of each element and releases the handles.
func OuterHTML(ctx context.Context, target jquery.Target, els []jquery.Handle) ([]string, error) {
	defer jquery.Release(ctx, els...)

	out := make([]string, 0, len(els))
	for _, el := range els {
		h, err := target.EvaluateFunc(ctx, "function (el) { return el.outerHTML; }", el)
		if err != nil {
			return nil, fmt.Errorf("outer html: %w", err)
		}
		v, err := h.JSONValue(ctx)
		_ = h.Release(ctx)
		if err != nil {
			return nil, fmt.Errorf("outer html: %w", err)
		}
		s, _ := v.(string)
		out = append(out, s)
	}
	return out, nil
}

// Encode renders a result as JSON (indented) or YAML.
func Encode(res *Result, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(res)
	case FormatJSON:
		return sonic.MarshalIndent(res, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

package sandbox

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTimeout is returned when an evaluation ran past Config.Timeout.
	ErrTimeout = errors.New("sandbox: execution timeout exceeded")
	// ErrClosed is returned by a closed page.
	ErrClosed = errors.New("sandbox: page is closed")
	// ErrForeignHandle is returned when a handle of another page is passed
	// as an argument.
	ErrForeignHandle = errors.New("sandbox: handle belongs to another page")
	// ErrStaleHandle is returned for a handle of a document that was
	// replaced by Load, whether it is used directly or bound as an
	// argument.
	ErrStaleHandle = errors.New("sandbox: handle belongs to a replaced document")
)

// Config defines page configuration
type Config struct {
	Timeout       time.Duration // per evaluation
	MaxCallStack  int
	EnableConsole bool
	Logger        *zap.Logger
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		MaxCallStack:  1024,
		EnableConsole: true,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxCallStack <= 0 {
		c.MaxCallStack = def.MaxCallStack
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// blankDocument is loaded by New and Reset.
const blankDocument = "<html><head></head><body></body></html>"

package jquery

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInjected means the injected global is not defined in the page.
	ErrNotInjected = errors.New("jquery: library not injected")
	// ErrContextDestroyed means the page navigated while a call was pending.
	ErrContextDestroyed = errors.New("jquery: execution context destroyed")

	ErrUnserializable    = errors.New("jquery: argument is not serializable")
	ErrUnsupportedMethod = errors.New("jquery: unsupported method")
	ErrValueAccessor     = errors.New("jquery: value accessor must be read with Value")
	ErrInvalidLocal      = errors.New("jquery: invalid local name")

	// ErrNoBridge is returned by a zero Chain.
	ErrNoBridge = errors.New("jquery: chain has no bridge")
)

// contextDestroyedMessages are the phrasings used by Chrome (raw CDP and
// puppeteer's rewrite) when the execution context went away.
var contextDestroyedMessages = []string{
	"Execution context was destroyed",
	"Cannot find context with specified id",
}

// notDefinedMessages returns the reference error phrasings for a global
// name, WebKit first, then V8/goja.
func notDefinedMessages(name string) []string {
	return []string{
		"ReferenceError: Can't find variable: " + name,
		name + " is not defined",
	}
}

// Classify maps a raw evaluation error to ErrNotInjected or
// ErrContextDestroyed. It returns nil for any other error.
func Classify(err error, name string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, m := range notDefinedMessages(name) {
		if strings.Contains(msg, m) {
			return ErrNotInjected
		}
	}
	for _, m := range contextDestroyedMessages {
		if strings.Contains(msg, m) {
			return ErrContextDestroyed
		}
	}
	return nil
}

// ExecError carries the code that failed alongside the remote error.
type ExecError struct {
	Code string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec: %s\n failed:%s", e.Code, e.Err.Error())
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

package jquery

import (
	"context"
	"time"
)

// Target is the remote evaluation channel of a page.
//
// Evaluate runs a code string in the page's current execution context and
// returns a handle to the result. EvaluateFunc runs a function definition
// with bound arguments; an argument is either a serializable Go value or a
// Handle previously returned by the same Target.
type Target interface {
	Evaluate(ctx context.Context, code string) (Handle, error)
	EvaluateFunc(ctx context.Context, fn string, args ...any) (Handle, error)
}

// Handle is an opaque reference to a value living in the page.
type Handle interface {
	// Properties returns the indexed members of the value, in index order.
	Properties(ctx context.Context) ([]Handle, error)
	// IsElement reports whether the value is a DOM element.
	IsElement() bool
	// JSONValue returns a structural copy of the value.
	JSONValue(ctx context.Context) (any, error)
	// Release frees the remote object. Releasing twice is harmless.
	Release(ctx context.Context) error
}

// Waiter is implemented by targets that can block until a predicate
// expression becomes truthy inside the page.
type Waiter interface {
	WaitFor(ctx context.Context, predicate string, opts WaitOptions) error
}

// LibraryProvider is implemented by targets that need a particular library
// build when none is configured.
type LibraryProvider interface {
	DefaultLibrary() SourceLoader
}

// Observer receives execution events. Implemented by the metrics layer.
type Observer interface {
	ObserveExec(mode string, err error, elapsed time.Duration)
	ObserveInjection(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveExec(string, error, time.Duration) {}
func (nopObserver) ObserveInjection(string)                  {}

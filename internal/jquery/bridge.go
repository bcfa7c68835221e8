package jquery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/juiceqa/puppeteer-jquery/internal/library"
	"github.com/juiceqa/puppeteer-jquery/internal/shared/id"
)

// SourceLoader supplies the unpatched library source.
type SourceLoader interface {
	Source(ctx context.Context) (string, error)
}

// Options configures a Bridge.
type Options struct {
	// Name is the global the library is injected under. Empty picks a
	// fresh one.
	Name string
	// Library supplies the library source. Nil uses the target's
	// LibraryProvider build, or the bundled release.
	Library SourceLoader
	Logger  *zap.Logger
	// Observer receives execution and injection events.
	Observer Observer
	// Preflight checks for the injected global before every execution
	// instead of relying on error messages alone.
	Preflight bool
}

// Bridge executes chains against one page. It owns the injected global
// name and the patched library source for that page.
type Bridge struct {
	target    Target
	name      string
	loader    SourceLoader
	logger    *zap.Logger
	observer  Observer
	preflight bool

	mu     sync.Mutex
	source string
	group  singleflight.Group
}

// NewBridge creates a bridge for target.
func NewBridge(target Target, opts Options) *Bridge {
	b := &Bridge{
		target:    target,
		name:      opts.Name,
		loader:    opts.Library,
		logger:    opts.Logger,
		observer:  opts.Observer,
		preflight: opts.Preflight,
	}
	if b.name == "" {
		b.name = id.NewGlobalName()
	}
	if b.loader == nil {
		if p, ok := target.(LibraryProvider); ok {
			b.loader = p.DefaultLibrary()
		}
	}
	if b.loader == nil {
		b.loader = library.Default()
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	b.logger = b.logger.Named("jquery").With(zap.String("global", b.name))
	return b
}

// Name returns the global the library is injected under.
func (b *Bridge) Name() string { return b.name }

// Target returns the page this bridge evaluates on.
func (b *Bridge) Target() Target { return b.target }

// Query starts a chain rooted at selector. Nothing is evaluated until a
// terminal method is called.
func (b *Bridge) Query(selector string) Chain {
	return Chain{bridge: b, selector: selector}
}

// Mode selects how a chain is finished and marshaled.
type Mode struct {
	// ToArray appends .toArray() to the chain.
	ToArray bool
	// Plain returns a structural copy instead of element handles.
	Plain bool
}

func (m Mode) String() string {
	switch {
	case m.Plain && m.ToArray:
		return "pojo"
	case m.Plain:
		return "value"
	default:
		return "collection"
	}
}

// Compose returns the full code string evaluated for chain c.
func (b *Bridge) Compose(c Chain, mode Mode) string {
	code := b.name + "(" + quoteSingle(c.selector) + ")" + c.code
	if mode.ToArray {
		code += ".toArray()"
	}
	return code
}

// Execute evaluates chain c on the page. When the library is missing or
// the execution context was destroyed, the library is injected and the
// evaluation retried once. Failures are returned as *ExecError.
func (b *Bridge) Execute(ctx context.Context, c Chain, mode Mode, locals map[string]any) (out Outcome, err error) {
	if c.err != nil {
		return Outcome{}, c.err
	}
	code := b.Compose(c, mode)
	eval, bound, err := b.evaluator(code, locals)
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	defer func() {
		b.observer.ObserveExec(mode.String(), err, time.Since(start))
	}()

	if b.preflight {
		if err := b.ensureInjected(ctx); err != nil {
			return Outcome{}, &ExecError{Code: code, Err: err}
		}
	}

	h, err := b.run(ctx, eval, bound)
	if err != nil {
		b.logger.Debug("execution failed", zap.String("selector", c.selector), zap.Error(err))
		return Outcome{}, &ExecError{Code: code, Err: err}
	}
	out, err = marshal(ctx, h, mode.Plain)
	if err != nil {
		return Outcome{}, &ExecError{Code: code, Err: err}
	}
	return out, nil
}

type evalFunc func(ctx context.Context) (Handle, error)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// evaluator builds the evaluation for code. With locals the code becomes
// the body of a function whose parameters are bound to the local values.
// bound reports whether any local is a Handle.
func (b *Bridge) evaluator(code string, locals map[string]any) (eval evalFunc, bound bool, err error) {
	if len(locals) == 0 {
		return func(ctx context.Context) (Handle, error) {
			return b.target.Evaluate(ctx, code)
		}, false, nil
	}

	names := make([]string, 0, len(locals))
	for name := range locals {
		if !identifier.MatchString(name) || name == b.name {
			return nil, false, fmt.Errorf("%w: %q", ErrInvalidLocal, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]any, len(names))
	for i, name := range names {
		values[i] = locals[name]
		if _, ok := values[i].(Handle); ok {
			bound = true
		}
	}

	fn := "function (" + strings.Join(names, ", ") + ") { return " + code + "; }"
	return func(ctx context.Context) (Handle, error) {
		return b.target.EvaluateFunc(ctx, fn, values...)
	}, bound, nil
}

// run evaluates once and, on a recoverable failure, injects the library
// and evaluates exactly one more time. A destroyed context is not
// recoverable when handles are bound: they died with it.
func (b *Bridge) run(ctx context.Context, eval evalFunc, bound bool) (Handle, error) {
	h, err := eval(ctx)
	if err == nil {
		return h, nil
	}
	reason := Classify(err, b.name)
	if reason == nil {
		return nil, err
	}
	if bound && errors.Is(reason, ErrContextDestroyed) {
		return nil, err
	}
	b.logger.Debug("library unavailable, injecting", zap.String("reason", reasonLabel(reason)), zap.Error(err))
	if err := b.Inject(ctx, reasonLabel(reason)); err != nil {
		return nil, err
	}
	return eval(ctx)
}

// Inject defines the library global in the page. Injecting again simply
// redefines it.
func (b *Bridge) Inject(ctx context.Context, reason string) error {
	src, err := b.librarySource(ctx)
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}
	h, err := b.target.Evaluate(ctx, src)
	if err != nil {
		return fmt.Errorf("inject library: %w", err)
	}
	b.observer.ObserveInjection(reason)
	if err := h.Release(ctx); err != nil {
		b.logger.Warn("release after injection failed", zap.Error(err))
	}
	return nil
}

// libraryLoadTimeout bounds a shared library load, which runs detached
// from the cancellation of the caller that started it.
const libraryLoadTimeout = 30 * time.Second

// librarySource returns the patched library text, loading it on first use.
// Concurrent first uses share a single load. A caller that gives up does
// not cancel the load for the others.
func (b *Bridge) librarySource(ctx context.Context) (string, error) {
	b.mu.Lock()
	src := b.source
	b.mu.Unlock()
	if src != "" {
		return src, nil
	}

	ch := b.group.DoChan("source", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), libraryLoadTimeout)
		defer cancel()
		raw, err := b.loader.Source(lctx)
		if err != nil {
			return "", err
		}
		patched := library.Patch(raw, b.name)
		b.mu.Lock()
		b.source = patched
		b.mu.Unlock()
		return patched, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (b *Bridge) ensureInjected(ctx context.Context) error {
	h, err := b.target.Evaluate(ctx, "typeof "+b.name+" === 'function'")
	if err != nil {
		if Classify(err, b.name) == nil {
			return err
		}
		return b.Inject(ctx, "preflight")
	}
	v, err := h.JSONValue(ctx)
	if rerr := h.Release(ctx); rerr != nil {
		b.logger.Warn("release after preflight failed", zap.Error(rerr))
	}
	if err != nil {
		return err
	}
	if defined, _ := v.(bool); defined {
		return nil
	}
	return b.Inject(ctx, "preflight")
}

func reasonLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrNotInjected):
		return "not_injected"
	case errors.Is(reason, ErrContextDestroyed):
		return "context_destroyed"
	default:
		return "unknown"
	}
}

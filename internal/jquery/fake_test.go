package jquery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const testName = "pjq_test"

// evalCall records one evaluation on fakeTarget. Fn and Args are set for
// EvaluateFunc, Code for Evaluate.
type evalCall struct {
	Code string
	Fn   string
	Args []any
}

func (c evalCall) text() string {
	if c.Fn != "" {
		return c.Fn
	}
	return c.Code
}

func (c evalCall) isInjection() bool {
	return strings.HasPrefix(c.Code, "//# sourceURL=jquery.js")
}

type fakeHandle struct {
	target   *fakeTarget
	element  bool
	value    any
	members  []*fakeHandle
	released atomic.Bool
	failRel  error
}

func (h *fakeHandle) Properties(context.Context) ([]Handle, error) {
	out := make([]Handle, len(h.members))
	for i, m := range h.members {
		out[i] = m
	}
	return out, nil
}

func (h *fakeHandle) IsElement() bool { return h.element }

func (h *fakeHandle) JSONValue(context.Context) (any, error) { return h.value, nil }

func (h *fakeHandle) Release(context.Context) error {
	h.released.Store(true)
	return h.failRel
}

// fakeTarget behaves like a page that may or may not have the library
// injected. failures are returned, in order, by the next non-injection
// evaluations.
type fakeTarget struct {
	mu       sync.Mutex
	injected bool
	failures []string
	calls    []evalCall
	handles  []*fakeHandle
	respond  func(call evalCall) *fakeHandle
}

func newFakeTarget(injected bool) *fakeTarget {
	t := &fakeTarget{injected: injected}
	t.respond = func(evalCall) *fakeHandle {
		return t.collection(t.element(), t.element())
	}
	return t
}

func (t *fakeTarget) track(h *fakeHandle) *fakeHandle {
	h.target = t
	t.handles = append(t.handles, h)
	return h
}

func (t *fakeTarget) element() *fakeHandle { return t.track(&fakeHandle{element: true}) }

func (t *fakeTarget) value(v any) *fakeHandle { return t.track(&fakeHandle{value: v}) }

func (t *fakeTarget) collection(members ...*fakeHandle) *fakeHandle {
	return t.track(&fakeHandle{members: members})
}

func (t *fakeTarget) Evaluate(ctx context.Context, code string) (Handle, error) {
	return t.eval(ctx, evalCall{Code: code})
}

func (t *fakeTarget) EvaluateFunc(ctx context.Context, fn string, args ...any) (Handle, error) {
	return t.eval(ctx, evalCall{Fn: fn, Args: args})
}

func (t *fakeTarget) eval(ctx context.Context, call evalCall) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, call)
	if call.isInjection() {
		t.injected = true
		return t.value(nil), nil
	}
	if strings.HasPrefix(call.Code, "typeof ") {
		return t.value(t.injected), nil
	}
	if len(t.failures) > 0 {
		msg := t.failures[0]
		t.failures = t.failures[1:]
		return nil, errors.New(msg)
	}
	if !t.injected && strings.Contains(call.text(), testName+"(") {
		return nil, errors.New("ReferenceError: " + testName + " is not defined")
	}
	return t.respond(call), nil
}

func (t *fakeTarget) recorded() []evalCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]evalCall(nil), t.calls...)
}

func (t *fakeTarget) injections() int {
	n := 0
	for _, c := range t.recorded() {
		if c.isInjection() {
			n++
		}
	}
	return n
}

// unreleased returns the handles nobody released.
func (t *fakeTarget) unreleased() []*fakeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*fakeHandle
	for _, h := range t.handles {
		if !h.released.Load() {
			out = append(out, h)
		}
	}
	return out
}

// waiterTarget adds a native wait primitive.
type waiterTarget struct {
	*fakeTarget
	predicates []string
	waitErr    error
	// transient errors returned before waitErr is consulted
	navigations []error
}

func (w *waiterTarget) WaitFor(ctx context.Context, predicate string, opts WaitOptions) error {
	w.predicates = append(w.predicates, predicate)
	if len(w.navigations) > 0 {
		err := w.navigations[0]
		w.navigations = w.navigations[1:]
		return err
	}
	if w.waitErr != nil {
		return w.waitErr
	}
	w.mu.Lock()
	w.respond = func(evalCall) *fakeHandle { return w.collection(w.element()) }
	w.mu.Unlock()
	return nil
}

type countingLoader struct {
	calls atomic.Int32
	src   string
	err   error
}

func (l *countingLoader) Source(context.Context) (string, error) {
	l.calls.Add(1)
	time.Sleep(time.Millisecond)
	return l.src, l.err
}

// blockingLoader holds every load until release is closed or the load
// context ends.
type blockingLoader struct {
	calls   atomic.Int32
	src     string
	release chan struct{}
}

func (l *blockingLoader) Source(ctx context.Context) (string, error) {
	l.calls.Add(1)
	select {
	case <-l.release:
		return l.src, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// providerTarget asks for its own library build.
type providerTarget struct {
	*fakeTarget
	lib SourceLoader
}

func (p providerTarget) DefaultLibrary() SourceLoader { return p.lib }

func newLoader() *countingLoader {
	return &countingLoader{src: "(function(){ var jQuery = {}; window.jQuery = window.$ = jQuery; })();"}
}

type recordingObserver struct {
	mu         sync.Mutex
	modes      []string
	errs       []error
	injections []string
}

func (o *recordingObserver) ObserveExec(mode string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modes = append(o.modes, mode)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) ObserveInjection(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.injections = append(o.injections, reason)
}

func newTestBridge(target Target, loader SourceLoader) *Bridge {
	return NewBridge(target, Options{Name: testName, Library: loader})
}

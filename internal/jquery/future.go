package jquery

import "context"

// Future is a collection evaluation running in the background.
type Future struct {
	done     chan struct{}
	elements []Handle
	err      error
}

// Eventual starts evaluating the chain as a collection and returns at
// once. Await yields exactly what Exec would have returned.
func (c Chain) Eventual(ctx context.Context, locals ...map[string]any) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.elements, f.err = c.Exec(ctx, locals...)
	}()
	return f
}

// Done is closed once the evaluation finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the evaluation finished.
func (f *Future) Await() ([]Handle, error) {
	<-f.done
	return f.elements, f.err
}

// AwaitContext is Await bounded by ctx. The remote evaluation itself is
// not aborted when ctx ends first.
func (f *Future) AwaitContext(ctx context.Context) ([]Handle, error) {
	select {
	case <-f.done:
		return f.elements, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

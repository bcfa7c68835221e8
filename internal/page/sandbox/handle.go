package sandbox

import (
	"context"
	"sort"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
)

// Handle references a value living in a Page's current context.
type Handle struct {
	page       *Page
	id         uint64
	generation uint64
	value      goja.Value
	element    bool
}

var _ jquery.Handle = (*Handle)(nil)

// IsElement reports whether the value is an element of the document.
func (h *Handle) IsElement() bool { return h.element }

// Properties returns the array index members of the value.
func (h *Handle) Properties(ctx context.Context) ([]jquery.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := h.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := h.valid(); err != nil {
		return nil, err
	}

	obj, ok := h.value.(*goja.Object)
	if !ok {
		return []jquery.Handle{}, nil
	}
	var indexes []int
	for _, key := range obj.Keys() {
		if i, err := strconv.Atoi(key); err == nil && i >= 0 {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)

	out := make([]jquery.Handle, len(indexes))
	for k, i := range indexes {
		out[k] = p.track(obj.Get(strconv.Itoa(i)))
	}
	return out, nil
}

// JSONValue returns a structural copy made with JSON.stringify.
// Undefined and functions become nil.
func (h *Handle) JSONValue(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := h.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := h.valid(); err != nil {
		return nil, err
	}

	s, err := p.stringify(goja.Undefined(), h.value)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(s) {
		return nil, nil
	}
	var out any
	if err := sonic.UnmarshalString(s.String(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Release frees the handle. Releasing a stale or released handle is a
// no-op.
func (h *Handle) Release(context.Context) error {
	p := h.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.generation == p.generation {
		delete(p.handles, h.id)
	}
	return nil
}

// Node returns the element node behind the handle, nil for non-elements
// or stale handles.
func (h *Handle) Node() *html.Node {
	p := h.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.valid() != nil || !h.element {
		return nil
	}
	return p.dom.node(h.value)
}

func (h *Handle) valid() error {
	if h.page.closed {
		return ErrClosed
	}
	if h.generation != h.page.generation {
		return ErrStaleHandle
	}
	return nil
}

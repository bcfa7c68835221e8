package jquery

import "context"

// Outcome is the caller-facing result of an execution: either a plain
// value or the element handles of a collection.
type Outcome struct {
	Plain    bool
	Value    any
	Elements []Handle
}

// marshal converts the raw result handle into an Outcome. h is released
// on every path; element handles in the outcome belong to the caller.
func marshal(ctx context.Context, h Handle, plain bool) (Outcome, error) {
	if plain {
		v, err := h.JSONValue(ctx)
		rerr := h.Release(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if rerr != nil {
			return Outcome{}, rerr
		}
		return Outcome{Plain: true, Value: v}, nil
	}

	props, err := h.Properties(ctx)
	if err != nil {
		_ = h.Release(ctx)
		return Outcome{}, err
	}
	elements := make([]Handle, 0, len(props))
	for _, p := range props {
		if p.IsElement() {
			elements = append(elements, p)
			continue
		}
		_ = p.Release(ctx)
	}
	if err := h.Release(ctx); err != nil {
		Release(ctx, elements...)
		return Outcome{}, err
	}
	return Outcome{Elements: elements}, nil
}

// Release frees a set of handles, ignoring individual failures.
func Release(ctx context.Context, handles ...Handle) {
	for _, h := range handles {
		_ = h.Release(ctx)
	}
}

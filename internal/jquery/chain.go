package jquery

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
)

// Chain is a recorded, not yet executed, jQuery call chain rooted at a
// selector. Chain is a value: every method returns a new Chain and leaves
// the receiver untouched, so partial chains can be shared and extended
// from several goroutines. The zero Chain has no bridge and fails with
// ErrNoBridge; chains come from Bridge.Query.
type Chain struct {
	bridge   *Bridge
	selector string
	code     string
	err      error
}

// Call appends .method(args...) to the chain. Unsupported methods,
// value accessor arities and unserializable arguments are recorded as a
// build error returned by the terminal call.
func (c Chain) Call(method string, args ...any) Chain {
	if err := c.check(); err != nil {
		c.err = err
		return c
	}
	if !IsSupported(method) {
		c.err = fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
		return c
	}
	if IsValueAccessor(method, len(args)) {
		c.err = fmt.Errorf("%w: %s/%d", ErrValueAccessor, method, len(args))
		return c
	}
	next, err := c.extend(method, args)
	if err != nil {
		c.err = err
		return c
	}
	return next
}

func (c Chain) extend(method string, args []any) (Chain, error) {
	list, err := serializeArgs(c.bridge.Name(), args)
	if err != nil {
		return c, fmt.Errorf("%s: %w", method, err)
	}
	c.code = c.code + "." + method + "(" + list + ")"
	return c, nil
}

// check returns the recorded build error, or ErrNoBridge for a chain that
// was not created by a Bridge.
func (c Chain) check() error {
	if c.err != nil {
		return c.err
	}
	if c.bridge == nil {
		return ErrNoBridge
	}
	return nil
}

// Err returns the build error recorded so far, if any.
func (c Chain) Err() error { return c.check() }

// Code returns the accumulated call suffix, without the root selection.
func (c Chain) Code() string { return c.code }

// Selector returns the root selector.
func (c Chain) Selector() string { return c.selector }

// Target returns the page the chain runs against.
func (c Chain) Target() Target {
	if c.bridge == nil {
		return nil
	}
	return c.bridge.target
}

func (c Chain) String() string {
	return fmt.Sprintf("JQuery selector based on: %s%s", quoteSingle(c.selector), c.code)
}

// Exec evaluates the chain as a collection and returns the element handles
// in document order. Non-element members are dropped.
func (c Chain) Exec(ctx context.Context, locals ...map[string]any) ([]Handle, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	out, err := c.bridge.Execute(ctx, c, Mode{ToArray: true}, firstLocals(locals))
	if err != nil {
		return nil, err
	}
	return out.Elements, nil
}

// POJO evaluates the chain as a collection and returns it as a plain,
// structurally copied value.
func (c Chain) POJO(ctx context.Context, locals ...map[string]any) (any, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	out, err := c.bridge.Execute(ctx, c, Mode{ToArray: true, Plain: true}, firstLocals(locals))
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// Scan evaluates the chain like POJO and decodes the result into dst.
func (c Chain) Scan(ctx context.Context, dst any, locals ...map[string]any) error {
	v, err := c.POJO(ctx, locals...)
	if err != nil {
		return err
	}
	raw, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

// Value calls a value accessor (text, html, val, css with no argument;
// attr, css, prop with one) and returns its plain result immediately.
func (c Chain) Value(ctx context.Context, method string, args ...any) (any, error) {
	return c.ValueWith(ctx, nil, method, args...)
}

// ValueWith is Value with locals bound as in Exec.
func (c Chain) ValueWith(ctx context.Context, locals map[string]any, method string, args ...any) (any, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if !IsValueAccessor(method, len(args)) {
		return nil, fmt.Errorf("%w: %s/%d is not a value accessor", ErrUnsupportedMethod, method, len(args))
	}
	next, err := c.extend(method, args)
	if err != nil {
		return nil, err
	}
	out, err := c.bridge.Execute(ctx, next, Mode{Plain: true}, locals)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// Text returns the combined text of the matched elements.
func (c Chain) Text(ctx context.Context) (string, error) {
	return c.stringValue(ctx, "text")
}

// HTML returns the inner markup of the first matched element.
func (c Chain) HTML(ctx context.Context) (string, error) {
	return c.stringValue(ctx, "html")
}

// Val returns the value of the first matched form element.
func (c Chain) Val(ctx context.Context) (any, error) {
	return c.Value(ctx, "val")
}

// Attr returns an attribute of the first matched element, "" when absent.
func (c Chain) Attr(ctx context.Context, name string) (string, error) {
	return c.stringValue(ctx, "attr", name)
}

// CSS returns a style property of the first matched element.
func (c Chain) CSS(ctx context.Context, name string) (string, error) {
	return c.stringValue(ctx, "css", name)
}

// Prop returns a DOM property of the first matched element.
func (c Chain) Prop(ctx context.Context, name string) (any, error) {
	return c.Value(ctx, "prop", name)
}

func (c Chain) stringValue(ctx context.Context, method string, args ...any) (string, error) {
	v, err := c.Value(ctx, method, args...)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return fmt.Sprint(s), nil
	}
}

func firstLocals(locals []map[string]any) map[string]any {
	if len(locals) == 0 {
		return nil
	}
	return locals[0]
}

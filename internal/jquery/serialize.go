package jquery

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/bytedance/sonic"
)

// Func is the source text of a JavaScript function passed as a chain
// argument, e.g. Func("function (i, el) { return i > 0; }").
type Func string

const invocation = "jQuery("

// rewriteInvocations replaces every call of the library's default global
// with a call of name, leaving identifiers that merely end in "jQuery"
// alone.
func rewriteInvocations(src, name string) string {
	var b strings.Builder
	b.Grow(len(src))
	for {
		i := strings.Index(src, invocation)
		if i < 0 {
			b.WriteString(src)
			return b.String()
		}
		end := i + len(invocation)
		if i > 0 && isIdentByte(src[i-1]) {
			b.WriteString(src[:end])
		} else {
			b.WriteString(src[:i])
			b.WriteString(name)
			b.WriteByte('(')
		}
		src = src[end:]
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// serializeArgs renders positional call arguments as a comma separated list
// of JavaScript literals.
func serializeArgs(name string, args []any) (string, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		lit, err := serializeArg(name, arg)
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
		parts[i] = lit
	}
	return strings.Join(parts, ","), nil
}

func serializeArg(name string, arg any) (string, error) {
	switch v := arg.(type) {
	case string:
		return encodeJSON(v)
	case Func:
		return rewriteInvocations(string(v), name), nil
	case Handle:
		return "", fmt.Errorf("%w: remote handles must be passed as locals", ErrUnserializable)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: %v", ErrUnserializable, v)
		}
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return "", fmt.Errorf("%w: %v", ErrUnserializable, v)
		}
	}
	if arg != nil {
		switch reflect.TypeOf(arg).Kind() {
		case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
			return "", fmt.Errorf("%w: %T", ErrUnserializable, arg)
		}
	}
	return encodeJSON(arg)
}

func encodeJSON(v any) (string, error) {
	s, err := sonic.ConfigStd.MarshalToString(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnserializable, err)
	}
	return s, nil
}

var singleQuoteEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// quoteSingle renders s as a single quoted JavaScript string literal.
func quoteSingle(s string) string {
	return "'" + singleQuoteEscaper.Replace(s) + "'"
}

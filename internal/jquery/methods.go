package jquery

// chainable lists the jQuery methods a Chain may record. Both embedded
// library builds implement every entry.
var chainable = map[string]struct{}{
	"add":         {},
	"addClass":    {},
	"attr":        {},
	"children":    {},
	"closest":     {},
	"css":         {},
	"each":        {},
	"empty":       {},
	"end":         {},
	"eq":          {},
	"filter":      {},
	"find":        {},
	"first":       {},
	"has":         {},
	"html":        {},
	"last":        {},
	"map":         {},
	"next":        {},
	"not":         {},
	"parent":      {},
	"parents":     {},
	"prev":        {},
	"prop":        {},
	"remove":      {},
	"removeAttr":  {},
	"removeClass": {},
	"siblings":    {},
	"slice":       {},
	"text":        {},
	"toggleClass": {},
	"val":         {},
}

// Accessors that return primitives rather than element collections, keyed
// by argument count.
var (
	zeroArgAccessors = map[string]struct{}{"text": {}, "html": {}, "val": {}, "css": {}}
	oneArgAccessors  = map[string]struct{}{"attr": {}, "css": {}, "prop": {}}
)

// IsSupported reports whether method can be recorded on a Chain.
func IsSupported(method string) bool {
	_, ok := chainable[method]
	return ok
}

// IsValueAccessor reports whether calling method with nargs arguments
// returns a plain value.
func IsValueAccessor(method string, nargs int) bool {
	switch nargs {
	case 0:
		_, ok := zeroArgAccessors[method]
		return ok
	case 1:
		_, ok := oneArgAccessors[method]
		return ok
	}
	return false
}

// Traversal

func (c Chain) Find(selector string) Chain       { return c.Call("find", selector) }
func (c Chain) Filter(selector string) Chain     { return c.Call("filter", selector) }
func (c Chain) FilterFunc(fn Func) Chain         { return c.Call("filter", fn) }
func (c Chain) Not(selector string) Chain        { return c.Call("not", selector) }
func (c Chain) Has(selector string) Chain        { return c.Call("has", selector) }
func (c Chain) Add(selector string) Chain        { return c.Call("add", selector) }
func (c Chain) Closest(selector string) Chain    { return c.Call("closest", selector) }
func (c Chain) Eq(index int) Chain               { return c.Call("eq", index) }
func (c Chain) First() Chain                     { return c.Call("first") }
func (c Chain) Last() Chain                      { return c.Call("last") }
func (c Chain) Next() Chain                      { return c.Call("next") }
func (c Chain) Prev() Chain                      { return c.Call("prev") }
func (c Chain) Siblings() Chain                  { return c.Call("siblings") }
func (c Chain) Parent() Chain                    { return c.Call("parent") }
func (c Chain) End() Chain                       { return c.Call("end") }
func (c Chain) Map(fn Func) Chain                { return c.Call("map", fn) }
func (c Chain) Each(fn Func) Chain               { return c.Call("each", fn) }
func (c Chain) Slice(start, end int) Chain       { return c.Call("slice", start, end) }
func (c Chain) SliceFrom(start int) Chain        { return c.Call("slice", start) }
func (c Chain) Parents(selector ...string) Chain { return c.Call("parents", optional(selector)...) }

// Children selects the element children, optionally filtered by selector.
func (c Chain) Children(selector ...string) Chain {
	return c.Call("children", optional(selector)...)
}

// Manipulation

func (c Chain) AddClass(class string) Chain    { return c.Call("addClass", class) }
func (c Chain) RemoveClass(class string) Chain { return c.Call("removeClass", class) }
func (c Chain) ToggleClass(class string) Chain { return c.Call("toggleClass", class) }
func (c Chain) RemoveAttr(name string) Chain   { return c.Call("removeAttr", name) }
func (c Chain) SetAttr(name string, value any) Chain {
	return c.Call("attr", name, value)
}
func (c Chain) SetProp(name string, value any) Chain {
	return c.Call("prop", name, value)
}
func (c Chain) SetCSS(name, value string) Chain { return c.Call("css", name, value) }
func (c Chain) SetText(text string) Chain       { return c.Call("text", text) }
func (c Chain) SetHTML(markup string) Chain     { return c.Call("html", markup) }
func (c Chain) SetVal(value any) Chain          { return c.Call("val", value) }
func (c Chain) Empty() Chain                    { return c.Call("empty") }
func (c Chain) Remove() Chain                   { return c.Call("remove") }

func optional(selector []string) []any {
	if len(selector) == 0 || selector[0] == "" {
		return nil
	}
	return []any{selector[0]}
}

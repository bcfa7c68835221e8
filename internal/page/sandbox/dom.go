package sandbox

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// dom exposes a parsed document to a goja runtime. Every node is wrapped
// by exactly one object, so identity comparisons in scripts hold.
type dom struct {
	vm    *goja.Runtime
	root  *html.Node
	objs  map[*html.Node]*goja.Object
	nodes map[*goja.Object]*html.Node
	sels  map[string]cascadia.Selector
}

func newDOM(vm *goja.Runtime, root *html.Node) *dom {
	return &dom{
		vm:    vm,
		root:  root,
		objs:  make(map[*html.Node]*goja.Object),
		nodes: make(map[*goja.Object]*html.Node),
		sels:  make(map[string]cascadia.Selector),
	}
}

// isElement reports whether v wraps an element node of this document.
func (d *dom) isElement(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	n, ok := d.nodes[obj]
	return ok && n.Type == html.ElementNode
}

func (d *dom) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := d.objs[n]; ok {
		return obj
	}

	obj := d.vm.NewObject()
	d.objs[n] = obj
	d.nodes[obj] = n

	switch n.Type {
	case html.DocumentNode:
		d.document(obj, n)
	case html.ElementNode:
		d.element(obj, n)
	default:
		d.constant(obj, "nodeType", nodeType(n))
		d.constant(obj, "nodeName", "#"+nodeKind(n))
		d.accessor(obj, "textContent", func() goja.Value { return d.vm.ToValue(n.Data) }, func(v goja.Value) {
			n.Data = v.String()
		})
		d.accessor(obj, "parentNode", func() goja.Value { return d.wrap(n.Parent) }, nil)
	}
	return obj
}

func (d *dom) document(obj *goja.Object, n *html.Node) {
	d.constant(obj, "nodeType", 9)
	d.constant(obj, "nodeName", "#document")
	d.accessor(obj, "parentNode", func() goja.Value { return goja.Null() }, nil)
	d.accessor(obj, "documentElement", func() goja.Value { return d.wrap(firstElement(n)) }, nil)
	d.accessor(obj, "head", func() goja.Value { return d.wrap(htmlquery.FindOne(n, "//head")) }, nil)
	d.accessor(obj, "body", func() goja.Value { return d.wrap(htmlquery.FindOne(n, "//body")) }, nil)
	d.accessor(obj, "title", func() goja.Value {
		title := htmlquery.FindOne(n, "//title")
		if title == nil {
			return d.vm.ToValue("")
		}
		return d.vm.ToValue(strings.TrimSpace(htmlquery.InnerText(title)))
	}, nil)
	d.accessor(obj, "children", func() goja.Value { return d.array(elementChildren(n)) }, nil)
	d.method(obj, "getElementById", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		for _, el := range d.selectAll(n, "*") {
			if attr(el, "id") == id {
				return d.wrap(el)
			}
		}
		return goja.Null()
	})
	d.queries(obj, n)
}

func (d *dom) element(obj *goja.Object, n *html.Node) {
	d.constant(obj, "nodeType", 1)
	d.constant(obj, "nodeName", strings.ToUpper(n.Data))
	d.constant(obj, "tagName", strings.ToUpper(n.Data))
	d.attrProperty(obj, n, "id", "id")
	d.attrProperty(obj, n, "className", "class")

	d.accessor(obj, "parentNode", func() goja.Value { return d.wrap(n.Parent) }, nil)
	d.accessor(obj, "parentElement", func() goja.Value {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return goja.Null()
		}
		return d.wrap(n.Parent)
	}, nil)
	d.accessor(obj, "children", func() goja.Value { return d.array(elementChildren(n)) }, nil)
	d.accessor(obj, "childNodes", func() goja.Value {
		var all []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			all = append(all, c)
		}
		return d.array(all)
	}, nil)
	d.accessor(obj, "firstElementChild", func() goja.Value { return d.wrap(firstElement(n)) }, nil)
	d.accessor(obj, "nextElementSibling", func() goja.Value {
		for s := n.NextSibling; s != nil; s = s.NextSibling {
			if s.Type == html.ElementNode {
				return d.wrap(s)
			}
		}
		return goja.Null()
	}, nil)
	d.accessor(obj, "previousElementSibling", func() goja.Value {
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode {
				return d.wrap(s)
			}
		}
		return goja.Null()
	}, nil)

	d.accessor(obj, "textContent", func() goja.Value {
		return d.vm.ToValue(htmlquery.InnerText(n))
	}, func(v goja.Value) {
		removeChildren(n)
		if s := v.String(); s != "" {
			n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
		}
	})
	d.accessor(obj, "innerHTML", func() goja.Value {
		return d.vm.ToValue(htmlquery.OutputHTML(n, false))
	}, func(v goja.Value) {
		nodes, err := html.ParseFragment(strings.NewReader(v.String()), n)
		if err != nil {
			panic(d.vm.NewGoError(err))
		}
		removeChildren(n)
		for _, c := range nodes {
			n.AppendChild(c)
		}
	})
	d.accessor(obj, "outerHTML", func() goja.Value {
		return d.vm.ToValue(htmlquery.OutputHTML(n, true))
	}, nil)
	d.accessor(obj, "value", func() goja.Value { return formValue(d.vm, n) }, func(v goja.Value) {
		setFormValue(n, v.String())
	})
	for _, flag := range []string{"checked", "disabled", "selected", "hidden", "required"} {
		d.flagProperty(obj, n, flag)
	}

	d.method(obj, "getAttribute", func(call goja.FunctionCall) goja.Value {
		v, ok := lookupAttr(n, call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return d.vm.ToValue(v)
	})
	d.method(obj, "hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := lookupAttr(n, call.Argument(0).String())
		return d.vm.ToValue(ok)
	})
	d.method(obj, "setAttribute", func(call goja.FunctionCall) goja.Value {
		setAttr(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	d.method(obj, "removeAttribute", func(call goja.FunctionCall) goja.Value {
		removeAttr(n, call.Argument(0).String())
		return goja.Undefined()
	})
	d.method(obj, "matches", func(call goja.FunctionCall) goja.Value {
		sel := d.compile(call.Argument(0).String())
		return d.vm.ToValue(goquery.NewDocumentFromNode(n).IsMatcher(sel))
	})
	d.method(obj, "removeChild", func(call goja.FunctionCall) goja.Value {
		child := d.node(call.Argument(0))
		if child == nil || child.Parent != n {
			panic(d.vm.NewTypeError("removeChild: not a child of this node"))
		}
		n.RemoveChild(child)
		return call.Argument(0)
	})
	d.method(obj, "appendChild", func(call goja.FunctionCall) goja.Value {
		child := d.node(call.Argument(0))
		if child == nil {
			panic(d.vm.NewTypeError("appendChild: not a node"))
		}
		if child.Parent != nil {
			child.Parent.RemoveChild(child)
		}
		n.AppendChild(child)
		return call.Argument(0)
	})
	d.queries(obj, n)
}

func (d *dom) queries(obj *goja.Object, n *html.Node) {
	d.method(obj, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return d.array(d.selectAll(n, call.Argument(0).String()))
	})
	d.method(obj, "querySelector", func(call goja.FunctionCall) goja.Value {
		found := d.selectAll(n, call.Argument(0).String())
		if len(found) == 0 {
			return goja.Null()
		}
		return d.wrap(found[0])
	})
}

// selectAll returns the descendants of n matching selector in document
// order. Invalid selectors throw a SyntaxError into the script.
func (d *dom) selectAll(n *html.Node, selector string) []*html.Node {
	sel := d.compile(selector)
	return goquery.NewDocumentFromNode(n).FindMatcher(sel).Nodes
}

func (d *dom) compile(selector string) cascadia.Selector {
	if sel, ok := d.sels[selector]; ok {
		return sel
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		d.throw("SyntaxError", fmt.Sprintf("'%s' is not a valid selector", selector))
	}
	d.sels[selector] = sel
	return sel
}

func (d *dom) throw(ctor, msg string) {
	obj, err := d.vm.New(d.vm.Get(ctor), d.vm.ToValue(msg))
	if err != nil {
		panic(d.vm.NewGoError(err))
	}
	panic(obj)
}

func (d *dom) node(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return d.nodes[obj]
}

func (d *dom) array(nodes []*html.Node) goja.Value {
	items := make([]interface{}, len(nodes))
	for i, n := range nodes {
		items[i] = d.wrap(n)
	}
	return d.vm.NewArray(items...)
}

func (d *dom) constant(obj *goja.Object, name string, v interface{}) {
	_ = obj.DefineDataProperty(name, d.vm.ToValue(v), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (d *dom) method(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	_ = obj.DefineDataProperty(name, d.vm.ToValue(fn), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// accessor defines a non-enumerable getter (and optional setter), so
// JSON.stringify of a node yields {} like in a browser.
func (d *dom) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := d.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	var setter goja.Value
	if set != nil {
		setter = d.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	_ = obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (d *dom) attrProperty(obj *goja.Object, n *html.Node, prop, name string) {
	d.accessor(obj, prop, func() goja.Value { return d.vm.ToValue(attr(n, name)) }, func(v goja.Value) {
		setAttr(n, name, v.String())
	})
}

func (d *dom) flagProperty(obj *goja.Object, n *html.Node, name string) {
	d.accessor(obj, name, func() goja.Value {
		_, ok := lookupAttr(n, name)
		return d.vm.ToValue(ok)
	}, func(v goja.Value) {
		if v.ToBoolean() {
			setAttr(n, name, "")
		} else {
			removeAttr(n, name)
		}
	})
}

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	default:
		return 0
	}
}

func nodeKind(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return "text"
	case html.CommentNode:
		return "comment"
	case html.DoctypeNode:
		return "doctype"
	default:
		return "node"
	}
}

func firstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	name = strings.ToLower(name)
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func setAttr(n *html.Node, name, value string) {
	name = strings.ToLower(name)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	name = strings.ToLower(name)
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace != "" || a.Key != name {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

func formValue(vm *goja.Runtime, n *html.Node) goja.Value {
	switch n.Data {
	case "input":
		return vm.ToValue(attr(n, "value"))
	case "textarea":
		return vm.ToValue(htmlquery.InnerText(n))
	case "option":
		if v, ok := lookupAttr(n, "value"); ok {
			return vm.ToValue(v)
		}
		return vm.ToValue(strings.TrimSpace(htmlquery.InnerText(n)))
	case "select":
		opt := selectedOption(n)
		if opt == nil {
			return vm.ToValue("")
		}
		return formValue(vm, opt)
	default:
		return goja.Undefined()
	}
}

func setFormValue(n *html.Node, value string) {
	switch n.Data {
	case "textarea":
		removeChildren(n)
		n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	case "select":
		for _, opt := range htmlquery.Find(n, ".//option") {
			v, ok := lookupAttr(opt, "value")
			if !ok {
				v = strings.TrimSpace(htmlquery.InnerText(opt))
			}
			if v == value {
				setAttr(opt, "selected", "")
			} else {
				removeAttr(opt, "selected")
			}
		}
	default:
		setAttr(n, "value", value)
	}
}

func selectedOption(sel *html.Node) *html.Node {
	options := htmlquery.Find(sel, ".//option")
	for _, opt := range options {
		if _, ok := lookupAttr(opt, "selected"); ok {
			return opt
		}
	}
	if len(options) > 0 {
		return options[0]
	}
	return nil
}

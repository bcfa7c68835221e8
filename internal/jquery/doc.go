/*
Package jquery runs jQuery call chains inside a remote page.

# Overview

A chain is recorded locally and only evaluated when a terminal method is
called. Building is purely textual: each step appends ".method(args)" to a
code string, with arguments rendered as JavaScript literals.

	bridge := jquery.NewBridge(page, jquery.Options{Logger: logger})

	items, err := bridge.Query(".item").
		FilterFunc(`function (i, el) { return el.textContent !== "skip"; }`).
		Exec(ctx)

	title, err := bridge.Query("h1").Text(ctx)

# Injection

The library is injected under a private global (Bridge.Name) rather than
jQuery or $, so it never clashes with a copy the page ships itself. The
page is not checked up front: when an evaluation fails because the global
is missing, or because a navigation destroyed the execution context, the
bridge injects the library and retries that evaluation once.

# Results

Exec returns element handles (non-elements are dropped), POJO and the
value accessors (Text, HTML, Val, Attr, CSS, Prop) return structural
copies. The raw result handle is always released.

# Targets

Target is the evaluation channel. Implementations live in
internal/page/sandbox (goja, in-process) and internal/page/chrome (rod).
*/
package jquery

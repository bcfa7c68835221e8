/*
Package sandbox provides an in-process page for running jQuery chains
without a browser.

A Page is a goja runtime whose global object doubles as window and whose
document is parsed from HTML with golang.org/x/net/html. Elements support
the subset of the DOM the sandbox library build relies on: selector queries
(cascadia via goquery), traversal, attributes, text and markup, form
values. Each node is represented by a single script object, so identity
checks behave as in a browser.

	page := sandbox.New(sandbox.DefaultConfig())
	_ = page.Load(`<ul><li class="item">a</li><li class="item">b</li></ul>`)

	bridge := jquery.NewBridge(page, jquery.Options{})
	items, err := bridge.Query(".item").Exec(ctx)

# Contexts

Load replaces the document and the runtime. Globals defined by earlier
evaluations, including an injected library, are gone afterwards, and
handles from the previous context fail with the same message Chrome uses
for a vanished execution context.

# Limits

Every evaluation is interrupted after Config.Timeout or when its context
ends. Timers are no-ops.

# Pool

Pool keeps a fixed number of pages and resets them on Release.
*/
package sandbox

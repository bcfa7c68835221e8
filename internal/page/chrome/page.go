package chrome

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/rod/lib/utils"
	"go.uber.org/zap"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
	"github.com/juiceqa/puppeteer-jquery/internal/shared/id"
)

// ErrForeignHandle is returned when a handle of another page is passed
// as an argument.
var ErrForeignHandle = errors.New("chrome: handle belongs to another page")

// Page is a browser tab. It implements jquery.Target and jquery.Waiter
// and carries the bridge used by JQuery and WaitForJQuery.
type Page struct {
	id      id.PageID
	page    *rod.Page
	logger  *zap.Logger
	bridge  *jquery.Bridge
	onClose func()
}

var (
	_ jquery.Target = (*Page)(nil)
	_ jquery.Waiter = (*Page)(nil)
)

func newPage(rp *rod.Page, logger *zap.Logger, opts jquery.Options) *Page {
	p := &Page{id: id.NewPageID(), page: rp}
	p.logger = logger.With(zap.Stringer("page", p.id))
	p.bridge = jquery.NewBridge(p, opts)
	return p
}

// ID returns the page identifier.
func (p *Page) ID() id.PageID { return p.id }

// Rod exposes the underlying rod page.
func (p *Page) Rod() *rod.Page { return p.page }

// Bridge returns the page's jQuery bridge.
func (p *Page) Bridge() *jquery.Bridge { return p.bridge }

// JQuery starts a chain rooted at selector.
func (p *Page) JQuery(selector string) jquery.Chain {
	return p.bridge.Query(selector)
}

// WaitForJQuery waits for selector to match at least one element.
func (p *Page) WaitForJQuery(ctx context.Context, selector string, opts jquery.WaitOptions) ([]jquery.Handle, error) {
	return p.bridge.WaitFor(ctx, selector, opts)
}

// Navigate loads url and waits for the load event. The injected library
// does not survive this.
func (p *Page) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	p.logger.Debug("navigated", zap.String("url", url))
	return nil
}

// SetContent replaces the document with markup.
func (p *Page) SetContent(ctx context.Context, markup string) error {
	return p.page.Context(ctx).SetDocumentContent(markup)
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// Evaluate runs code as a script expression.
func (p *Page) Evaluate(ctx context.Context, code string) (jquery.Handle, error) {
	res, err := proto.RuntimeEvaluate{Expression: code}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, exceptionError(res.ExceptionDetails)
	}
	return p.handle(res.Result), nil
}

// EvaluateFunc calls fn with args. Handles of this page are passed by
// reference.
func (p *Page) EvaluateFunc(ctx context.Context, fn string, args ...any) (jquery.Handle, error) {
	callArgs, err := p.arguments(args)
	if err != nil {
		return nil, err
	}
	obj, err := p.page.Context(ctx).Evaluate(rod.Eval(fn, callArgs...).ByObject())
	if err != nil {
		return nil, err
	}
	return p.handle(obj), nil
}

// arguments swaps handles for their remote objects.
func (p *Page) arguments(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case *Handle:
			if v.page != p {
				return nil, ErrForeignHandle
			}
			out[i] = v.obj
		case jquery.Handle:
			return nil, ErrForeignHandle
		default:
			out[i] = arg
		}
	}
	return out, nil
}

// WaitFor polls predicate in the page until it is truthy or ctx ends.
func (p *Page) WaitFor(ctx context.Context, predicate string, opts jquery.WaitOptions) error {
	interval := opts.PollInterval()
	page := p.page.Context(ctx).Sleeper(func() utils.Sleeper {
		return utils.BackoffSleeper(interval, interval, nil)
	})
	return page.Wait(rod.Eval(waitFunction(predicate)))
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.onClose != nil {
		p.onClose()
	}
	return p.page.Close()
}

func (p *Page) handle(obj *proto.RuntimeRemoteObject) *Handle {
	return &Handle{page: p, obj: obj}
}

func waitFunction(predicate string) string {
	return "() => " + predicate
}

// exceptionError converts thrown exception details into an error carrying
// the exception description, e.g. "ReferenceError: x is not defined".
func exceptionError(d *proto.RuntimeExceptionDetails) error {
	if d.Exception != nil && d.Exception.Description != "" {
		return errors.New(d.Exception.Description)
	}
	return errors.New(d.Text)
}


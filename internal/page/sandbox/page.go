package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
	"github.com/juiceqa/puppeteer-jquery/internal/library"
	"github.com/juiceqa/puppeteer-jquery/internal/shared/id"
)

// Page is an in-process page: a goja runtime with a document built from
// HTML. It implements jquery.Target. Loading a new document replaces the
// runtime, so globals defined by earlier scripts are gone, as after a
// navigation in a browser.
type Page struct {
	id     id.PageID
	config Config
	logger *zap.Logger

	mu         sync.Mutex
	vm         *goja.Runtime
	dom        *dom
	stringify  goja.Callable
	parse      goja.Callable
	generation uint64
	handles    map[uint64]*Handle
	nextHandle uint64
	closed     bool

	consoleMu sync.Mutex
	console   []LogEntry
}

// New creates a page showing an empty document.
func New(config Config) *Page {
	config = config.withDefaults()
	p := &Page{
		id:      id.NewPageID(),
		config:  config,
		handles: make(map[uint64]*Handle),
	}
	p.logger = config.Logger.Named("sandbox").With(zap.Stringer("page", p.id))
	if err := p.Load(blankDocument); err != nil {
		// the blank document always parses
		panic(err)
	}
	return p
}

// ID returns the page identifier.
func (p *Page) ID() id.PageID { return p.id }

// Load replaces the document with markup and resets the script context.
// Handles of the previous context become stale.
func (p *Page) Load(markup string) error {
	root, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.resetRuntime(root); err != nil {
		return err
	}
	p.logger.Debug("document loaded", zap.Int("bytes", len(markup)), zap.Uint64("generation", p.generation))
	return nil
}

// Reset loads the blank document and clears the console.
func (p *Page) Reset() error {
	p.consoleMu.Lock()
	p.console = nil
	p.consoleMu.Unlock()
	return p.Load(blankDocument)
}

func (p *Page) resetRuntime(root *html.Node) error {
	vm := goja.New()
	vm.SetMaxCallStackSize(p.config.MaxCallStack)
	d := newDOM(vm, root)

	if err := p.setupGlobals(vm, d); err != nil {
		return err
	}
	stringify, err := compileFunc(vm, "(function (v) { return JSON.stringify(v); })")
	if err != nil {
		return err
	}
	parse, err := compileFunc(vm, "(function (s) { return JSON.parse(s); })")
	if err != nil {
		return err
	}

	p.vm, p.dom = vm, d
	p.stringify, p.parse = stringify, parse
	p.generation++
	p.handles = make(map[uint64]*Handle)
	return nil
}

func compileFunc(vm *goja.Runtime, src string) (goja.Callable, error) {
	v, err := vm.RunString(src)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("not a function: %s", src)
	}
	return fn, nil
}

// setupGlobals defines window and document and removes host globals.
func (p *Page) setupGlobals(vm *goja.Runtime, d *dom) error {
	global := vm.GlobalObject()
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}
	if err := vm.Set("window", global); err != nil {
		return err
	}
	if err := vm.Set("self", global); err != nil {
		return err
	}
	if err := vm.Set("document", d.wrap(d.root)); err != nil {
		return err
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, p.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	// timers never fire: nothing runs after an evaluation returns
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval", "requestAnimationFrame"} {
		if err := vm.Set(name, noop); err != nil {
			return err
		}
	}
	return nil
}

func (p *Page) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !p.config.EnableConsole {
			return goja.Undefined()
		}
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		p.consoleMu.Lock()
		p.console = append(p.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		p.consoleMu.Unlock()
		return goja.Undefined()
	}
}

// Console returns the console output captured since the last Reset.
func (p *Page) Console() []LogEntry {
	p.consoleMu.Lock()
	defer p.consoleMu.Unlock()
	return append([]LogEntry(nil), p.console...)
}

// HTML serializes the current document.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	return htmlquery.OutputHTML(p.dom.root, false), nil
}

// LiveHandles returns the number of handles not yet released in the
// current context.
func (p *Page) LiveHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Evaluate runs code and returns a handle to its completion value.
func (p *Page) Evaluate(ctx context.Context, code string) (jquery.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	v, err := p.run(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(code)
	})
	if err != nil {
		return nil, err
	}
	return p.track(v), nil
}

// EvaluateFunc calls the function defined by fn with args. Arguments that
// are handles of this page are passed by reference, anything else as a
// JSON copy.
func (p *Page) EvaluateFunc(ctx context.Context, fn string, args ...any) (jquery.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	v, err := p.run(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		fv, err := vm.RunString("(" + fn + ")")
		if err != nil {
			return nil, err
		}
		call, ok := goja.AssertFunction(fv)
		if !ok {
			return nil, fmt.Errorf("evaluate: not a function: %.40s", fn)
		}
		values := make([]goja.Value, len(args))
		for i, arg := range args {
			if values[i], err = p.argument(arg); err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
		}
		return call(goja.Undefined(), values...)
	})
	if err != nil {
		return nil, err
	}
	return p.track(v), nil
}

func (p *Page) argument(arg any) (goja.Value, error) {
	if h, ok := arg.(*Handle); ok {
		if h.page != p {
			return nil, ErrForeignHandle
		}
		if h.generation != p.generation {
			return nil, ErrStaleHandle
		}
		return h.value, nil
	}
	if _, ok := arg.(jquery.Handle); ok {
		return nil, ErrForeignHandle
	}
	raw, err := sonic.MarshalString(arg)
	if err != nil {
		return nil, err
	}
	return p.parse(goja.Undefined(), p.vm.ToValue(raw))
}

// run executes fn on the runtime, interrupting it when the timeout
// elapses or ctx ends. Callers hold p.mu.
func (p *Page) run(ctx context.Context, fn func(vm *goja.Runtime) (goja.Value, error)) (goja.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vm := p.vm
	start := time.Now()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := time.NewTimer(p.config.Timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			vm.Interrupt(ErrTimeout)
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	v, err := fn(vm)
	close(done)
	wg.Wait()
	vm.ClearInterrupt()

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				err = cause
			} else {
				err = ErrTimeout
			}
		}
		p.logger.Debug("evaluation failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, err
	}
	return v, nil
}

func (p *Page) track(v goja.Value) *Handle {
	p.nextHandle++
	h := &Handle{
		page:       p,
		id:         p.nextHandle,
		generation: p.generation,
		value:      v,
		element:    p.dom.isElement(v),
	}
	p.handles[h.id] = h
	return h
}

// DefaultLibrary returns the sandbox build, which fits the page's DOM.
func (p *Page) DefaultLibrary() jquery.SourceLoader { return library.Sandbox() }

// Close releases the runtime. A closed page rejects every call.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.vm, p.dom = nil, nil
	p.handles = make(map[uint64]*Handle)
	return nil
}

package chrome

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
)

// Options configures how the browser is reached.
type Options struct {
	// URL is the DevTools websocket URL of a running browser. Empty
	// launches a local one.
	URL string
	// Bin is the browser executable. Empty lets the launcher find or
	// download one.
	Bin      string
	Headless bool
	Logger   *zap.Logger
	// Bridge is applied to every page's bridge.
	Bridge jquery.Options
}

// Browser is a connected browser.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *zap.Logger
	bridge   jquery.Options

	mu    sync.Mutex
	pages map[*Page]struct{}
}

// Launch connects to opts.URL or starts a local browser.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chrome")

	b := &Browser{
		logger: logger,
		bridge: opts.Bridge,
		pages:  make(map[*Page]struct{}),
	}
	if b.bridge.Logger == nil {
		b.bridge.Logger = logger
	}

	controlURL := opts.URL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		b.launcher = l
		controlURL = u
		logger.Info("browser launched", zap.String("control_url", controlURL))
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if b.launcher != nil {
			b.launcher.Kill()
		}
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	// the launch context only bounds connecting
	b.browser = browser.Context(context.Background())
	return b, nil
}

// NewPage opens url in a new tab and waits for it to load.
func (b *Browser) NewPage(ctx context.Context, url string) (*Page, error) {
	rp, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	p := newPage(rp.Context(context.Background()), b.logger, b.bridge)
	if url != "" && url != "about:blank" {
		if err := p.Navigate(ctx, url); err != nil {
			_ = rp.Close()
			return nil, err
		}
	}

	b.mu.Lock()
	b.pages[p] = struct{}{}
	b.mu.Unlock()
	p.onClose = func() {
		b.mu.Lock()
		delete(b.pages, p)
		b.mu.Unlock()
	}
	return p, nil
}

// Pages returns the number of open pages.
func (b *Browser) Pages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

// Close closes the connection and stops a launched browser.
func (b *Browser) Close() error {
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}

package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPoolClosed = errors.New("sandbox pool is closed")
	ErrExhausted  = errors.New("sandbox pool exhausted")
)

// Pool manages reusable pages. A released page is reset to the blank
// document before it is handed out again.
type Pool struct {
	config  Config
	pages   chan *Page
	size    int
	timeout time.Duration
	mu      sync.RWMutex
	closed  bool
}

// PoolStats describes pool usage.
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// NewPool creates a pool of size pages.
func NewPool(config Config, size int) *Pool {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config:  config,
		pages:   make(chan *Page, size),
		size:    size,
		timeout: 5 * time.Second,
	}
	for i := 0; i < size; i++ {
		pool.pages <- New(config)
	}
	return pool
}

// Acquire takes a page, waiting until one is free, ctx ends or the
// acquisition timeout elapses.
func (p *Pool) Acquire(ctx context.Context) (*Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case page := <-p.pages:
		return page, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrExhausted
	}
}

// Release resets page and returns it to the pool.
func (p *Pool) Release(page *Page) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return page.Close()
	}

	if err := page.Reset(); err != nil {
		_ = page.Close()
		p.pages <- New(p.config)
		return err
	}

	select {
	case p.pages <- page:
		return nil
	default:
		return page.Close()
	}
}

// With runs fn on a pooled page holding markup.
func (p *Pool) With(ctx context.Context, markup string, fn func(*Page) error) error {
	page, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = p.Release(page) }()

	if err := page.Load(markup); err != nil {
		return err
	}
	return fn(page)
}

// Close closes the pool and all idle pages.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.pages)
	for page := range p.pages {
		_ = page.Close()
	}
	return nil
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	available := 0
	if !p.closed {
		available = len(p.pages)
	}
	return PoolStats{
		Size:      p.size,
		Available: available,
		InUse:     p.size - available,
		Closed:    p.closed,
	}
}

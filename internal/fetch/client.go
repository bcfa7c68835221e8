package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/resilience"
)

// MaxBodySize caps a fetched document.
const MaxBodySize = 10 * 1024 * 1024

// ErrTooLarge is returned for documents larger than MaxBodySize.
var ErrTooLarge = errors.New("fetch: document too large")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	// RateLimit is requests per second. Zero means unlimited.
	RateLimit float64
	Logger    *zap.Logger
}

// Document is a fetched resource with its body decoded to UTF-8.
type Document struct {
	URL         string
	Status      int
	ContentType string
	Charset     string
	Text        string
}

// Client fetches remote pages and library builds. Calls are rate limited
// and guarded by a circuit breaker; 5xx responses and transport errors
// are retried.
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
	logger  *zap.Logger

	mu      sync.RWMutex
	limiter *rate.Limiter
}

// New creates a client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "puppeteer-jquery/1.0"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	// pooled transport with sane dial and idle settings
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTransport(retryClient.HTTPClient.Transport).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", opts.UserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() >= 500 || r.StatusCode() == 429)
		})

	breaker := resilience.New("fetch", resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		IsFailure: isFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			opts.Logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	c := &Client{
		resty:   restyClient,
		breaker: breaker,
		logger:  opts.Logger.Named("fetch"),
	}
	c.SetRateLimit(opts.RateLimit)
	return c
}

// isFailure keeps caller cancellation and client errors from tripping
// the breaker.
func isFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// SetRateLimit configures rate limiting in requests per second.
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Get fetches url and decodes the body.
func (c *Client) Get(ctx context.Context, url string) (*Document, error) {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var doc *Document
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		resp, err := c.resty.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
			return &StatusError{URL: url, Code: resp.StatusCode()}
		}
		body := resp.Body()
		if len(body) > MaxBodySize {
			return fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, url, len(body))
		}
		contentType := resp.Header().Get("Content-Type")
		text, cs := Decode(body, contentType)
		doc = &Document{
			URL:         url,
			Status:      resp.StatusCode(),
			ContentType: contentType,
			Charset:     cs,
			Text:        text,
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("fetch %s: remote unavailable: %w", url, err)
	}
	if err != nil {
		c.logger.Debug("fetch failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("fetched", zap.String("url", url), zap.Int("status", doc.Status), zap.String("charset", doc.Charset))
	return doc, nil
}

// Text fetches url and returns its decoded body.
func (c *Client) Text(ctx context.Context, url string) (string, error) {
	doc, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

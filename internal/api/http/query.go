package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/juiceqa/puppeteer-jquery/internal/api/middleware"
	"github.com/juiceqa/puppeteer-jquery/internal/fetch"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/monitoring"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/tracing"
	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
	"github.com/juiceqa/puppeteer-jquery/internal/page/sandbox"
	"github.com/juiceqa/puppeteer-jquery/internal/script"
)

// errBadRequest marks request shape problems.
var errBadRequest = errors.New("bad request")

// Source names the document a request runs against: inline markup or a
// URL to fetch. Exactly one must be set.
type Source struct {
	HTML string `json:"html"`
	URL  string `json:"url"`
}

func (s Source) validate() error {
	switch {
	case s.HTML == "" && s.URL == "":
		return fmt.Errorf("%w: one of html or url is required", errBadRequest)
	case s.HTML != "" && s.URL != "":
		return fmt.Errorf("%w: html and url are mutually exclusive", errBadRequest)
	}
	return nil
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Source
	Script script.Script `json:"script"`
	// Sanitize passes element markup through an HTML sanitizer.
	Sanitize bool `json:"sanitize"`
	// Timeout bounds the whole request, e.g. "10s".
	Timeout string `json:"timeout"`
}

// WaitRequest is the body of POST /v1/wait.
type WaitRequest struct {
	Source
	Selector string      `json:"selector"`
	Wait     script.Wait `json:"wait"`
	Sanitize bool        `json:"sanitize"`
}

// QueryResponse is returned by both endpoints.
type QueryResponse struct {
	RequestID string             `json:"request_id,omitempty"`
	Source    string             `json:"source"`
	Charset   string             `json:"charset,omitempty"`
	Result    *script.Result     `json:"result"`
	Console   []sandbox.LogEntry `json:"console,omitempty"`
}

// Query runs a script against a document.
func (h *Handlers) Query(c *gin.Context) {
	var req QueryRequest
	if err := h.bind(c, &req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	ctx := c.Request.Context()
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			h.fail(c, fmt.Errorf("%w: invalid timeout %q", errBadRequest, req.Timeout))
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	h.run(c, ctx, req.Source, &req.Script, req.Sanitize)
}

// Wait waits for a selector to match, then returns the matches.
func (h *Handlers) Wait(c *gin.Context) {
	var req WaitRequest
	if err := h.bind(c, &req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	wait := req.Wait
	if wait.Timeout == "" && h.wait.Timeout > 0 {
		wait.Timeout = h.wait.Timeout.String()
	}
	if wait.Polling == string(jquery.PollingInterval) && wait.Interval == "" && h.wait.Interval > 0 {
		wait.Interval = h.wait.Interval.String()
	}
	s := &script.Script{Selector: req.Selector, Wait: &wait}
	h.run(c, c.Request.Context(), req.Source, s, req.Sanitize)
}

func (h *Handlers) bind(c *gin.Context, v any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)
	return c.ShouldBindJSON(v)
}

func (h *Handlers) run(c *gin.Context, ctx context.Context, src Source, s *script.Script, sanitize bool) {
	if err := src.validate(); err != nil {
		h.fail(c, err)
		return
	}
	if err := s.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	if err := validateScript(s); err != nil {
		h.fail(c, err)
		return
	}

	resp := QueryResponse{RequestID: middleware.GetRequestID(c), Source: "inline"}
	markup := src.HTML
	if src.URL != "" {
		doc, err := h.fetch(ctx, src.URL)
		if err != nil {
			h.fail(c, err)
			return
		}
		markup, resp.Source, resp.Charset = doc.Text, doc.URL, doc.Charset
	}

	var opts script.Options
	if sanitize {
		opts.Sanitize = h.sanitizer.Sanitize
	}

	err := h.pool.With(ctx, markup, func(page *sandbox.Page) error {
		h.metrics.PageAcquired()
		defer h.metrics.PageReleased()

		bridge := jquery.NewBridge(page, jquery.Options{
			Library:  h.library,
			Logger:   h.logger,
			Observer: h.metrics,
		})
		return h.tracer.Trace(ctx, "exec", func(ctx context.Context, span *tracing.Span) error {
			span.SetTag("selector", s.Selector)
			span.SetTag("mode", string(s.Mode))
			res, err := script.Run(ctx, bridge, s, opts)
			resp.Console = page.Console()
			resp.Result = res
			return err
		})
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) fetch(ctx context.Context, url string) (*fetch.Document, error) {
	if h.fetcher == nil {
		return nil, fmt.Errorf("%w: fetching by url is disabled", errBadRequest)
	}
	var doc *fetch.Document
	err := h.tracer.Trace(ctx, "fetch", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("url", url)
		timer := monitoring.NewTimer(h.metrics, "fetch")
		var err error
		doc, err = h.fetcher.Get(ctx, url)
		timer.StopErr(err)
		return err
	})
	return doc, err
}

func (h *Handlers) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
	} else {
		h.logger.Debug("request rejected", zap.Error(err), zap.Int("status", code))
	}
	_ = c.Error(err)
	c.JSON(code, gin.H{
		"error":      err.Error(),
		"request_id": middleware.GetRequestID(c),
	})
}

package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/juiceqa/puppeteer-jquery/internal/fetch"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/config"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/monitoring"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/tracing"
	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
	"github.com/juiceqa/puppeteer-jquery/internal/page/sandbox"
)

// Version is reported by the root and health endpoints.
const Version = "1.0.0"

// DocumentFetcher downloads the page a query runs against.
type DocumentFetcher interface {
	Get(ctx context.Context, url string) (*fetch.Document, error)
}

// Deps are the collaborators of the handlers. Fetcher may be nil, which
// disables queries by URL.
type Deps struct {
	Pool    *sandbox.Pool
	Fetcher DocumentFetcher
	Library jquery.SourceLoader
	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
	Logger  *zap.Logger
	Wait    config.WaitConfig
	// BreakerState reports the fetch circuit breaker, when there is one.
	BreakerState func() string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	pool         *sandbox.Pool
	fetcher      DocumentFetcher
	library      jquery.SourceLoader
	metrics      *monitoring.Metrics
	tracer       *tracing.Tracer
	logger       *zap.Logger
	wait         config.WaitConfig
	breakerState func() string
	sanitizer    *bluemonday.Policy
}

// NewHandlers creates a new handler set
func NewHandlers(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = monitoring.NewMetrics()
	}
	if d.Tracer == nil {
		d.Tracer = tracing.New("pjq", d.Logger)
	}
	return &Handlers{
		pool:         d.Pool,
		fetcher:      d.Fetcher,
		library:      d.Library,
		metrics:      d.Metrics,
		tracer:       d.Tracer,
		logger:       d.Logger.Named("api"),
		wait:         d.Wait,
		breakerState: d.BreakerState,
		sanitizer:    bluemonday.UGCPolicy(),
	}
}

// Register mounts the routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	v1.POST("/query", h.Query)
	v1.POST("/wait", h.Wait)
}

// Root reports the service identity.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "puppeteer-jquery",
		"version": Version,
	})
}

// Health reports pool, fetch and execution state.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.pool.Stats()
	status, code := "healthy", http.StatusOK
	if stats.Closed {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":  status,
		"version": Version,
		"pool":    stats,
		"metrics": h.metrics.Snapshot(),
		"fetch":   gin.H{"enabled": h.fetcher != nil},
	}
	if h.breakerState != nil {
		body["fetch"] = gin.H{"enabled": h.fetcher != nil, "breaker": h.breakerState()}
	}
	c.JSON(code, body)
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/juiceqa/puppeteer-jquery/internal/api/http"
	"github.com/juiceqa/puppeteer-jquery/internal/api/middleware"
	"github.com/juiceqa/puppeteer-jquery/internal/fetch"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/config"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/logging"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/monitoring"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/tracing"
	"github.com/juiceqa/puppeteer-jquery/internal/library"
	"github.com/juiceqa/puppeteer-jquery/internal/page/sandbox"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	pool    *sandbox.Pool
	fetcher *fetch.Client
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return newServer(cfg, logger), nil
}

func newServer(cfg *config.Config, logger *logging.Logger) *Server {
	logger.Info("Initializing puppeteer-jquery server",
		zap.String("port", cfg.Server.Port),
		zap.Int("pool_size", cfg.Sandbox.PoolSize),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("puppeteer-jquery", logger.Logger)

	fetcher := fetch.New(fetch.Options{
		Timeout:   cfg.Fetch.Timeout,
		Retries:   cfg.Fetch.Retries,
		UserAgent: cfg.Fetch.UserAgent,
		RateLimit: cfg.Fetch.RateLimit,
		Logger:    logger.Logger,
	})

	lib := library.New(cfg.Library.Path, cfg.Library.URL, fetcher, library.Sandbox())
	logger.Info("Library source selected", zap.String("origin", lib.Origin()))

	pool := sandbox.NewPool(sandbox.Config{
		Timeout:       cfg.Sandbox.Timeout,
		EnableConsole: true,
		Logger:        logger.Logger,
	}, cfg.Sandbox.PoolSize)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery(logger.Logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Pool:         pool,
		Fetcher:      fetcher,
		Library:      lib,
		Metrics:      metrics,
		Tracer:       tracer,
		Logger:       logger.Logger,
		Wait:         cfg.Wait,
		BreakerState: func() string { return fetcher.BreakerState().String() },
	})
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		pool:    pool,
		fetcher: fetcher,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}
}

// Router exposes the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// Run starts the HTTP server and blocks until it is shut down.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
	}
	if err := s.pool.Close(); err != nil && !errors.Is(err, sandbox.ErrPoolClosed) {
		errs = append(errs, fmt.Errorf("failed to close sandbox pool: %w", err))
	}
	s.tracer.Close()
	s.logger.Close()

	return errors.Join(errs...)
}

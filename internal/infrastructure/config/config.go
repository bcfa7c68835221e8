package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Library   LibraryConfig
	Sandbox   SandboxConfig
	Browser   BrowserConfig
	Wait      WaitConfig
	Fetch     FetchConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// LibraryConfig selects the library source injected into pages. Path wins
// over URL; with neither set the embedded build for the page kind is used.
type LibraryConfig struct {
	Path string `envconfig:"JQUERY_PATH"`
	URL  string `envconfig:"JQUERY_URL"`
}

// SandboxConfig holds in-process page settings.
type SandboxConfig struct {
	PoolSize int           `envconfig:"SANDBOX_POOL_SIZE" default:"8"`
	Timeout  time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
}

// BrowserConfig holds Chrome connection settings. URL connects to a
// running browser; otherwise one is launched from Bin (or downloaded).
type BrowserConfig struct {
	URL      string `envconfig:"BROWSER_URL"`
	Bin      string `envconfig:"BROWSER_BIN"`
	Headless bool   `envconfig:"BROWSER_HEADLESS" default:"true"`
}

// WaitConfig holds defaults for waiting on selectors.
type WaitConfig struct {
	Timeout  time.Duration `envconfig:"WAIT_TIMEOUT" default:"30s"`
	Interval time.Duration `envconfig:"WAIT_INTERVAL" default:"100ms"`
}

// FetchConfig holds outbound HTTP settings.
type FetchConfig struct {
	Timeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	Retries   int           `envconfig:"FETCH_RETRIES" default:"3"`
	UserAgent string        `envconfig:"FETCH_USER_AGENT" default:"puppeteer-jquery/1.0"`
	// RateLimit is outbound requests per second; zero is unlimited.
	RateLimit float64 `envconfig:"FETCH_RATE_LIMIT" default:"0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sandbox: SandboxConfig{
			PoolSize: 8,
			Timeout:  5 * time.Second,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Wait: WaitConfig{
			Timeout:  30 * time.Second,
			Interval: 100 * time.Millisecond,
		},
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			Retries:   3,
			UserAgent: "puppeteer-jquery/1.0",
		},
	}
}

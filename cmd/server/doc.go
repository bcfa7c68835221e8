// Package main runs the puppeteer-jquery query service.
//
// The service loads HTML (inline or fetched by URL) into pooled sandbox
// pages, injects jQuery under a private global and runs query scripts
// against it.
//
// Endpoints:
//   - GET  /           service identity
//   - GET  /health     pool, fetch breaker and execution counters
//   - GET  /metrics    Prometheus exposition
//   - POST /v1/query   run a script
//   - POST /v1/wait    wait for a selector, then return the matches
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000 -pool 16
//
//	# Development mode (colored logs, debug level)
//	LOG_LEVEL=debug ./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

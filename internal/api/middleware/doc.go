// Package middleware provides the HTTP middleware stack of the query API.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting with idle sweeping
//   - RequestID: X-Request-ID assignment (uuid)
//   - Logger: zap access log
//   - Recovery: Panic recovery with JSON error responses
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger), middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware

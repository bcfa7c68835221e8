// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// The server logs to stdout; the CLI logs to stderr so results written
// to stdout stay machine-readable.
//
// Example Usage:
//
//	logger, err := logging.FromConfig(cfg.Logging)
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Error("Failed to connect", zap.Error(err))
package logging

// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Manager starting", zap.String("addr", addr))
//	logger.Error("Action failed", zap.Error(err))
package logging

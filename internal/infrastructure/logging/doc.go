// Package logging provides structured logging for Pulse Core.
//
// It wraps log/slog with JSON or text output and adds the service and
// version fields to every record.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	radioLog := logger.Component("radio")
//	radioLog.Warn("channel open failed", "channel", "2.5", "error", err)
//
// Domain packages declare their own small Logger interface; *Logger
// satisfies it.
package logging

// Package logging provides structured logging for the SystemAir bridge.
//
// It wraps log/slog so every component logs with the same handler,
// level filter and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	unitLog := logger.Component("systemair")
//	unitLog.Debug("reading registers", "url", url)
//
// Never log the MQTT password or the InfluxDB token.
package logging

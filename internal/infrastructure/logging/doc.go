// Package logging provides structured logging for the pool bridge.
//
// It wraps Go's log/slog so every entry carries service=poolbridge and the
// build version. JSON is the default output; text is available for
// interactive use.
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
//	bridge.SetLogger(logger.Component("screenlogic"))
//
// Never log the gateway or broker passwords.
package logging

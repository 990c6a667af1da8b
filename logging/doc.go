// Package logging provides a minimal logging interface and adapters for chatpipe.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the pipeline and backends use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ChatLogger with component / dispatch context
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	p := pipeline.New(backend, func(o *pipeline.Options) { o.Logger = logger })
package logging

// Package log provides a simple, leveled logging interface for memograph.
//
// The engines log through a small Logger interface so applications can plug
// in their own logging stack. Two implementations ship with the module: a
// DefaultLogger built on Go's standard log package, and a wrapper around
// github.com/kataras/golog.
//
// # Log Levels
//
// Five levels, in order of increasing severity:
//
//   - LogLevelDebug: detailed debugging information for development
//   - LogLevelInfo: general informational messages about normal operation
//   - LogLevelWarn: recoverable issues, such as a skipped index repair
//   - LogLevelError: failures that need attention
//   - LogLevelNone: disables all logging output
//
// # Example Usage
//
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//	logger.Info("store ready: workspace=%s", workspaceID)
//	logger.Warn("regex filter skipped: %v", err)
//
// A package-level default logger is available for code that does not carry a
// logger of its own:
//
//	log.SetLogLevel(log.LogLevelDebug)
//	log.Debug("pipeline flushed: %d commands", n)
//
// # golog Integration
//
// For users of github.com/kataras/golog:
//
//	glogger := golog.New()
//	glogger.SetPrefix("[memograph] ")
//	logger := log.NewGologLogger(glogger)
//	logger.Info("started")
//
// The wrapper respects this package's levels while using golog's formatting.
//
// # Thread Safety
//
// The DefaultLogger is safe for concurrent use; the standard library logger
// handles synchronization internally.
package log

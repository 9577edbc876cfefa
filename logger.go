package forge

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/forge/internal/noplog"
)

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(noplog.New())
}

// SetLogger configures the logger for forge and all its sub-packages.
// By default, forge produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger
// atomically. Pass nil to disable logging (restore default silent
// behavior).
//
// Log levels used by forge:
//   - [slog.LevelDebug]: per-frame internals (merge sizes, resolve counts)
//   - [slog.LevelInfo]: lifecycle events (backend selected, pipeline closed)
//   - [slog.LevelWarn]: recoverable integrity problems (stale handles,
//     destroy requeues, device call failures)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	forge.SetLogger(slog.Default())
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = noplog.New()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by forge. Pipelines created
// before a SetLogger call keep the logger they were constructed with,
// unless they were given one explicitly via WithLogger.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

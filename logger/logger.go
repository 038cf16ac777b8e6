// Package logger configures the process-wide structured logger (SPEC_FULL
// ambient stack). Grounded on the teacher's pkg/logger: slog with a
// filtering handler that suppresses third-party library logs below debug.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const samPackagePrefix = "github.com/solacelabs/sam-core"

// ParseLevel converts a string log level to slog.Level. Unknown values fall
// back to warn rather than erroring, since this is almost always fed from
// user configuration at startup.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// filteringHandler suppresses log records emitted from outside this module
// unless the configured level is debug. Chatty third-party dependencies
// (sql drivers, otel exporters) are noisy at info/warn; debug lets them
// through for troubleshooting.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	fullName := fn.Name()
	file, _ := fn.FileLine(pc)
	return strings.Contains(fullName, samPackagePrefix) || strings.Contains(file, "/sam-core/")
}

// Init installs the process-wide slog.Default logger. format is "json" or
// "text"; callers running under a log aggregator want json, interactive
// runs want text.
func Init(level slog.Level, output io.Writer, format string) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if a.Value.String() == "WARNING" {
					return slog.String("level", "WARN")
				}
			}
			return a
		},
	}

	var base slog.Handler
	if format == "json" {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(&filteringHandler{handler: base, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// Get returns the process-wide logger, lazily initializing at info/text
// defaults if Init was never called (e.g. in unit tests).
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "text")
	}
	return defaultLogger
}

// Task returns a logger scoped to one task, the key-value shape every
// agent/sac log line carries (SPEC_FULL §logging: task_id, agent_name and,
// when applicable, sub_task_id / invocation_id).
func Task(taskID, agentName string) *slog.Logger {
	return Get().With("task_id", taskID, "agent_name", agentName)
}

// Package logger provides the slog handler used by the CLI and an adapter
// that turns a *slog.Logger into a task failure sink.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jzx17/simplepool/pkg/types"
)

// SimpleHandler implements slog.Handler for common log format.
type SimpleHandler struct {
	Output io.Writer
	Level  slog.Level
}

func (h *SimpleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.Level
}

func (h *SimpleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, " [%s] %s", r.Level.String(), r.Message)

	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})

	_, err := fmt.Fprintln(h.Output, b.String())
	return err
}

func (h *SimpleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *SimpleHandler) WithGroup(name string) slog.Handler {
	return h
}

// New returns a logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(&SimpleHandler{Output: w, Level: level})
}

// ParseLevel maps debug, info, warn and error to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// TaskLogger returns a types.Logger that records task failures on l at
// error level. A nil l uses slog.Default().
func TaskLogger(l *slog.Logger) types.Logger {
	if l == nil {
		l = slog.Default()
	}
	return func(msg string) {
		l.Error("Task failed", "error", msg)
	}
}

// TaskErrorHandler returns a handler that records where a task failed
// (worker, operation and stack trace) on l at debug level. A nil l uses
// slog.Default().
func TaskErrorHandler(l *slog.Logger) func(*types.TaskError) {
	if l == nil {
		l = slog.Default()
	}
	return func(err *types.TaskError) {
		l.Debug("Task failure details",
			"worker", err.WorkerID,
			"operation", err.Operation,
			"error", err.Cause,
			"stack", err.Context["stack_trace"])
	}
}

// Package logger builds the application logger: colored console output via
// tint, optional JSON file output with rotation via lumberjack, fanned out
// through a multi-handler.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options defines parameters for logger creation.
type Options struct {
	Env          string
	ConsoleLevel string // level for console output (default: info)
	FileLevel    string // level for file output (default: debug)
	File         string // empty disables file output
	App          string
}

var closers sync.Map

// New creates a configured slog.Logger instance.
func New(o Options) *slog.Logger {
	consoleLvl := levelFromString(o.ConsoleLevel)
	fileLvl := levelFromString(o.FileLevel)
	if o.FileLevel == "" {
		fileLvl = slog.LevelDebug
	}

	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}

	handlers := []slog.Handler{
		tint.NewHandler(os.Stdout, &tint.Options{Level: consoleLvl, TimeFormat: timeFormat}),
	}

	var closer func() error
	if o.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		closer = fileWriter.Close
		handlers = append(handlers, slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{Level: fileLvl}))
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = NewMultiHandler(handlers...)
	}

	l := slog.New(h).With(
		slog.String("app", o.App),
		slog.String("env", o.Env),
	)
	if closer != nil {
		closers.Store(l, closer)
	}
	return l
}

// Close closes file handlers owned by the logger. Call on shutdown.
func Close(logger *slog.Logger) error {
	if c, ok := closers.Load(logger); ok {
		closers.Delete(logger)
		return c.(func() error)()
	}
	return nil
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MultiHandler combines multiple handlers into one.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler that writes to multiple handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled implements slog.Handler.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// WithAttrs implements slog.Handler.
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: out}
}

// WithGroup implements slog.Handler.
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: out}
}

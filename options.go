package sqlconnect

import (
	"io"
	"log/slog"

	"sqlconnect/driver"
	"sqlconnect/internal/platform/sqlite3"
	"sqlconnect/pkg/backoff"
)

// Options configures a connection. The zero value (or a nil *Options) means
// defaults: the built-in SQLite binding, the default backoff schedule and a
// discarded logger.
type Options struct {
	// Backoff parameterizes the busy-retry schedule used by Execute and by
	// row streams. Zero fields fall back to backoff.DefaultConfig.
	Backoff backoff.Config

	// Logger receives debug-level busy-retry events. Nil disables logging.
	Logger *slog.Logger

	// Driver is the native engine binding. Nil selects the SQLite binding.
	Driver driver.Driver
}

func (o *Options) normalized() (Options, error) {
	var out Options
	if o != nil {
		out = *o
	}
	if err := out.Backoff.Normalize(); err != nil {
		return Options{}, err
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if out.Driver == nil {
		out.Driver = sqlite3.New()
	}
	return out, nil
}

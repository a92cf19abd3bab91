// Package maintenance runs periodic database housekeeping (WAL checkpoint,
// optimize) through the library's script execution, scheduled with cron.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sqlconnect"
)

// Runner schedules maintenance scripts against one connection.
type Runner struct {
	conn    *sqlconnect.Conn
	mu      *sync.Mutex
	log     *slog.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// New creates a Runner. The mutex serializes connection access and must be
// the same one guarding all other users of the connection.
func New(conn *sqlconnect.Conn, mu *sync.Mutex, log *slog.Logger) *Runner {
	return &Runner{
		conn:    conn,
		mu:      mu,
		log:     log,
		cron:    cron.New(cron.WithLogger(cronLogger{logger: log})),
		timeout: time.Minute,
	}
}

// Schedule registers script to run on the given cron spec.
func (r *Runner) Schedule(spec, script string) error {
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		r.mu.Lock()
		defer r.mu.Unlock()

		start := time.Now()
		if err := r.conn.ExecScript(ctx, script); err != nil {
			r.log.Error("maintenance script failed", slog.Any("err", err))
			return
		}
		r.log.Info("maintenance script completed", slog.Duration("took", time.Since(start)))
	})
	return err
}

// Start begins running scheduled jobs.
func (r *Runner) Start() { r.cron.Start() }

// Stop stops the scheduler and waits for a running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// cronLogger adapts slog for the cron library.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]any{slog.Any("err", err)}, kvAttrs(keysAndValues)...)
	l.logger.Error(msg, args...)
}

func kvAttrs(keysAndValues []interface{}) []any {
	out := make([]any, 0, len(keysAndValues))
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		out = append(out, slog.Any(key, keysAndValues[i+1]))
	}
	return out
}

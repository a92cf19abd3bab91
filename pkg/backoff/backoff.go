package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned by Poller.Wait when the schedule has no delays
// left. Retry never returns it; it surfaces the operation's own error
// instead.
var ErrExhausted = errors.New("backoff: schedule exhausted")

// Config defines an exponential backoff schedule.
type Config struct {
	// InitialDelay is the first wait duration.
	InitialDelay time.Duration
	// MaxDelay caps individual wait durations.
	MaxDelay time.Duration
	// Multiplier is applied to the delay after each wait.
	Multiplier float64
	// MaxAttempts bounds how many delays the schedule yields (0 = default).
	MaxAttempts int
	// MaxElapsedTime bounds the total time spent waiting (0 = no limit).
	MaxElapsedTime time.Duration
	// Now returns the current time (for testing, defaults to time.Now).
	Now func() time.Time
	// After creates a timer channel (for testing, defaults to time.After).
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns a schedule suitable for waiting out short-lived
// database locks.
func DefaultConfig() Config {
	return Config{
		InitialDelay:   10 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2.0,
		MaxAttempts:    10,
		MaxElapsedTime: 10 * time.Second,
	}
}

// Normalize validates the configuration and fills in defaults for zero
// fields.
func (c *Config) Normalize() error {
	def := DefaultConfig()
	if c.InitialDelay == 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.InitialDelay < 0 {
		return errors.New("backoff: InitialDelay must be positive")
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		return errors.New("backoff: MaxDelay cannot be less than InitialDelay")
	}
	if c.Multiplier == 0 {
		c.Multiplier = def.Multiplier
	}
	if c.Multiplier < 1.0 {
		return errors.New("backoff: Multiplier must be >= 1.0")
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.MaxAttempts < 0 {
		return errors.New("backoff: MaxAttempts cannot be negative")
	}
	if c.MaxElapsedTime < 0 {
		return errors.New("backoff: MaxElapsedTime cannot be negative")
	}
	if c.MaxElapsedTime == 0 {
		c.MaxElapsedTime = def.MaxElapsedTime
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.After == nil {
		c.After = time.After
	}
	return nil
}

// Schedule is an ordered, possibly-bounded sequence of wait durations. The
// sequence is consumed monotonically and never rewound; a fresh Schedule
// must be created per logical retried operation.
type Schedule interface {
	// Next returns the next wait duration. The second result is false when
	// the schedule is exhausted.
	Next() (time.Duration, bool)
}

// Exponential is a Schedule yielding exponentially growing delays bounded by
// MaxDelay, MaxAttempts and MaxElapsedTime.
type Exponential struct {
	cfg     Config
	attempt int
	start   time.Time
	delay   time.Duration
}

// NewExponential builds a schedule from cfg. Zero fields fall back to
// DefaultConfig values; invalid fields are replaced by defaults as well, so
// the returned schedule is always usable. Validate with Config.Normalize
// beforehand when misconfiguration must be reported.
func NewExponential(cfg Config) *Exponential {
	if err := cfg.Normalize(); err != nil {
		cfg = DefaultConfig()
		_ = cfg.Normalize()
	}
	return &Exponential{cfg: cfg}
}

// Next implements Schedule.
func (e *Exponential) Next() (time.Duration, bool) {
	if e.attempt == 0 {
		e.start = e.cfg.Now()
		e.delay = e.cfg.InitialDelay
	} else {
		e.delay = time.Duration(float64(e.delay) * e.cfg.Multiplier)
		if e.delay > e.cfg.MaxDelay {
			e.delay = e.cfg.MaxDelay
		}
	}
	e.attempt++

	if e.cfg.MaxAttempts > 0 && e.attempt > e.cfg.MaxAttempts {
		return 0, false
	}
	if e.cfg.MaxElapsedTime > 0 {
		elapsed := e.cfg.Now().Sub(e.start)
		if elapsed+e.delay > e.cfg.MaxElapsedTime {
			return 0, false
		}
	}
	return e.delay, true
}

// after returns the configured timer constructor.
func (e *Exponential) after() func(time.Duration) <-chan time.Time {
	return e.cfg.After
}

// Poller is the direct suspend/retry form: each Wait consumes one delay from
// the schedule and blocks until it elapses or ctx is done. It reports
// ErrExhausted once the schedule runs out.
type Poller struct {
	schedule Schedule
	after    func(time.Duration) <-chan time.Time
}

// NewPoller wraps a schedule. A nil after falls back to time.After; when the
// schedule is an *Exponential its own injected timer is used.
func NewPoller(s Schedule, after func(time.Duration) <-chan time.Time) *Poller {
	if after == nil {
		if e, ok := s.(*Exponential); ok {
			after = e.after()
		} else {
			after = time.After
		}
	}
	return &Poller{schedule: s, after: after}
}

// Wait arms the next delay and blocks until it elapses.
func (p *Poller) Wait(ctx context.Context) error {
	d, ok := p.schedule.Next()
	if !ok {
		return ErrExhausted
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.after(d):
		return nil
	}
}

// Retry is the combinator form: it runs op, and as long as op fails with an
// error the retryable predicate accepts, waits out the schedule's next delay
// and runs op again. Any other outcome, success included, is final. When the
// schedule is exhausted the operation's own last error is returned, so a
// busy condition surfaces as a busy error, not as a backoff artifact.
func Retry(ctx context.Context, p *Poller, retryable func(error) bool, op func(context.Context) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		if werr := p.Wait(ctx); werr != nil {
			if errors.Is(werr, ErrExhausted) {
				return err
			}
			return werr
		}
	}
}

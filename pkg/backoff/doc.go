// Package backoff turns a transient failure into bounded, delayed retries.
//
// It comes in two equivalent shapes. The Poller is the direct form: a loop
// that owns its own stepping calls Wait between attempts and stops when the
// schedule runs out. Retry is the combinator form: it wraps a fallible
// operation and drives the attempt/wait loop itself, retrying only errors
// the supplied predicate classifies as transient.
//
// A Schedule is single-use and consumed monotonically. Create a fresh one
// per logical retried operation; never share a schedule across unrelated
// operations.
//
//	sched := backoff.NewExponential(backoff.Config{
//		InitialDelay: 10 * time.Millisecond,
//		MaxAttempts:  5,
//	})
//	err := backoff.Retry(ctx, backoff.NewPoller(sched, nil), isBusy, step)
package backoff

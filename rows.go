package sqlconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sqlconnect/driver"
	"sqlconnect/pkg/backoff"
)

// Row is an ephemeral view over the current step's columns, valid only
// until the stream's next step, reset or close. It never owns the
// statement.
type Row struct {
	ds   driver.Stmt
	cols int
	idx  int
}

// Len returns the number of columns in the result set.
func (r *Row) Len() int { return r.cols }

// Next yields the columns in order, 0-indexed. Iterating past the last
// column yields false, not an error.
func (r *Row) Next() (Value, bool) {
	if r.idx >= r.cols {
		return Value{}, false
	}
	v := r.Value(r.idx)
	r.idx++
	return v, true
}

// Value returns column i. Out-of-range indices yield the null Value.
func (r *Row) Value(i int) Value {
	if i < 0 || i >= r.cols {
		return Null()
	}
	switch r.ds.ColumnType(i) {
	case driver.ColumnInteger:
		return Integer(r.ds.ColumnInt64(i))
	case driver.ColumnFloat:
		return Float(r.ds.ColumnFloat64(i))
	case driver.ColumnText:
		return borrowedText(r.ds.ColumnText(i))
	case driver.ColumnBlob:
		return borrowedBlob(r.ds.ColumnBlob(i))
	default:
		return Null()
	}
}

// Rows is the lazy, single-pass stream of rows produced by repeatedly
// stepping a statement. It is not restartable: re-querying requires
// re-executing. At most one Rows may be live per statement.
//
// Typical consumption:
//
//	rows, err := conn.ExecSQL(ctx, "SELECT id, name FROM t")
//	if err != nil { ... }
//	if rows != nil {
//		defer rows.Close()
//		for rows.Next(ctx) {
//			var id int64
//			var name string
//			if err := rows.Scan(&id, &name); err != nil { ... }
//		}
//		if err := rows.Err(); err != nil { ... }
//	}
//
// Close resets the underlying statement exactly once regardless of how the
// stream ended, so the statement becomes reusable.
type Rows struct {
	stmt     *Stmt
	ownsStmt bool
	cols     int

	// first marks a row pre-materialized by Execute's initial step, so the
	// stream's first Next must not step again.
	first bool
	// doneEarly marks a query whose initial step already reported
	// completion: a stream that yields no items.
	doneEarly bool

	onRow     bool
	exhausted bool
	closed    bool
	err       error

	poll *backoff.Poller
	log  *slog.Logger
	cur  Row
}

// ColumnCount returns the number of columns in the executing result set.
func (rs *Rows) ColumnCount() int { return rs.cols }

// Next advances to the next row. It returns false when the stream is
// exhausted or failed; consult Err afterwards. Busy reports from the engine
// are absorbed by the stream's backoff schedule and are invisible to the
// consumer unless the schedule runs out.
func (rs *Rows) Next(ctx context.Context) bool {
	rs.onRow = false
	if rs.closed || rs.exhausted {
		return false
	}
	if rs.doneEarly {
		rs.finish(nil)
		return false
	}
	if rs.first {
		rs.first = false
		rs.cur = Row{ds: rs.stmt.ds, cols: rs.cols}
		rs.onRow = true
		return true
	}
	for {
		hasRow, err := rs.stmt.step()
		switch {
		case err == nil && hasRow:
			rs.cur = Row{ds: rs.stmt.ds, cols: rs.cols}
			rs.onRow = true
			return true
		case err == nil:
			rs.finish(nil)
			return false
		case IsBusy(err):
			rs.log.DebugContext(ctx, "row stream busy, backing off")
			if werr := rs.poll.Wait(ctx); werr != nil {
				if errors.Is(werr, backoff.ErrExhausted) {
					werr = fmt.Errorf("step retries exhausted: %w", err)
				}
				rs.finish(werr)
				return false
			}
		default:
			rs.finish(fmt.Errorf("step: %w", err))
			return false
		}
	}
}

// Scan decodes the current row into dest, consuming columns positionally
// from column 0. Fewer destinations than columns is allowed; more is a
// conversion error.
func (rs *Rows) Scan(dest ...any) error {
	if !rs.onRow {
		return fmt.Errorf("%w: Scan called without a row", ErrConversion)
	}
	if len(dest) > rs.cols {
		return fmt.Errorf("%w: %d destinations for %d columns", ErrConversion, len(dest), rs.cols)
	}
	row := Row{ds: rs.stmt.ds, cols: rs.cols}
	for i, d := range dest {
		if err := assign(d, row.Value(i)); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

// Row returns the current row view. It is valid only until the next call to
// Next or Close.
func (rs *Rows) Row() *Row { return &rs.cur }

// Err returns the error that ended the stream, if any.
func (rs *Rows) Err() error { return rs.err }

func (rs *Rows) finish(err error) {
	rs.err = err
	rs.exhausted = true
	_ = rs.Close()
}

// Close ends the stream and resets the underlying statement so it can be
// executed again. It runs exactly once; repeated calls are no-ops. When the
// stream owns its statement (ExecSQL) the statement is finalized instead of
// merely reset.
func (rs *Rows) Close() error {
	if rs.closed {
		return nil
	}
	rs.closed = true
	rs.onRow = false
	rs.stmt.rows = nil
	err := rs.stmt.reset()
	if rs.ownsStmt {
		if cerr := rs.stmt.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

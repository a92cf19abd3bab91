package sqlconnect

import (
	"context"
	"fmt"
	"log/slog"

	"sqlconnect/driver"
	"sqlconnect/internal/sqlparse"
	"sqlconnect/pkg/backoff"
)

// Executor is the common query surface of a Conn and a Tx. A Tx delegates
// to its connection while enforcing its own lifecycle rules, so code that
// only reads and writes can accept an Executor and run unchanged inside or
// outside a transaction.
type Executor interface {
	Prepare(sql string) (*Stmt, error)
	PrepareList(script string) ([]*Stmt, error)
	Execute(ctx context.Context, stmt *Stmt, args ...Value) (*Rows, error)
	ExecSQL(ctx context.Context, sql string, args ...Value) (*Rows, error)
	ExecScript(ctx context.Context, script string) error
	Savepoint(ctx context.Context, name string) (*Tx, error)

	// conn pins implementations to this package; savepoint naming needs the
	// owning connection's counter.
	conn() *Conn
}

var (
	_ Executor = (*Conn)(nil)
	_ Executor = (*Tx)(nil)
)

// Conn owns one native engine handle. It is designed for exclusive
// single-owner access: all methods must be called from one goroutine at a
// time, and concurrent use requires external serialization. The connection
// must outlive every statement derived from it.
type Conn struct {
	dc     driver.Conn
	opts   Options
	log    *slog.Logger
	closed bool

	// strictly increasing; never reused within this connection's lifetime
	savepointSeq uint64
}

// Open opens a database at path using the configured driver. Pass
// ":memory:" for an in-memory database. A nil opts selects defaults.
func Open(path string, opts *Options) (*Conn, error) {
	o, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	dc, err := o.Driver.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	return &Conn{dc: dc, opts: o, log: o.Logger}, nil
}

// Close releases the native handle. Statements prepared on this connection
// must be closed first.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.dc.Close()
}

func (c *Conn) conn() *Conn { return c }

// Prepare compiles a single SQL statement with no terminating semicolon.
// It returns (nil, nil) when the input compiles to an empty statement, for
// example all-whitespace text.
func (c *Conn) Prepare(sql string) (*Stmt, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	ds, err := c.dc.Prepare(sql)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	if ds == nil {
		return nil, nil
	}
	return &Stmt{conn: c, ds: ds, sql: sql}, nil
}

// PrepareList splits a `;`-separated script and prepares each non-empty
// segment, collecting statements in source order. It aborts and propagates
// on the first preparation failure, closing any statements prepared so far.
func (c *Conn) PrepareList(script string) ([]*Stmt, error) {
	var stmts []*Stmt
	sc := sqlparse.NewScanner(script)
	for {
		segment, ok := sc.Next()
		if !ok {
			return stmts, nil
		}
		stmt, err := c.Prepare(segment)
		if err != nil {
			for _, s := range stmts {
				_ = s.Close()
			}
			return nil, err
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
}

// Execute binds args positionally and steps the statement until its first
// result, waiting out busy reports with a fresh backoff schedule. The
// outcome distinguishes three cases:
//
//   - (nil, nil): a pure effect statement, no result columns.
//   - non-nil Rows yielding no items: a query with an empty result set.
//   - non-nil Rows with the first row already materialized.
//
// A statement with a live row stream cannot be executed again until the
// stream is closed.
func (c *Conn) Execute(ctx context.Context, stmt *Stmt, args ...Value) (*Rows, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	if stmt == nil {
		return nil, nil
	}
	if stmt.rows != nil {
		return nil, fmt.Errorf("execute: %w", ErrRowsActive)
	}
	if err := stmt.bind(args); err != nil {
		_ = stmt.reset()
		return nil, err
	}

	poller := backoff.NewPoller(backoff.NewExponential(c.opts.Backoff), nil)
	var hasRow bool
	err := backoff.Retry(ctx, poller, IsBusy, func(context.Context) error {
		var serr error
		hasRow, serr = stmt.step()
		if IsBusy(serr) {
			c.log.DebugContext(ctx, "statement busy, backing off", slog.String("sql", stmt.sql))
		}
		return serr
	})
	if err != nil {
		_ = stmt.reset()
		return nil, fmt.Errorf("execute: %w", err)
	}

	cols := stmt.ds.ColumnCount()
	if !hasRow && cols == 0 {
		// pure effect statement; rearm it for reuse
		if err := stmt.reset(); err != nil {
			return nil, fmt.Errorf("execute: %w", err)
		}
		return nil, nil
	}

	rows := &Rows{
		stmt:      stmt,
		cols:      cols,
		first:     hasRow,
		doneEarly: !hasRow,
		poll:      backoff.NewPoller(backoff.NewExponential(c.opts.Backoff), nil),
		log:       c.log,
	}
	stmt.rows = rows
	return rows, nil
}

// ExecSQL prepares and executes sql in one call. A returned row stream owns
// the statement and finalizes it on Close, so the stream may outlive this
// call's temporary prepare.
func (c *Conn) ExecSQL(ctx context.Context, sql string, args ...Value) (*Rows, error) {
	stmt, err := c.Prepare(sql)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, nil
	}
	rows, err := c.Execute(ctx, stmt, args...)
	if err != nil || rows == nil {
		cerr := stmt.Close()
		if err == nil {
			err = cerr
		}
		return nil, err
	}
	rows.ownsStmt = true
	return rows, nil
}

// ExecScript splits the script and executes each non-empty segment for
// effect only, discarding any produced rows. Statements run strictly in
// source order; the first failure stops the script and propagates.
func (c *Conn) ExecScript(ctx context.Context, script string) error {
	sc := sqlparse.NewScanner(script)
	for {
		segment, ok := sc.Next()
		if !ok {
			return nil
		}
		stmt, err := c.Prepare(segment)
		if err != nil {
			return err
		}
		if stmt == nil {
			continue
		}
		rows, err := c.Execute(ctx, stmt)
		if err != nil {
			_ = stmt.Close()
			return err
		}
		if rows != nil {
			if err := rows.Close(); err != nil {
				_ = stmt.Close()
				return err
			}
		}
		if err := stmt.Close(); err != nil {
			return err
		}
	}
}

// anonSavepointName mints a unique savepoint name from the connection's
// strictly increasing counter.
func (c *Conn) anonSavepointName() string {
	c.savepointSeq++
	return fmt.Sprintf("sp_%d", c.savepointSeq)
}

package sqlconnect

import (
	"context"
	"fmt"
)

// Tx is a transaction or savepoint scope. It borrows its parent (a Conn or
// an enclosing Tx) exclusively: while a savepoint derived from a Tx is
// open, the parent rejects queries and resolution.
//
// Every Tx must reach a resolved state. There is no implicit scope-exit
// cleanup performing engine calls; callers pair Begin/Savepoint with a
// deferred Rollback, which is a no-op after an explicit Commit:
//
//	tx, err := conn.Begin(ctx)
//	if err != nil { ... }
//	defer tx.Rollback(ctx)
//	...
//	return tx.Commit(ctx)
//
// An unresolved scope therefore rolls back, never silently commits.
type Tx struct {
	parent   Executor
	parentTx *Tx
	c        *Conn

	// savepoint name; empty for a toplevel BEGIN transaction
	name string

	done  bool
	child *Tx

	end      *Stmt // resolve-as-success: COMMIT or RELEASE <name>
	rollback *Stmt // resolve-as-failure: ROLLBACK or ROLLBACK TO <name>
}

// Begin starts a toplevel transaction: it prepares the start and both
// resolve statements up front and executes the start immediately.
func (c *Conn) Begin(ctx context.Context) (*Tx, error) {
	return c.newScope(ctx, c, nil, "BEGIN", "COMMIT", "ROLLBACK", "")
}

// Savepoint starts a nestable transaction scope. An empty name draws the
// next value from the connection's strictly increasing counter. A
// caller-supplied name must be a plain identifier; it is interpolated into
// the savepoint statements verbatim.
func (c *Conn) Savepoint(ctx context.Context, name string) (*Tx, error) {
	return c.newSavepoint(ctx, c, nil, name)
}

func (c *Conn) newSavepoint(ctx context.Context, parent Executor, parentTx *Tx, name string) (*Tx, error) {
	if name == "" {
		name = c.anonSavepointName()
	}
	return c.newScope(ctx, parent, parentTx,
		"SAVEPOINT "+name, "RELEASE "+name, "ROLLBACK TO "+name, name)
}

func (c *Conn) newScope(ctx context.Context, parent Executor, parentTx *Tx, beginSQL, endSQL, rollbackSQL, name string) (*Tx, error) {
	begin, err := c.Prepare(beginSQL)
	if err != nil {
		return nil, err
	}
	end, err := c.Prepare(endSQL)
	if err != nil {
		_ = begin.Close()
		return nil, err
	}
	rollback, err := c.Prepare(rollbackSQL)
	if err != nil {
		_ = begin.Close()
		_ = end.Close()
		return nil, err
	}
	_, err = c.Execute(ctx, begin)
	cerr := begin.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		_ = end.Close()
		_ = rollback.Close()
		return nil, err
	}
	return &Tx{
		parent:   parent,
		parentTx: parentTx,
		c:        c,
		name:     name,
		end:      end,
		rollback: rollback,
	}, nil
}

// guard rejects use of a scope that is resolved or exclusively borrowed by
// an open child savepoint.
func (tx *Tx) guard() error {
	if tx.done {
		return ErrTxDone
	}
	if tx.child != nil {
		return ErrTxChildActive
	}
	return nil
}

func (tx *Tx) conn() *Conn { return tx.c }

// Prepare compiles a statement through the underlying connection.
func (tx *Tx) Prepare(sql string) (*Stmt, error) {
	if err := tx.guard(); err != nil {
		return nil, err
	}
	return tx.c.Prepare(sql)
}

// PrepareList compiles a script through the underlying connection.
func (tx *Tx) PrepareList(script string) ([]*Stmt, error) {
	if err := tx.guard(); err != nil {
		return nil, err
	}
	return tx.c.PrepareList(script)
}

// Execute executes a statement inside this scope.
func (tx *Tx) Execute(ctx context.Context, stmt *Stmt, args ...Value) (*Rows, error) {
	if err := tx.guard(); err != nil {
		return nil, err
	}
	return tx.c.Execute(ctx, stmt, args...)
}

// ExecSQL prepares and executes inside this scope.
func (tx *Tx) ExecSQL(ctx context.Context, sql string, args ...Value) (*Rows, error) {
	if err := tx.guard(); err != nil {
		return nil, err
	}
	return tx.c.ExecSQL(ctx, sql, args...)
}

// ExecScript runs a script inside this scope.
func (tx *Tx) ExecScript(ctx context.Context, script string) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.c.ExecScript(ctx, script)
}

// Savepoint opens a nested scope. The parent is exclusively borrowed until
// the child resolves.
func (tx *Tx) Savepoint(ctx context.Context, name string) (*Tx, error) {
	if err := tx.guard(); err != nil {
		return nil, err
	}
	child, err := tx.c.newSavepoint(ctx, tx, tx, name)
	if err != nil {
		return nil, err
	}
	tx.child = child
	return child, nil
}

// Commit resolves the scope as success. Repeated calls are no-op successes:
// the underlying resolve statement runs exactly once.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return nil
	}
	if tx.child != nil {
		return fmt.Errorf("commit: %w", ErrTxChildActive)
	}
	tx.resolve()
	_, err := tx.c.Execute(ctx, tx.end)
	tx.closeStmts()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback resolves the scope as failure. Repeated calls, including a call
// after Commit, are no-op successes. For a savepoint the rollback is
// followed by a release so the savepoint is popped from the engine's stack.
func (tx *Tx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	if tx.child != nil {
		return fmt.Errorf("rollback: %w", ErrTxChildActive)
	}
	tx.resolve()
	_, err := tx.c.Execute(ctx, tx.rollback)
	if err == nil && tx.name != "" {
		_, err = tx.c.Execute(ctx, tx.end)
	}
	tx.closeStmts()
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// resolve flips the done flag (exactly once, monotonically) and releases
// the exclusive borrow on the parent.
func (tx *Tx) resolve() {
	tx.done = true
	if tx.parentTx != nil && tx.parentTx.child == tx {
		tx.parentTx.child = nil
	}
}

func (tx *Tx) closeStmts() {
	if tx.end != nil {
		_ = tx.end.Close()
		tx.end = nil
	}
	if tx.rollback != nil {
		_ = tx.rollback.Close()
		tx.rollback = nil
	}
}

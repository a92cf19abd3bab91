// Package driver defines the boundary between the sqlconnect execution layer
// and a native SQL engine exposing the classic synchronous
// prepare/step/column/finalize call set. It plays the same role
// database/sql/driver plays for database/sql: the root package is written
// against these interfaces only, and a concrete engine binding implements
// them.
//
// All calls are synchronous and single-owner: a Conn and every Stmt derived
// from it must be driven by one goroutine at a time.
package driver

import (
	"errors"
	"fmt"
)

// ColumnType identifies the native storage class of a result column.
type ColumnType int

const (
	ColumnNull ColumnType = iota
	ColumnInteger
	ColumnFloat
	ColumnText
	ColumnBlob
)

// String returns the storage class name.
func (t ColumnType) String() string {
	switch t {
	case ColumnInteger:
		return "integer"
	case ColumnFloat:
		return "float"
	case ColumnText:
		return "text"
	case ColumnBlob:
		return "blob"
	default:
		return "null"
	}
}

// Boundary sentinels. Bindings wrap these with %w so callers can classify
// engine failures with errors.Is without knowing native status codes.
var (
	// ErrBusy reports a transient lock-contention condition. It is the only
	// error the execution layer retries.
	ErrBusy = errors.New("database is busy")

	// ErrSchemaChanged reports that a prepared statement was invalidated by a
	// concurrent schema change and must be re-prepared.
	ErrSchemaChanged = errors.New("database schema changed")

	// ErrInvalidQuery reports that the engine rejected the SQL text at
	// prepare time.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrCannotOpen reports that the database file could not be opened or is
	// not a database.
	ErrCannotOpen = errors.New("cannot open database")
)

// Error carries a native status code not covered by the sentinels above.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("engine error (code %d)", e.Code)
	}
	return fmt.Sprintf("%s (code %d)", e.Msg, e.Code)
}

// Driver opens connections to a native engine.
type Driver interface {
	Open(path string) (Conn, error)
}

// Conn is one native engine handle.
type Conn interface {
	// Prepare compiles a single SQL statement with no terminating semicolon.
	// It returns (nil, nil) when the input compiles to an empty statement,
	// for example all-whitespace or comment-only text.
	Prepare(sql string) (Stmt, error)

	// Close releases the native handle. Every Stmt prepared on this Conn
	// must be finalized first.
	Close() error
}

// Stmt is one prepared-statement handle.
//
// Bind indices are 1-based, column indices are 0-based, matching the native
// call convention.
type Stmt interface {
	BindInt64(i int, v int64) error
	BindFloat64(i int, v float64) error
	BindText(i int, v string) error
	BindBlob(i int, v []byte) error
	BindNull(i int) error

	// Step advances the statement. It returns (true, nil) when a row is
	// available, (false, nil) on completion, and an error wrapping ErrBusy
	// when the engine is locked.
	Step() (bool, error)

	ColumnCount() int
	ColumnType(i int) ColumnType
	ColumnInt64(i int) int64
	ColumnFloat64(i int) float64

	// ColumnText and ColumnBlob return views over engine-owned buffers that
	// are valid only until the next Step, Reset or Finalize. Callers that
	// need the bytes beyond that point must copy.
	ColumnText(i int) []byte
	ColumnBlob(i int) []byte

	// Reset rearms the statement so it can be stepped again and releases
	// bound parameters.
	Reset() error

	// Finalize destroys the statement handle. It must be called exactly once.
	Finalize() error
}

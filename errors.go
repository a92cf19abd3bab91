package sqlconnect

import (
	"errors"

	"sqlconnect/driver"
)

// Sentinel errors. The engine-boundary conditions are aliases of the driver
// package sentinels so errors.Is works end to end without translation.
var (
	// ErrInvalidPath reports that the database file could not be opened.
	ErrInvalidPath = driver.ErrCannotOpen

	// ErrInvalidQuery reports malformed SQL rejected at prepare time.
	ErrInvalidQuery = driver.ErrInvalidQuery

	// ErrBusy reports lock contention. It is retried internally and surfaces
	// only when the backoff schedule is exhausted.
	ErrBusy = driver.ErrBusy

	// ErrSchemaChanged reports that a prepared statement was invalidated by
	// a concurrent schema change; the caller must re-prepare.
	ErrSchemaChanged = driver.ErrSchemaChanged

	// ErrConversion reports that a column value does not match the requested
	// target type.
	ErrConversion = errors.New("conversion failed")

	// ErrRowsActive reports an attempt to execute a statement that already
	// has a live row stream.
	ErrRowsActive = errors.New("statement has an active row stream")

	// ErrTxDone reports use of a transaction after it was resolved.
	ErrTxDone = errors.New("transaction already resolved")

	// ErrTxChildActive reports use of a transaction while a savepoint
	// derived from it is still open.
	ErrTxChildActive = errors.New("transaction has an open savepoint")

	// ErrConnClosed reports use of a closed connection.
	ErrConnClosed = errors.New("connection is closed")

	// ErrStmtFinalized reports use of a finalized statement.
	ErrStmtFinalized = errors.New("statement is finalized")
)

// Kind classifies an error for handling and transport mapping.
type Kind int

const (
	// KindUnknown represents an unclassified error.
	KindUnknown Kind = iota
	// KindInvalidPath represents database open failures.
	KindInvalidPath
	// KindInvalidQuery represents malformed SQL.
	KindInvalidQuery
	// KindBusy represents lock contention surfaced after backoff exhaustion.
	KindBusy
	// KindSchemaChanged represents invalidated prepared statements.
	KindSchemaChanged
	// KindConversion represents column-to-target-type decode failures.
	KindConversion
	// KindUsage represents misuse of the API (active rows, resolved
	// transactions, closed handles).
	KindUsage
	// KindFailure represents an opaque native engine error.
	KindFailure
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidPath:
		return "InvalidPath"
	case KindInvalidQuery:
		return "InvalidQuery"
	case KindBusy:
		return "Busy"
	case KindSchemaChanged:
		return "SchemaChanged"
	case KindConversion:
		return "Conversion"
	case KindUsage:
		return "Usage"
	case KindFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// kindPriorities defines the deterministic order for error classification.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindBusy, ErrBusy},
	{KindSchemaChanged, ErrSchemaChanged},
	{KindInvalidQuery, ErrInvalidQuery},
	{KindInvalidPath, ErrInvalidPath},
	{KindConversion, ErrConversion},
	{KindUsage, ErrRowsActive},
	{KindUsage, ErrTxDone},
	{KindUsage, ErrTxChildActive},
	{KindUsage, ErrConnClosed},
	{KindUsage, ErrStmtFinalized},
}

// KindOf returns the Kind of the given error by checking the wrapped chain
// against known sentinels in a deterministic priority order. Opaque native
// engine errors classify as KindFailure; anything else is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, p := range kindPriorities {
		if errors.Is(err, p.err) {
			return p.kind
		}
	}
	var de *driver.Error
	if errors.As(err, &de) {
		return KindFailure
	}
	return KindUnknown
}

// HasKind reports whether err classifies as kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsBusy reports whether err is the transient lock-contention condition.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

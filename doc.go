// Package sqlconnect is a cooperative, retryable, streaming,
// transaction-aware execution layer over a native SQL engine's synchronous
// prepare/step/column/finalize call set.
//
// The native engine can reject an operation as busy under lock contention.
// This layer absorbs that condition: every step runs under a bounded
// exponential backoff schedule, and busy surfaces to the caller only when
// the schedule is exhausted. Query results are produced as lazy, single-pass
// row streams; transactions and nestable savepoints are scope objects with
// idempotent resolution.
//
// A Conn and everything derived from it is designed for exclusive
// single-owner access. There is no internal locking; concurrent use from
// multiple goroutines requires external serialization, for example one
// connection per goroutine or a mutex around the connection.
//
// The default engine binding is SQLite via modernc.org/sqlite (no cgo);
// alternative engines plug in through the driver package.
package sqlconnect

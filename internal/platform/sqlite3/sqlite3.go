// Package sqlite3 binds the driver boundary to SQLite compiled to pure Go
// (modernc.org/sqlite), so the library works without cgo. It talks to the
// transpiled C API directly: prepare/step/column/finalize with raw status
// codes, which is what lets the execution layer see and retry SQLITE_BUSY
// itself instead of hiding it behind a busy handler.
package sqlite3

import (
	"fmt"
	"unsafe"

	"modernc.org/libc"
	"modernc.org/libc/sys/types"
	sqlite3 "modernc.org/sqlite/lib"

	"sqlconnect/driver"
)

const ptrSize = int(unsafe.Sizeof(uintptr(0)))

// Driver opens SQLite databases.
type Driver struct{}

// New returns the SQLite driver.
func New() driver.Driver { return Driver{} }

type conn struct {
	tls *libc.TLS
	db  uintptr
}

// Open opens the database file at path, creating it if necessary. Pass
// ":memory:" for an in-memory database.
func (Driver) Open(path string) (driver.Conn, error) {
	tls := libc.NewTLS()
	c := &conn{tls: tls}
	flags := int32(sqlite3.SQLITE_OPEN_READWRITE | sqlite3.SQLITE_OPEN_CREATE | sqlite3.SQLITE_OPEN_URI)
	db, err := c.openV2(path, flags)
	if err != nil {
		tls.Close()
		return nil, err
	}
	c.db = db
	// extended result codes make BUSY variants distinguishable in the low byte
	sqlite3.Xsqlite3_extended_result_codes(tls, db, 1)
	return c, nil
}

func (c *conn) openV2(path string, flags int32) (uintptr, error) {
	p, err := c.malloc(ptrSize)
	if err != nil {
		return 0, err
	}
	defer c.free(p)
	s, err := c.cString(path)
	if err != nil {
		return 0, err
	}
	defer c.free(s)

	rc := sqlite3.Xsqlite3_open_v2(c.tls, s, p, flags, 0)
	db := *(*uintptr)(unsafe.Pointer(p))
	if rc != sqlite3.SQLITE_OK {
		msg := ""
		if db != 0 {
			msg = libc.GoString(sqlite3.Xsqlite3_errmsg(c.tls, db))
			sqlite3.Xsqlite3_close_v2(c.tls, db)
		}
		return 0, fmt.Errorf("%w: %s (code %d)", driver.ErrCannotOpen, msg, rc)
	}
	if db == 0 {
		return 0, fmt.Errorf("%w: no handle returned", driver.ErrCannotOpen)
	}
	return db, nil
}

func (c *conn) Close() error {
	if c.db != 0 {
		if rc := sqlite3.Xsqlite3_close_v2(c.tls, c.db); rc != sqlite3.SQLITE_OK {
			return c.rcError(rc)
		}
		c.db = 0
	}
	if c.tls != nil {
		c.tls.Close()
		c.tls = nil
	}
	return nil
}

// Prepare compiles a single statement. An input that compiles to nothing,
// such as whitespace or a comment, yields (nil, nil).
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	zSQL, err := c.cString(query)
	if err != nil {
		return nil, err
	}
	defer c.free(zSQL)
	pStmt, err := c.malloc(ptrSize)
	if err != nil {
		return nil, err
	}
	defer c.free(pStmt)

	if rc := sqlite3.Xsqlite3_prepare_v2(c.tls, c.db, zSQL, -1, pStmt, 0); rc != sqlite3.SQLITE_OK {
		if rc&0xff == sqlite3.SQLITE_ERROR {
			return nil, fmt.Errorf("%w: %s", driver.ErrInvalidQuery, c.errmsg())
		}
		return nil, c.rcError(rc)
	}
	h := *(*uintptr)(unsafe.Pointer(pStmt))
	if h == 0 {
		return nil, nil
	}
	return &stmt{c: c, h: h}, nil
}

func (c *conn) malloc(n int) (uintptr, error) {
	p := libc.Xmalloc(c.tls, types.Size_t(n))
	if p == 0 && n != 0 {
		return 0, fmt.Errorf("sqlite3: cannot allocate %d bytes", n)
	}
	return p, nil
}

func (c *conn) free(p uintptr) {
	if p != 0 {
		libc.Xfree(c.tls, p)
	}
}

// cString copies s into C-heap memory with a NUL terminator. The caller
// frees it.
func (c *conn) cString(s string) (uintptr, error) {
	p, err := c.malloc(len(s) + 1)
	if err != nil {
		return 0, err
	}
	if len(s) != 0 {
		copy((*libc.RawMem)(unsafe.Pointer(p))[:len(s):len(s)], s)
	}
	*(*byte)(unsafe.Pointer(p + uintptr(len(s)))) = 0
	return p, nil
}

func (c *conn) errmsg() string {
	if c.db == 0 {
		return ""
	}
	return libc.GoString(sqlite3.Xsqlite3_errmsg(c.tls, c.db))
}

// rcError maps a native status code onto the boundary error set.
func (c *conn) rcError(rc int32) error {
	switch rc & 0xff {
	case sqlite3.SQLITE_BUSY:
		return driver.ErrBusy
	case sqlite3.SQLITE_SCHEMA:
		return fmt.Errorf("%w: %s", driver.ErrSchemaChanged, c.errmsg())
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
		return fmt.Errorf("%w: %s", driver.ErrCannotOpen, c.errmsg())
	default:
		return &driver.Error{Code: int(rc), Msg: c.errmsg()}
	}
}

type stmt struct {
	c *conn
	h uintptr

	// C-heap buffers backing bound text/blob parameters; released on Reset
	// and Finalize, matching the SQLITE_STATIC contract.
	allocs []uintptr
}

func (s *stmt) BindInt64(i int, v int64) error {
	return s.bindResult(sqlite3.Xsqlite3_bind_int64(s.c.tls, s.h, int32(i), v))
}

func (s *stmt) BindFloat64(i int, v float64) error {
	return s.bindResult(sqlite3.Xsqlite3_bind_double(s.c.tls, s.h, int32(i), v))
}

func (s *stmt) BindText(i int, v string) error {
	p, err := s.c.malloc(len(v) + 1)
	if err != nil {
		return err
	}
	if len(v) != 0 {
		copy((*libc.RawMem)(unsafe.Pointer(p))[:len(v):len(v)], v)
	}
	*(*byte)(unsafe.Pointer(p + uintptr(len(v)))) = 0
	s.allocs = append(s.allocs, p)
	return s.bindResult(sqlite3.Xsqlite3_bind_text(s.c.tls, s.h, int32(i), p, int32(len(v)), 0))
}

func (s *stmt) BindBlob(i int, v []byte) error {
	if len(v) == 0 {
		return s.bindResult(sqlite3.Xsqlite3_bind_zeroblob(s.c.tls, s.h, int32(i), 0))
	}
	p, err := s.c.malloc(len(v))
	if err != nil {
		return err
	}
	copy((*libc.RawMem)(unsafe.Pointer(p))[:len(v):len(v)], v)
	s.allocs = append(s.allocs, p)
	return s.bindResult(sqlite3.Xsqlite3_bind_blob(s.c.tls, s.h, int32(i), p, int32(len(v)), 0))
}

func (s *stmt) BindNull(i int) error {
	return s.bindResult(sqlite3.Xsqlite3_bind_null(s.c.tls, s.h, int32(i)))
}

func (s *stmt) bindResult(rc int32) error {
	if rc != sqlite3.SQLITE_OK {
		return s.c.rcError(rc)
	}
	return nil
}

func (s *stmt) Step() (bool, error) {
	rc := sqlite3.Xsqlite3_step(s.c.tls, s.h)
	switch rc & 0xff {
	case sqlite3.SQLITE_ROW:
		return true, nil
	case sqlite3.SQLITE_DONE:
		return false, nil
	case sqlite3.SQLITE_BUSY:
		return false, driver.ErrBusy
	default:
		return false, s.c.rcError(rc)
	}
}

func (s *stmt) ColumnCount() int {
	return int(sqlite3.Xsqlite3_column_count(s.c.tls, s.h))
}

func (s *stmt) ColumnType(i int) driver.ColumnType {
	switch sqlite3.Xsqlite3_column_type(s.c.tls, s.h, int32(i)) {
	case sqlite3.SQLITE_INTEGER:
		return driver.ColumnInteger
	case sqlite3.SQLITE_FLOAT:
		return driver.ColumnFloat
	case sqlite3.SQLITE_TEXT:
		return driver.ColumnText
	case sqlite3.SQLITE_BLOB:
		return driver.ColumnBlob
	default:
		return driver.ColumnNull
	}
}

func (s *stmt) ColumnInt64(i int) int64 {
	return int64(sqlite3.Xsqlite3_column_int64(s.c.tls, s.h, int32(i)))
}

func (s *stmt) ColumnFloat64(i int) float64 {
	return float64(sqlite3.Xsqlite3_column_double(s.c.tls, s.h, int32(i)))
}

// ColumnText returns a view over the engine-owned buffer, valid until the
// next Step, Reset or Finalize.
func (s *stmt) ColumnText(i int) []byte {
	p := sqlite3.Xsqlite3_column_text(s.c.tls, s.h, int32(i))
	n := int(sqlite3.Xsqlite3_column_bytes(s.c.tls, s.h, int32(i)))
	if p == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

// ColumnBlob returns a view over the engine-owned buffer, valid until the
// next Step, Reset or Finalize.
func (s *stmt) ColumnBlob(i int) []byte {
	p := sqlite3.Xsqlite3_column_blob(s.c.tls, s.h, int32(i))
	n := int(sqlite3.Xsqlite3_column_bytes(s.c.tls, s.h, int32(i)))
	if p == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

// Reset rearms the statement and releases bound parameters. The status code
// returned by the native reset echoes the most recent step failure, which
// has already been surfaced through Step, so it is not reported again here.
func (s *stmt) Reset() error {
	_ = sqlite3.Xsqlite3_reset(s.c.tls, s.h)
	rc := sqlite3.Xsqlite3_clear_bindings(s.c.tls, s.h)
	s.freeAllocs()
	if rc != sqlite3.SQLITE_OK {
		return s.c.rcError(rc)
	}
	return nil
}

// Finalize destroys the statement handle. As with Reset, the echoed step
// status is not reported again.
func (s *stmt) Finalize() error {
	_ = sqlite3.Xsqlite3_finalize(s.c.tls, s.h)
	s.h = 0
	s.freeAllocs()
	return nil
}

func (s *stmt) freeAllocs() {
	for _, p := range s.allocs {
		s.c.free(p)
	}
	s.allocs = s.allocs[:0]
}

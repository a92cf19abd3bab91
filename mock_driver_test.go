package sqlconnect

import (
	"time"

	"sqlconnect/driver"
	"sqlconnect/pkg/backoff"
)

// fakeDriver scripts the native engine boundary so execution semantics can
// be tested without a real database.
type fakeDriver struct {
	conn    *fakeConn
	openErr error
}

func (d *fakeDriver) Open(path string) (driver.Conn, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.conn == nil {
		d.conn = newFakeConn()
	}
	return d.conn, nil
}

type fakeConn struct {
	stmts      map[string]*fakeStmt
	prepared   []string
	prepareErr map[string]error
	empty      map[string]bool
	closed     bool

	// execLog records statement SQL in first-step order.
	execLog []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		stmts:      make(map[string]*fakeStmt),
		prepareErr: make(map[string]error),
		empty:      make(map[string]bool),
	}
}

// script registers a statement with the given step outcomes and row data.
func (c *fakeConn) script(sql string, st *fakeStmt) *fakeStmt {
	st.sql = sql
	st.c = c
	c.stmts[sql] = st
	return st
}

func (c *fakeConn) Prepare(sql string) (driver.Stmt, error) {
	c.prepared = append(c.prepared, sql)
	if err, ok := c.prepareErr[sql]; ok {
		return nil, err
	}
	if c.empty[sql] {
		return nil, nil
	}
	if st, ok := c.stmts[sql]; ok {
		return st, nil
	}
	// default: a pure effect statement
	st := &fakeStmt{sql: sql, c: c}
	c.stmts[sql] = st
	return st, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type step struct {
	row bool
	err error
}

func busyStep() step         { return step{err: driver.ErrBusy} }
func rowStep() step          { return step{row: true} }
func doneStep() step         { return step{} }
func errStep(err error) step { return step{err: err} }

// fakeStmt replays a scripted sequence of step outcomes. Once the sequence
// is exhausted every further step reports completion. Row data is consumed
// one row per successful row-step.
type fakeStmt struct {
	sql   string
	c     *fakeConn
	cols  int
	steps []step
	data  [][]any

	stepIdx   int
	cur       int // index into data of the current row; -1 before first
	resets    int
	finalizes int
	binds     map[int]any
}

func newQueryStmt(cols int, steps []step, data [][]any) *fakeStmt {
	return &fakeStmt{cols: cols, steps: steps, data: data, cur: -1}
}

func (s *fakeStmt) bind(i int, v any) error {
	if s.binds == nil {
		s.binds = make(map[int]any)
	}
	s.binds[i] = v
	return nil
}

func (s *fakeStmt) BindInt64(i int, v int64) error     { return s.bind(i, v) }
func (s *fakeStmt) BindFloat64(i int, v float64) error { return s.bind(i, v) }
func (s *fakeStmt) BindText(i int, v string) error     { return s.bind(i, v) }
func (s *fakeStmt) BindBlob(i int, v []byte) error     { return s.bind(i, v) }
func (s *fakeStmt) BindNull(i int) error               { return s.bind(i, nil) }

func (s *fakeStmt) Step() (bool, error) {
	if s.stepIdx == 0 && s.c != nil {
		s.c.execLog = append(s.c.execLog, s.sql)
	}
	if s.stepIdx >= len(s.steps) {
		s.stepIdx++
		return false, nil
	}
	st := s.steps[s.stepIdx]
	s.stepIdx++
	if st.err != nil {
		return false, st.err
	}
	if st.row {
		s.cur++
		return true, nil
	}
	return false, nil
}

func (s *fakeStmt) ColumnCount() int { return s.cols }

func (s *fakeStmt) columnAt(i int) any {
	if s.cur < 0 || s.cur >= len(s.data) || i >= len(s.data[s.cur]) {
		return nil
	}
	return s.data[s.cur][i]
}

func (s *fakeStmt) ColumnType(i int) driver.ColumnType {
	switch s.columnAt(i).(type) {
	case int64:
		return driver.ColumnInteger
	case float64:
		return driver.ColumnFloat
	case string:
		return driver.ColumnText
	case []byte:
		return driver.ColumnBlob
	default:
		return driver.ColumnNull
	}
}

func (s *fakeStmt) ColumnInt64(i int) int64 {
	v, _ := s.columnAt(i).(int64)
	return v
}

func (s *fakeStmt) ColumnFloat64(i int) float64 {
	v, _ := s.columnAt(i).(float64)
	return v
}

func (s *fakeStmt) ColumnText(i int) []byte {
	v, _ := s.columnAt(i).(string)
	return []byte(v)
}

func (s *fakeStmt) ColumnBlob(i int) []byte {
	v, _ := s.columnAt(i).([]byte)
	return v
}

func (s *fakeStmt) Reset() error {
	s.resets++
	s.cur = -1
	return nil
}

func (s *fakeStmt) Finalize() error {
	s.finalizes++
	return nil
}

// immediate is a timer that fires without waiting, so busy retries do not
// slow the tests down.
func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

// testOptions wires the fake driver with an instant backoff schedule of n
// delays.
func testOptions(d driver.Driver, attempts int) *Options {
	return &Options{
		Backoff: backoff.Config{
			InitialDelay: time.Millisecond,
			MaxAttempts:  attempts,
			After:        immediate,
		},
		Driver: d,
	}
}

package sqlconnect

import (
	"fmt"

	"sqlconnect/driver"
)

// Stmt is one prepared statement. It borrows its Conn and must not outlive
// it: close every statement before closing the connection.
type Stmt struct {
	conn      *Conn
	ds        driver.Stmt
	sql       string
	rows      *Rows
	finalized bool
}

// SQL returns the statement's source text.
func (s *Stmt) SQL() string { return s.sql }

// Close finalizes the native handle. It is safe to call more than once;
// only the first call has an effect.
func (s *Stmt) Close() error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	return s.ds.Finalize()
}

// bind binds positional arguments: argument i binds to the engine's 1-based
// slot i+1.
func (s *Stmt) bind(args []Value) error {
	for i, v := range args {
		slot := i + 1
		var err error
		switch v.typ {
		case TypeInteger:
			err = s.ds.BindInt64(slot, v.n)
		case TypeFloat:
			err = s.ds.BindFloat64(slot, v.f)
		case TypeText:
			err = s.ds.BindText(slot, string(v.b))
		case TypeBlob:
			err = s.ds.BindBlob(slot, v.b)
		default:
			err = s.ds.BindNull(slot)
		}
		if err != nil {
			return fmt.Errorf("bind argument %d: %w", i, err)
		}
	}
	return nil
}

func (s *Stmt) step() (bool, error) {
	if s.finalized {
		return false, ErrStmtFinalized
	}
	return s.ds.Step()
}

func (s *Stmt) reset() error {
	if s.finalized {
		return ErrStmtFinalized
	}
	return s.ds.Reset()
}

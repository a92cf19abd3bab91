package sqlconnect

import (
	"fmt"
)

// Type identifies the variant held by a Value.
type Type int

const (
	TypeNull Type = iota
	TypeInteger
	TypeFloat
	TypeText
	TypeBlob
)

// String returns the variant name.
func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeText:
		return "text"
	case TypeBlob:
		return "blob"
	default:
		return "null"
	}
}

// Value is a tagged union over the five native storage classes.
//
// Text and blob payloads read from a row stream are zero-copy views over
// engine-owned buffers and are valid only until the stream's next step or
// reset. Borrowed reports that condition; Owned returns a deep copy safe to
// retain. Values built with the constructors below are always owned.
type Value struct {
	typ      Type
	n        int64
	f        float64
	b        []byte
	borrowed bool
}

// Integer returns an integer Value.
func Integer(v int64) Value { return Value{typ: TypeInteger, n: v} }

// Float returns a float Value.
func Float(v float64) Value { return Value{typ: TypeFloat, f: v} }

// Text returns a text Value.
func Text(s string) Value { return Value{typ: TypeText, b: []byte(s)} }

// Blob returns a blob Value. The slice is retained, not copied.
func Blob(b []byte) Value { return Value{typ: TypeBlob, b: b} }

// Null returns the null Value.
func Null() Value { return Value{} }

func borrowedText(b []byte) Value { return Value{typ: TypeText, b: b, borrowed: true} }
func borrowedBlob(b []byte) Value { return Value{typ: TypeBlob, b: b, borrowed: true} }

// Type returns the variant tag.
func (v Value) Type() Type { return v.typ }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.typ == TypeNull }

// Borrowed reports whether the payload is a view over an engine-owned
// buffer with a bounded lifetime.
func (v Value) Borrowed() bool { return v.borrowed }

// Owned returns a copy of the value whose payload does not alias any
// engine-owned buffer.
func (v Value) Owned() Value {
	if !v.borrowed {
		return v
	}
	b := make([]byte, len(v.b))
	copy(b, v.b)
	return Value{typ: v.typ, b: b}
}

// Int64 returns the integer payload.
func (v Value) Int64() (int64, error) {
	if v.typ != TypeInteger {
		return 0, convErr(v.typ, "integer")
	}
	return v.n, nil
}

// Float64 returns the float payload. Integer values widen without loss of
// the stored magnitude up to 2^53.
func (v Value) Float64() (float64, error) {
	switch v.typ {
	case TypeFloat:
		return v.f, nil
	case TypeInteger:
		return float64(v.n), nil
	default:
		return 0, convErr(v.typ, "float")
	}
}

// Bool returns true for any non-zero integer payload.
func (v Value) Bool() (bool, error) {
	if v.typ != TypeInteger {
		return false, convErr(v.typ, "bool")
	}
	return v.n != 0, nil
}

// Text returns the text payload as an owned string.
func (v Value) Text() (string, error) {
	if v.typ != TypeText {
		return "", convErr(v.typ, "text")
	}
	return string(v.b), nil
}

// TextBytes returns the raw text payload. For borrowed values the slice is
// valid only until the next step or reset.
func (v Value) TextBytes() ([]byte, error) {
	if v.typ != TypeText {
		return nil, convErr(v.typ, "text")
	}
	return v.b, nil
}

// Blob returns the blob payload. For borrowed values the slice is valid
// only until the next step or reset.
func (v Value) Blob() ([]byte, error) {
	if v.typ != TypeBlob {
		return nil, convErr(v.typ, "blob")
	}
	return v.b, nil
}

// Any returns the payload as a plain Go value (int64, float64, string,
// []byte or nil), always owned.
func (v Value) Any() any {
	switch v.typ {
	case TypeInteger:
		return v.n
	case TypeFloat:
		return v.f
	case TypeText:
		return string(v.b)
	case TypeBlob:
		b := make([]byte, len(v.b))
		copy(b, v.b)
		return b
	default:
		return nil
	}
}

func convErr(got Type, want string) error {
	return fmt.Errorf("%w: have %s, want %s", ErrConversion, got, want)
}

// assign decodes v into dest. Supported destinations: *int64, *int, *bool,
// *float64, *string, *[]byte, *Value, *any, and the pointer-to-pointer forms
// of the scalar set for nullable columns. Slices and strings are copied, so
// a scanned value never aliases engine-owned memory. Mismatches report
// ErrConversion instead of terminating the process; this is a deliberate
// hardening over designs that treat decode failure as fatal.
func assign(dest any, v Value) error {
	switch d := dest.(type) {
	case *Value:
		*d = v.Owned()
		return nil
	case *any:
		*d = v.Any()
		return nil
	case *int64:
		n, err := v.Int64()
		if err != nil {
			return err
		}
		*d = n
		return nil
	case *int:
		n, err := v.Int64()
		if err != nil {
			return err
		}
		*d = int(n)
		return nil
	case *bool:
		b, err := v.Bool()
		if err != nil {
			return err
		}
		*d = b
		return nil
	case *float64:
		f, err := v.Float64()
		if err != nil {
			return err
		}
		*d = f
		return nil
	case *string:
		s, err := v.Text()
		if err != nil {
			return err
		}
		*d = s
		return nil
	case *[]byte:
		var b []byte
		var err error
		switch v.typ {
		case TypeBlob:
			b, err = v.Blob()
		case TypeText:
			b, err = v.TextBytes()
		default:
			err = convErr(v.typ, "blob")
		}
		if err != nil {
			return err
		}
		out := make([]byte, len(b))
		copy(out, b)
		*d = out
		return nil
	case **int64:
		return assignNullable(d, v, func() (*int64, error) { n, err := v.Int64(); return &n, err })
	case **int:
		return assignNullable(d, v, func() (*int, error) { n, err := v.Int64(); m := int(n); return &m, err })
	case **bool:
		return assignNullable(d, v, func() (*bool, error) { b, err := v.Bool(); return &b, err })
	case **float64:
		return assignNullable(d, v, func() (*float64, error) { f, err := v.Float64(); return &f, err })
	case **string:
		return assignNullable(d, v, func() (*string, error) { s, err := v.Text(); return &s, err })
	default:
		return fmt.Errorf("%w: unsupported destination type %T", ErrConversion, dest)
	}
}

func assignNullable[T any](dest **T, v Value, get func() (*T, error)) error {
	if v.IsNull() {
		*dest = nil
		return nil
	}
	p, err := get()
	if err != nil {
		return err
	}
	*dest = p
	return nil
}

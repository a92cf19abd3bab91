// Package sqlparse segments a multi-statement SQL script into individual
// statements without being fooled by quoted literals or parenthesized
// sub-expressions.
package sqlparse

// lexical context the scanner is currently inside of
type state uint8

const (
	stateGroup state = iota
	stateString
)

// Scanner yields the `;`-separated segments of a script one at a time.
// Segments may be empty or whitespace-only; filtering is the caller's job.
// The scan never fails: unterminated strings or unbalanced parentheses at
// end of input are tolerated.
type Scanner struct {
	src    string
	pos    int
	offset int
	stack  []state
}

// NewScanner returns a scanner positioned at the start of src.
func NewScanner(src string) *Scanner {
	return &Scanner{src: src}
}

// Next returns the next segment. The second result is false when the script
// is exhausted.
func (s *Scanner) Next() (string, bool) {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++

		if len(s.stack) == 0 {
			switch c {
			case ';':
				stmt := s.src[s.offset : s.pos-1]
				s.offset = s.pos
				return stmt, true
			case '\'':
				s.stack = append(s.stack, stateString)
			case '(':
				s.stack = append(s.stack, stateGroup)
			}
			continue
		}

		switch s.stack[len(s.stack)-1] {
		case stateGroup:
			switch c {
			case ')':
				s.stack = s.stack[:len(s.stack)-1]
			case '(':
				s.stack = append(s.stack, stateGroup)
			case '\'':
				s.stack = append(s.stack, stateString)
			}
		case stateString:
			if c == '\'' {
				if s.pos < len(s.src) && s.src[s.pos] == '\'' {
					// escaped quote, stay in the string
					s.pos++
				} else {
					s.stack = s.stack[:len(s.stack)-1]
				}
			}
		}
	}

	if s.offset < len(s.src) {
		stmt := s.src[s.offset:]
		s.offset = len(s.src)
		return stmt, true
	}
	return "", false
}

// Split returns all segments of src at once.
func Split(src string) []string {
	var out []string
	sc := NewScanner(src)
	for {
		stmt, ok := sc.Next()
		if !ok {
			return out
		}
		out = append(out, stmt)
	}
}

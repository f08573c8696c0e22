// Package textio reads and writes the whitespace-delimited token streams used
// by the neat record format. Tokens are separated by spaces or newlines;
// tokens that may contain whitespace are written as Go-quoted strings.
package textio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrUnexpectedToken is wrapped by every error reporting a token that did not
// match what the reader expected.
var ErrUnexpectedToken = errors.New("unexpected token")

// Tokenizer splits an input stream into tokens.
type Tokenizer struct {
	sc   *bufio.Scanner
	line int
}

// NewTokenizer returns a Tokenizer reading from r.
func NewTokenizer(r io.Reader) *Tokenizer {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	t := &Tokenizer{sc: sc, line: 1}
	sc.Split(t.split)
	return t
}

// split is a bufio.SplitFunc that yields whitespace-separated words, keeping
// double-quoted strings (with backslash escapes) together.
func (t *Tokenizer) split(data []byte, atEOF bool) (int, []byte, error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if !unicode.IsSpace(r) {
			break
		}
		if r == '\n' {
			t.line++
		}
		start += w
	}
	if start >= len(data) {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	if data[start] == '"' {
		escaped := false
		for i := start + 1; i < len(data); i++ {
			switch {
			case escaped:
				escaped = false
			case data[i] == '\\':
				escaped = true
			case data[i] == '"':
				return i + 1, data[start : i+1], nil
			}
		}
		if atEOF {
			return 0, nil, fmt.Errorf("line %d: unterminated quoted string", t.line)
		}
		return start, nil, nil
	}
	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) {
			return i, data[start:i], nil
		}
		i += w
	}
	if atEOF {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

// Line reports the current input line, for diagnostics.
func (t *Tokenizer) Line() int { return t.line }

// Next returns the next raw token. io.EOF is returned at end of input.
func (t *Tokenizer) Next() (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return t.sc.Text(), nil
}

// Expect consumes the next token and fails unless it equals want.
func (t *Tokenizer) Expect(want string) error {
	got, err := t.Next()
	if err != nil {
		return fmt.Errorf("line %d: expected %q: %w", t.line, want, err)
	}
	if got != want {
		return fmt.Errorf("line %d: %w: expected %q, got %q", t.line, ErrUnexpectedToken, want, got)
	}
	return nil
}

// String consumes a token and unquotes it if it is quoted.
func (t *Tokenizer) String() (string, error) {
	s, err := t.Next()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(s, `"`) {
		u, err := strconv.Unquote(s)
		if err != nil {
			return "", fmt.Errorf("line %d: bad quoted string %s: %w", t.line, s, err)
		}
		return u, nil
	}
	return s, nil
}

// Int consumes a token and parses it as a decimal integer.
func (t *Tokenizer) Int() (int, error) {
	v, err := t.Int64()
	return int(v), err
}

// Int64 consumes a token and parses it as a 64-bit decimal integer.
func (t *Tokenizer) Int64() (int64, error) {
	s, err := t.Next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w: expected integer, got %q", t.line, ErrUnexpectedToken, s)
	}
	return v, nil
}

// Float consumes a token and parses it as a float64.
func (t *Tokenizer) Float() (float64, error) {
	s, err := t.Next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w: expected number, got %q", t.line, ErrUnexpectedToken, s)
	}
	return v, nil
}

// Writer emits space-separated tokens, one logical line at a time.
// The first write error is sticky and reported by Err and Flush.
type Writer struct {
	w       *bufio.Writer
	pending bool
	err     error
}

// NewWriter returns a Writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) raw(s string) {
	if w.err != nil {
		return
	}
	if w.pending {
		if err := w.w.WriteByte(' '); err != nil {
			w.err = err
			return
		}
	}
	if _, err := w.w.WriteString(s); err != nil {
		w.err = err
		return
	}
	w.pending = true
}

// Token writes bare tokens. Callers must not pass strings containing spaces.
func (w *Writer) Token(tokens ...string) *Writer {
	for _, s := range tokens {
		w.raw(s)
	}
	return w
}

// Quoted writes s as a quoted string token.
func (w *Writer) Quoted(s string) *Writer {
	w.raw(strconv.Quote(s))
	return w
}

// Int writes an integer token.
func (w *Writer) Int(v int64) *Writer {
	w.raw(strconv.FormatInt(v, 10))
	return w
}

// Float writes v using the shortest representation that parses back to v.
func (w *Writer) Float(v float64) *Writer {
	w.raw(strconv.FormatFloat(v, 'g', -1, 64))
	return w
}

// EndLine terminates the current line.
func (w *Writer) EndLine() *Writer {
	if w.err == nil {
		w.err = w.w.WriteByte('\n')
	}
	w.pending = false
	return w
}

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

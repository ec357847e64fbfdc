// Package source provides the positioned byte reader that feeds the lexer.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// EOF is returned by Peek and Advance once the input is exhausted.
const EOF = -1

// Position is a 1-based line and column in the source.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Reader hands out the bytes of a source one at a time and tracks where
// the next byte sits.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	pos    Position
	err    error
}

// New wraps an arbitrary byte stream.
func New(r io.Reader) *Reader {
	rd := &Reader{
		r:   bufio.NewReader(r),
		pos: Position{Line: 1, Column: 1},
	}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd
}

// FromString reads from an in-memory source.
func FromString(s string) *Reader {
	return New(strings.NewReader(s))
}

// Open opens the file at path. A missing file is reported here rather
// than surfacing later as a lexing failure.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	return New(f), nil
}

// Close releases the underlying stream if it has one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Peek returns the next byte without consuming it, or EOF.
func (r *Reader) Peek() int {
	if r.err != nil {
		return EOF
	}
	b, err := r.r.Peek(1)
	if err != nil {
		r.setErr(err)
		return EOF
	}
	return int(b[0])
}

// Advance consumes and returns the next byte, or EOF. A newline moves the
// position to column 1 of the next line.
func (r *Reader) Advance() int {
	if r.err != nil {
		return EOF
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.setErr(err)
		return EOF
	}
	if b == '\n' {
		r.pos.Line++
		r.pos.Column = 1
	} else {
		r.pos.Column++
	}
	return int(b)
}

// Position reports where the next byte will be read from.
func (r *Reader) Position() Position {
	return r.pos
}

// More reports whether input remains and the stream is healthy.
func (r *Reader) More() bool {
	return r.Peek() != EOF
}

// Err returns the first non-EOF read error, if any.
func (r *Reader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}

func (r *Reader) setErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

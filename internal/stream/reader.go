// internal/stream/reader.go
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"

	"github.com/colebrumley/supportanon/internal/filter"
)

// Reader filters a charset-encoded stream line by line as it is read. Lines
// may be arbitrarily long; only the current line is held in memory.
type Reader struct {
	src     *bufio.Reader
	closer  io.Closer
	f       filter.TextFilter
	enc     *encoding.Encoder
	pending []byte
	err     error
}

// NewReader creates a filtering reader for charset ("" means UTF-8).
func NewReader(in io.Reader, charset string, f filter.TextFilter) (*Reader, error) {
	enc, err := Lookup(charset)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = filter.Identity
	}
	r := &Reader{
		src: bufio.NewReader(enc.NewDecoder().Reader(in)),
		f:   f,
		enc: encoding.ReplaceUnsupported(enc.NewEncoder()),
	}
	if c, ok := in.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.next()
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// ReadLine returns the next filtered line, terminator included, in UTF-8.
func (r *Reader) ReadLine() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	line, err := r.src.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		r.err = fmt.Errorf("reading: %w", err)
		return "", r.err
	}
	if err != nil {
		r.err = io.EOF
		if line == "" {
			return "", io.EOF
		}
	}
	return r.f.Filter(line), nil
}

// Close closes the underlying reader when it is an io.Closer.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Reader) next() {
	line, err := r.ReadLine()
	if err != nil {
		return
	}
	out, err := r.enc.Bytes([]byte(line))
	if err != nil {
		r.err = fmt.Errorf("encoding: %w", err)
		return
	}
	r.pending = out
}

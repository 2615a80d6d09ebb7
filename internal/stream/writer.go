// internal/stream/writer.go
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/colebrumley/supportanon/internal/filter"
)

// DefaultCapacity is the initial size of the decoded line buffer. Longer
// lines grow it; it shrinks back once they have been written.
const DefaultCapacity = 1024

// Writer decodes bytes in a charset, filters every complete line and writes
// the result re-encoded to the underlying writer. Line terminators ("\n" or
// "\r\n") are kept. A partial line is held until it is completed, Flush is
// called, or the Writer is closed.
type Writer struct {
	mu      sync.Mutex
	out     io.Writer
	f       filter.TextFilter
	dec     *encoding.Decoder
	enc     *encoding.Encoder
	in      []byte // undecoded bytes, e.g. half of a multi-byte character
	buf     []byte // decoded UTF-8 not yet filtered
	scratch []byte
}

// NewWriter creates a filtering writer for charset ("" means UTF-8).
func NewWriter(out io.Writer, charset string, f filter.TextFilter) (*Writer, error) {
	enc, err := Lookup(charset)
	if err != nil {
		return nil, err
	}
	return NewEncodingWriter(out, enc, f), nil
}

// NewEncodingWriter is NewWriter for an already resolved encoding. Malformed
// input decodes to U+FFFD; characters the encoding cannot represent are
// written as its replacement character.
func NewEncodingWriter(out io.Writer, enc encoding.Encoding, f filter.TextFilter) *Writer {
	if f == nil {
		f = filter.Identity
	}
	return &Writer{
		out:     out,
		f:       f,
		dec:     enc.NewDecoder(),
		enc:     encoding.ReplaceUnsupported(enc.NewEncoder()),
		buf:     make([]byte, 0, DefaultCapacity),
		scratch: make([]byte, DefaultCapacity),
	}
}

// Write implements io.Writer. It reports len(p) once the bytes have been
// accepted, even if they are still buffered.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.in = append(w.in, p...)
	if err := w.decode(false); err != nil {
		return 0, err
	}
	if err := w.writeLines(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteString writes s.
func (w *Writer) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Flush filters and writes whatever is buffered, even without a line
// terminator, then flushes the underlying writer if it can be flushed.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close drains the decoder, flushes and closes the underlying writer when it
// is an io.Closer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.decode(true)
	if ferr := w.flushLocked(); err == nil {
		err = ferr
	}
	w.resetLocked()
	if c, ok := w.out.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reset drops buffered bytes and decoder state without writing them.
func (w *Writer) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

// Buffered returns the number of decoded bytes waiting for a line end.
func (w *Writer) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

func (w *Writer) resetLocked() {
	w.in = w.in[:0]
	w.buf = w.buf[:0]
	w.shrink()
	w.dec.Reset()
}

// decode moves as much of w.in as possible into w.buf. An incomplete
// trailing sequence stays in w.in unless atEOF.
func (w *Writer) decode(atEOF bool) error {
	src := w.in
	for len(src) > 0 || atEOF {
		nDst, nSrc, err := w.dec.Transform(w.scratch, src, atEOF)
		w.buf = append(w.buf, w.scratch[:nDst]...)
		src = src[nSrc:]
		switch {
		case err == nil:
			w.in = append(w.in[:0], src...)
			return nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 {
				w.scratch = make([]byte, 2*len(w.scratch))
			}
		case errors.Is(err, transform.ErrShortSrc):
			w.in = append(w.in[:0], src...)
			return nil
		default:
			w.in = w.in[:0]
			return fmt.Errorf("decoding: %w", err)
		}
	}
	w.in = append(w.in[:0], src...)
	return nil
}

// writeLines filters and writes every complete line in w.buf.
func (w *Writer) writeLines() error {
	start := 0
	for {
		i := bytes.IndexByte(w.buf[start:], '\n')
		if i < 0 {
			break
		}
		end := start + i + 1
		if err := w.emit(string(w.buf[start:end])); err != nil {
			return err
		}
		start = end
	}
	if start == 0 {
		return nil
	}
	n := copy(w.buf, w.buf[start:])
	w.buf = w.buf[:n]
	w.shrink()
	return nil
}

func (w *Writer) flushLocked() error {
	if err := w.writeLines(); err != nil {
		return err
	}
	if len(w.buf) > 0 {
		if err := w.emit(string(w.buf)); err != nil {
			return err
		}
		w.buf = w.buf[:0]
		w.shrink()
	}
	if fl, ok := w.out.(interface{ Flush() error }); ok {
		return fl.Flush()
	}
	return nil
}

func (w *Writer) emit(line string) error {
	out, err := w.enc.Bytes([]byte(w.f.Filter(line)))
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	_, err = w.out.Write(out)
	return err
}

// shrink gives back memory grown for an unusually long line.
func (w *Writer) shrink() {
	if cap(w.buf) > DefaultCapacity && len(w.buf) <= DefaultCapacity {
		w.buf = append(make([]byte, 0, DefaultCapacity), w.buf...)
	}
}

// internal/content/content.go
package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/colebrumley/supportanon/internal/filter"
	"github.com/colebrumley/supportanon/internal/stream"
)

// SecretFiles are base names of files that hold NUL or space separated
// key=value lists. They are always treated as text and always redacted.
var SecretFiles = []string{"cmdline", "environ"}

// Content is one item of collected diagnostic data.
type Content interface {
	Name() string
	content()
}

// Text is in-memory text in a declared charset.
type Text struct {
	name    string
	Data    []byte
	Charset string
}

// Binary is in-memory data that is copied without filtering.
type Binary struct {
	name string
	Data []byte
}

// File is read from disk only when written. At most MaxBytes are written
// (0 means no limit).
type File struct {
	name     string
	Path     string
	MaxBytes int64
}

// NewText returns a Text item; an empty charset means UTF-8.
func NewText(name string, data []byte, charset string) *Text {
	return &Text{name: name, Data: data, Charset: charset}
}

// NewBinary returns a Binary item.
func NewBinary(name string, data []byte) *Binary {
	return &Binary{name: name, Data: data}
}

// NewFile returns a lazily read File item.
func NewFile(name, path string, maxBytes int64) *File {
	return &File{name: name, Path: path, MaxBytes: maxBytes}
}

func (t *Text) Name() string   { return t.name }
func (b *Binary) Name() string { return b.name }
func (f *File) Name() string   { return f.name }

func (*Text) content()   {}
func (*Binary) content() {}
func (*File) content()   {}

// Writer renders content items through a filter.
type Writer struct {
	Filter filter.TextFilter
	// Redactor is applied to SecretFiles on top of Filter, even when Filter
	// is a disabled chain.
	Redactor filter.TextFilter
	Logger   *slog.Logger
}

// WriteTo writes c to w. A failure while filtering one item is logged and
// written as an inline marker after whatever was already written; only
// errors writing to w are returned.
func (cw *Writer) WriteTo(w io.Writer, c Content) error {
	logger := cw.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dst := &trackingWriter{w: w}
	err := cw.render(dst, c)
	if dst.err != nil {
		return fmt.Errorf("writing %s: %w", c.Name(), dst.err)
	}
	if err != nil {
		logger.Error("could not filter content", "name", c.Name(), "error", err)
		if _, werr := fmt.Fprintf(w, "--- ERROR: could not filter %s: %v ---\n", c.Name(), err); werr != nil {
			return fmt.Errorf("writing %s: %w", c.Name(), werr)
		}
	}
	return nil
}

func (cw *Writer) render(w io.Writer, c Content) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch c := c.(type) {
	case *Text:
		// Filtered in memory first so a failure leaves no partial output.
		var buf bytes.Buffer
		sw, err := cw.textWriter(&buf, c.Charset, c.name)
		if err != nil {
			return err
		}
		if _, err := sw.Write(c.Data); err != nil {
			return err
		}
		if err := sw.Close(); err != nil {
			return err
		}
		_, err = w.Write(buf.Bytes())
		return err
	case *Binary:
		_, err := w.Write(c.Data)
		return err
	case *File:
		return cw.renderFile(w, c)
	default:
		return fmt.Errorf("unknown content type %T", c)
	}
}

func (cw *Writer) renderFile(w io.Writer, c *File) error {
	f, err := os.Open(c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		_, err = fmt.Fprintf(w, "--- WARNING: Could not attach %s as it cannot currently be found ---\n", c.Path)
		return err
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var src io.Reader = f
	if c.MaxBytes > 0 {
		src = io.LimitReader(f, c.MaxBytes)
	}

	if isSecretFile(c.Path) {
		sw, err := cw.textWriter(w, "", c.Path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(sw, src); err != nil {
			return err
		}
		return sw.Close()
	}

	sel := stream.NewSelector(
		func() (io.Writer, error) { return w, nil },
		func() (io.Writer, error) { return cw.textWriter(w, "", c.Path) },
	)
	if _, err := io.Copy(sel, src); err != nil {
		return err
	}
	return sel.Close()
}

func (cw *Writer) textWriter(w io.Writer, charset, name string) (*stream.Writer, error) {
	return stream.NewWriter(nopCloser{w}, charset, cw.filterFor(name))
}

func (cw *Writer) filterFor(name string) filter.TextFilter {
	f := cw.Filter
	if f == nil {
		f = filter.Identity
	}
	if cw.Redactor == nil || !isSecretFile(name) {
		return f
	}
	redact := cw.Redactor
	return filter.Func(func(s string) string { return f.Filter(redact.Filter(s)) })
}

func isSecretFile(name string) bool {
	return slices.Contains(SecretFiles, filepath.Base(name))
}

// nopCloser keeps stream writers from closing the shared destination.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// trackingWriter remembers the first error of the destination.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

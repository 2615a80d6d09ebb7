// internal/content/content_test.go
package content

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colebrumley/supportanon/internal/filter"
	"github.com/colebrumley/supportanon/internal/logging"
)

var upper = filter.Func(strings.ToUpper)

func newWriter(f filter.TextFilter) *Writer {
	return &Writer{Filter: f, Logger: logging.Discard()}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestWriteTo_Text(t *testing.T) {
	var out bytes.Buffer
	err := newWriter(upper).WriteTo(&out, NewText("about.md", []byte("hello\nworld"), ""))
	require.NoError(t, err)
	assert.Equal(t, "HELLO\nWORLD", out.String())
}

func TestWriteTo_TextCharset(t *testing.T) {
	var out bytes.Buffer
	err := newWriter(upper).WriteTo(&out, NewText("x.txt", []byte("caf\xe9\n"), "iso-8859-1"))
	require.NoError(t, err)
	assert.Equal(t, "CAF\xc9\n", out.String())
}

func TestWriteTo_UnknownCharset(t *testing.T) {
	var out bytes.Buffer
	err := newWriter(upper).WriteTo(&out, NewText("x.txt", []byte("data"), "klingon"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "--- ERROR: could not filter x.txt: "))
}

func TestWriteTo_Binary(t *testing.T) {
	data := []byte{0x00, 'a', 0xff}
	var out bytes.Buffer
	require.NoError(t, newWriter(upper).WriteTo(&out, NewBinary("heap.bin", data)))
	assert.Equal(t, data, out.Bytes())
}

func TestWriteTo_PanicBecomesMarker(t *testing.T) {
	boom := filter.Func(func(string) string { panic("bad filter") })
	var out bytes.Buffer
	err := newWriter(boom).WriteTo(&out, NewText("nodes.md", []byte("node-1\n"), ""))
	require.NoError(t, err)
	assert.Equal(t, "--- ERROR: could not filter nodes.md: panic: bad filter ---\n", out.String())

	// The next item is unaffected.
	require.NoError(t, newWriter(upper).WriteTo(&out, NewText("ok.md", []byte("ok"), "")))
	assert.True(t, strings.HasSuffix(out.String(), "OK"))
}

func TestWriteTo_TextFile(t *testing.T) {
	path := writeFile(t, "jenkins.log", []byte("started on agent-1\n"))
	var out bytes.Buffer
	require.NoError(t, newWriter(upper).WriteTo(&out, NewFile("jenkins.log", path, 0)))
	assert.Equal(t, "STARTED ON AGENT-1\n", out.String())
}

func TestWriteTo_BinaryFile(t *testing.T) {
	data := append([]byte{0x1f, 0x8b, 0x08, 0x00}, bytes.Repeat([]byte("abc"), 20)...)
	path := writeFile(t, "archive.gz", data)
	var out bytes.Buffer
	require.NoError(t, newWriter(upper).WriteTo(&out, NewFile("archive.gz", path, 0)))
	assert.Equal(t, data, out.Bytes())
}

func TestWriteTo_FileTruncated(t *testing.T) {
	path := writeFile(t, "big.log", []byte("abcdefghij\nklmnop\n"))
	var out bytes.Buffer
	require.NoError(t, newWriter(upper).WriteTo(&out, NewFile("big.log", path, 5)))
	assert.Equal(t, "ABCDE", out.String())
}

func TestWriteTo_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.log")
	var out bytes.Buffer
	require.NoError(t, newWriter(upper).WriteTo(&out, NewFile("gone.log", path, 0)))
	assert.Equal(t, "--- WARNING: Could not attach "+path+" as it cannot currently be found ---\n", out.String())
}

func TestWriteTo_SecretFileAlwaysRedacted(t *testing.T) {
	path := writeFile(t, "environ", []byte("TERM=xterm\x00PASSWORD=dockerdev\x00HOME=/root"))
	disabled := filter.NewChain(nil, upper)
	disabled.SetEnabled(false)
	w := &Writer{
		Filter:   disabled,
		Redactor: filter.NewPasswordRedactor(filter.DefaultSecurityWords),
		Logger:   logging.Discard(),
	}

	var out bytes.Buffer
	require.NoError(t, w.WriteTo(&out, NewFile("proc/self/environ", path, 0)))
	assert.Equal(t, "TERM=xterm\x00PASSWORD=REDACTED\x00HOME=/root", out.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteTo_DestinationError(t *testing.T) {
	err := newWriter(upper).WriteTo(failingWriter{}, NewBinary("b", []byte("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

// internal/mapping/persist.go
package mapping

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nightlyone/lockfile"
)

// FileHeader is the first line of a mappings file.
const FileHeader = "# supportanon-mappings v1"

const lockWait = 2 * time.Second

// FilePersister stores mappings as line-delimited JSON records. Writes go to
// a temporary file that replaces the target, under a lock file shared with
// other processes using the same data root.
type FilePersister struct {
	path string
	lock lockfile.Lockfile
}

// NewFilePersister returns a persister for path. The lock file lives next to it.
func NewFilePersister(path string) (*FilePersister, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving mappings path: %w", err)
	}
	lock, err := lockfile.New(abs + ".lock")
	if err != nil {
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	return &FilePersister{path: abs, lock: lock}, nil
}

// Path returns the mappings file location.
func (p *FilePersister) Path() string {
	return p.path
}

// Load implements Persister. A missing file holds no mappings.
func (p *FilePersister) Load() ([]Mapping, error) {
	f, err := os.Open(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p.path, err)
	}
	defer f.Close()
	return Decode(f.Name(), f)
}

// Decode parses the line-delimited format. name is only used in errors.
func Decode(name string, r io.Reader) ([]Mapping, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []Mapping
	line := 0
	sawHeader := false
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if !sawHeader {
			if text != FileHeader {
				return nil, fmt.Errorf("%s: unsupported format %q", name, text)
			}
			sawHeader = true
			continue
		}
		var m Mapping
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		if !m.Category.Valid() {
			return nil, fmt.Errorf("%s:%d: unknown category %q", name, line, m.Category)
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return out, nil
}

// Save implements Persister.
func (p *FilePersister) Save(mappings []Mapping) error {
	if err := p.acquire(); err != nil {
		return err
	}
	defer p.lock.Unlock()

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating mappings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	w := bufio.NewWriter(tmp)
	if err := Encode(w, mappings); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing mappings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing mappings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replacing mappings file: %w", err)
	}
	return nil
}

// Encode writes the header and one JSON record per mapping.
func Encode(w io.Writer, mappings []Mapping) error {
	if _, err := io.WriteString(w, FileHeader+"\n"); err != nil {
		return fmt.Errorf("writing mappings: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, m := range mappings {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("writing mappings: %w", err)
		}
	}
	return nil
}

func (p *FilePersister) acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("creating mappings directory: %w", err)
	}
	deadline := time.Now().Add(lockWait)
	for {
		err := p.lock.TryLock()
		if err == nil {
			return nil
		}
		if !errors.Is(err, lockfile.ErrBusy) || time.Now().After(deadline) {
			return fmt.Errorf("locking mappings file: %w", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

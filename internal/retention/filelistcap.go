// internal/retention/filelistcap.go
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// FileListCap keeps at most Size files of a directory, evicting (and deleting)
// the oldest first. Add, Touch and Files share one lock so a reader
// packaging the directory never sees it half-evicted.
type FileListCap struct {
	dir   string
	size  int
	mu    sync.Mutex
	files []string // oldest first
}

// NewFileListCap scans dir for files matching pattern (filepath.Match syntax)
// and orders them by modification time.
func NewFileListCap(dir, pattern string, size int) (*FileListCap, error) {
	if size <= 0 {
		return nil, fmt.Errorf("file list cap size must be positive, got %d", size)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	type stamped struct {
		path string
		mod  int64
	}
	var found []stamped
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, stamped{filepath.Join(dir, e.Name()), info.ModTime().UnixNano()})
	}
	slices.SortStableFunc(found, func(a, b stamped) int {
		switch {
		case a.mod < b.mod:
			return -1
		case a.mod > b.mod:
			return 1
		}
		return 0
	})

	c := &FileListCap{dir: dir, size: size}
	for _, f := range found {
		c.files = append(c.files, f.path)
	}
	return c, nil
}

// Dir returns the managed directory.
func (c *FileListCap) Dir() string {
	return c.dir
}

// Add records path as the newest file, deleting the oldest ones beyond the cap.
// It returns the evicted paths.
func (c *FileListCap) Add(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(path)
}

// Touch marks an already tracked file as the newest one.
func (c *FileListCap) Touch(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = slices.DeleteFunc(c.files, func(p string) bool { return p == path })
	c.add(path)
}

// Files returns a snapshot of the tracked files, oldest first.
func (c *FileListCap) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.files)
}

// WithLock runs fn while holding the cap's lock, e.g. to copy files into a bundle.
func (c *FileListCap) WithLock(fn func(files []string) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(slices.Clone(c.files))
}

func (c *FileListCap) add(path string) []string {
	c.files = slices.DeleteFunc(c.files, func(p string) bool { return p == path })
	var evicted []string
	for len(c.files) >= c.size {
		oldest := c.files[0]
		c.files = c.files[1:]
		os.Remove(oldest)
		evicted = append(evicted, oldest)
	}
	c.files = append(c.files, path)
	return evicted
}

// internal/logging/rotating.go
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/colebrumley/supportanon/internal/retention"
)

// RotatingWriter implements io.Writer with automatic log rotation.
// The active file is rotated once it would exceed maxSize bytes; rotated
// files are gzipped and kept by a retention cap of maxBackups files.
type RotatingWriter struct {
	path    string
	maxSize int64
	backups *retention.FileListCap
	file    *os.File
	size    int64
	mu      sync.Mutex
}

// NewRotatingWriter creates a new rotating writer.
func NewRotatingWriter(path string, maxSize int64, maxBackups int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	backups, err := retention.NewFileListCap(filepath.Dir(path), filepath.Base(path)+".*.gz", maxBackups)
	if err != nil {
		return nil, fmt.Errorf("scanning rotated logs: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	return &RotatingWriter{
		path:    path,
		maxSize: maxSize,
		backups: backups,
		file:    f,
		size:    info.Size(),
	}, nil
}

// Write implements io.Writer.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Backups returns the rotated files currently kept, oldest first.
func (w *RotatingWriter) Backups() []string {
	return w.backups.Files()
}

// BackupFile describes one rotated log archive.
type BackupFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// BackupFiles stats the rotated files under the retention lock, so none is
// evicted between being listed and being read.
func (w *RotatingWriter) BackupFiles() ([]BackupFile, error) {
	var out []BackupFile
	err := w.backups.WithLock(func(files []string) error {
		for _, p := range files {
			fi, err := os.Stat(p)
			if err != nil {
				return fmt.Errorf("stat log backup: %w", err)
			}
			out = append(out, BackupFile{Path: p, Size: fi.Size(), ModTime: fi.ModTime()})
		}
		return nil
	})
	return out, err
}

// Close closes the writer.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *RotatingWriter) rotate() error {
	w.file.Close()

	// Timestamped names keep lexical and chronological order aligned.
	dst := fmt.Sprintf("%s.%s.gz", w.path, time.Now().UTC().Format("20060102T150405.000000000"))
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	compressed := true
	if err := compressFile(w.path, dst); err != nil {
		// keep writing to the current file, rotation is retried on the next write
		os.Remove(dst)
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		compressed = false
	} else {
		os.Remove(w.path)
		w.backups.Add(dst)
	}

	f, err := os.OpenFile(w.path, flags, 0644)
	if err != nil {
		return err
	}
	w.file = f
	if compressed {
		w.size = 0
	}
	return nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

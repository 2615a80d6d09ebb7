// internal/retention/filelistcap_test.go
package retention

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestNewFileListCap_OrdersByModTime(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(dir, "b.log"), now.Add(-1*time.Hour))
	writeFile(t, filepath.Join(dir, "a.log"), now)
	writeFile(t, filepath.Join(dir, "c.log"), now.Add(-2*time.Hour))
	writeFile(t, filepath.Join(dir, "ignored.txt"), now)

	c, err := NewFileListCap(dir, "*.log", 10)
	if err != nil {
		t.Fatalf("NewFileListCap() error = %v", err)
	}

	got := c.Files()
	want := []string{"c.log", "b.log", "a.log"}
	if len(got) != len(want) {
		t.Fatalf("Files() = %v, want %d entries", got, len(want))
	}
	for i, name := range want {
		if filepath.Base(got[i]) != name {
			t.Errorf("Files()[%d] = %s, want %s", i, filepath.Base(got[i]), name)
		}
	}
}

func TestFileListCap_AddEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileListCap(dir, "*.log", 2)
	if err != nil {
		t.Fatal(err)
	}

	var paths []string
	for _, name := range []string{"1.log", "2.log", "3.log"} {
		p := filepath.Join(dir, name)
		writeFile(t, p, time.Now())
		paths = append(paths, p)
	}

	c.Add(paths[0])
	c.Add(paths[1])
	evicted := c.Add(paths[2])

	if len(evicted) != 1 || evicted[0] != paths[0] {
		t.Fatalf("Add() evicted = %v, want [%s]", evicted, paths[0])
	}
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Error("evicted file should be deleted")
	}
	if got := c.Files(); len(got) != 2 || got[1] != paths[2] {
		t.Errorf("Files() = %v", got)
	}
}

func TestFileListCap_Touch(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewFileListCap(dir, "*", 3)
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	c.Add(a)
	c.Add(b)
	c.Touch(a)

	got := c.Files()
	if got[len(got)-1] != a {
		t.Errorf("Touch() should move file to newest, got %v", got)
	}
	if len(got) != 2 {
		t.Errorf("Touch() should not duplicate entries, got %v", got)
	}
}

func TestNewFileListCap_InvalidSize(t *testing.T) {
	if _, err := NewFileListCap(t.TempDir(), "*", 0); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestFileListCap_ConcurrentAdd(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewFileListCap(dir, "*", 5)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.Add(filepath.Join(dir, time.Now().Format("150405.000000000")))
			}
		}(i)
	}
	wg.Wait()

	if n := len(c.Files()); n > 5 {
		t.Errorf("expected at most 5 files, got %d", n)
	}
}

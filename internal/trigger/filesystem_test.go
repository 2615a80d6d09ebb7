// internal/trigger/filesystem_test.go
package trigger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watcherInitDelay = 200 * time.Millisecond

func startFilesystem(t *testing.T, cfg Config) (*Filesystem, chan Event) {
	t.Helper()
	cfg.Type = "filesystem"
	fs, err := NewFilesystem("watch", cfg)
	if err != nil {
		t.Fatalf("NewFilesystem failed: %v", err)
	}
	events := make(chan Event, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fs.Start(ctx, events)
	t.Cleanup(func() {
		cancel()
		fs.Stop()
	})
	time.Sleep(watcherInitDelay)
	return fs, events
}

func TestFilesystemTrigger(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "config.yaml")
	os.WriteFile(watched, []byte("a: 1\n"), 0600)

	_, events := startFilesystem(t, Config{WatchPaths: []string{watched}})

	// Files next to the watched one are ignored.
	os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0600)
	os.WriteFile(watched, []byte("a: 2\n"), 0600)

	select {
	case event := <-events:
		if event.Source != "watch" {
			t.Errorf("expected source watch, got %s", event.Source)
		}
		if event.Type != TypeFileModified {
			t.Errorf("expected %s, got %s", TypeFileModified, event.Type)
		}
		if event.Path != watched {
			t.Errorf("expected path %s, got %s", watched, event.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for file event")
	}
}

func TestFilesystemTrigger_Debounce(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "words.txt")

	_, events := startFilesystem(t, Config{
		WatchPaths: []string{watched},
		Debounce:   300 * time.Millisecond,
	})

	for i := 0; i < 5; i++ {
		os.WriteFile(watched, []byte{byte('a' + i)}, 0600)
	}

	select {
	case event := <-events:
		if event.Path != watched {
			t.Errorf("expected path %s, got %s", watched, event.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for debounced event")
	}

	select {
	case event := <-events:
		t.Errorf("expected a single event, got another: %+v", event)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestFilesystemTrigger_Removed(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "inventory.yaml")
	os.WriteFile(watched, []byte("x"), 0600)

	_, events := startFilesystem(t, Config{WatchPaths: []string{watched}})
	os.Remove(watched)

	select {
	case event := <-events:
		if event.Type != TypeFileDeleted {
			t.Errorf("expected %s, got %s", TypeFileDeleted, event.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for delete event")
	}
}

func TestFilesystemTrigger_DoubleStart(t *testing.T) {
	fs, _ := startFilesystem(t, Config{WatchPaths: []string{filepath.Join(t.TempDir(), "f")}})

	if err := fs.Start(context.Background(), make(chan Event, 1)); err == nil {
		t.Error("expected error when starting twice")
	}
}

func TestFilesystemTrigger_NoPaths(t *testing.T) {
	if _, err := NewFilesystem("empty", Config{Type: "filesystem"}); err == nil {
		t.Error("expected error without watch paths")
	}
}

func TestFilesystemTrigger_StopIdempotent(t *testing.T) {
	fs, err := NewFilesystem("stop", Config{WatchPaths: []string{"/tmp/x"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Stop(); err != nil {
		t.Errorf("first Stop: %v", err)
	}
	if err := fs.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

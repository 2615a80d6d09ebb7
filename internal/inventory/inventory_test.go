// internal/inventory/inventory_test.go
package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSource_Snapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.yaml")
	content := `
labels: [linux-x64, docker]
items:
  - full_name: team/app/build
    task_noun: Build
    pronoun: Project
  - full_name: team/app
    task_noun: Build
    pronoun: Folder
views: [Release]
nodes: [agent-1]
computers: [agent-1]
users: [Jane Doe]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	snap, err := FileSource{Path: path}.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Labels) != 2 || len(snap.Items) != 2 || snap.Users[0] != "Jane Doe" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	nouns := snap.TaskNouns()
	if len(nouns) != 3 {
		t.Errorf("TaskNouns() = %v, want Build, Project, Folder", nouns)
	}
}

func TestFileSource_Missing(t *testing.T) {
	snap, err := FileSource{Path: filepath.Join(t.TempDir(), "none.yaml")}.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Items) != 0 {
		t.Error("missing inventory should be empty")
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("items:\n  - task_noun: Build\n")); err == nil {
		t.Error("expected error for item without full_name")
	}
	if _, err := Parse([]byte("labels: {")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestFileSource_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (FileSource{Path: "x"}).Snapshot(ctx); err == nil {
		t.Error("expected context error")
	}
}

// internal/inventory/inventory.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Item is one entry of the item tree, named by its full "/"-separated path.
type Item struct {
	FullName string `yaml:"full_name"`
	TaskNoun string `yaml:"task_noun,omitempty"` // e.g. "Build"
	Pronoun  string `yaml:"pronoun,omitempty"`   // e.g. "Project"
}

// Snapshot lists the names currently known to the controller.
type Snapshot struct {
	Labels    []string `yaml:"labels"`
	Items     []Item   `yaml:"items"`
	Views     []string `yaml:"views"`
	Nodes     []string `yaml:"nodes"`
	Computers []string `yaml:"computers"`
	Users     []string `yaml:"users"`
}

// TaskNouns returns the distinct task nouns and pronouns of all items.
// They are generic words and must never be anonymized.
func (s *Snapshot) TaskNouns() []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range s.Items {
		for _, w := range []string{it.TaskNoun, it.Pronoun} {
			if w != "" && !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}

// Source provides inventory snapshots.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// FileSource reads a YAML snapshot exported by the controller.
type FileSource struct {
	Path string
}

// Snapshot implements Source. A missing file is an empty inventory.
func (f FileSource) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML snapshot.
func Parse(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	for i, it := range s.Items {
		if it.FullName == "" {
			return nil, fmt.Errorf("parsing inventory: item %d has no full_name", i)
		}
	}
	return &s, nil
}

// Static is a fixed in-memory Source.
type Static struct {
	Snap Snapshot
}

// Snapshot implements Source.
func (s *Static) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := s.Snap
	return &snap, nil
}

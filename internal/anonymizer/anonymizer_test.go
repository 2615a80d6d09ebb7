// internal/anonymizer/anonymizer_test.go
package anonymizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/colebrumley/supportanon/internal/config"
	"github.com/colebrumley/supportanon/internal/inventory"
	"github.com/colebrumley/supportanon/internal/mapping"
	"github.com/colebrumley/supportanon/internal/stopwords"
)

type seqGen struct{ n int }

func (g *seqGen) Next(c mapping.Category) string {
	g.n++
	return fmt.Sprintf("%s_t%d", c, g.n)
}

type failingSource struct{}

func (failingSource) Snapshot(context.Context) (*inventory.Snapshot, error) {
	return nil, errors.New("controller unavailable")
}

func newTestAnonymizer(t *testing.T, src inventory.Source, opts Options) (*Anonymizer, *mapping.Store, *stopwords.Registry) {
	t.Helper()
	stops := stopwords.New(config.Identity{Version: "2.401.3"}, nil, "", nil)
	store, err := mapping.Open(nil, stops, mapping.Options{Generator: &seqGen{}})
	if err != nil {
		t.Fatal(err)
	}
	return New(store, stops, src, opts), store, stops
}

func TestAnonymizePath_BuildsOnParent(t *testing.T) {
	a, store, _ := newTestAnonymizer(t, &inventory.Static{}, Options{})

	got := a.AnonymizePath("folder/sub/job")
	parts := strings.Split(got, "/")
	if len(parts) != 3 {
		t.Fatalf("AnonymizePath() = %q, want 3 segments", got)
	}

	folder, _ := store.Lookup("folder")
	sub, _ := store.Lookup("folder/sub")
	if parts[0] != folder.Replacement {
		t.Errorf("first segment %q should be the mapping of folder (%q)", parts[0], folder.Replacement)
	}
	if !strings.HasPrefix(got, sub.Replacement+"/") {
		t.Errorf("%q should extend the mapping of folder/sub (%q)", got, sub.Replacement)
	}

	// a sibling shares the parent prefix
	sibling := a.AnonymizePath("folder/other")
	if !strings.HasPrefix(sibling, folder.Replacement+"/") {
		t.Errorf("sibling %q should share the parent replacement %q", sibling, folder.Replacement)
	}

	if again := a.AnonymizePath("folder/sub/job"); again != got {
		t.Errorf("AnonymizePath() not stable: %q then %q", got, again)
	}
}

func TestAnonymizePath_Separators(t *testing.T) {
	a, _, _ := newTestAnonymizer(t, &inventory.Static{}, Options{})

	plain := a.AnonymizePath("team/app")
	if got := a.AnonymizePath("team/app/"); got != plain+"/" {
		t.Errorf("trailing separator: got %q, want %q", got, plain+"/")
	}
	if got := a.AnonymizePath("/team/app"); got != "/"+plain {
		t.Errorf("leading separator: got %q, want %q", got, "/"+plain)
	}
	if got := a.AnonymizePath("/"); got != "/" {
		t.Errorf("AnonymizePath(/) = %q", got)
	}
}

func TestAnonymizeName(t *testing.T) {
	a, store, _ := newTestAnonymizer(t, &inventory.Static{}, Options{})

	got := a.AnonymizeName("qa-team", mapping.View)
	if !strings.HasPrefix(got, "view_t") {
		t.Fatalf("AnonymizeName() = %q, want a view token", got)
	}
	if again := a.AnonymizeName("qa-team", mapping.View); again != got {
		t.Errorf("AnonymizeName() not stable: %q then %q", got, again)
	}
	if m, ok := store.Lookup("qa-team"); !ok || m.Category != mapping.View {
		t.Errorf("Lookup(qa-team) = %+v, %v", m, ok)
	}
	if got := a.AnonymizeName("2.401.3", mapping.Label); got != "2.401.3" {
		t.Errorf("stop word should be returned unchanged, got %q", got)
	}
}

func TestAnonymizePath_StopWordSegments(t *testing.T) {
	a, store, _ := newTestAnonymizer(t, &inventory.Static{}, Options{})

	got := a.AnonymizePath("jenkins/deploy")
	if !strings.HasPrefix(got, "jenkins/item_") {
		t.Errorf("stop word segment should stay verbatim, got %q", got)
	}
	if _, ok := store.Lookup("jenkins"); ok {
		t.Error("stop word should not be mapped")
	}
	if got := a.AnonymizePath("jenkins/node"); got != "jenkins/node" {
		t.Errorf("all-stop-word path should be unchanged, got %q", got)
	}
}

func TestRefresh_Categories(t *testing.T) {
	src := &inventory.Static{Snap: inventory.Snapshot{
		Labels:    []string{"docker"},
		Items:     []inventory.Item{{FullName: "team/app", TaskNoun: "Build", Pronoun: "Project"}},
		Views:     []string{"Release"},
		Nodes:     []string{"agent-1"},
		Computers: []string{"agent-1"},
		Users:     []string{"Jane Doe"},
	}}
	a, store, stops := newTestAnonymizer(t, src, Options{Categories: map[string]bool{"user": false}})

	res, err := a.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.Before != 0 || res.After != store.Len() {
		t.Errorf("Refresh() = %+v", res)
	}
	for o, c := range map[string]mapping.Category{
		"docker": mapping.Label, "team": mapping.Item, "app": mapping.Item,
		"team/app": mapping.Item, "Release": mapping.View, "agent-1": mapping.Node,
	} {
		m, ok := store.Lookup(o)
		if !ok {
			t.Errorf("%q should be mapped", o)
			continue
		}
		if m.Category != c {
			t.Errorf("%q category = %s, want %s", o, m.Category, c)
		}
	}
	if _, ok := store.Lookup("Jane Doe"); ok {
		t.Error("disabled category should not be mapped")
	}
	if !stops.Contains("build") || !stops.Contains("project") {
		t.Error("task nouns should become stop words")
	}
	if a.LastRefresh().IsZero() {
		t.Error("LastRefresh() should be set")
	}
}

func TestRefresh_KeepsRemovedObjects(t *testing.T) {
	src := &inventory.Static{Snap: inventory.Snapshot{Nodes: []string{"old-agent"}}}
	a, store, _ := newTestAnonymizer(t, src, Options{})
	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	src.Snap = inventory.Snapshot{Nodes: []string{"new-agent"}}
	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Lookup("old-agent"); !ok {
		t.Error("mappings of removed objects must be kept")
	}
}

func TestRefresh_SourceError(t *testing.T) {
	a, _, _ := newTestAnonymizer(t, failingSource{}, Options{})
	if _, err := a.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !a.LastRefresh().IsZero() {
		t.Error("failed refresh should not count as refreshed")
	}
}

func TestRefreshIfStale(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	src := &inventory.Static{Snap: inventory.Snapshot{Labels: []string{"gpu"}}}
	a, _, _ := newTestAnonymizer(t, src, Options{MinInterval: 10 * time.Minute, Now: clock})

	ran, err := a.RefreshIfStale(context.Background())
	if err != nil || !ran {
		t.Fatalf("first RefreshIfStale() = %v, %v; want true", ran, err)
	}
	now = now.Add(5 * time.Minute)
	if ran, _ := a.RefreshIfStale(context.Background()); ran {
		t.Error("refresh within the interval should be skipped")
	}
	now = now.Add(6 * time.Minute)
	if ran, _ := a.RefreshIfStale(context.Background()); !ran {
		t.Error("refresh after the interval should run")
	}
}

func TestDisplayed(t *testing.T) {
	src := &inventory.Static{Snap: inventory.Snapshot{
		Labels: []string{"zeta"},
		Users:  []string{"alice"},
	}}
	a, store, _ := newTestAnonymizer(t, src, Options{})
	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	store.GetOrCreate("10.0.0.1", mapping.IP)

	shown := a.Displayed()
	if len(shown) != 2 || shown[0].Original != "alice" || shown[1].Original != "zeta" {
		t.Errorf("Displayed() = %+v", shown)
	}

	a.Configure(map[string]bool{"user": false}, 0)
	if shown := a.Displayed(); len(shown) != 1 || shown[0].Original != "zeta" {
		t.Errorf("Displayed() after disabling users = %+v", shown)
	}
}

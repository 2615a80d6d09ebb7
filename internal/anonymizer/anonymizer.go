// internal/anonymizer/anonymizer.go
package anonymizer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/colebrumley/supportanon/internal/inventory"
	"github.com/colebrumley/supportanon/internal/mapping"
	"github.com/colebrumley/supportanon/internal/stopwords"
)

// DefaultMinInterval is how long a refresh stays fresh.
const DefaultMinInterval = 10 * time.Minute

// Options configure an Anonymizer.
type Options struct {
	// Categories switches categories on or off by name (label, item, ...).
	// Missing entries are enabled.
	Categories  map[string]bool
	MinInterval time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// Result summarizes one refresh.
type Result struct {
	Before int
	After  int
}

// Anonymizer walks the inventory and makes sure every live name has a mapping.
type Anonymizer struct {
	store  *mapping.Store
	stops  *stopwords.Registry
	source inventory.Source
	logger *slog.Logger
	now    func() time.Time

	refreshMu   sync.Mutex
	mu          sync.RWMutex
	categories  map[string]bool
	minInterval time.Duration
	lastRefresh time.Time
}

// New creates an anonymizer over store.
func New(store *mapping.Store, stops *stopwords.Registry, source inventory.Source, opts Options) *Anonymizer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	return &Anonymizer{
		store:       store,
		stops:       stops,
		source:      source,
		logger:      opts.Logger,
		now:         opts.Now,
		categories:  maps.Clone(opts.Categories),
		minInterval: opts.MinInterval,
	}
}

// Configure replaces the category switches and refresh interval.
func (a *Anonymizer) Configure(categories map[string]bool, minInterval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.categories = maps.Clone(categories)
	if minInterval > 0 {
		a.minInterval = minInterval
	}
}

// Enabled reports whether category c is anonymized.
func (a *Anonymizer) Enabled(c mapping.Category) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	on, ok := a.categories[string(c)]
	return !ok || on
}

// LastRefresh returns when the last successful refresh finished.
func (a *Anonymizer) LastRefresh() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastRefresh
}

// MarkRefreshed records t as the last refresh time, e.g. from persisted history.
func (a *Anonymizer) MarkRefreshed(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.After(a.lastRefresh) {
		a.lastRefresh = t
	}
}

// Refresh reads the inventory and creates mappings for every new name of an
// enabled category. Mappings of objects that disappeared are kept.
func (a *Anonymizer) Refresh(ctx context.Context) (Result, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	snap, err := a.source.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reading inventory: %w", err)
	}
	if nouns := snap.TaskNouns(); len(nouns) > 0 {
		a.stops.Add(nouns...)
	}

	res := Result{Before: a.store.Len()}
	a.store.Batch(func() {
		a.names(ctx, mapping.Label, snap.Labels)
		if a.Enabled(mapping.Item) {
			for _, it := range snap.Items {
				if ctx.Err() != nil {
					return
				}
				a.AnonymizePath(it.FullName)
			}
		}
		a.names(ctx, mapping.View, snap.Views)
		a.names(ctx, mapping.Node, snap.Nodes)
		a.names(ctx, mapping.Computer, snap.Computers)
		a.names(ctx, mapping.User, snap.Users)
	})
	res.After = a.store.Len()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	a.mu.Lock()
	a.lastRefresh = a.now()
	a.mu.Unlock()

	a.logger.Debug("refreshed anonymized names", "before", res.Before, "after", res.After)
	return res, nil
}

// RefreshIfStale refreshes only when the last refresh is older than the
// minimum interval. It reports whether a refresh ran.
func (a *Anonymizer) RefreshIfStale(ctx context.Context) (bool, error) {
	if !a.Stale() {
		return false, nil
	}
	_, err := a.Refresh(ctx)
	return true, err
}

// Stale reports whether the last refresh is older than the minimum interval.
func (a *Anonymizer) Stale() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastRefresh.IsZero() || a.now().Sub(a.lastRefresh) >= a.minInterval
}

// AnonymizeName returns the replacement for a flat name, or the name itself
// when it is a stop word.
func (a *Anonymizer) AnonymizeName(name string, c mapping.Category) string {
	r, _ := a.store.GetOrCreate(name, c)
	return r
}

// AnonymizePath maps every prefix of a "/"-separated path. The replacement
// of "a/b" is the replacement of "a", a "/", and the replacement of "b", so
// renaming a parent renames every descendant the same way. Stop-word
// segments and leading or trailing separators are kept verbatim.
func (a *Anonymizer) AnonymizePath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return path
	}

	segments := strings.Split(trimmed, "/")
	prefix := ""
	replaced := ""
	for i, seg := range segments {
		segRepl := seg
		if seg != "" {
			segRepl = a.AnonymizeName(seg, mapping.Item)
		}
		if i == 0 {
			prefix, replaced = seg, segRepl
			continue
		}
		prefix += "/" + seg
		built := replaced + "/" + segRepl
		replaced, _ = a.store.GetOrCreateFunc(prefix, mapping.Item, func() string { return built })
	}

	if strings.HasPrefix(path, "/") {
		replaced = "/" + replaced
	}
	if strings.HasSuffix(path, "/") {
		replaced += "/"
	}
	return replaced
}

// Displayed returns the name mappings of enabled categories, sorted by original.
func (a *Anonymizer) Displayed() []mapping.Mapping {
	var out []mapping.Mapping
	for _, m := range a.store.All() {
		if m.Category == mapping.IP || !a.Enabled(m.Category) {
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(x, y mapping.Mapping) int { return strings.Compare(x.Original, y.Original) })
	return out
}

func (a *Anonymizer) names(ctx context.Context, c mapping.Category, names []string) {
	if !a.Enabled(c) {
		return
	}
	for _, n := range names {
		if ctx.Err() != nil {
			return
		}
		a.AnonymizeName(n, c)
	}
}

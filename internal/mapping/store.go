// internal/mapping/store.go
package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrLoad means persisted mappings could not be read. Continuing would risk
// overwriting them, so callers treat it as fatal.
var ErrLoad = errors.New("could not load anonymized names")

// maxAttempts bounds how many fresh tokens are drawn before a counter suffix is used.
const maxAttempts = 16

// Persister reads and writes the full set of mappings.
type Persister interface {
	Load() ([]Mapping, error)
	Save(mappings []Mapping) error
}

// StopWords tells the store which originals must never be mapped.
type StopWords interface {
	Contains(word string) bool
}

// Options configure a Store.
type Options struct {
	Generator Generator // defaults to a randomly seeded FakeGenerator
	Logger    *slog.Logger
}

// Store is the process-wide original → replacement table. Every mutation and
// every persist happens under one mutex; readers get immutable snapshots.
type Store struct {
	mu         sync.Mutex
	byOriginal map[string]Mapping
	byReplaced map[string]string
	persister  Persister
	stops      StopWords
	gen        Generator
	logger     *slog.Logger
	batchDepth int
	dirty      bool

	snapshot    atomic.Pointer[[]Mapping]
	version     atomic.Uint64
	nameVersion atomic.Uint64
}

// Open creates a store and loads the persisted mappings. A nil persister
// keeps mappings in memory only.
func Open(p Persister, stops StopWords, opts Options) (*Store, error) {
	if opts.Generator == nil {
		opts.Generator = NewFakeGenerator(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{
		byOriginal: make(map[string]Mapping),
		byReplaced: make(map[string]string),
		persister:  p,
		stops:      stops,
		gen:        opts.Generator,
		logger:     opts.Logger,
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load merges the persisted mappings into the store. Entries already in
// memory win; persisted originals that are now stop words are skipped.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}
	records, err := s.persister.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	for _, m := range records {
		if m.Original == "" || m.Replacement == "" {
			return fmt.Errorf("%w: empty mapping for %q", ErrLoad, m.Original)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, m := range records {
		if s.isStopWord(m.Original) {
			continue
		}
		if _, ok := s.byOriginal[m.Original]; ok {
			continue
		}
		if _, taken := s.byReplaced[m.Replacement]; taken {
			s.logger.Warn("skipping persisted mapping with duplicate replacement", "replacement", m.Replacement)
			continue
		}
		s.insertLocked(m)
		added++
	}
	s.logger.Debug("loaded anonymized names", "loaded", added, "total", len(s.byOriginal))
	return nil
}

// GetOrCreate returns the replacement for original, creating one if needed.
// Stop words are returned unchanged with ok == false.
func (s *Store) GetOrCreate(original string, c Category) (string, bool) {
	return s.GetOrCreateFunc(original, c, nil)
}

// GetOrCreateFunc is GetOrCreate with a custom replacement builder, used for
// values derived from other mappings such as hierarchical paths. build runs
// under the store lock and must not call back into the store. A build result
// equal to original records nothing.
func (s *Store) GetOrCreateFunc(original string, c Category, build func() string) (string, bool) {
	if original == "" || s.isStopWord(original) {
		return original, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byOriginal[original]; ok {
		return m.Replacement, true
	}

	var replacement string
	if build != nil {
		replacement = build()
		if replacement == original {
			return original, false
		}
		replacement = s.uniqueLocked(replacement)
	} else {
		replacement = s.generateLocked(c)
	}

	s.insertLocked(Mapping{Original: original, Replacement: replacement, Category: c})
	s.persistLocked()
	return replacement, true
}

// Lookup returns the mapping recorded for original.
func (s *Store) Lookup(original string) (Mapping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byOriginal[original]
	return m, ok
}

// Reverse returns the mapping whose replacement is replacement.
func (s *Store) Reverse(replacement string) (Mapping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	original, ok := s.byReplaced[replacement]
	if !ok {
		return Mapping{}, false
	}
	return s.byOriginal[original], true
}

// All returns every mapping, longest original first. The slice is shared
// and must not be modified.
func (s *Store) All() []Mapping {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of mappings.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byOriginal)
}

// Version increases with every change, so derived indexes know when to rebuild.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// NameVersion is Version ignoring IP mappings. Indexes over names key on it
// so a stream of new addresses does not force a rebuild.
func (s *Store) NameVersion() uint64 {
	return s.nameVersion.Load()
}

// Batch runs fn and persists once at the end instead of after every new mapping.
func (s *Store) Batch(fn func()) {
	s.mu.Lock()
	s.batchDepth++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.batchDepth--
		if s.batchDepth == 0 && s.dirty {
			s.persistLocked()
		}
	}()
	fn()
}

// Clear drops every mapping and persists the empty table.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOriginal = make(map[string]Mapping)
	s.byReplaced = make(map[string]string)
	s.changedLocked()
	s.nameVersion.Add(1)
	s.persistLocked()
}

// Save writes the current mappings, returning any persistence error.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) isStopWord(original string) bool {
	return s.stops != nil && s.stops.Contains(original)
}

func (s *Store) insertLocked(m Mapping) {
	s.byOriginal[m.Original] = m
	s.byReplaced[m.Replacement] = m.Original
	s.changedLocked()
	if m.Category != IP {
		s.nameVersion.Add(1)
	}
}

func (s *Store) changedLocked() {
	s.snapshot.Store(nil)
	s.version.Add(1)
}

func (s *Store) snapshotLocked() []Mapping {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	all := make([]Mapping, 0, len(s.byOriginal))
	for _, m := range s.byOriginal {
		all = append(all, m)
	}
	slices.SortFunc(all, func(a, b Mapping) int { return Compare(a.Original, b.Original) })
	s.snapshot.Store(&all)
	return all
}

func (s *Store) generateLocked(c Category) string {
	var candidate string
	for i := 0; i < maxAttempts; i++ {
		candidate = s.gen.Next(c)
		if !s.takenLocked(candidate) {
			return candidate
		}
	}
	return s.uniqueLocked(candidate)
}

// uniqueLocked appends a counter to candidate until it is unused.
func (s *Store) uniqueLocked(candidate string) string {
	if !s.takenLocked(candidate) {
		return candidate
	}
	for n := 2; ; n++ {
		c := candidate + "_" + strconv.Itoa(n)
		if !s.takenLocked(c) {
			return c
		}
	}
}

// takenLocked also rejects a replacement equal to a known original, so a
// replacement never reads as a mapped literal.
func (s *Store) takenLocked(replacement string) bool {
	if _, ok := s.byReplaced[replacement]; ok {
		return true
	}
	_, ok := s.byOriginal[replacement]
	return ok
}

func (s *Store) persistLocked() {
	if s.batchDepth > 0 {
		s.dirty = true
		return
	}
	if err := s.saveLocked(); err != nil {
		s.logger.Warn("could not save anonymized names", "error", err)
	}
}

func (s *Store) saveLocked() error {
	s.dirty = false
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(s.snapshotLocked()); err != nil {
		return fmt.Errorf("saving anonymized names: %w", err)
	}
	return nil
}

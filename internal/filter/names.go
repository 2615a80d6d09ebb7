// internal/filter/names.go
package filter

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/colebrumley/supportanon/internal/mapping"
)

// StopWords reports words that must never be replaced.
type StopWords interface {
	Contains(word string) bool
}

// NameFilter replaces every whole-word occurrence of a mapped name. All
// names are kept in one trie so a line is scanned once, and at each word
// start the longest name that also ends on a word boundary wins.
type NameFilter struct {
	store         *mapping.Store
	stops         StopWords
	caseSensitive bool
	logger        *slog.Logger

	mu     sync.Mutex
	index  atomic.Pointer[nameIndex]
	builds atomic.Int64
}

// NameFilterOptions configure a NameFilter.
type NameFilterOptions struct {
	CaseSensitive bool
	Logger        *slog.Logger
}

// NewNameFilter creates a filter over the non-IP mappings of store.
func NewNameFilter(store *mapping.Store, stops StopWords, opts NameFilterOptions) *NameFilter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &NameFilter{
		store:         store,
		stops:         stops,
		caseSensitive: opts.CaseSensitive,
		logger:        opts.Logger,
	}
}

type trieNode struct {
	children    map[rune]*trieNode
	replacement string
	terminal    bool
}

type nameIndex struct {
	version uint64
	root    *trieNode
	size    int
}

// Filter implements TextFilter.
func (f *NameFilter) Filter(s string) string {
	idx := f.current()
	if idx.size == 0 || s == "" {
		return s
	}

	var b strings.Builder
	last := 0
	prevWord := false
	for i := 0; i < len(s); {
		if !prevWord {
			if end, repl, ok := f.match(idx.root, s, i); ok {
				if b.Len() == 0 {
					b.Grow(len(s))
				}
				b.WriteString(s[last:i])
				b.WriteString(repl)
				last, i = end, end
				r, _ := utf8.DecodeLastRuneInString(s[:end])
				prevWord = isWordRune(r)
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		prevWord = isWordRune(r)
		i += size
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// Reload forces the index to be rebuilt, e.g. after stop words changed.
func (f *NameFilter) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index.Store(f.build())
	return nil
}

// Size returns the number of spellings in the current index.
func (f *NameFilter) Size() int {
	return f.current().size
}

// Builds returns how many times the index has been built.
func (f *NameFilter) Builds() int64 {
	return f.builds.Load()
}

// match returns the end of the longest name starting at i that is followed
// by a non-word rune or the end of s.
func (f *NameFilter) match(root *trieNode, s string, i int) (int, string, bool) {
	node := root
	bestEnd, best, found := 0, "", false
	for j := i; j < len(s); {
		r, size := utf8.DecodeRuneInString(s[j:])
		node = node.children[f.fold(r)]
		if node == nil {
			break
		}
		j += size
		if node.terminal && atBoundary(s, j) {
			bestEnd, best, found = j, node.replacement, true
		}
	}
	return bestEnd, best, found
}

func (f *NameFilter) current() *nameIndex {
	v := f.store.NameVersion()
	if idx := f.index.Load(); idx != nil && idx.version == v {
		return idx
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := f.index.Load(); idx != nil && idx.version == f.store.NameVersion() {
		return idx
	}
	idx := f.build()
	f.index.Store(idx)
	return idx
}

func (f *NameFilter) build() *nameIndex {
	start := time.Now()
	idx := &nameIndex{version: f.store.NameVersion(), root: &trieNode{}}
	for _, m := range f.store.All() {
		if m.Category == mapping.IP {
			continue
		}
		if f.stops != nil && f.stops.Contains(m.Original) {
			continue
		}
		for _, alt := range m.Alternates() {
			if f.insert(idx.root, alt, m.Replacement) {
				idx.size++
			}
		}
	}
	f.builds.Add(1)
	f.logger.Debug("rebuilt name index", "spellings", idx.size, "took", time.Since(start))
	return idx
}

// insert adds key unless an equal (folded) key is already present.
func (f *NameFilter) insert(root *trieNode, key, replacement string) bool {
	if key == "" {
		return false
	}
	node := root
	for _, r := range key {
		r = f.fold(r)
		next := node.children[r]
		if next == nil {
			if node.children == nil {
				node.children = make(map[rune]*trieNode)
			}
			next = &trieNode{}
			node.children[r] = next
		}
		node = next
	}
	if node.terminal {
		return false
	}
	node.terminal = true
	node.replacement = replacement
	return true
}

func (f *NameFilter) fold(r rune) rune {
	if f.caseSensitive {
		return r
	}
	return unicode.ToLower(r)
}

// isWordRune matches letters, digits and '_'. Generated tokens such as
// "ip_brave_otter" are therefore single words.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func atBoundary(s string, j int) bool {
	if j >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[j:])
	return !isWordRune(r)
}

// internal/stopwords/registry.go
package stopwords

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-version"

	"github.com/colebrumley/supportanon/internal/config"
)

// DefaultWords are never anonymized: they show up in nearly every log line.
var DefaultWords = []string{
	"jenkins", "node", "master", "computer", "item", "label", "view",
	"all", "unknown", "user", "anonymous", "authenticated", "everyone",
	"system", "admin",
}

// OSNames are common operating system names.
var OSNames = []string{
	"linux", "windows", "win", "mac", "macos", "macosx", "mac os x",
	"ubuntu", "debian", "fedora", "red hat", "sunos", "freebsd",
}

// Registry holds the words excluded from anonymization. Lookups are case-insensitive.
type Registry struct {
	mu        sync.RWMutex
	words     mapset.Set[string]
	extraFile string
	logger    *slog.Logger
}

// New builds a registry for the given identity and operator exclusions.
// extraFile is an optional file with one additional stop word per line.
func New(identity config.Identity, excluded []string, extraFile string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{extraFile: extraFile, logger: logger}
	r.Recompute(identity, excluded)
	return r
}

// Recompute rebuilds the set from scratch. Words added through Add are dropped.
func (r *Registry) Recompute(identity config.Identity, excluded []string) {
	words := mapset.NewThreadUnsafeSet[string]()
	add := func(w string) {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words.Add(w)
		}
	}

	for _, w := range DefaultWords {
		add(w)
	}
	for _, w := range OSNames {
		add(w)
	}
	for c := ' '; c <= '~'; c++ {
		words.Add(strings.ToLower(string(c)))
	}
	add(identity.OSName)
	for _, v := range versionForms(identity.Version) {
		add(v)
	}
	for _, w := range excluded {
		add(w)
	}
	r.mu.RLock()
	extraFile := r.extraFile
	r.mu.RUnlock()
	if extraFile != "" {
		extra, err := ReadWordFile(extraFile)
		if err != nil {
			r.logger.Warn("could not read additional stop words", "file", extraFile, "error", err)
		}
		for _, w := range extra {
			add(w)
		}
	}

	r.mu.Lock()
	r.words = words
	r.mu.Unlock()
}

// SetExtraFile changes the additional stop word file used by the next Recompute.
func (r *Registry) SetExtraFile(path string) {
	r.mu.Lock()
	r.extraFile = path
	r.mu.Unlock()
}

// Add registers extra words until the next Recompute.
func (r *Registry) Add(words ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			r.words.Add(w)
		}
	}
}

// Contains reports whether word must be left untouched.
func (r *Registry) Contains(word string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.words.Contains(strings.ToLower(word))
}

// Words returns the sorted contents of the registry.
func (r *Registry) Words() []string {
	r.mu.RLock()
	out := r.words.ToSlice()
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Len returns the number of stop words.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.words.Cardinality()
}

// versionForms returns the raw version plus its normalised spellings.
func versionForms(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	forms := []string{raw}
	v, err := version.NewVersion(raw)
	if err != nil {
		return forms
	}
	forms = append(forms, v.Original(), v.String())

	segs := v.Segments()
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = strconv.Itoa(s)
	}
	forms = append(forms, strings.Join(parts, "."))

	slices.Sort(forms)
	return slices.Compact(forms)
}

// ReadWordFile reads one word per line, skipping blanks and '#' comments.
// A missing file yields no words and no error.
func ReadWordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening stop word file: %w", err)
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return words, fmt.Errorf("reading stop word file: %w", err)
	}
	return words, nil
}

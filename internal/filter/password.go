// internal/filter/password.go
package filter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/colebrumley/supportanon/internal/stopwords"
)

// Redacted replaces secret values. It is fixed: there is nothing to reverse.
const Redacted = "REDACTED"

// DefaultSecurityWords are the key fragments that mark a value as secret.
var DefaultSecurityWords = []string{
	"password", "token", "passwd", "passphrase", "private", "key", "secret",
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
}

// PasswordRedactor blanks the value of every key=value pair whose key
// contains a security word. A quoted value is redacted up to its closing
// quote. Other values end at a comma, whitespace, NUL, '<', a quote or a
// backtick, so neighbouring pairs are left intact.
type PasswordRedactor struct {
	state atomic.Pointer[redactorState]
}

type redactorState struct {
	words   []string
	pattern *regexp.Regexp // key=value pairs
	keys    *regexp.Regexp // keys containing a security word
}

// NewPasswordRedactor compiles a redactor for words. No words means the
// redactor is the identity and Match reports false.
func NewPasswordRedactor(words []string) *PasswordRedactor {
	r := &PasswordRedactor{}
	r.SetWords(words)
	return r
}

// SetWords swaps the dictionary.
func (r *PasswordRedactor) SetWords(words []string) {
	st := &redactorState{}
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			st.words = append(st.words, w)
		}
	}
	if len(st.words) > 0 {
		alts := make([]string, len(st.words))
		quoted := make([]string, len(st.words))
		for i, w := range st.words {
			quoted[i] = regexp.QuoteMeta(w)
			alts[i] = quoted[i] + `[^=\s]*`
		}
		st.pattern = regexp.MustCompile(`(?i)(` + strings.Join(alts, "|") + `)\s*=\s*` + valuePattern)
		st.keys = regexp.MustCompile(`(?i)(` + strings.Join(quoted, "|") + `)`)
	}
	r.state.Store(st)
}

// Words returns the active dictionary.
func (r *PasswordRedactor) Words() []string {
	return append([]string(nil), r.state.Load().words...)
}

// Filter implements TextFilter.
func (r *PasswordRedactor) Filter(s string) string {
	return r.Redact(s)
}

// valuePattern captures a value: a quoted span, or an unquoted run that may
// open with a quote that is never closed.
const valuePattern = `('[^']*'|"[^"]*"|['"]?[^,\s\x00<'"` + "`" + `]*)`

// nextPair matches a value that is really the key of the following pair,
// as in "password= user=bob".
var nextPair = regexp.MustCompile(`^[^=\s'"]+=`)

// Redact replaces the value of each secret key=value pair with Redacted.
// Spacing before '=' is kept, spacing after it is dropped. Empty values are
// left as they are, and so is the pair that follows an empty value.
func (r *PasswordRedactor) Redact(s string) string {
	st := r.state.Load()
	if st.pattern == nil || s == "" {
		return s
	}

	var b strings.Builder
	last, pos := 0, 0
	for pos < len(s) {
		m := st.pattern.FindStringSubmatchIndex(s[pos:])
		if m == nil {
			break
		}
		keyEnd, valStart, valEnd := pos+m[3], pos+m[4], pos+m[5]
		eq := keyEnd + strings.IndexByte(s[keyEnd:valStart], '=')
		val := s[valStart:valEnd]
		if emptyValue(val) || (valStart > eq+1 && nextPair.MatchString(val)) {
			// Rescan from the value so a following secret pair is still found.
			pos = valStart
			continue
		}
		if last == 0 {
			b.Grow(len(s))
		}
		b.WriteString(s[last:eq])
		b.WriteString("=" + Redacted)
		last, pos = valEnd, valEnd
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

func emptyValue(v string) bool {
	return v == "" || v == "''" || v == `""`
}

// RedactProperties returns a copy of props where secret keys have their
// whole value replaced and every other value is redacted as text.
func (r *PasswordRedactor) RedactProperties(props map[string]string) map[string]string {
	st := r.state.Load()
	if st.keys == nil {
		return props
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		if st.keys.MatchString(k) {
			out[k] = Redacted
		} else {
			out[k] = r.Redact(v)
		}
	}
	return out
}

// Match reports whether key names a secret.
func (r *PasswordRedactor) Match(key string) bool {
	st := r.state.Load()
	return st.keys != nil && st.keys.MatchString(key)
}

// Dictionary resolves where the security words come from.
type Dictionary struct {
	// Patterns from configuration. nil falls back to File, empty disables.
	Patterns []string
	// File holds one word per line. It is created with the defaults if missing.
	File   string
	Logger *slog.Logger
}

// Load returns the effective security words.
func (d Dictionary) Load() ([]string, error) {
	if d.Patterns != nil {
		return d.Patterns, nil
	}
	if d.File == "" {
		return DefaultSecurityWords, nil
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(d.File); errors.Is(err, fs.ErrNotExist) {
		if err := writeDefaultWords(d.File); err != nil {
			logger.Warn("could not initialize security words file", "file", d.File, "error", err)
		}
		return DefaultSecurityWords, nil
	}
	words, err := stopwords.ReadWordFile(d.File)
	if err != nil {
		return DefaultSecurityWords, fmt.Errorf("loading security words: %w", err)
	}
	return words, nil
}

func writeDefaultWords(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.Join(DefaultSecurityWords, "\n")+"\n"), 0644)
}

// DictionaryRedactor is a PasswordRedactor that rereads its Dictionary on Reload.
type DictionaryRedactor struct {
	*PasswordRedactor
	dict Dictionary
}

// NewDictionaryRedactor loads dict and compiles a redactor for it.
func NewDictionaryRedactor(dict Dictionary) (*DictionaryRedactor, error) {
	words, err := dict.Load()
	return &DictionaryRedactor{PasswordRedactor: NewPasswordRedactor(words), dict: dict}, err
}

// Reload implements Reloader.
func (d *DictionaryRedactor) Reload(ctx context.Context) error {
	words, err := d.dict.Load()
	if err != nil {
		return err
	}
	d.SetWords(words)
	return nil
}

// SetDictionary replaces the source and reloads it.
func (d *DictionaryRedactor) SetDictionary(ctx context.Context, dict Dictionary) error {
	d.dict = dict
	return d.Reload(ctx)
}

// internal/stream/charset.go
package stream

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Lookup returns the encoding registered for charset. An empty name means UTF-8.
func Lookup(charset string) (encoding.Encoding, error) {
	name := strings.TrimSpace(charset)
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc, nil
}

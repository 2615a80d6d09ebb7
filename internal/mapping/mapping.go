// internal/mapping/mapping.go
package mapping

import (
	"cmp"
	"html"
	"strings"
)

// Category tags the kind of object an original string names. It is also the
// prefix of every generated replacement.
type Category string

const (
	Label    Category = "label"
	Item     Category = "item"
	View     Category = "view"
	Node     Category = "node"
	Computer Category = "computer"
	User     Category = "user"
	IP       Category = "ip"
)

// Categories lists every category in a stable order.
var Categories = []Category{Label, Item, View, Node, Computer, User, IP}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case Label, Item, View, Node, Computer, User, IP:
		return true
	}
	return false
}

// altSeparator is how hierarchical names are rendered in display names.
const altSeparator = " » "

// Mapping pairs an original sensitive string with its replacement.
type Mapping struct {
	Original    string   `json:"original"`
	Replacement string   `json:"replacement"`
	Category    Category `json:"category"`
}

// Alternates returns the spellings of the original that must be replaced by
// the same replacement: itself, HTML-escaped, and for paths the " » "
// display form (also escaped). Duplicates are removed.
func (m Mapping) Alternates() []string {
	out := []string{m.Original}
	add := func(s string) {
		for _, e := range out {
			if e == s {
				return
			}
		}
		out = append(out, s)
	}
	add(html.EscapeString(m.Original))
	alt := strings.ReplaceAll(m.Original, "/", altSeparator)
	add(alt)
	add(html.EscapeString(alt))
	return out
}

// Compare orders originals longest first, then lexicographically.
func Compare(a, b string) int {
	if c := cmp.Compare(len(b), len(a)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Less reports whether a sorts before b in mapping order.
func Less(a, b Mapping) bool {
	return Compare(a.Original, b.Original) < 0
}

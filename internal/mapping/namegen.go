// internal/mapping/namegen.go
package mapping

import (
	"strings"
	"unicode"

	"github.com/brianvoe/gofakeit/v7"
)

// Generator produces candidate replacement tokens. Implementations need not
// be safe for concurrent use: the store only calls them under its lock.
type Generator interface {
	Next(c Category) string
}

// FakeGenerator builds readable tokens such as "item_brave_otter".
type FakeGenerator struct {
	faker *gofakeit.Faker
}

// NewFakeGenerator returns a generator seeded with seed; 0 picks a random seed.
func NewFakeGenerator(seed uint64) *FakeGenerator {
	return &FakeGenerator{faker: gofakeit.New(seed)}
}

// Next implements Generator.
func (g *FakeGenerator) Next(c Category) string {
	var words string
	switch c {
	case User:
		words = g.faker.FirstName() + " " + g.faker.LastName()
	case Node, Computer:
		words = g.faker.Color() + " " + g.faker.Animal()
	default:
		words = g.faker.Adjective() + " " + g.faker.Noun()
	}
	return string(c) + "_" + Normalize(words)
}

// Normalize lower-cases s and turns every run of characters that are not
// letters or digits into a single '_', so a token is always one word.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}

// internal/filter/scrubber.go
package filter

import "github.com/colebrumley/supportanon/internal/security"

// ScrubberFilter redacts credentials that do not come as key=value pairs:
// bearer and basic auth headers, user:password@ in URLs and API tokens.
type ScrubberFilter struct{}

// Filter implements TextFilter.
func (ScrubberFilter) Filter(s string) string {
	return security.Scrub(s)
}

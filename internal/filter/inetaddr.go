// internal/filter/inetaddr.go
package filter

import (
	"net/netip"
	"strings"
	"unicode/utf8"

	"github.com/colebrumley/supportanon/internal/mapping"
)

// InetAddressFilter replaces IPv4 and IPv6 literals (compressed and mixed
// forms included) with generated "ip_" tokens. Candidates are runs of hex
// digits, ':' and '.', validated with net/netip, so version strings and
// timestamps that merely look numeric are left alone.
type InetAddressFilter struct {
	store *mapping.Store
}

// NewInetAddressFilter creates an IP filter recording mappings in store.
// Stop words of the store (such as the product version) are never replaced.
func NewInetAddressFilter(store *mapping.Store) *InetAddressFilter {
	return &InetAddressFilter{store: store}
}

// Filter implements TextFilter.
func (f *InetAddressFilter) Filter(s string) string {
	var b strings.Builder
	last := 0
	for i := 0; i < len(s); {
		if !isAddrByte(s[i]) {
			i++
			continue
		}
		start := i
		for i < len(s) && isAddrByte(s[i]) {
			i++
		}
		if !addrBoundaryBefore(s, start) || !addrBoundaryAfter(s, i) {
			continue
		}
		ip, ok := findAddress(s[start:i])
		if !ok {
			continue
		}
		repl, mapped := f.store.GetOrCreate(ip, mapping.IP)
		if !mapped {
			continue
		}
		if b.Len() == 0 {
			b.Grow(len(s))
		}
		b.WriteString(s[last:start])
		b.WriteString(repl)
		last = start + len(ip)
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// findAddress returns the address at the start of run: the whole run, the
// run without trailing punctuation, or the host of an IPv4 "host:port".
func findAddress(run string) (string, bool) {
	if !strings.ContainsAny(run, ".:") {
		return "", false
	}
	if isAddress(run) {
		return run, true
	}
	if trimmed := strings.TrimRight(run, ".:"); trimmed != run && isAddress(trimmed) {
		return trimmed, true
	}
	if host, port, ok := strings.Cut(run, ":"); ok && strings.Contains(host, ".") && isPort(strings.TrimRight(port, ".")) && isAddress(host) {
		return host, true
	}
	return "", false
}

func isAddress(s string) bool {
	if !strings.ContainsFunc(s, isHexRune) {
		return false
	}
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Zone() == ""
}

func isPort(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHexRune(r rune) bool {
	return r < utf8.RuneSelf && isHexByte(byte(r))
}

func isHexByte(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isAddrByte(c byte) bool {
	return isHexByte(c) || c == ':' || c == '.'
}

// An address must not be glued to a word, another ':' or another '.'.
func addrBoundaryBefore(s string, start int) bool {
	if start == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:start])
	return !isWordRune(r)
}

func addrBoundaryAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[end:])
	return !isWordRune(r)
}

// internal/stream/probe.go
package stream

// ProbeSize is how many leading bytes decide between text and binary.
const ProbeSize = 20

// IsBinary reports whether the first ProbeSize bytes of head contain a
// control character other than tab, line feed or carriage return.
func IsBinary(head []byte) bool {
	if len(head) > ProbeSize {
		head = head[:ProbeSize]
	}
	for _, c := range head {
		if isControl(c) {
			return true
		}
	}
	return false
}

// isControl covers C0 and DEL. C1 bytes (0x80-0x9F) are left out: they are
// ordinary UTF-8 continuation bytes.
func isControl(c byte) bool {
	switch c {
	case '\t', '\n', '\r':
		return false
	}
	return c < 0x20 || c == 0x7f
}

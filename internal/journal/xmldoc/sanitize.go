package xmldoc

import "strings"

// forbidden lists the code points that must never appear in serialized text
// or attribute values, mirroring the original daemon's xmlForbidden table:
// C0 controls other than tab/LF/CR, plus the two Unicode non-characters.
var forbidden = map[rune]struct{}{
	0x00: {}, 0x01: {}, 0x02: {}, 0x03: {}, 0x04: {}, 0x05: {}, 0x06: {}, 0x07: {}, 0x08: {},
	0x0B: {}, 0x0C: {},
	0x0E: {}, 0x0F: {}, 0x10: {}, 0x11: {}, 0x12: {}, 0x13: {}, 0x14: {}, 0x15: {}, 0x16: {},
	0x17: {}, 0x18: {}, 0x19: {}, 0x1A: {}, 0x1B: {}, 0x1C: {}, 0x1D: {}, 0x1E: {}, 0x1F: {},
	0xFFFE: {}, 0xFFFF: {},
}

// Sanitize strips forbidden code points and replaces invalid UTF-8 byte
// sequences, matching the original daemon's unicode(..., errors='replace')
// plus str.translate(xmlTrans) pipeline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	// strings.ToValidUTF8 replaces each run of consecutive ill-formed bytes
	// with a single U+FFFD (Python's errors='replace' can emit one per bad
	// byte, so a multi-byte bad run comes out shorter here).
	s = strings.ToValidUTF8(s, "�")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if _, bad := forbidden[r]; bad {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

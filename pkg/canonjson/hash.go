package canonjson

import "crypto/sha256"

// Hash computes the content hash described in spec §4.2: stringify v
// canonically, reinterpret the result as UTF-16 code units, truncate each
// code unit to its low byte, and SHA-256 the result. This reproduces a
// historical quirk of the JavaScript reference implementation (which hashed
// the signing string by reading it as a byte buffer of truncated UTF-16
// units) and is required for wire compatibility, not a choice this library
// is free to "fix".
func Hash(v Value) ([32]byte, error) {
	s, err := Stringify(v)
	if err != nil {
		return [32]byte{}, err
	}
	return HashString(s), nil
}

// HashString applies the UTF-16-truncation hash directly to an
// already-canonicalized string, for callers that cached the stringified form.
func HashString(s string) [32]byte {
	units := utf16Units(s)
	buf := make([]byte, len(units))
	for i, u := range units {
		buf[i] = byte(u & 0xff)
	}
	return sha256.Sum256(buf)
}

// utf16Units re-encodes a Go (UTF-8) string into UTF-16 code units, matching
// JavaScript's in-memory string representation.
func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r <= 0xFFFF {
			units = append(units, uint16(r))
			continue
		}
		// Encode as a UTF-16 surrogate pair.
		r -= 0x10000
		hi := uint16(0xD800 + (r >> 10))
		lo := uint16(0xDC00 + (r & 0x3FF))
		units = append(units, hi, lo)
	}
	return units
}

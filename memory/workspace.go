package memory

import (
	"strconv"
	"unicode/utf16"
)

// Mode is the process-wide policy for combining workspace and global reads.
// It is read at operation entry and never cached across operations, so
// toggles take effect immediately.
type Mode string

// Workspace modes.
const (
	ModeIsolated Mode = "isolated"
	ModeHybrid   Mode = "hybrid"
	ModeGlobal   Mode = "global"
)

// ValidMode reports whether m is a recognized workspace mode.
func ValidMode(m Mode) bool {
	return m == ModeIsolated || m == ModeHybrid || m == ModeGlobal
}

// HybridGlobalBias is the similarity multiplier applied to global results in
// hybrid-mode search, biasing ranking toward local context.
const HybridGlobalBias = 0.9

// WorkspaceID derives the stable workspace identifier from an absolute path:
// a 32-bit shift-add hash rendered in base 36. The hash form (h*31 + c over
// UTF-16 code units, truncated to 32 bits, absolute value) is shared with
// other runtimes so ids are reproducible across processes and languages.
func WorkspaceID(path string) string {
	return Hash32Base36(path)
}

// Hash32Base36 is the shared 32-bit string hash in base-36 form.
func Hash32Base36(s string) string {
	v := int64(hash32(s))
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

// hash32 computes the h = h*31 + c hash over the UTF-16 code units of s,
// truncated to 32 bits. Non-BMP characters contribute their surrogate pair,
// matching the hash of runtimes whose strings are UTF-16.
func hash32(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	return h
}

// Hash32Abs returns the absolute value of the 32-bit string hash, widened to
// int64 so the minimum 32-bit value does not overflow.
func Hash32Abs(s string) int64 {
	v := int64(hash32(s))
	if v < 0 {
		v = -v
	}
	return v
}

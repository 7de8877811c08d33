package pool

import (
	"strconv"
	"unsafe"
)

// Zero-allocation helper functions for common operations.

// BytesToString converts a byte slice to a string without allocation.
// WARNING: The returned string shares memory with the byte slice.
// Do not modify the byte slice after calling this function if you
// need the string to remain valid.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// ParseFloat64 parses a float64 from a byte slice without allocation.
func ParseFloat64(b []byte) (float64, error) {
	return strconv.ParseFloat(BytesToString(b), 64)
}

// TrimSpaces trims leading and trailing whitespace in-place.
// Returns a slice of the same underlying array.
func TrimSpaces(b []byte) []byte {
	start := 0
	end := len(b)

	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}

	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// IsBlank reports whether b holds only whitespace.
func IsBlank(b []byte) bool {
	return len(TrimSpaces(b)) == 0
}

// Fields splits b around runs of whitespace and appends the fields to dst.
// The fields share memory with b.
func Fields(dst [][]byte, b []byte) [][]byte {
	i := 0
	for i < len(b) {
		for i < len(b) && isSpace(b[i]) {
			i++
		}
		start := i
		for i < len(b) && !isSpace(b[i]) {
			i++
		}
		if start < i {
			dst = append(dst, b[start:i])
		}
	}
	return dst
}

// StringFields is Fields with copied string results.
func StringFields(b []byte) []string {
	fields := Fields(make([][]byte, 0, DefaultFieldCap), b)
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

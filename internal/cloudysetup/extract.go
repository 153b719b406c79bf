package cloudysetup

import (
	"encoding/json"
	"strings"
)

// ExtractObject returns the first balanced {...} span in s that is valid
// JSON. Braces inside JSON string literals (including escaped quotes) do not
// count.
func ExtractObject(s string) (string, bool) {
	return extractBalanced(s, '{', '}')
}

// ExtractArray returns the first balanced [...] span in s that is valid JSON.
func ExtractArray(s string) (string, bool) {
	return extractBalanced(s, '[', ']')
}

// extractBalanced tries each occurrence of open in turn and returns the
// first one that closes and parses. Bracketed prose such as "[your bucket]"
// is skipped.
func extractBalanced(s string, open, closing byte) (string, bool) {
	offset := 0
	for {
		i := strings.IndexByte(s[offset:], open)
		if i < 0 {
			return "", false
		}
		start := offset + i
		if end, ok := matchClose(s, start, open, closing); ok && json.Valid([]byte(s[start:end+1])) {
			return s[start : end+1], true
		}
		offset = start + 1
	}
}

// matchClose scans from s[start] (which must be open) and returns the index
// of the matching closing delimiter.
func matchClose(s string, start int, open, closing byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

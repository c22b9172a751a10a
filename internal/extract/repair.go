package extract

import "strings"

// Repair rewrites the common ways models break JSON syntax: // and /* */
// comments, trailing commas before '}' or ']', and numbers written as ".5".
// String contents are never touched.
func Repair(s string) string {
	s = stripComments(s)
	s = stripTrailingCommas(s)
	return normalizeLeadingDecimals(s)
}

// walk calls fn for every byte outside string literals and copies string
// literals through unchanged. fn returns how many bytes it consumed and what
// to write in their place.
func walk(s string, fn func(s string, i int) (consumed int, out string)) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' && inString {
			b.WriteByte(c)
			escaped = true
			continue
		}
		if c == '"' {
			b.WriteByte(c)
			inString = !inString
			continue
		}
		if inString {
			b.WriteByte(c)
			continue
		}

		n, out := fn(s, i)
		b.WriteString(out)
		i += n - 1
	}
	return b.String()
}

func stripComments(s string) string {
	return walk(s, func(s string, i int) (int, string) {
		if s[i] != '/' || i+1 >= len(s) {
			return 1, s[i : i+1]
		}
		switch s[i+1] {
		case '/':
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				return len(s) - i, ""
			}
			return end, ""
		case '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return len(s) - i, ""
			}
			return end + 4, ""
		}
		return 1, s[i : i+1]
	})
}

func stripTrailingCommas(s string) string {
	return walk(s, func(s string, i int) (int, string) {
		if s[i] == ',' {
			if next := nextNonSpace(s, i+1); next == '}' || next == ']' {
				return 1, ""
			}
		}
		return 1, s[i : i+1]
	})
}

func normalizeLeadingDecimals(s string) string {
	return walk(s, func(s string, i int) (int, string) {
		if s[i] == '.' && i+1 < len(s) && isDigit(s[i+1]) && isNumericBoundary(prevNonSpace(s, i-1)) {
			return 1, "0."
		}
		return 1, s[i : i+1]
	})
}

func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		if !isSpace(s[i]) {
			return s[i]
		}
	}
	return 0
}

func prevNonSpace(s string, i int) byte {
	for ; i >= 0; i-- {
		if !isSpace(s[i]) {
			return s[i]
		}
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

func isNumericBoundary(c byte) bool {
	switch c {
	case 0, ':', ',', '[', '{', '-':
		return true
	default:
		return false
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

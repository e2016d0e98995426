package terminal

import (
	"strings"
	"unicode"
)

// NormalizeValue turns a value read from dconf into text that can be written
// back verbatim. One pair of surrounding quotes is stripped; lists, plain
// integers and booleans stay bare; anything else becomes a single-quoted
// string. An empty input means the key was absent.
func NormalizeValue(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	v := raw
	if len(v) >= 2 {
		ends := v[:1] + v[len(v)-1:]
		if ends == "''" || ends == `""` {
			v = v[1 : len(v)-1]
		}
	}

	if strings.HasPrefix(v, "[") || isDigits(v) || isBool(v) {
		return v, true
	}
	return "'" + v + "'", true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isBool(s string) bool {
	return strings.EqualFold(s, "true") || strings.EqualFold(s, "false")
}

// FormatProfileList renders names as a GVariant string array: ['a', 'b'].
func FormatProfileList(names []string) string {
	if len(names) == 0 {
		return "@as []"
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// titleWord extracts the first word of a stored title, without quotes.
func titleWord(raw string) string {
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		raw = raw[1 : len(raw)-1]
	}
	word, _, _ := strings.Cut(raw, " ")
	return word
}

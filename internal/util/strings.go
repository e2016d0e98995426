// Package util provides common utility functions used across the codebase.
package util

import (
	"regexp"
	"sort"
	"strings"
)

// JoinOrDefault joins strings with ", " or returns the default value for empty slices.
func JoinOrDefault(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}

// SortedCopy returns a sorted copy of items, leaving the input untouched.
func SortedCopy(items []string) []string {
	out := append([]string(nil), items...)
	sort.Strings(out)
	return out
}

// Pluralize returns singular if count is 1, otherwise plural.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

var blankRun = regexp.MustCompile(`\n{2,}`)

// CollapseBlankLines replaces every run of two or more newlines with exactly two.
func CollapseBlankLines(s string) string {
	return blankRun.ReplaceAllString(s, "\n\n")
}

package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/okssh/okssh/internal/util"
)

// StateReport is the before/after summary each reconciler prints.
type StateReport struct {
	Title    string
	Added    []string
	NotAdded []string
	All      []string
	// Skipped is printed only when ShowSkipped is set.
	Skipped     []string
	ShowSkipped bool
}

// FormatNames sorts names and joins them with commas. An empty list renders
// as [''] so the line is never blank.
func FormatNames(names []string) string {
	return util.JoinOrDefault(util.SortedCopy(names), "['']")
}

// Render writes the report to w, preceded by a blank line.
func (r StateReport) Render(w io.Writer) {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(HeadingStyle().Render(r.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Desired added     = %s\n", InfoStyle().Render(FormatNames(r.Added)))
	fmt.Fprintf(&b, "Desired NOT added = %s\n", WarningStyle().Render(FormatNames(r.NotAdded)))
	fmt.Fprintf(&b, "All profiles      = %s\n", FormatNames(r.All))
	if r.ShowSkipped {
		fmt.Fprintf(&b, "I don't want to add/edit = %s\n", MutedStyle().Render(FormatNames(r.Skipped)))
	}
	fmt.Fprint(w, b.String())
}

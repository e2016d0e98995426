package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Accent palette used by the spinner gradient and headings.
const (
	ColorNeonPink   lipgloss.Color = "#FF2E97"
	ColorNeonPurple lipgloss.Color = "#B026FF"
	ColorNeonCyan   lipgloss.Color = "#00F0FF"
	ColorNeonGreen  lipgloss.Color = "#39FF14"
)

// Semantic colors for status indication (ANSI codes for broad support).
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
)

// GradientColors is the spinner cycle: pink, purple, cyan, green.
var GradientColors = []lipgloss.Color{
	ColorNeonPink,
	ColorNeonPurple,
	ColorNeonCyan,
	ColorNeonGreen,
}

// SuccessStyle renders positive outcomes.
func SuccessStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorSuccess) }

// ErrorStyle renders failures.
func ErrorStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorError) }

// WarningStyle renders warnings and skipped items.
func WarningStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorWarning) }

// InfoStyle renders paths and names.
func InfoStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorInfo) }

// MutedStyle renders secondary text.
func MutedStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorMuted) }

// HeadingStyle renders section titles such as the state reports.
func HeadingStyle() lipgloss.Style { return lipgloss.NewStyle().Bold(true).Foreground(ColorSecondary) }

// SetColorEnabled switches lipgloss between auto-detected colors and plain
// ASCII output.
func SetColorEnabled(enabled bool) {
	if enabled {
		lipgloss.SetColorProfile(termenv.EnvColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ColorEnabled reports whether styled output is currently produced.
func ColorEnabled() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

// ShouldUseColor decides the color mode for w: never with --no-color or
// NO_COLOR, and only when w is a terminal.
func ShouldUseColor(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return IsTerminal(w)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// PrintWarning writes a warning line to w.
func PrintWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, WarningStyle().Render(SymbolWarning+" "+fmt.Sprintf(format, args...)))
}

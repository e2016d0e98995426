package ui

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestGradientColors(t *testing.T) {
	assert.Len(t, GradientColors, 4)

	for i, color := range GradientColors {
		colorStr := string(color)
		assert.NotEmpty(t, colorStr, "gradient color %d should not be empty", i)
		assert.True(t, colorStr[0] == '#', "gradient color should start with #")
		assert.Len(t, colorStr, 7)
	}
}

func TestStylesAreFunctional(t *testing.T) {
	styles := []struct {
		name  string
		style lipgloss.Style
	}{
		{"Success", SuccessStyle()},
		{"Error", ErrorStyle()},
		{"Warning", WarningStyle()},
		{"Info", InfoStyle()},
		{"Muted", MutedStyle()},
		{"Heading", HeadingStyle()},
	}

	for _, tt := range styles {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.style.Render("text"), "text")
		})
	}
}

func TestSetColorEnabled(t *testing.T) {
	t.Cleanup(func() { SetColorEnabled(false) })

	SetColorEnabled(false)
	assert.False(t, ColorEnabled())
	assert.Equal(t, "plain", SuccessStyle().Render("plain"), "ASCII profile strips styling")
}

func TestShouldUseColor(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, ShouldUseColor(&buf, false), "buffers are not terminals")
	assert.False(t, ShouldUseColor(&buf, true))

	t.Setenv("NO_COLOR", "1")
	assert.False(t, ShouldUseColor(&buf, false))
}

func TestPrintWarning(t *testing.T) {
	SetColorEnabled(false)
	var buf bytes.Buffer

	PrintWarning(&buf, "skipping %s", "db1")

	assert.Equal(t, SymbolWarning+" skipping db1\n", buf.String())
}

package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerState represents the current state of a spinner.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerInProgress
	SpinnerSuccess
	SpinnerFailed
	SpinnerSkipped
)

// Spinner animation frames
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Spinner shows a status line for one step, such as a key push. When
// animation is off (pipes, tests) only the final line is written.
type Spinner struct {
	mu           sync.Mutex
	label        string
	state        SpinnerState
	frame        int
	startTime    time.Time
	stopChan     chan struct{}
	doneChan     chan struct{}
	out          io.Writer
	animate      bool
	running      bool
	lastRendered string
}

// NewSpinner creates a spinner writing to out. animate enables the live
// frame cycle; pass IsTerminal(out).
func NewSpinner(out io.Writer, label string, animate bool) *Spinner {
	return &Spinner{
		label:   label,
		state:   SpinnerPending,
		out:     out,
		animate: animate,
	}
}

// Start marks the step as in progress and begins the animation, if enabled.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running || s.state != SpinnerPending {
		s.mu.Unlock()
		return
	}
	s.state = SpinnerInProgress
	s.startTime = time.Now()
	if !s.animate {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	s.render()
	go s.loop()
}

// Stop halts the animation without changing state.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	<-s.doneChan
}

// Success stops the spinner and prints the label with the OK marker.
func (s *Spinner) Success() { s.finish(SpinnerSuccess) }

// Fail stops the spinner and prints the label with the FAILED marker.
func (s *Spinner) Fail() { s.finish(SpinnerFailed) }

// Skip stops the spinner and prints the label as skipped.
func (s *Spinner) Skip() { s.finish(SpinnerSkipped) }

func (s *Spinner) finish(state SpinnerState) {
	s.Stop()
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.renderFinal()
}

// State returns the current spinner state.
func (s *Spinner) State() SpinnerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Label returns the spinner's label.
func (s *Spinner) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

func (s *Spinner) loop() {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(s.doneChan)

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.mu.Unlock()
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	colorIndex := (s.frame / 2) % len(GradientColors)
	style := lipgloss.NewStyle().Foreground(GradientColors[colorIndex])
	line := fmt.Sprintf("%s %s ...", style.Render(spinnerFrames[s.frame]), s.label)

	s.clearLine()
	fmt.Fprint(s.out, line)
	s.lastRendered = line
}

func (s *Spinner) renderFinal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var symbol, marker string
	var style lipgloss.Style

	switch s.state {
	case SpinnerSuccess:
		symbol, marker, style = SymbolSuccess, MarkerOK, SuccessStyle()
	case SpinnerFailed:
		symbol, marker, style = SymbolFail, MarkerFailed, ErrorStyle()
	case SpinnerSkipped:
		symbol, marker, style = SymbolSkipped, "[SKIPPED]", WarningStyle()
	default:
		symbol, marker, style = SymbolPending, "", MutedStyle()
	}

	s.clearLine()
	line := fmt.Sprintf("%s %s %s", style.Render(symbol), s.label, style.Render(marker))
	if !s.startTime.IsZero() {
		line += " " + MutedStyle().Render(formatDuration(time.Since(s.startTime)))
	}
	fmt.Fprintln(s.out, line)
	s.lastRendered = ""
}

func (s *Spinner) clearLine() {
	if s.lastRendered == "" {
		return
	}
	clearLen := len([]rune(s.lastRendered))
	fmt.Fprint(s.out, "\r"+strings.Repeat(" ", clearLen)+"\r")
}

// formatDuration formats a duration for display (e.g., "0.3s", "1.2s").
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}

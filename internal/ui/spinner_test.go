package ui

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer guards a buffer shared with the animation goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewSpinner(t *testing.T) {
	s := NewSpinner(io.Discard, "Sending key to db1", false)
	assert.Equal(t, "Sending key to db1", s.Label())
	assert.Equal(t, SpinnerPending, s.State())
}

func TestSpinner_SuccessWithoutAnimation(t *testing.T) {
	SetColorEnabled(false)
	var buf bytes.Buffer

	s := NewSpinner(&buf, "Sending key to db1", false)
	s.Start()
	assert.Equal(t, SpinnerInProgress, s.State())
	assert.Empty(t, buf.String(), "nothing is drawn before the outcome")

	s.Success()
	assert.Equal(t, SpinnerSuccess, s.State())
	assert.True(t, strings.HasPrefix(buf.String(), SymbolSuccess+" Sending key to db1 [__OK__]"))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestSpinner_Fail(t *testing.T) {
	SetColorEnabled(false)
	var buf bytes.Buffer

	s := NewSpinner(&buf, "Sending key to web", false)
	s.Start()
	s.Fail()

	assert.Equal(t, SpinnerFailed, s.State())
	assert.Contains(t, buf.String(), "Sending key to web [FAILED]")
}

func TestSpinner_Skip(t *testing.T) {
	SetColorEnabled(false)
	var buf bytes.Buffer

	NewSpinner(&buf, "step", false).Skip()
	assert.Contains(t, buf.String(), SymbolSkipped+" step [SKIPPED]")
}

func TestSpinner_Animated(t *testing.T) {
	SetColorEnabled(false)
	buf := &syncBuffer{}

	s := NewSpinner(buf, "Sending key to db1", true)
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Success()

	out := buf.String()
	assert.Contains(t, out, "Sending key to db1 ...")
	assert.Contains(t, out, "\r")
	assert.Contains(t, out, "Sending key to db1 [__OK__]")
}

func TestSpinner_StopIsIdempotent(t *testing.T) {
	s := NewSpinner(io.Discard, "x", true)
	s.Start()
	s.Stop()
	s.Stop()
	assert.Equal(t, SpinnerInProgress, s.State())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.05s", formatDuration(50*time.Millisecond))
	assert.Equal(t, "1.2s", formatDuration(1200*time.Millisecond))
}

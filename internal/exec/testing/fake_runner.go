// Package testing provides test doubles for the exec package.
package testing

import (
	"context"
	"strings"
	"sync"

	"github.com/okssh/okssh/internal/exec"
)

type handler struct {
	prefix string
	fn     func(exec.Command) exec.Result
}

// FakeRunner replays scripted results instead of spawning processes.
// Handlers are matched against the rendered command line by prefix; the
// most recently registered match wins.
type FakeRunner struct {
	mu       sync.Mutex
	handlers []handler

	// Default is returned when no handler matches.
	Default exec.Result

	// Calls records every command in order.
	Calls []exec.Command
}

// NewFakeRunner creates a runner whose unmatched commands succeed silently.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// On registers a fixed result for commands starting with prefix.
func (f *FakeRunner) On(prefix string, result exec.Result) *FakeRunner {
	return f.OnFunc(prefix, func(exec.Command) exec.Result { return result })
}

// OnFunc registers a dynamic result for commands starting with prefix.
func (f *FakeRunner) OnFunc(prefix string, fn func(exec.Command) exec.Result) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler{prefix: prefix, fn: fn})
	return f
}

// Run implements exec.Runner.
func (f *FakeRunner) Run(_ context.Context, cmd exec.Command) exec.Result {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	line := cmd.String()
	var match func(exec.Command) exec.Result
	for i := len(f.handlers) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.handlers[i].prefix) {
			match = f.handlers[i].fn
			break
		}
	}
	def := f.Default
	f.mu.Unlock()

	if match != nil {
		return match(cmd)
	}
	return def
}

// CommandLines returns every recorded command rendered as a string.
func (f *FakeRunner) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		lines[i] = c.String()
	}
	return lines
}

// CallsWithPrefix returns the recorded commands whose line starts with prefix.
func (f *FakeRunner) CallsWithPrefix(prefix string) []exec.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []exec.Command
	for _, c := range f.Calls {
		if strings.HasPrefix(c.String(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

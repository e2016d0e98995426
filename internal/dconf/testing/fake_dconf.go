// Package testing provides an in-memory dconf for tests.
package testing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okssh/okssh/internal/exec"
)

// FakeDconf is an exec.Runner that answers dconf commands from an in-memory
// key tree. Commands for other binaries succeed with no output.
type FakeDconf struct {
	mu     sync.Mutex
	values map[string]string

	// FailWrite makes writes to these paths exit 1.
	FailWrite map[string]bool
	// HangWrite makes writes to these paths time out.
	HangWrite map[string]bool
	// FailRead makes reads of these paths exit 1.
	FailRead map[string]bool
	// FailDump makes every dump exit 1.
	FailDump bool

	// Calls records every command in order.
	Calls []exec.Command
}

// NewFakeDconf creates an empty tree.
func NewFakeDconf() *FakeDconf {
	return &FakeDconf{
		values:    make(map[string]string),
		FailWrite: make(map[string]bool),
		HangWrite: make(map[string]bool),
		FailRead:  make(map[string]bool),
	}
}

// Set stores a value directly, bypassing Calls.
func (f *FakeDconf) Set(path, value string) *FakeDconf {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[path] = value
	return f
}

// Get returns a stored value.
func (f *FakeDconf) Get(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[path]
	return v, ok
}

// AddProfile creates dir/name/ with the given keys.
func (f *FakeDconf) AddProfile(dir, name string, keys map[string]string) *FakeDconf {
	for k, v := range keys {
		f.Set(dir+name+"/"+k, v)
	}
	if len(keys) == 0 {
		f.Set(dir+name+"/visible-name", "'"+name+"'")
	}
	return f
}

// Keys returns every stored path under prefix, sorted.
func (f *FakeDconf) Keys(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.values {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Subcommands returns the dconf subcommand of every recorded call.
func (f *FakeDconf) Subcommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if c.Name == "dconf" && len(c.Args) > 0 {
			out = append(out, c.Args[0])
		}
	}
	return out
}

// Run implements exec.Runner.
func (f *FakeDconf) Run(_ context.Context, cmd exec.Command) exec.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cmd)

	if cmd.Name != "dconf" || len(cmd.Args) == 0 {
		return exec.Result{}
	}

	args := cmd.Args[1:]
	switch cmd.Args[0] {
	case "read":
		return f.read(args)
	case "list":
		return f.list(args)
	case "write":
		return f.write(args)
	case "reset":
		return f.reset(args)
	case "dump":
		return f.dump(args)
	}
	return fail(fmt.Sprintf("error: unknown command %s\n", cmd.Args[0]))
}

func (f *FakeDconf) read(args []string) exec.Result {
	if len(args) != 1 {
		return fail("usage: dconf read KEY\n")
	}
	if f.FailRead[args[0]] {
		return fail("error: read failed\n")
	}
	v, ok := f.values[args[0]]
	if !ok {
		return exec.Result{}
	}
	return exec.Result{Stdout: v + "\n"}
}

func (f *FakeDconf) list(args []string) exec.Result {
	if len(args) != 1 || !strings.HasSuffix(args[0], "/") {
		return fail("error: dconf list requires a directory\n")
	}
	dir := args[0]

	seen := make(map[string]bool)
	var entries []string
	for k := range f.values {
		if !strings.HasPrefix(k, dir) {
			continue
		}
		rest := k[len(dir):]
		entry := rest
		if i := strings.Index(rest, "/"); i >= 0 {
			entry = rest[:i+1]
		}
		if !seen[entry] {
			seen[entry] = true
			entries = append(entries, entry)
		}
	}
	sort.Strings(entries)

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e + "\n")
	}
	return exec.Result{Stdout: b.String()}
}

func (f *FakeDconf) write(args []string) exec.Result {
	if len(args) != 2 {
		return fail("usage: dconf write KEY VALUE\n")
	}
	path, value := args[0], args[1]
	if f.HangWrite[path] {
		return exec.Result{ExitCode: -1, TimedOut: true, Err: fmt.Errorf("Command 'dconf' timed out")}
	}
	if f.FailWrite[path] {
		return fail("error: 0-1:unknown keyword\n")
	}
	f.values[path] = value
	return exec.Result{}
}

func (f *FakeDconf) reset(args []string) exec.Result {
	if len(args) != 2 || args[0] != "-f" {
		return fail("usage: dconf reset -f DIR\n")
	}
	for k := range f.values {
		if strings.HasPrefix(k, args[1]) {
			delete(f.values, k)
		}
	}
	return exec.Result{}
}

func (f *FakeDconf) dump(args []string) exec.Result {
	if f.FailDump {
		return fail("error: dump failed\n")
	}
	if len(args) != 1 {
		return fail("usage: dconf dump DIR\n")
	}
	dir := args[0]

	groups := make(map[string][]string)
	for k, v := range f.values {
		if !strings.HasPrefix(k, dir) {
			continue
		}
		rest := k[len(dir):]
		group, key := "/", rest
		if i := strings.LastIndex(rest, "/"); i >= 0 {
			group, key = rest[:i], rest[i+1:]
		}
		groups[group] = append(groups[group], key+"="+v)
	}

	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, g := range names {
		lines := groups[g]
		sort.Strings(lines)
		fmt.Fprintf(&b, "[%s]\n%s\n\n", g, strings.Join(lines, "\n"))
	}
	return exec.Result{Stdout: b.String()}
}

func fail(stderr string) exec.Result {
	return exec.Result{ExitCode: 1, Stderr: stderr}
}

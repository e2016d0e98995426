package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/okssh/okssh/internal/errors"
)

// Command describes a single child process invocation.
type Command struct {
	Name    string
	Args    []string
	Stdin   string
	Timeout time.Duration // zero means no timeout
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the captured outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// TimedOut is set when the timeout elapsed before the process exited.
	TimedOut bool
	// Err is set when the process could not be started, was killed by a
	// timeout, or the context was cancelled. A plain non-zero exit leaves it nil.
	Err error
}

// OK reports whether the process ran and exited with status 0.
func (r Result) OK() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// Runner executes commands. Every call spawns exactly one child process;
// implementations never retry.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// OSRunner runs commands with os/exec.
type OSRunner struct{}

// NewOSRunner returns a Runner backed by real processes.
func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

// Run executes cmd, capturing stdout and stderr separately.
func (r *OSRunner) Run(ctx context.Context, cmd Command) Result {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	command := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	// Helpers like sshpass fork grandchildren that can hold the pipes open.
	command.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if cmd.Stdin != "" {
		command.Stdin = strings.NewReader(cmd.Stdin)
	}

	runErr := command.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		res.Err = errors.WrapWithCode(ctx.Err(), errors.ErrExec,
			fmt.Sprintf("Command '%s' timed out after %s", cmd.Name, cmd.Timeout),
			"")
		return res
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if stderrors.As(runErr, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res
		}
		res.ExitCode = -1
		res.Err = errors.WrapWithCode(runErr, errors.ErrExec,
			fmt.Sprintf("Couldn't run '%s'", cmd.Name),
			"Make sure the command exists and is executable.")
	}

	return res
}

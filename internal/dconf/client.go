// Package dconf wraps the dconf command-line tool. Every call spawns exactly
// one dconf process through an exec.Runner; nothing is cached between calls.
package dconf

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okssh/okssh/internal/backup"
	"github.com/okssh/okssh/internal/errors"
	"github.com/okssh/okssh/internal/exec"
	"github.com/okssh/okssh/internal/logger"
	"github.com/okssh/okssh/internal/prompt"
	"github.com/okssh/okssh/internal/util"
)

// Binary is the dconf executable name.
const Binary = "dconf"

// DefaultWriteTimeout bounds a single dconf write.
const DefaultWriteTimeout = 3 * time.Second

// WriteOutcome classifies the result of a write.
type WriteOutcome int

const (
	// WriteOK means dconf exited 0.
	WriteOK WriteOutcome = iota
	// WriteFailed means dconf exited non-zero.
	WriteFailed
	// WriteAmbiguous means dconf timed out or never started, so the value
	// may or may not have been stored.
	WriteAmbiguous
)

func (o WriteOutcome) String() string {
	switch o {
	case WriteOK:
		return "ok"
	case WriteFailed:
		return "failed"
	case WriteAmbiguous:
		return "ambiguous"
	}
	return fmt.Sprintf("WriteOutcome(%d)", int(o))
}

// Client runs dconf subcommands.
type Client struct {
	runner   exec.Runner
	store    *backup.Store
	prompter prompt.Prompter
	log      logger.Logger

	// WriteTimeout overrides DefaultWriteTimeout when positive.
	WriteTimeout time.Duration
}

// NewClient creates a Client. store receives dump backups and prompter is
// consulted when a dump fails.
func NewClient(runner exec.Runner, store *backup.Store, prompter prompt.Prompter, log logger.Logger) *Client {
	if log == nil {
		log = logger.Noop()
	}
	return &Client{
		runner:   runner,
		store:    store,
		prompter: prompter,
		log:      log,
	}
}

func (c *Client) run(ctx context.Context, args ...string) exec.Result {
	cmd := exec.Command{Name: Binary, Args: args}
	c.log.Debug("%s", cmd)
	return c.runner.Run(ctx, cmd)
}

// Read returns the raw value stored at path with newlines removed. Quoting is
// left intact; see terminal.NormalizeValue. A missing key, an empty value and
// a failed command all report absent.
func (c *Client) Read(ctx context.Context, path string) (string, bool) {
	res := c.run(ctx, "read", path)
	if !res.OK() {
		c.log.Debug("dconf read %s failed (exit %d)", path, res.ExitCode)
		return "", false
	}
	value := strings.ReplaceAll(res.Stdout, "\n", "")
	if value == "" {
		return "", false
	}
	return value, true
}

// List returns the sub-directory names directly under dir, in dconf order.
// Plain keys are ignored.
func (c *Client) List(ctx context.Context, dir string) ([]string, error) {
	res := c.run(ctx, "list", dir)
	if !res.OK() {
		return nil, toolError(res, fmt.Sprintf("Can't list dconf directory %s", dir))
	}

	var names []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, "/") {
			continue
		}
		if name := strings.TrimSuffix(line, "/"); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Exists reports whether name is a sub-directory of dir.
func (c *Client) Exists(ctx context.Context, dir, name string) (bool, error) {
	names, err := c.List(ctx, dir)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Write stores value at path. The returned text is the equivalent shell
// command, suitable for replaying by hand.
func (c *Client) Write(ctx context.Context, path, value string) (WriteOutcome, string) {
	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}

	cmdText := fmt.Sprintf("dconf write %s \"%s\"", path, value)
	cmd := exec.Command{Name: Binary, Args: []string{"write", path, value}, Timeout: timeout}
	c.log.Debug("%s", cmdText)
	res := c.runner.Run(ctx, cmd)

	switch {
	case res.TimedOut || res.Err != nil:
		c.log.Warn("Err: %s (%v)", cmdText, res.Err)
		return WriteAmbiguous, cmdText
	case res.ExitCode != 0:
		c.log.Error("Err: %s", cmdText)
		return WriteFailed, cmdText
	}
	return WriteOK, cmdText
}

// Reset recursively removes every key under dir.
func (c *Client) Reset(ctx context.Context, dir string) error {
	res := c.run(ctx, "reset", "-f", dir)
	if !res.OK() {
		return toolError(res, fmt.Sprintf("Can't reset dconf directory %s", dir))
	}
	return nil
}

// Dump returns the keyfile dump of dir.
func (c *Client) Dump(ctx context.Context, dir string) ([]byte, error) {
	res := c.run(ctx, "dump", dir)
	if !res.OK() {
		return nil, toolError(res, fmt.Sprintf("Can't dump dconf directory %s", dir))
	}
	return []byte(res.Stdout), nil
}

// DumpFileName is the backup file name for dir: leading slash dropped,
// remaining slashes turned into dots, "ini" appended.
func DumpFileName(dir string) string {
	return strings.ReplaceAll(strings.TrimPrefix(dir, "/"), "/", ".") + "ini"
}

// DumpBackup saves a dump of dir into the backup store and returns the shell
// commands that restore it. When dconf cannot dump, the operator decides
// whether to go on without a backup; going on yields an empty command.
func (c *Client) DumpBackup(ctx context.Context, dir string) (string, error) {
	file := c.store.Path(DumpFileName(dir))

	data, err := c.Dump(ctx, dir)
	if err != nil {
		c.log.Error("%v", err)
		ok, perr := c.prompter.Confirm(
			fmt.Sprintf("Command 'dconf dump %s > %s' failed! Do you want to continue anyway?", dir, file),
			false)
		if perr != nil {
			return "", perr
		}
		if !ok {
			return "", errors.WrapWithCode(errors.ErrCancelled, errors.ErrDconf,
				fmt.Sprintf("dconf dump of %s failed", dir),
				"Fix dconf or rerun with --not-backup.")
		}
		return "", nil
	}

	saved, err := c.store.Save(file, data)
	if err != nil {
		return "", err
	}
	c.log.Debug("dumped %s to %s", dir, saved)

	return fmt.Sprintf("dconf reset -f %s\ndconf load %s < %s", dir, dir, util.ShellQuote(saved)), nil
}

func toolError(res exec.Result, message string) error {
	if res.Err != nil {
		return errors.WrapWithCode(res.Err, errors.ErrDconf, message, "Is dconf installed? Run 'okssh doctor'.")
	}
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = fmt.Sprintf("exit status %d", res.ExitCode)
	}
	return errors.New(errors.ErrDconf, message+": "+detail, "")
}

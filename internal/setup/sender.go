package setup

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okssh/okssh/internal/config"
	"github.com/okssh/okssh/internal/errors"
	"github.com/okssh/okssh/internal/exec"
	"github.com/okssh/okssh/internal/logger"
)

// DefaultTimeout bounds a single key push.
const DefaultTimeout = 60 * time.Second

// ExpectScriptName is the file the embedded expect script is written to.
const ExpectScriptName = "expect.exp"

//go:embed expect.exp
var expectScript []byte

// SendResult is the outcome of pushing a key to one server.
type SendResult struct {
	Failed bool
	Stdout string
	Stderr string
	// Fingerprint is the SHA256 fingerprint of the pushed key, when it parsed.
	Fingerprint string
	// Hint suggests a fix for well-known failures.
	Hint string
}

// KeySender pushes public keys with ssh-copy-id.
type KeySender struct {
	runner    exec.Runner
	scriptDir string
	log       logger.Logger
}

// NewKeySender creates a KeySender. scriptDir receives the expect script when
// the expect method is used.
func NewKeySender(runner exec.Runner, scriptDir string, log logger.Logger) *KeySender {
	if log == nil {
		log = logger.Noop()
	}
	return &KeySender{runner: runner, scriptDir: scriptDir, log: log}
}

// Send pushes s.Keys.PublicKey to s using method. A non-positive timeout
// means DefaultTimeout. Failures are reported in the result, never retried.
func (k *KeySender) Send(ctx context.Context, s config.Server, method Method, timeout time.Duration) SendResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	fingerprint, err := ValidatePublicKey(s.Keys.PublicKey)
	if err != nil {
		return SendResult{Failed: true, Stderr: err.Error()}
	}

	script := ""
	if method == MethodExpect {
		script, err = k.materializeScript()
		if err != nil {
			return SendResult{Failed: true, Stderr: err.Error(), Fingerprint: fingerprint}
		}
	}

	cmd, err := BuildCommand(s, method, script)
	if err != nil {
		return SendResult{Failed: true, Stderr: err.Error(), Fingerprint: fingerprint}
	}
	cmd.Timeout = timeout

	k.log.Debug("%s", Redact(cmd.String(), s.Auth.Password))
	res := k.runner.Run(ctx, cmd)

	out := SendResult{
		Stdout:      res.Stdout,
		Stderr:      res.Stderr,
		Fingerprint: fingerprint,
	}
	switch {
	case res.TimedOut || res.Err != nil:
		out.Failed = true
		if res.Err != nil {
			out.Stderr += res.Err.Error() + "\n"
		}
	case res.ExitCode != 0:
		out.Failed = true
	}
	if out.Failed {
		out.Hint = failureHint(out.Stdout + out.Stderr)
	}
	return out
}

// BuildCommand renders the helper invocation for s. script is the expect
// script path and is ignored for sshpass.
func BuildCommand(s config.Server, method Method, script string) (exec.Command, error) {
	copyArgs := []string{"ssh-copy-id", "-o", "StrictHostKeyChecking no", "-i", s.Keys.PublicKey}
	if method == MethodExpect {
		copyArgs = append(copyArgs, "-f")
	}
	if s.Port != "" && s.Port != config.DefaultPort {
		copyArgs = append(copyArgs, "-p", s.Port)
	}
	copyArgs = append(copyArgs, s.Target())

	switch method {
	case MethodSSHPass:
		return exec.Command{
			Name: string(MethodSSHPass),
			Args: append([]string{"-p", s.Auth.Password}, copyArgs...),
		}, nil
	case MethodExpect:
		if script == "" {
			return exec.Command{}, errors.New(errors.ErrSSH, "expect script path is empty", "")
		}
		return exec.Command{
			Name: string(MethodExpect),
			Args: append([]string{script, s.Auth.Password}, copyArgs...),
		}, nil
	}
	return exec.Command{}, errors.New(errors.ErrConfig,
		fmt.Sprintf("Unknown authorization method %q", method),
		"Supported methods: sshpass, expect")
}

// Redact replaces the password in a rendered command line.
func Redact(line, password string) string {
	if password == "" {
		return line
	}
	return strings.ReplaceAll(line, password, "****")
}

// materializeScript writes the embedded expect script into the script
// directory unless an identical copy is already there.
func (k *KeySender) materializeScript() (string, error) {
	path := filepath.Join(k.scriptDir, ExpectScriptName)

	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, expectScript) {
		return path, nil
	}

	if err := os.MkdirAll(k.scriptDir, 0o755); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't create %s", k.scriptDir),
			"Check --save-dir")
	}
	if err := os.WriteFile(path, expectScript, 0o700); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't write the expect script to %s", path),
			"Check --save-dir, or use --auto-authorization-method sshpass")
	}
	return path, nil
}

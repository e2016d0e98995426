package doctor

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/okssh/okssh/internal/setup"
)

// CategoryTools groups the helper binary checks.
const CategoryTools = "TOOLS"

// ToolCheck verifies a binary is on PATH.
type ToolCheck struct {
	Binary string
	// Purpose says what okssh needs the binary for.
	Purpose string
	// Install is shown when the binary is missing.
	Install string
	// Optional downgrades a missing binary to a warning.
	Optional bool
	LookPath setup.LookPathFunc
}

func (c *ToolCheck) Name() string     { return c.Binary }
func (c *ToolCheck) Category() string { return CategoryTools }

func (c *ToolCheck) Run() CheckResult {
	path, err := lookPath(c.LookPath)(c.Binary)
	if err != nil {
		status := StatusFail
		if c.Optional {
			status = StatusWarn
		}
		return CheckResult{
			Name:       c.Name(),
			Status:     status,
			Message:    fmt.Sprintf("%s not found (needed for %s)", c.Binary, c.Purpose),
			Suggestion: c.Install,
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s found at %s", c.Binary, path),
	}
}

// AuthMethodCheck verifies that a helper for typing the SSH password is
// installed, and reports which one would be used.
type AuthMethodCheck struct {
	// Preferred is the --auto-authorization-method value, if any.
	Preferred string
	LookPath  setup.LookPathFunc
}

func (c *AuthMethodCheck) Name() string     { return "auto_authorization" }
func (c *AuthMethodCheck) Category() string { return CategoryTools }

func (c *AuthMethodCheck) Run() CheckResult {
	m, err := setup.DetectMethod(c.LookPath, c.Preferred)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    firstLine(err.Error()),
			Suggestion: "Keys can still be sent with --no-auto-authorization and a manual ssh-copy-id.",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("public keys will be sent with %s", m),
	}
}

// NewToolChecks returns the checks for every binary okssh runs.
func NewToolChecks(lookPath setup.LookPathFunc, preferredMethod string) []Check {
	return []Check{
		&ToolCheck{
			Binary:   "dconf",
			Purpose:  "terminal profiles",
			Install:  "Install dconf: apt install dconf-cli",
			LookPath: lookPath,
		},
		&ToolCheck{
			Binary:   "ssh-copy-id",
			Purpose:  "sending public keys",
			Install:  "Install the OpenSSH client: apt install openssh-client",
			LookPath: lookPath,
		},
		&ToolCheck{
			Binary:   "sshpass",
			Purpose:  "automatic authorization",
			Install:  "Install sshpass: apt install sshpass",
			Optional: true,
			LookPath: lookPath,
		},
		&ToolCheck{
			Binary:   "expect",
			Purpose:  "automatic authorization",
			Install:  "Install expect: apt install expect",
			Optional: true,
			LookPath: lookPath,
		},
		&AuthMethodCheck{Preferred: preferredMethod, LookPath: lookPath},
	}
}

func lookPath(fn setup.LookPathFunc) setup.LookPathFunc {
	if fn == nil {
		return exec.LookPath
	}
	return fn
}

// firstLine strips the symbol and detail lines of a rendered error.
func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(strings.TrimPrefix(line, "✗"))
}

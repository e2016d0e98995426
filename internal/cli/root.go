package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/okssh/okssh/internal/errors"
	"github.com/spf13/cobra"
)

// rootOpts is bound to the root command flags.
var rootOpts = DefaultOptions()

var rootCmd = &cobra.Command{
	Use:   "okssh",
	Short: "Integrate SSH connections into the terminal and SSH config",
	Long: `okssh reads a YAML list of servers and, for each server marked with
i_want_add, creates a MATE Terminal profile that opens an SSH session (-d)
and a Host block in the SSH config (-s). Public keys are sent to hosts that
were already configured. Every destructive step is backed up first.

Examples:
  okssh -d -s
  okssh -s -y ~/servers.yml --ssh-config-dest ~/.ssh/config.d/okssh
  okssh -d -b Default
  okssh -d -s -r`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), rootOpts, defaultEnv(cmd.InOrStdin(), cmd.OutOrStdout()))
	},
}

func init() {
	AddFlags(rootCmd, &rootOpts)
}

// Execute runs the root command and exits with the mapped status.
func Execute() {
	os.Exit(execute(rootCmd, os.Stderr))
}

// execute runs cmd and reports its error on stderr. Usage errors are preceded
// by the usage text. It returns the process exit code.
func execute(cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}

	if stderrors.Is(err, errors.ErrCancelled) {
		fmt.Fprintln(stderr, "Aborted!")
		return errors.ExitCode(err)
	}

	var usage *usageError
	if stderrors.As(err, &usage) {
		fmt.Fprintln(stderr, cmd.UsageString())
	}
	fmt.Fprint(stderr, err.Error())
	if !endsWithNewline(err.Error()) {
		fmt.Fprintln(stderr)
	}
	return errors.ExitCode(err)
}

func endsWithNewline(s string) bool {
	return len(s) > 0 && s[len(s)-1] == '\n'
}

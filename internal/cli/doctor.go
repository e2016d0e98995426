package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/okssh/okssh/internal/config"
	"github.com/okssh/okssh/internal/doctor"
	"github.com/okssh/okssh/internal/errors"
	"github.com/okssh/okssh/internal/setup"
	"github.com/okssh/okssh/internal/ui"
	"github.com/spf13/cobra"
)

var (
	doctorYMLConfig  string
	doctorAuthMethod string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check helper programs and the server list",
	Long: `Check that the programs okssh runs are installed (dconf, ssh-copy-id,
sshpass or expect) and that the server list loads and validates.

Exits 1 when a required check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ui.SetColorEnabled(ui.ShouldUseColor(out, rootOpts.NoColor))
		return doctorCommand(out, nil, doctorYMLConfig, doctorAuthMethod)
	},
}

func init() {
	doctorCmd.Flags().StringVarP(&doctorYMLConfig, "yml-config", "y", rootOpts.YMLConfig, "server list `FILE`")
	doctorCmd.Flags().StringVar(&doctorAuthMethod, "auto-authorization-method", "", "program that types the password: sshpass or expect")
}

// collectChecks gathers the tool checks and the server list check.
func collectChecks(lookPath setup.LookPathFunc, ymlPath, authMethod string) []doctor.Check {
	checks := doctor.NewToolChecks(lookPath, authMethod)
	return append(checks, &doctor.ModelCheck{
		Path:    config.ExpandTilde(ymlPath),
		Options: []config.LoadOption{config.WithKeyring(config.KeyringService)},
	})
}

// doctorCommand runs every check and prints the report.
func doctorCommand(out io.Writer, lookPath setup.LookPathFunc, ymlPath, authMethod string) error {
	checks := collectChecks(lookPath, ymlPath, authMethod)
	results := doctor.RunAllParallel(checks)

	renderDoctorReport(out, checks, results)

	if doctor.HasFailures(results) {
		return errors.New(errors.ErrConfig, doctor.Summary(results), "See the report above.")
	}
	return nil
}

func renderDoctorReport(out io.Writer, checks []doctor.Check, results []doctor.CheckResult) {
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("okssh Diagnostic Report"))
	fmt.Fprintln(out)

	for _, category := range doctor.Categories(checks) {
		fmt.Fprintln(out, headerStyle.Render(category))
		for i, check := range checks {
			if check.Category() == category {
				renderCheckResult(out, results[i])
			}
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, strings.Repeat("━", 60))
	if doctor.HasFailures(results) || doctor.CountByStatus(results)[doctor.StatusWarn] > 0 {
		fmt.Fprintf(out, "%s %s\n", ui.ErrorStyle().Render(ui.SymbolFail), doctor.Summary(results))
	} else {
		fmt.Fprintf(out, "%s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), doctor.Summary(results))
	}
	fmt.Fprintln(out)
}

// renderCheckResult renders a single check result.
func renderCheckResult(out io.Writer, result doctor.CheckResult) {
	var symbol string
	var style lipgloss.Style

	switch result.Status {
	case doctor.StatusPass:
		symbol, style = ui.SymbolComplete, ui.SuccessStyle()
	case doctor.StatusWarn:
		symbol, style = ui.SymbolWarning, ui.WarningStyle()
	default:
		symbol, style = ui.SymbolFail, ui.ErrorStyle()
	}

	fmt.Fprintf(out, "  %s %s\n", style.Render(symbol), result.Message)

	if result.Suggestion != "" && result.Status != doctor.StatusPass {
		for _, line := range strings.Split(result.Suggestion, "\n") {
			fmt.Fprintf(out, "    %s\n", ui.MutedStyle().Render(line))
		}
	}
}

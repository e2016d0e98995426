package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// completionCmd generates shell completion scripts
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for okssh.

Examples:
  # Bash (add to ~/.bashrc)
  okssh completion bash > /etc/bash_completion.d/okssh

  # Zsh (add to ~/.zshrc)
  okssh completion zsh > "${fpath[1]}/_okssh"

  # Fish
  okssh completion fish > ~/.config/fish/completions/okssh.fish`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletion(out)
		}
		return fmt.Errorf("unsupported shell: %s", args[0])
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)

	_ = rootCmd.RegisterFlagCompletionFunc("auto-authorization-method",
		cobra.FixedCompletions([]string{"sshpass", "expect"}, cobra.ShellCompDirectiveNoFileComp))
	_ = rootCmd.RegisterFlagCompletionFunc("terminal",
		cobra.FixedCompletions(terminalNames(), cobra.ShellCompDirectiveNoFileComp))
	_ = rootCmd.MarkFlagFilename("yml-config", "yml", "yaml")
}

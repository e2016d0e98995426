package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/okssh/okssh/internal/config"
	"github.com/okssh/okssh/internal/errors"
	"github.com/okssh/okssh/internal/prompt"
	"github.com/okssh/okssh/internal/setup"
	"github.com/okssh/okssh/internal/sshconfig"
	"github.com/okssh/okssh/internal/terminal"
	"github.com/spf13/cobra"
)

// Options holds the root command flags.
type Options struct {
	DconfActions        bool
	SSHConfigActions    bool
	ResetAndExit        bool
	NoAutoAuthorization bool
	ClearSSHConfig      bool
	NotBackup           bool
	TimePostfix         bool
	NoColor             bool
	Verbose             bool

	YMLConfig     string
	BaseProfile   string
	SSHConfigDest string
	AuthMethod    string
	SaveDir       string
	Terminal      string

	KeyTimeout time.Duration
}

// usageError marks validation failures that should be shown with the usage
// text.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(message string) error {
	return &usageError{err: errors.New(errors.ErrConfig, message, "")}
}

// exeDir is the directory holding the running binary. The default server
// list and save directory live there.
func exeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// DefaultOptions returns the flag defaults.
func DefaultOptions() Options {
	dir := exeDir()
	return Options{
		YMLConfig:  filepath.Join(dir, config.DefaultFileName),
		SaveDir:    dir,
		Terminal:   "mate",
		KeyTimeout: sshconfig.DefaultKeyTimeout,
	}
}

// AddFlags registers the root command flags on cmd, bound to o. Current
// values of o become the defaults.
func AddFlags(cmd *cobra.Command, o *Options) {
	flags := cmd.Flags()
	flags.BoolVarP(&o.DconfActions, "dconf-actions", "d", o.DconfActions, "create terminal profiles for servers in dconf")
	flags.BoolVarP(&o.SSHConfigActions, "ssh-config-actions", "s", o.SSHConfigActions, "write servers into the SSH config")
	flags.BoolVarP(&o.ResetAndExit, "reset-and-exit", "r", o.ResetAndExit, "remove the profiles and hosts of desired servers, then exit")
	flags.BoolVarP(&o.NoAutoAuthorization, "no-auto-authorization", "a", o.NoAutoAuthorization, "don't send public keys to servers")

	flags.StringVarP(&o.YMLConfig, "yml-config", "y", o.YMLConfig, "server list `FILE`")
	flags.StringVarP(&o.BaseProfile, "base-profile", "b", o.BaseProfile, "terminal profile to clone (overrides base_profile)")
	flags.BoolVarP(&o.ClearSSHConfig, "clear-ssh-config", "c", o.ClearSSHConfig, "empty the SSH config before adding hosts")
	flags.BoolVarP(&o.NotBackup, "not-backup", "n", o.NotBackup, "don't make backups")
	flags.BoolVarP(&o.TimePostfix, "time-postfix", "t", o.TimePostfix, "add a timestamp to backup file names")
	flags.StringVar(&o.SSHConfigDest, "ssh-config-dest", o.SSHConfigDest, "SSH config location (overrides ssh_config_dest)")
	flags.StringVar(&o.AuthMethod, "auto-authorization-method", o.AuthMethod, "program that types the password: sshpass or expect")
	flags.StringVar(&o.SaveDir, "save-dir", o.SaveDir, "directory for backups and restore files")
	flags.StringVar(&o.Terminal, "terminal", o.Terminal, "terminal whose profiles are edited")
	flags.DurationVar(&o.KeyTimeout, "key-timeout", o.KeyTimeout, "timeout for sending a key to one server")

	cmd.PersistentFlags().BoolVar(&o.NoColor, "no-color", o.NoColor, "disable colored output")
	cmd.PersistentFlags().BoolVarP(&o.Verbose, "verbose", "v", o.Verbose, "print debug output")
}

// Validate checks the options and returns the key push method to use, empty
// when keys are not sent. Reset mode asks for confirmation; declining
// returns errors.ErrCancelled.
func (o *Options) Validate(lookPath setup.LookPathFunc, p prompt.Prompter) (setup.Method, error) {
	if !o.DconfActions && !o.SSHConfigActions {
		return "", usageErrorf("Please use at least one of the options -s/-d")
	}

	if _, ok := terminal.Backends[o.Terminal]; !ok {
		return "", usageErrorf(fmt.Sprintf("--terminal \"%s\" is not supported", o.Terminal))
	}

	o.YMLConfig = config.ExpandTilde(o.YMLConfig)
	if info, err := os.Stat(o.YMLConfig); err != nil || info.IsDir() {
		return "", errors.New(errors.ErrConfig,
			fmt.Sprintf("The file %s does not exist!", o.YMLConfig),
			"Specify the server list with --yml-config")
	}

	if o.ResetAndExit {
		ok, err := p.Confirm("Reset and exit mode selected. Do you want to continue?", true)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.ErrCancelled
		}
	}

	if o.SSHConfigDest != "" {
		o.SSHConfigDest = config.ExpandTilde(o.SSHConfigDest)
	}
	if o.KeyTimeout <= 0 {
		o.KeyTimeout = sshconfig.DefaultKeyTimeout
	}

	if o.NoAutoAuthorization {
		return "", nil
	}
	method, err := setup.DetectMethod(lookPath, o.AuthMethod)
	if err != nil {
		return "", &usageError{err: err}
	}
	return method, nil
}

// terminalNames lists the --terminal values, sorted.
func terminalNames() []string {
	names := make([]string, 0, len(terminal.Backends))
	for name := range terminal.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package cli

import (
	"context"
	"io"

	"github.com/okssh/okssh/internal/backup"
	"github.com/okssh/okssh/internal/config"
	"github.com/okssh/okssh/internal/dconf"
	"github.com/okssh/okssh/internal/exec"
	"github.com/okssh/okssh/internal/logger"
	"github.com/okssh/okssh/internal/prompt"
	"github.com/okssh/okssh/internal/setup"
	"github.com/okssh/okssh/internal/sshconfig"
	"github.com/okssh/okssh/internal/terminal"
	"github.com/okssh/okssh/internal/ui"
)

// runEnv holds the process boundaries of a run, so tests can replace them.
type runEnv struct {
	Runner   exec.Runner
	LookPath setup.LookPathFunc
	Prompter prompt.Prompter
	Out      io.Writer
	// KeyringService resolves empty passwords. Empty disables the keyring.
	KeyringService string
	// KeyLogPath overrides sshconfig.DefaultKeyLogPath.
	KeyLogPath string
}

func defaultEnv(in io.Reader, out io.Writer) runEnv {
	return runEnv{
		Runner:         exec.NewOSRunner(),
		Prompter:       prompt.NewInteractive(in, out),
		Out:            out,
		KeyringService: config.KeyringService,
	}
}

// run validates o and performs the selected reconciliations.
func run(ctx context.Context, o Options, env runEnv) error {
	logger.SetVerbose(o.Verbose)
	ui.SetColorEnabled(ui.ShouldUseColor(env.Out, o.NoColor))
	log := logger.NewEnvLogger("[okssh]")

	method, err := o.Validate(env.LookPath, env.Prompter)
	if err != nil {
		return err
	}

	loadOpts := []config.LoadOption{config.WithLogger(log)}
	if env.KeyringService != "" && o.SSHConfigActions && method != "" {
		loadOpts = append(loadOpts, config.WithKeyring(env.KeyringService))
	}
	model, err := config.Load(o.YMLConfig, loadOpts...)
	if err != nil {
		return err
	}
	if err := config.Validate(model); err != nil {
		return err
	}
	log.Debug("loaded %d servers from %s", len(model.Servers), model.Path)

	store := backup.NewStore(config.ExpandTilde(o.SaveDir), o.TimePostfix)

	if o.DconfActions {
		backend := terminal.Backends[o.Terminal]()
		client := dconf.NewClient(env.Runner, store, env.Prompter, logger.NewEnvLogger("[dconf]"))
		r := terminal.NewReconciler(model, backend, terminal.Options{
			BaseProfile:  o.BaseProfile,
			ResetAndExit: o.ResetAndExit,
			NotBackup:    o.NotBackup,
		}, terminal.Deps{
			Dconf:    client,
			Store:    store,
			Prompter: env.Prompter,
			Logger:   logger.NewEnvLogger("[terminal]"),
			Out:      env.Out,
		})
		if _, err := r.Run(ctx); err != nil {
			return err
		}
	}

	if o.SSHConfigActions {
		sshLog := logger.NewEnvLogger("[ssh]")
		r := sshconfig.NewReconciler(model, sshconfig.Options{
			ConfigPath:        o.SSHConfigDest,
			ResetAndExit:      o.ResetAndExit,
			ClearConfig:       o.ClearSSHConfig,
			NotBackup:         o.NotBackup,
			AutoAuthorization: !o.NoAutoAuthorization,
			Method:            method,
			KeyTimeout:        o.KeyTimeout,
			KeyLogPath:        env.KeyLogPath,
		}, sshconfig.Deps{
			Store:    store,
			Prompter: env.Prompter,
			Sender:   setup.NewKeySender(env.Runner, store.Dir, sshLog),
			Logger:   sshLog,
			Out:      env.Out,
			Animate:  ui.IsTerminal(env.Out),
		})
		if _, err := r.Run(ctx); err != nil {
			return err
		}
	}

	return nil
}

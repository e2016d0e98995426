package sshconfig

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/okssh/okssh/internal/backup"
	"github.com/okssh/okssh/internal/config"
	"github.com/okssh/okssh/internal/errors"
	"github.com/okssh/okssh/internal/logger"
	"github.com/okssh/okssh/internal/prompt"
	"github.com/okssh/okssh/internal/setup"
	"github.com/okssh/okssh/internal/ui"
	"github.com/okssh/okssh/internal/util"
)

// DefaultKeyTimeout bounds each key push made by the reconciler.
const DefaultKeyTimeout = 10 * time.Second

// KeySender pushes a public key to one server.
type KeySender interface {
	Send(ctx context.Context, s config.Server, method setup.Method, timeout time.Duration) setup.SendResult
}

// Options controls a reconciliation run.
type Options struct {
	// ConfigPath is the SSH config given on the command line. Empty falls
	// back to the model's ssh_config_dest.
	ConfigPath string

	ResetAndExit      bool
	ClearConfig       bool
	NotBackup         bool
	AutoAuthorization bool
	Method            setup.Method

	// KeyTimeout bounds each key push. Zero means DefaultKeyTimeout.
	KeyTimeout time.Duration
	// KeyLogPath overrides DefaultKeyLogPath.
	KeyLogPath string
}

// Deps are the collaborators a Reconciler needs.
type Deps struct {
	Store    *backup.Store
	Prompter prompt.Prompter
	Sender   KeySender
	Logger   logger.Logger
	Out      io.Writer
	// Animate enables live spinners for key pushes.
	Animate bool
}

// Reconciler brings an SSH config file in line with the server model.
type Reconciler struct {
	model *config.Model
	opts  Options
	deps  Deps
}

// Result describes what a run did.
type Result struct {
	Path       string
	BackupPath string
	// Configured are the desired hosts the file held before any edit. Keys
	// are pushed to these, even when the file was cleared.
	Configured []string
	Added      []string
	NotAdded   []string
	KeyLogPath string
	KeyFailed  int
}

// NewReconciler creates a Reconciler.
func NewReconciler(model *config.Model, opts Options, deps Deps) *Reconciler {
	if deps.Logger == nil {
		deps.Logger = logger.Noop()
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if opts.KeyTimeout <= 0 {
		opts.KeyTimeout = DefaultKeyTimeout
	}
	if opts.KeyLogPath == "" {
		opts.KeyLogPath = DefaultKeyLogPath
	}
	return &Reconciler{model: model, opts: opts, deps: deps}
}

// Run performs the reconciliation.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	path, err := r.resolvePath()
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(filepath.Dir(path), 0o700); err != nil {
		r.deps.Logger.Warn("can't chmod %s: %v", filepath.Dir(path), err)
	}
	res := &Result{Path: path}

	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	r.report("*** SSH CONFIG STATE BEFORE EDITING: ***", doc)

	if !r.opts.NotBackup {
		res.BackupPath, err = r.deps.Store.CopyPreservingOwner(path)
		if err != nil {
			return nil, err
		}
		r.deps.Logger.Debug("backed up %s to %s", path, res.BackupPath)
	}

	res.Configured = config.Intersect(r.model.Desired(), doc.Hosts())

	switch {
	case r.opts.ClearConfig:
		if err := Empty().Save(path); err != nil {
			return nil, err
		}
		if doc, err = Load(path); err != nil {
			return nil, err
		}
	case r.opts.ResetAndExit:
		for _, host := range config.Intersect(r.model.Desired(), doc.Hosts()) {
			doc.Remove(host)
		}
		if err := doc.Save(path); err != nil {
			return nil, err
		}
	}

	desired := r.model.Desired()
	res.Added = config.Intersect(desired, doc.Hosts())
	res.NotAdded = config.Subtract(desired, doc.Hosts())

	if !r.opts.ResetAndExit {
		if err := r.apply(doc, path, res.Added, res.NotAdded); err != nil {
			return nil, err
		}
		if r.opts.AutoAuthorization {
			if err := r.pushKeys(ctx, res.Configured, res); err != nil {
				return nil, err
			}
		}
	}

	if err := normalize(path); err != nil {
		return nil, err
	}

	after, err := Load(path)
	if err != nil {
		return nil, err
	}
	r.report("*** SSH CONFIG STATE AFTER EDITING: ***", after)

	return res, nil
}

// resolvePath picks the first usable config: the command-line path, then the
// model's ssh_config_dest. A missing file is created (0600) if the operator
// agrees.
func (r *Reconciler) resolvePath() (string, error) {
	for _, candidate := range []string{config.ExpandTilde(r.opts.ConfigPath), r.model.SSHConfigDest} {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}

		create, err := r.deps.Prompter.Confirm(
			fmt.Sprintf("\nSsh config '%s' don't exist! Do you want to create?", candidate), true)
		if err != nil {
			return "", err
		}
		if !create {
			continue
		}
		if _, err := r.deps.Store.Save(candidate, nil, backup.WithMode(0o600), backup.WithoutPostfix()); err != nil {
			return "", err
		}
		return candidate, nil
	}

	return "", errors.WrapWithCode(errors.ErrAborted, errors.ErrConfig,
		"No SSH config to work with",
		"Pass --ssh-config-dest or set ssh_config_dest in the server list.")
}

func (r *Reconciler) apply(doc *Document, path string, added, notAdded []string) error {
	for _, host := range added {
		s, _ := r.model.Server(host)
		if err := doc.Set(host, hostOptions(s)); err != nil {
			return err
		}
	}
	if err := doc.Save(path); err != nil {
		return err
	}

	for _, host := range notAdded {
		s, _ := r.model.Server(host)
		if err := doc.Add(host, hostOptions(s)); err != nil {
			return err
		}
	}
	return doc.Save(path)
}

func hostOptions(s config.Server) []Option {
	return []Option{
		{Key: "Hostname", Value: s.IP},
		{Key: "Port", Value: s.Port},
		{Key: "User", Value: s.Auth.Username},
		{Key: "IdentityFile", Value: s.Keys.PrivateKey},
	}
}

// pushKeys sends the public key to hosts that were already configured before
// this run. Failures are collected into the key log and never abort.
func (r *Reconciler) pushKeys(ctx context.Context, hosts []string, res *Result) error {
	if r.deps.Sender == nil || len(hosts) == 0 {
		return nil
	}

	var successes []string
	var failures []KeyFailure
	fmt.Fprintln(r.deps.Out)

	for _, host := range hosts {
		s, _ := r.model.Server(host)
		spin := ui.NewSpinner(r.deps.Out, "Sending key to "+host, r.deps.Animate)
		spin.Start()

		sent := r.deps.Sender.Send(ctx, s, r.opts.Method, r.opts.KeyTimeout)
		if sent.Failed {
			spin.Fail()
			if sent.Hint != "" {
				r.deps.Logger.Info("%s: %s", host, sent.Hint)
			}
			failures = append(failures, KeyFailure{Host: s.Describe(), Stdout: sent.Stdout, Stderr: sent.Stderr})
			continue
		}
		spin.Success()
		entry := s.Describe()
		if sent.Fingerprint != "" {
			entry += ", Key: " + sent.Fingerprint
		}
		successes = append(successes, entry)
	}

	res.KeyFailed = len(failures)
	if len(failures) == 0 {
		fmt.Fprintln(r.deps.Out, ui.SuccessStyle().Render("\nSuccessful sending of keys to all servers!"))
		return nil
	}

	fmt.Fprintln(r.deps.Out, ui.ErrorStyle().Render(fmt.Sprintf(
		"\nFailed to send public key to %d out of %d servers!", len(failures), len(hosts))))

	logPath, err := WriteKeyLog(r.deps.Store, r.opts.KeyLogPath, successes, failures)
	if err != nil {
		return err
	}
	res.KeyLogPath = logPath
	fmt.Fprintf(r.deps.Out, "To view the log, run: cat '%s'\n", logPath)
	return nil
}

func (r *Reconciler) report(title string, doc *Document) {
	desired := r.model.Desired()
	existing := doc.Hosts()
	ui.StateReport{
		Title:    title,
		Added:    config.Intersect(desired, existing),
		NotAdded: config.Subtract(desired, existing),
		All:      existing,
	}.Render(r.deps.Out)
}

// normalize rewrites every run of two or more newlines in the file as exactly
// two, leaving at most one blank line between stanzas.
func normalize(path string) error {
	data, err := backup.ReadFile(path)
	if err != nil {
		return err
	}
	collapsed := util.CollapseBlankLines(string(data))
	if collapsed == string(data) {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, fmt.Sprintf("Can't stat %s", path), "")
	}
	if err := os.WriteFile(path, []byte(collapsed), info.Mode().Perm()); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't save %s", path), "")
	}
	return nil
}

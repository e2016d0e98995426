package terminal

import (
	"context"
	"fmt"
	"io"

	"github.com/okssh/okssh/internal/backup"
	"github.com/okssh/okssh/internal/config"
	"github.com/okssh/okssh/internal/dconf"
	"github.com/okssh/okssh/internal/errors"
	"github.com/okssh/okssh/internal/logger"
	"github.com/okssh/okssh/internal/prompt"
	"github.com/okssh/okssh/internal/ui"
	"github.com/okssh/okssh/internal/util"
)

// Backup file names inside the save directory.
const (
	RestoreFileName = "dconf_restore.txt"
	AppliedFileName = "dconf_applied_commands.txt"
)

// Dconf is the subset of dconf.Client the reconciler uses.
type Dconf interface {
	Read(ctx context.Context, path string) (string, bool)
	List(ctx context.Context, dir string) ([]string, error)
	Write(ctx context.Context, path, value string) (dconf.WriteOutcome, string)
	Reset(ctx context.Context, dir string) error
	DumpBackup(ctx context.Context, dir string) (string, error)
}

// Options controls a reconciliation run.
type Options struct {
	// BaseProfile is the profile named on the command line. Empty means the
	// model's base_profile.
	BaseProfile  string
	ResetAndExit bool
	NotBackup    bool
}

// Deps are the collaborators a Reconciler needs.
type Deps struct {
	Dconf    Dconf
	Store    *backup.Store
	Prompter prompt.Prompter
	Logger   logger.Logger
	Out      io.Writer
}

// Reconciler creates a terminal profile for every desired server missing
// from dconf, or removes them in reset mode.
type Reconciler struct {
	model   *config.Model
	backend Backend
	opts    Options
	deps    Deps
}

// Result describes what a run did.
type Result struct {
	BaseProfile string
	Added       []string
	NotAdded    []string
	RestoreFile string
	AppliedFile string
	// FailedWrites counts writes that failed or timed out.
	FailedWrites int
}

// NewReconciler creates a Reconciler for backend.
func NewReconciler(model *config.Model, backend Backend, opts Options, deps Deps) *Reconciler {
	if deps.Logger == nil {
		deps.Logger = logger.Noop()
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	return &Reconciler{model: model, backend: backend, opts: opts, deps: deps}
}

// snapshot is the profile tree as read at one point in time.
type snapshot struct {
	profiles []string
	titles   map[string]string
}

func (r *Reconciler) snapshot(ctx context.Context) (*snapshot, error) {
	profiles, err := r.deps.Dconf.List(ctx, r.backend.SchemaPath())
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(profiles))
	for _, p := range profiles {
		if raw, ok := r.deps.Dconf.Read(ctx, r.backend.SchemaPath()+p+"/title"); ok {
			titles[p] = titleWord(raw)
		}
	}
	return &snapshot{profiles: profiles, titles: titles}, nil
}

func (s *snapshot) has(name string) bool {
	for _, p := range s.profiles {
		if p == name {
			return true
		}
	}
	return false
}

// Run performs the reconciliation.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	before, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	base, err := r.resolveBaseProfile(before)
	if err != nil {
		return nil, err
	}
	res := &Result{BaseProfile: base}

	desired := r.model.Desired()
	res.Added = config.Intersect(desired, before.profiles)
	res.NotAdded = config.Subtract(desired, before.profiles)
	r.report("*** DCONF STATE BEFORE EDITING: ***", before, base)

	if !r.opts.NotBackup {
		if res.RestoreFile, err = r.backup(ctx); err != nil {
			return nil, err
		}
	}

	if r.opts.ResetAndExit {
		r.resetProfiles(ctx, res.Added, base, before)
	} else {
		if err := r.addProfiles(ctx, res, base); err != nil {
			return nil, err
		}
	}

	if err := r.updateProfileList(ctx); err != nil {
		return nil, err
	}

	after, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	r.report("*** DCONF STATE AFTER EDITING: ***", after, base)

	return res, nil
}

// resolveBaseProfile picks the profile new ones are cloned from. A profile
// named on the command line wins when it exists; otherwise the model's
// base_profile is offered as a fallback.
func (r *Reconciler) resolveBaseProfile(s *snapshot) (string, error) {
	cli, alt := r.opts.BaseProfile, r.model.BaseProfile

	if cli != "" {
		if s.has(cli) {
			return cli, nil
		}
		if alt == "" || !s.has(alt) {
			return "", errors.New(errors.ErrConfig,
				fmt.Sprintf("Profiles of terminal '%s' and '%s' don't exist! Existing Profiles: %s",
					cli, alt, ui.FormatNames(s.profiles)),
				"Pass an existing profile with --base-profile.")
		}
		ok, err := r.deps.Prompter.Confirm(
			fmt.Sprintf("Profile of terminal '%s' don't exist! Do you wan't continue with '%s'?", cli, alt),
			false)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.WrapWithCode(errors.ErrAborted, errors.ErrConfig,
				fmt.Sprintf("Base profile '%s' not found", cli), "")
		}
		return alt, nil
	}

	if alt == "" || !s.has(alt) {
		return "", errors.New(errors.ErrConfig,
			fmt.Sprintf("Profile of terminal '%s' don't exist!", alt),
			fmt.Sprintf("Set base_profile to one of: %s", ui.FormatNames(s.profiles)))
	}
	return alt, nil
}

// backup dumps the profile tree and writes the restore instructions. It
// returns the restore file path.
func (r *Reconciler) backup(ctx context.Context) (string, error) {
	restoreCmd, err := r.deps.Dconf.DumpBackup(ctx, r.backend.SchemaPath())
	if err != nil {
		return "", err
	}

	file := r.deps.Store.Path(RestoreFileName)
	list, ok := r.deps.Dconf.Read(ctx, r.backend.ProfileListPath())
	if !ok {
		return "", errors.New(errors.ErrBackup,
			fmt.Sprintf("Can't save the file %s! Aborted!", file),
			fmt.Sprintf("%s could not be read. Rerun with --not-backup to skip backups.", r.backend.ProfileListPath()))
	}

	content := "To restore the original state, enter the following commands in the terminal:\n\n" +
		fmt.Sprintf("dconf write %s \"%s\"\n", r.backend.ProfileListPath(), list)
	if restoreCmd != "" {
		content += restoreCmd + "\n"
	}

	saved, err := r.deps.Store.Save(file, []byte(content))
	if err != nil {
		return "", err
	}
	fmt.Fprintf(r.deps.Out, "\nTo restore the original state see - cat '%s'\n", saved)
	return saved, nil
}

// resetProfiles removes the desired profiles that exist, except the base
// profile.
func (r *Reconciler) resetProfiles(ctx context.Context, added []string, base string, s *snapshot) {
	for _, p := range added {
		if p == base {
			title := s.titles[p]
			if title == "" {
				title = p
			}
			ui.PrintWarning(r.deps.Out, "Skipping profile reset %s for server %s!", p, title)
			continue
		}
		if err := r.deps.Dconf.Reset(ctx, r.backend.SchemaPath()+p+"/"); err != nil {
			r.deps.Logger.Error("%v", err)
		}
	}
}

// baseSettings reads the configured keys from the base profile. Keys the
// base profile lacks are skipped.
func (r *Reconciler) baseSettings(ctx context.Context, base string) []Setting {
	var settings []Setting
	for _, key := range r.model.BaseProfileKeys {
		raw, _ := r.deps.Dconf.Read(ctx, r.backend.SchemaPath()+base+"/"+key)
		value, ok := NormalizeValue(raw)
		if !ok {
			r.deps.Logger.Debug("base profile '%s' has no %s, not copying it", base, key)
			continue
		}
		settings = append(settings, Setting{Key: key, Value: value})
	}
	return settings
}

func (r *Reconciler) addProfiles(ctx context.Context, res *Result, base string) error {
	inherited := r.baseSettings(ctx, base)

	var applied []string
	for _, name := range res.NotAdded {
		s, _ := r.model.Server(name)
		dir := r.backend.SchemaPath() + name + "/"

		settings := append(append([]Setting{}, inherited...), r.backend.ServerSettings(s)...)
		for _, setting := range settings {
			outcome, cmd := r.deps.Dconf.Write(ctx, dir+setting.Key, setting.Value)
			if outcome != dconf.WriteOK {
				res.FailedWrites++
				continue
			}
			applied = append(applied, cmd)
		}
		applied = append(applied, "")
	}

	if res.FailedWrites > 0 {
		ui.PrintWarning(r.deps.Out, "%d dconf %s failed; see the log above",
			res.FailedWrites, util.Pluralize(res.FailedWrites, "write", "writes"))
	}

	if r.opts.NotBackup || len(applied) == 0 {
		return nil
	}
	saved, err := r.deps.Store.SaveLines(r.deps.Store.Path(AppliedFileName), applied)
	if err != nil {
		return err
	}
	res.AppliedFile = saved
	return nil
}

// updateProfileList rewrites the global list from the current directory
// listing.
func (r *Reconciler) updateProfileList(ctx context.Context) error {
	profiles, err := r.deps.Dconf.List(ctx, r.backend.SchemaPath())
	if err != nil {
		return err
	}
	outcome, cmd := r.deps.Dconf.Write(ctx, r.backend.ProfileListPath(), FormatProfileList(profiles))
	if outcome != dconf.WriteOK {
		return errors.New(errors.ErrDconf,
			fmt.Sprintf("Can't update the profile list (%s)", outcome),
			"Run by hand: "+cmd)
	}
	return nil
}

func (r *Reconciler) report(title string, s *snapshot, base string) {
	desired := r.model.Desired()
	ui.StateReport{
		Title:       title,
		Added:       config.Intersect(desired, s.profiles),
		NotAdded:    config.Subtract(desired, s.profiles),
		All:         s.profiles,
		Skipped:     r.model.Skipped(base),
		ShowSkipped: true,
	}.Render(r.deps.Out)
}

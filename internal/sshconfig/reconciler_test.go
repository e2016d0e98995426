package sshconfig

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okssh/okssh/internal/backup"
	"github.com/okssh/okssh/internal/config"
	"github.com/okssh/okssh/internal/errors"
	"github.com/okssh/okssh/internal/logger"
	"github.com/okssh/okssh/internal/prompt"
	"github.com/okssh/okssh/internal/setup"
	"github.com/okssh/okssh/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records pushes and fails the hosts listed in fail.
type fakeSender struct {
	sent    []string
	methods []setup.Method
	timeout time.Duration
	fail    map[string]bool
}

func (f *fakeSender) Send(_ context.Context, s config.Server, method setup.Method, timeout time.Duration) setup.SendResult {
	f.sent = append(f.sent, s.Name)
	f.methods = append(f.methods, method)
	f.timeout = timeout
	if f.fail[s.Name] {
		return setup.SendResult{Failed: true, Stdout: "out-" + s.Name, Stderr: "Permission denied"}
	}
	return setup.SendResult{Stdout: "Number of key(s) added: 1", Fingerprint: "SHA256:abc"}
}

const existingConfig = `Host *
    ServerAliveInterval 30

Host db1
    HostName 1.1.1.1
    User nobody
    Compression yes



Host old
    HostName 9.9.9.9
    User root
`

type fixture struct {
	dir    string
	path   string
	model  *config.Model
	sender *fakeSender
	out    *bytes.Buffer
	store  *backup.Store
	prompt *prompt.Scripted
}

func newFixture(t *testing.T, content string) *fixture {
	t.Helper()
	ui.SetColorEnabled(false)

	dir := t.TempDir()
	path := filepath.Join(dir, ".ssh", "config")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	model := &config.Model{
		SSHConfigDest: path,
		Servers: []config.Server{
			{
				Name: "db1", IP: "10.0.0.5", Port: "22", Include: true,
				Auth: config.Auth{Username: "admin", Password: "pw"},
				Keys: config.Keys{PublicKey: "/keys/db1.pub", PrivateKey: "/keys/db1"},
			},
			{
				Name: "old", IP: "10.0.0.9", Port: "22", Include: false,
				Auth: config.Auth{Username: "root"},
			},
			{
				Name: "web", IP: "10.0.0.7", Port: "2200", Include: true,
				Auth: config.Auth{Username: "deploy", Password: "pw"},
				Keys: config.Keys{PublicKey: "/keys/web.pub", PrivateKey: "/keys/web"},
			},
		},
	}

	return &fixture{
		dir:    dir,
		path:   path,
		model:  model,
		sender: &fakeSender{fail: map[string]bool{}},
		out:    &bytes.Buffer{},
		store:  backup.NewStore(filepath.Join(dir, "save"), false),
		prompt: prompt.NewScripted(),
	}
}

func (f *fixture) run(t *testing.T, opts Options) (*Result, error) {
	t.Helper()
	if opts.KeyLogPath == "" {
		opts.KeyLogPath = filepath.Join(f.dir, "ssh-copy-id.log")
	}
	r := NewReconciler(f.model, opts, Deps{
		Store:    f.store,
		Prompter: f.prompt,
		Sender:   f.sender,
		Logger:   logger.NewBufferLogger(),
		Out:      f.out,
	})
	return r.Run(context.Background())
}

func (f *fixture) load(t *testing.T) *Document {
	t.Helper()
	doc, err := Load(f.path)
	require.NoError(t, err)
	return doc
}

func TestReconciler_UpdatesAndAppends(t *testing.T) {
	f := newFixture(t, existingConfig)

	res, err := f.run(t, Options{NotBackup: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"db1"}, res.Added)
	assert.Equal(t, []string{"web"}, res.NotAdded)

	doc := f.load(t)
	assert.Equal(t, []string{"db1", "old", "web"}, doc.Hosts())

	assert.Equal(t, "10.0.0.5", doc.Get("db1", "HostName"))
	assert.Equal(t, "22", doc.Get("db1", "Port"))
	assert.Equal(t, "admin", doc.Get("db1", "User"))
	assert.Equal(t, "/keys/db1", doc.Get("db1", "IdentityFile"))
	assert.Equal(t, "yes", doc.Get("db1", "Compression"), "unmanaged keys survive")

	assert.Equal(t, "9.9.9.9", doc.Get("old", "HostName"), "excluded hosts are never touched")
	assert.Equal(t, "root", doc.Get("old", "User"))

	assert.Equal(t, "10.0.0.7", doc.Get("web", "Hostname"))
	assert.Equal(t, "2200", doc.Get("web", "Port"))
}

func TestReconciler_DesiredHostsPresentAfterRun(t *testing.T) {
	f := newFixture(t, existingConfig)

	_, err := f.run(t, Options{NotBackup: true})
	require.NoError(t, err)

	hosts := f.load(t).Hosts()
	for _, name := range f.model.Desired() {
		assert.Contains(t, hosts, name)
	}
}

func TestReconciler_Idempotent(t *testing.T) {
	f := newFixture(t, existingConfig)

	_, err := f.run(t, Options{NotBackup: true})
	require.NoError(t, err)
	first, err := os.ReadFile(f.path)
	require.NoError(t, err)

	res, err := f.run(t, Options{NotBackup: true})
	require.NoError(t, err)
	second, err := os.ReadFile(f.path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, []string{"db1", "web"}, res.Added)
	assert.Empty(t, res.NotAdded)
}

func TestReconciler_CollapsesBlankLines(t *testing.T) {
	f := newFixture(t, existingConfig)

	_, err := f.run(t, Options{NotBackup: true})
	require.NoError(t, err)

	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\n\n\n")
}

func TestReconciler_PushesKeysOnlyToPreexistingHosts(t *testing.T) {
	f := newFixture(t, existingConfig)

	res, err := f.run(t, Options{NotBackup: true, AutoAuthorization: true, Method: setup.MethodSSHPass})
	require.NoError(t, err)

	// web is created by this run and gets no key; db1 was already configured.
	assert.Equal(t, []string{"db1"}, f.sender.sent)
	assert.Equal(t, []setup.Method{setup.MethodSSHPass}, f.sender.methods)
	assert.Equal(t, DefaultKeyTimeout, f.sender.timeout)
	assert.Zero(t, res.KeyFailed)
	assert.Contains(t, f.out.String(), "Sending key to db1 [__OK__]")
	assert.Contains(t, f.out.String(), "Successful sending of keys to all servers!")
	assert.NoFileExists(t, filepath.Join(f.dir, "ssh-copy-id.log"))
}

func TestReconciler_NoKeysWithoutAutoAuthorization(t *testing.T) {
	f := newFixture(t, existingConfig)

	_, err := f.run(t, Options{NotBackup: true})
	require.NoError(t, err)
	assert.Empty(t, f.sender.sent)
}

func TestReconciler_KeyFailuresAreLogged(t *testing.T) {
	f := newFixture(t, existingConfig+"\nHost web\n    HostName 1.2.3.4\n")
	f.sender.fail["web"] = true

	res, err := f.run(t, Options{NotBackup: true, AutoAuthorization: true, Method: setup.MethodExpect, KeyTimeout: 3 * time.Second})
	require.NoError(t, err, "per-host failures never abort the run")

	assert.Equal(t, []string{"db1", "web"}, f.sender.sent)
	assert.Equal(t, 3*time.Second, f.sender.timeout)
	assert.Equal(t, 1, res.KeyFailed)

	out := f.out.String()
	assert.Contains(t, out, "Sending key to web [FAILED]")
	assert.Contains(t, out, "Failed to send public key to 1 out of 2 servers!")
	assert.Contains(t, out, "To view the log, run: cat '"+res.KeyLogPath+"'")

	log, err := os.ReadFile(res.KeyLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(log), "SUCCESSFUL TRANSMISSION OF THE PUBLIC KEY")
	assert.Contains(t, string(log), "Host: 'db1', User: 'admin', IP: '10.0.0.5', Key: SHA256:abc")
	assert.Contains(t, string(log), "---- Host: 'web', User: 'deploy', IP: '10.0.0.7':\nStdout:\nout-web\nStderr:\nPermission denied----\n")
}

func TestReconciler_ResetRemovesDesiredHostsOnly(t *testing.T) {
	f := newFixture(t, existingConfig)

	res, err := f.run(t, Options{NotBackup: true, ResetAndExit: true, AutoAuthorization: true})
	require.NoError(t, err)

	doc := f.load(t)
	assert.Equal(t, []string{"old"}, doc.Hosts(), "web is not appended in reset mode")
	assert.Equal(t, "9.9.9.9", doc.Get("old", "HostName"))
	assert.Empty(t, res.Added)
	assert.Empty(t, f.sender.sent, "no keys are pushed in reset mode")
}

func TestReconciler_ClearStartsFromEmpty(t *testing.T) {
	f := newFixture(t, existingConfig)

	res, err := f.run(t, Options{NotBackup: true, ClearConfig: true, AutoAuthorization: true})
	require.NoError(t, err)

	assert.Empty(t, res.Added)
	assert.Equal(t, []string{"db1", "web"}, res.NotAdded)
	assert.Equal(t, []string{"db1"}, res.Configured)

	doc := f.load(t)
	assert.Equal(t, []string{"db1", "web"}, doc.Hosts())
	assert.Empty(t, doc.Get("db1", "Compression"))
}

func TestReconciler_ClearStillPushesToPreviouslyConfiguredHosts(t *testing.T) {
	f := newFixture(t, existingConfig)

	res, err := f.run(t, Options{NotBackup: true, ClearConfig: true, AutoAuthorization: true, Method: setup.MethodSSHPass})
	require.NoError(t, err)

	// db1 was in the file before it was cleared; web never was.
	assert.Equal(t, []string{"db1"}, f.sender.sent)
	assert.Zero(t, res.KeyFailed)
	assert.Contains(t, f.out.String(), "Sending key to db1 [__OK__]")
	assert.NotContains(t, f.out.String(), "Sending key to web")
	assert.Equal(t, "10.0.0.5", f.load(t).Get("db1", "HostName"))
}

func TestReconciler_ClearBeatsReset(t *testing.T) {
	f := newFixture(t, existingConfig)

	_, err := f.run(t, Options{NotBackup: true, ClearConfig: true, ResetAndExit: true})
	require.NoError(t, err)

	assert.Empty(t, f.load(t).Hosts())
}

func TestReconciler_Backup(t *testing.T) {
	f := newFixture(t, existingConfig)

	res, err := f.run(t, Options{})
	require.NoError(t, err)

	assert.Equal(t, f.path+".bak", res.BackupPath)
	data, err := os.ReadFile(res.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, existingConfig, string(data))
}

func TestReconciler_CreatesMissingConfig(t *testing.T) {
	f := newFixture(t, "")
	f.prompt = prompt.NewScripted(true)

	_, err := f.run(t, Options{})
	require.NoError(t, err)

	require.Len(t, f.prompt.Asked, 1)
	assert.Contains(t, f.prompt.Asked[0], "Ssh config '"+f.path+"' don't exist! Do you want to create?")

	info, err := os.Stat(f.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(f.path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	assert.Equal(t, []string{"db1", "web"}, f.load(t).Hosts())
}

func TestReconciler_PrefersCommandLinePath(t *testing.T) {
	f := newFixture(t, existingConfig)
	cli := filepath.Join(f.dir, "other", "config")
	require.NoError(t, os.MkdirAll(filepath.Dir(cli), 0o755))
	require.NoError(t, os.WriteFile(cli, []byte(""), 0o600))

	res, err := f.run(t, Options{ConfigPath: cli, NotBackup: true})
	require.NoError(t, err)

	assert.Equal(t, cli, res.Path)
	assert.Equal(t, []string{"db1", "old"}, f.load(t).Hosts(), "fallback file untouched")
}

func TestReconciler_FallsBackWhenCreationDeclined(t *testing.T) {
	f := newFixture(t, existingConfig)
	f.prompt = prompt.NewScripted(false)

	res, err := f.run(t, Options{ConfigPath: filepath.Join(f.dir, "missing"), NotBackup: true})
	require.NoError(t, err)
	assert.Equal(t, f.path, res.Path)
}

func TestReconciler_AbortsWithoutConfig(t *testing.T) {
	f := newFixture(t, "")
	f.prompt = prompt.NewScripted(false, false)

	_, err := f.run(t, Options{ConfigPath: filepath.Join(f.dir, "missing")})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAborted)
	assert.Equal(t, 1, errors.ExitCode(err))
	assert.Len(t, f.prompt.Asked, 2)
}

func TestReconciler_Reports(t *testing.T) {
	f := newFixture(t, existingConfig)

	_, err := f.run(t, Options{NotBackup: true})
	require.NoError(t, err)

	out := f.out.String()
	before := out[strings.Index(out, "BEFORE"):strings.Index(out, "AFTER")]
	assert.Contains(t, before, "Desired added     = db1\n")
	assert.Contains(t, before, "Desired NOT added = web\n")
	assert.Contains(t, before, "All profiles      = db1, old\n")

	after := out[strings.Index(out, "AFTER"):]
	assert.Contains(t, after, "Desired added     = db1, web\n")
	assert.Contains(t, after, "Desired NOT added = ['']\n")
}

func TestFormatKeyLog_NoSuccesses(t *testing.T) {
	log := FormatKeyLog(nil, []KeyFailure{{Host: "h", Stdout: "o\n", Stderr: "e\n"}})

	assert.True(t, strings.HasPrefix(log, "Don't worry, someday it will work ^_^"))
	assert.Contains(t, log, "---- h:\nStdout:\no\n\nStderr:\ne\n----\n")
	assert.True(t, strings.HasSuffix(log, "END FAILED ************************************\n"))
}

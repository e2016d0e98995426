package cli

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	dconftest "github.com/okssh/okssh/internal/dconf/testing"
	"github.com/okssh/okssh/internal/errors"
	"github.com/okssh/okssh/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/ssh"
)

const (
	schema      = "/org/mate/terminal/profiles/"
	profileList = "/org/mate/terminal/global/profile-list"
)

type fixture struct {
	dir       string
	yml       string
	sshConfig string
	keyLog    string
	fake      *dconftest.FakeDconf
	out       *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "id_test.pub")
	require.NoError(t, os.WriteFile(pubPath, ssh.MarshalAuthorizedKey(sshPub), 0o600))

	f := &fixture{
		dir:       dir,
		yml:       filepath.Join(dir, "servers.yml"),
		sshConfig: filepath.Join(dir, "ssh", "config"),
		keyLog:    filepath.Join(dir, "ssh-copy-id.log"),
		out:       &bytes.Buffer{},
	}

	yml := `
base_profile: Default
ssh_config_dest: ` + f.sshConfig + `
opts_key_from_base_profile: [background-color, scrollback-lines]
dict_of_servers:
  db1:
    ip: 10.0.0.1
    i_want_add: true
    authorization: {username: deploy, password: s3cret}
    keys: {public_key: ` + pubPath + `, private_key: ` + filepath.Join(dir, "id_test") + `}
  web:
    ip: 10.0.0.2
    port: 2222
    i_want_add: true
    authorization: {username: deploy, password: s3cret}
    keys: {public_key: ` + pubPath + `, private_key: ` + filepath.Join(dir, "id_test") + `}
  old:
    ip: 10.0.0.3
    i_want_add: false
    authorization: {username: root, password: x}
    keys: {public_key: ` + pubPath + `, private_key: ` + filepath.Join(dir, "id_test") + `}
`
	require.NoError(t, os.WriteFile(f.yml, []byte(yml), 0o600))

	require.NoError(t, os.MkdirAll(filepath.Dir(f.sshConfig), 0o700))
	require.NoError(t, os.WriteFile(f.sshConfig, []byte("Host db1\n    HostName 10.9.9.9\n    User old\n"), 0o600))

	f.fake = dconftest.NewFakeDconf().
		AddProfile(schema, "Default", map[string]string{
			"background-color": "'#300a24'",
			"scrollback-lines": "1024",
		}).
		Set(profileList, "['Default']")
	return f
}

func (f *fixture) options() Options {
	return Options{
		DconfActions:     true,
		SSHConfigActions: true,
		YMLConfig:        f.yml,
		SaveDir:          filepath.Join(f.dir, "backups"),
		Terminal:         "mate",
		NoColor:          true,
	}
}

func (f *fixture) env(p *prompt.Scripted, installed ...string) runEnv {
	return runEnv{
		Runner:     f.fake,
		LookPath:   lookPathWith(installed...),
		Prompter:   p,
		Out:        f.out,
		KeyLogPath: f.keyLog,
	}
}

func TestRun_DconfAndSSHConfig(t *testing.T) {
	f := newFixture(t)

	err := run(context.Background(), f.options(), f.env(prompt.NewScripted(), "sshpass"))
	require.NoError(t, err)

	for _, name := range []string{"db1", "web"} {
		title, ok := f.fake.Get(schema + name + "/title")
		require.True(t, ok, name)
		assert.Equal(t, "'"+name+"'", title)
		bg, _ := f.fake.Get(schema + name + "/background-color")
		assert.Equal(t, "'#300a24'", bg)
	}
	list, _ := f.fake.Get(profileList)
	assert.Equal(t, "['Default', 'db1', 'web']", list)

	data, err := os.ReadFile(f.sshConfig)
	require.NoError(t, err)
	cfg := string(data)
	assert.Contains(t, cfg, "10.0.0.1")
	assert.NotContains(t, cfg, "10.9.9.9")
	assert.Contains(t, cfg, "Host web")
	assert.Contains(t, cfg, "Port 2222")

	var pushes []string
	for _, c := range f.fake.Calls {
		if c.Name == "sshpass" {
			pushes = append(pushes, c.String())
		}
	}
	require.Len(t, pushes, 1, "only the pre-existing host gets a key")
	assert.Contains(t, pushes[0], "deploy@10.0.0.1")

	assert.FileExists(t, filepath.Join(f.dir, "backups", "dconf_restore.txt"))
	assert.FileExists(t, filepath.Join(f.dir, "backups", "org.mate.terminal.profiles.ini"))
	assert.FileExists(t, f.sshConfig+".bak")

	out := f.out.String()
	assert.Contains(t, out, "*** DCONF STATE AFTER EDITING: ***")
	assert.Contains(t, out, "*** SSH CONFIG STATE AFTER EDITING: ***")
	assert.Contains(t, out, "Successful sending of keys to all servers!")
	assert.Less(t, strings.Index(out, "DCONF STATE"), strings.Index(out, "SSH CONFIG STATE"))
}

func TestRun_OnlySelectedActions(t *testing.T) {
	f := newFixture(t)
	o := f.options()
	o.DconfActions = false
	o.NoAutoAuthorization = true
	o.NotBackup = true

	require.NoError(t, run(context.Background(), o, f.env(prompt.NewScripted())))

	assert.Empty(t, f.fake.Subcommands(), "dconf is not touched")
	data, err := os.ReadFile(f.sshConfig)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Host web")
	assert.NoFileExists(t, f.sshConfig+".bak")
}

func TestRun_UnreachableKeyringIsNotFatal(t *testing.T) {
	keyring.MockInitWithError(stderrors.New("org.freedesktop.secrets was not provided"))
	t.Cleanup(keyring.MockInit)

	for _, name := range []string{"dconf only", "ssh with keys"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			data, err := os.ReadFile(f.yml)
			require.NoError(t, err)
			noPasswords := strings.ReplaceAll(string(data), ", password: s3cret", "")
			require.NoError(t, os.WriteFile(f.yml, []byte(noPasswords), 0o600))

			o := f.options()
			o.DconfActions = name == "dconf only"
			o.SSHConfigActions = !o.DconfActions
			env := f.env(prompt.NewScripted(), "sshpass")
			env.KeyringService = "okssh-test"

			require.NoError(t, run(context.Background(), o, env))
		})
	}
}

func TestRun_ResetAndExit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, run(context.Background(), f.options(), f.env(prompt.NewScripted(), "sshpass")))

	o := f.options()
	o.ResetAndExit = true
	require.NoError(t, run(context.Background(), o, f.env(prompt.NewScripted(true), "sshpass")))

	assert.Empty(t, f.fake.Keys(schema+"db1/"))
	assert.Empty(t, f.fake.Keys(schema+"web/"))
	list, _ := f.fake.Get(profileList)
	assert.Equal(t, "['Default']", list)

	data, err := os.ReadFile(f.sshConfig)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Host db1")
	assert.NotContains(t, string(data), "Host web")
}

func TestRun_ResetDeclined(t *testing.T) {
	f := newFixture(t)
	o := f.options()
	o.ResetAndExit = true

	err := run(context.Background(), o, f.env(prompt.NewScripted(false), "sshpass"))

	assert.ErrorIs(t, err, errors.ErrCancelled)
	assert.Empty(t, f.fake.Calls)
}

func TestRun_InvalidModel(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.yml, []byte("dict_of_servers:\n  db1:\n    i_want_add: true\n"), 0o600))

	err := run(context.Background(), f.options(), f.env(prompt.NewScripted(), "sshpass"))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Empty(t, f.fake.Calls)
}

func TestRun_DconfErrorStopsBeforeSSHConfig(t *testing.T) {
	f := newFixture(t)
	o := f.options()
	o.BaseProfile = "Missing"

	// The fallback to base_profile is declined.
	err := run(context.Background(), o, f.env(prompt.NewScripted(false), "sshpass"))

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAborted)
	data, rerr := os.ReadFile(f.sshConfig)
	require.NoError(t, rerr)
	assert.NotContains(t, string(data), "Host web")
}

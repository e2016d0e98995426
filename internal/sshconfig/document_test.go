package sshconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/okssh/okssh/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `# managed by hand
Host *
    ServerAliveInterval 30

Host db1
    HostName 1.1.1.1
    ForwardAgent yes # keep me

Host web web-alt
    User deploy

Host old
    HostName 9.9.9.9
`

func TestParse_Hosts(t *testing.T) {
	doc, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"db1", "web", "web-alt", "old"}, doc.Hosts())
	assert.True(t, doc.Has("db1"))
	assert.False(t, doc.Has("*"))
	assert.False(t, doc.Has("missing"))
	assert.Equal(t, "1.1.1.1", doc.Get("db1", "hostname"), "key lookup ignores case")
}

func TestParse_RefusesMatch(t *testing.T) {
	_, err := Parse([]byte("Host a\n    User x\n\nMatch host b\n    User y\n"))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "line 4")
}

func TestParse_DuplicateAliasListedOnce(t *testing.T) {
	doc, err := Parse([]byte("Host a\n    Port 1\n\nHost a\n    Port 2\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, doc.Hosts())
	assert.Equal(t, "2", doc.Get("a", "Port"), "last stanza wins")
}

func TestDocument_SetPreservesOtherKeys(t *testing.T) {
	doc, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	require.NoError(t, doc.Set("db1", []Option{
		{Key: "Hostname", Value: "10.0.0.5"},
		{Key: "Port", Value: "2222"},
		{Key: "User", Value: "admin"},
	}))

	out := doc.String()
	assert.Contains(t, out, "# managed by hand")
	assert.Contains(t, out, "ServerAliveInterval 30")
	assert.Contains(t, out, "ForwardAgent yes")
	assert.Contains(t, out, "keep me")
	assert.Contains(t, out, "HostName 10.0.0.5", "existing key keeps its spelling")
	assert.NotContains(t, out, "1.1.1.1")

	reparsed, err := Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", reparsed.Get("db1", "HostName"))
	assert.Equal(t, "2222", reparsed.Get("db1", "Port"))
	assert.Equal(t, "admin", reparsed.Get("db1", "User"))
	assert.Equal(t, "deploy", reparsed.Get("web", "User"), "other stanzas untouched")
	assert.Equal(t, doc.Hosts(), reparsed.Hosts())
}

func TestDocument_SetUnknownHost(t *testing.T) {
	doc, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	err = doc.Set("nope", []Option{{Key: "Port", Value: "22"}})
	require.Error(t, err)
}

func TestDocument_Add(t *testing.T) {
	doc, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	require.NoError(t, doc.Add("cache", []Option{
		{Key: "Hostname", Value: "10.0.0.8"},
		{Key: "Port", Value: "22"},
		{Key: "User", Value: "root"},
		{Key: "IdentityFile", Value: "/keys/id"},
	}))

	reparsed, err := Parse([]byte(doc.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{"db1", "web", "web-alt", "old", "cache"}, reparsed.Hosts())
	assert.Equal(t, "10.0.0.8", reparsed.Get("cache", "Hostname"))
	assert.Equal(t, "/keys/id", reparsed.Get("cache", "IdentityFile"))
	assert.Equal(t, "9.9.9.9", reparsed.Get("old", "HostName"), "previous last stanza keeps its keys")
}

func TestDocument_AddToEmpty(t *testing.T) {
	doc := Empty()
	assert.Empty(t, doc.Hosts())

	require.NoError(t, doc.Add("a", []Option{{Key: "Hostname", Value: "1.2.3.4"}}))
	require.NoError(t, doc.Add("b", []Option{{Key: "Hostname", Value: "5.6.7.8"}}))

	reparsed, err := Parse([]byte(doc.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reparsed.Hosts())
	assert.Equal(t, "5.6.7.8", reparsed.Get("b", "Hostname"))
}

func TestDocument_AddRejectsWildcard(t *testing.T) {
	require.Error(t, Empty().Add("db*", nil))
}

func TestDocument_Remove(t *testing.T) {
	doc, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	doc.Remove("db1")
	doc.Remove("web")

	reparsed, err := Parse([]byte(doc.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{"web-alt", "old"}, reparsed.Hosts())
	assert.Equal(t, "deploy", reparsed.Get("web-alt", "User"), "shared stanza survives for the other alias")
	assert.NotContains(t, doc.String(), "ForwardAgent", "removed stanza body is dropped")
	assert.Contains(t, doc.String(), "ServerAliveInterval 30")
}

func TestDocument_SaveKeepsMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o640))

	doc, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, doc.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to load")
}

// Package sshconfig keeps the operator's SSH client config in step with the
// server list: hosts are updated in place, missing ones are appended, and
// public keys are pushed to hosts that were already configured.
package sshconfig

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/kevinburke/ssh_config"
	"github.com/okssh/okssh/internal/errors"
)

// Option is one keyword/argument line inside a Host stanza.
type Option struct {
	Key   string
	Value string
}

// Document is an editable SSH config file. Comments, blank lines and keys it
// does not touch survive a round trip.
type Document struct {
	cfg *ssh_config.Config
}

// Parse decodes an SSH config. Files containing a Match block are refused:
// the parser cannot represent them and saving would drop everything after
// the first Match line.
func Parse(data []byte) (*Document, error) {
	if line := matchLine(data); line > 0 {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("SSH config has a Match block at line %d", line),
			"okssh can't safely rewrite configs with Match blocks. Move them to a file pulled in with Include, or pass --ssh-config-dest.")
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't parse SSH config",
			"Fix the syntax error and rerun.")
	}
	return &Document{cfg: cfg}, nil
}

// Load reads and parses the SSH config at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to load %s!", path),
			"")
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Invalid SSH config %s", path),
			"")
	}
	return doc, nil
}

// Empty returns a document with no hosts.
func Empty() *Document {
	doc, _ := Parse(nil)
	return doc
}

// matchLine returns the 1-indexed line of the first Match directive, or 0.
func matchLine(data []byte) int {
	for i, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.EqualFold(fields[0], "match") {
			return i + 1
		}
	}
	return 0
}

// Hosts returns the concrete host aliases in file order. Wildcard and negated
// patterns are skipped, and an alias repeated across stanzas is listed once.
func (d *Document) Hosts() []string {
	var hosts []string
	seen := make(map[string]bool)
	for _, host := range d.cfg.Hosts {
		for _, pattern := range host.Patterns {
			alias := pattern.String()
			if !isConcrete(alias) || seen[alias] {
				continue
			}
			seen[alias] = true
			hosts = append(hosts, alias)
		}
	}
	return hosts
}

// Has reports whether alias names a stanza.
func (d *Document) Has(alias string) bool {
	return d.lastHost(alias) != nil
}

// Get returns the value of key in alias's stanza. Key matching is
// case-insensitive and the last stanza for a repeated alias is used.
func (d *Document) Get(alias, key string) string {
	host := d.lastHost(alias)
	if host == nil {
		return ""
	}
	for _, node := range host.Nodes {
		if kv, ok := node.(*ssh_config.KV); ok && strings.EqualFold(kv.Key, key) {
			return unquote(kv.Value)
		}
	}
	return ""
}

// Set overwrites the given keys in alias's stanza and appends the keys it
// lacks. Other keys and comments are left alone.
func (d *Document) Set(alias string, opts []Option) error {
	host := d.lastHost(alias)
	if host == nil {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host %s is not in the SSH config", alias), "")
	}

	for _, opt := range opts {
		found := false
		for _, node := range host.Nodes {
			if kv, ok := node.(*ssh_config.KV); ok && strings.EqualFold(kv.Key, opt.Key) {
				kv.Value = quote(opt.Value)
				found = true
			}
		}
		if found {
			continue
		}

		kv, err := newKV(opt)
		if err != nil {
			return err
		}
		insertKV(host, kv)
	}
	return nil
}

// Add appends a new stanza for alias holding opts.
func (d *Document) Add(alias string, opts []Option) error {
	if !isConcrete(alias) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' is not a valid host alias", alias), "")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Host %s\n", alias)
	for _, opt := range opts {
		fmt.Fprintf(&b, "    %s %s\n", opt.Key, quote(opt.Value))
	}
	b.WriteString("\n")

	snippet, err := ssh_config.Decode(strings.NewReader(b.String()))
	if err != nil || len(snippet.Hosts) < 2 {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't build a Host stanza for %s", alias), "")
	}

	d.separateLastHost()
	d.cfg.Hosts = append(d.cfg.Hosts, snippet.Hosts[1:]...)
	return nil
}

// Remove deletes alias from every stanza naming it. A stanza left without
// patterns is dropped with its body.
func (d *Document) Remove(alias string) {
	kept := d.cfg.Hosts[:0]
	for i, host := range d.cfg.Hosts {
		if i == 0 {
			// implicit top-level block
			kept = append(kept, host)
			continue
		}
		patterns := host.Patterns[:0]
		removed := false
		for _, p := range host.Patterns {
			if p.String() == alias {
				removed = true
				continue
			}
			patterns = append(patterns, p)
		}
		host.Patterns = patterns
		if removed && len(patterns) == 0 {
			continue
		}
		kept = append(kept, host)
	}
	d.cfg.Hosts = kept
}

// String renders the document in ssh_config syntax.
func (d *Document) String() string {
	return d.cfg.String()
}

// Save writes the document to path, keeping the mode of an existing file.
func (d *Document) Save(path string) error {
	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(d.String()), mode); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't save %s", path),
			"Check permissions on the SSH config.")
	}
	return nil
}

func (d *Document) lastHost(alias string) *ssh_config.Host {
	for i := len(d.cfg.Hosts) - 1; i >= 1; i-- {
		for _, p := range d.cfg.Hosts[i].Patterns {
			if p.String() == alias {
				return d.cfg.Hosts[i]
			}
		}
	}
	return nil
}

// separateLastHost makes sure the final stanza ends with a blank line so an
// appended stanza does not run into it.
func (d *Document) separateLastHost() {
	last := d.cfg.Hosts[len(d.cfg.Hosts)-1]
	if len(last.Nodes) == 0 {
		return
	}
	if _, ok := last.Nodes[len(last.Nodes)-1].(*ssh_config.Empty); ok {
		return
	}
	if blank := newBlank(); blank != nil {
		last.Nodes = append(last.Nodes, blank)
	}
}

// newKV builds a KV node by decoding a one-line stanza, so indentation
// matches what Add writes.
func newKV(opt Option) (ssh_config.Node, error) {
	snippet, err := ssh_config.Decode(strings.NewReader(
		fmt.Sprintf("Host _\n    %s %s\n", opt.Key, quote(opt.Value))))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Invalid SSH option %s %s", opt.Key, opt.Value), "")
	}
	for _, node := range snippet.Hosts[len(snippet.Hosts)-1].Nodes {
		if _, ok := node.(*ssh_config.KV); ok {
			return node, nil
		}
	}
	return nil, errors.New(errors.ErrConfig,
		fmt.Sprintf("Invalid SSH option %s %s", opt.Key, opt.Value), "")
}

func newBlank() ssh_config.Node {
	snippet, err := ssh_config.Decode(strings.NewReader("Host _\n\n"))
	if err != nil {
		return nil
	}
	for _, node := range snippet.Hosts[len(snippet.Hosts)-1].Nodes {
		if _, ok := node.(*ssh_config.Empty); ok {
			return node
		}
	}
	return nil
}

// insertKV places kv after the stanza's last KV, ahead of trailing blank
// lines and comments that separate it from the next stanza.
func insertKV(host *ssh_config.Host, kv ssh_config.Node) {
	at := 0
	for i, node := range host.Nodes {
		if _, ok := node.(*ssh_config.KV); ok {
			at = i + 1
		}
	}
	host.Nodes = append(host.Nodes, nil)
	copy(host.Nodes[at+1:], host.Nodes[at:])
	host.Nodes[at] = kv
}

func isConcrete(alias string) bool {
	return alias != "" && !strings.ContainsAny(alias, "*?!")
}

func quote(value string) string {
	if strings.ContainsAny(value, " \t") && !strings.HasPrefix(value, `"`) {
		return `"` + value + `"`
	}
	return value
}

func unquote(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return value[1 : len(value)-1]
	}
	return value
}

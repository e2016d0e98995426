package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/okssh/okssh/internal/errors"
	"github.com/okssh/okssh/internal/logger"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is the YAML model looked up next to the executable.
	DefaultFileName = "servers.yml"
	// EnvPrefix prefixes environment overrides, e.g. OKSSH_BASE_PROFILE.
	EnvPrefix = "OKSSH"
	// KeyringService is the keyring service holding server passwords.
	KeyringService = "okssh"
	// DefaultSSHConfigDest is used when the document has no ssh_config_dest.
	DefaultSSHConfigDest = "~/.ssh/config"
)

// Top-level document keys.
const (
	keyServers         = "dict_of_servers"
	keyBaseProfile     = "base_profile"
	keyBaseProfileKeys = "opts_key_from_base_profile"
	keySSHConfigDest   = "ssh_config_dest"
)

type loadOptions struct {
	keyringService string
	log            logger.Logger
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithKeyring resolves empty passwords from the OS keyring under service,
// using the server name as the account.
func WithKeyring(service string) LoadOption {
	return func(o *loadOptions) {
		o.keyringService = service
	}
}

// WithLogger receives the warning logged when the keyring can't be reached.
func WithLogger(log logger.Logger) LoadOption {
	return func(o *loadOptions) {
		o.log = log
	}
}

// Load reads, renders and parses the YAML model at path.
func Load(path string, opts ...LoadOption) (*Model, error) {
	o := loadOptions{log: logger.Noop()}
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("The file %s does not exist!", path),
				"Specify the server list with --yml-config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to load %s!", path),
			"Check the file permissions")
	}

	rendered, err := render(path, raw)
	if err != nil {
		return nil, err
	}

	m, err := Parse(rendered)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Invalid server list in %s", path),
			"Check the YAML syntax and the dict_of_servers section")
	}
	m.Path = path

	if o.keyringService != "" {
		resolvePasswords(m, o.keyringService, o.log)
	}

	return m, nil
}

// Parse builds a Model from rendered YAML.
func Parse(data []byte) (*Model, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("empty YAML document")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping at document root")
	}

	for i := 1; i < len(doc.Content); i += 2 {
		if err := expandLiteral(doc.Content[i], true); err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Content[i-1].Value, err)
		}
	}

	servers, err := decodeServers(findMapValue(doc, keyServers))
	if err != nil {
		return nil, err
	}

	v, err := settings(doc)
	if err != nil {
		return nil, err
	}

	return &Model{
		Servers:         servers,
		BaseProfile:     v.GetString(keyBaseProfile),
		BaseProfileKeys: v.GetStringSlice(keyBaseProfileKeys),
		SSHConfigDest:   ExpandTilde(v.GetString(keySSHConfigDest)),
	}, nil
}

// settings loads the scalar top-level keys through viper so they can be
// overridden from the environment. dict_of_servers is left out: viper folds
// key case and splits on dots, which would corrupt server names.
func settings(doc *yaml.Node) (*viper.Viper, error) {
	top := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == keyServers {
			continue
		}
		top.Content = append(top.Content, doc.Content[i], doc.Content[i+1])
	}

	out, err := yaml.Marshal(top)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault(keySSHConfigDest, DefaultSSHConfigDest)

	if err := v.ReadConfig(bytes.NewReader(out)); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeServers(node *yaml.Node) ([]Server, error) {
	if node == nil {
		return nil, fmt.Errorf("'%s' key not found", keyServers)
	}
	if err := expandLiteral(node, false); err != nil {
		return nil, err
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("'%s' must be a mapping of server name to settings", keyServers)
	}

	servers := make([]Server, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		body := node.Content[i+1]

		if body.Kind == yaml.MappingNode {
			// Attribute values written as "{...}" strings are structured literals.
			for j := 1; j < len(body.Content); j += 2 {
				if err := expandLiteral(body.Content[j], false); err != nil {
					return nil, fmt.Errorf("server '%s': %s: %w", name, body.Content[j-1].Value, err)
				}
			}
		}

		var s Server
		if err := body.Decode(&s); err != nil {
			return nil, fmt.Errorf("server '%s': %w", name, err)
		}
		s.Name = name
		if s.Port == "" {
			s.Port = DefaultPort
		}
		s.Keys.PublicKey = ExpandTilde(s.Keys.PublicKey)
		s.Keys.PrivateKey = ExpandTilde(s.Keys.PrivateKey)
		servers = append(servers, s)
	}
	return servers, nil
}

// expandLiteral replaces a string scalar holding a {...} (or [...] when
// allowList is set) literal with the parsed flow node, in place.
func expandLiteral(node *yaml.Node, allowList bool) error {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!str" || !isLiteral(node.Value, allowList) {
		return nil
	}

	var parsed yaml.Node
	if err := yaml.Unmarshal([]byte(node.Value), &parsed); err != nil {
		return fmt.Errorf("invalid literal %q: %w", node.Value, err)
	}
	if parsed.Kind == yaml.DocumentNode && len(parsed.Content) == 1 {
		*node = *parsed.Content[0]
	}
	return nil
}

func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Kind == yaml.ScalarNode && node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}

	return nil
}

// render executes the document as a text/template whose data is the document
// itself, so values can reference other values. Files without actions are
// returned unchanged.
func render(path string, raw []byte) ([]byte, error) {
	if !bytes.Contains(raw, []byte("{{")) {
		return raw, nil
	}

	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Invalid YAML in %s", path),
			"Template actions must sit inside quoted strings")
	}

	tmpl, err := template.New(filepath.Base(path)).
		Funcs(template.FuncMap{"path_join": pathJoin}).
		Parse(string(raw))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Invalid template in %s", path),
			"")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to render %s", path),
			"")
	}
	return buf.Bytes(), nil
}

// pathJoin joins its arguments as path elements; list arguments are flattened.
func pathJoin(parts ...any) string {
	var elems []string
	for _, p := range parts {
		switch v := p.(type) {
		case []any:
			for _, e := range v {
				elems = append(elems, fmt.Sprint(e))
			}
		case []string:
			elems = append(elems, v...)
		default:
			elems = append(elems, fmt.Sprint(v))
		}
	}
	return filepath.Join(elems...)
}

// resolvePasswords fills empty passwords of included servers from the
// keyring. A keyring that can't be reached is not fatal: the passwords stay
// empty and the lookup stops after one warning.
func resolvePasswords(m *Model, service string, log logger.Logger) {
	for i := range m.Servers {
		s := &m.Servers[i]
		if s.Auth.Password != "" || !s.Include {
			continue
		}
		pw, err := keyring.Get(service, s.Name)
		if err != nil {
			if stderrors.Is(err, keyring.ErrNotFound) {
				continue
			}
			log.Warn("can't read the password for '%s' from the keyring, leaving passwords empty: %v", s.Name, err)
			return
		}
		s.Auth.Password = strings.TrimRight(pw, "\n")
	}
}

package config

import (
	"fmt"
	"strings"
)

// DefaultPort is used when a server omits port.
const DefaultPort = "22"

// Auth holds the credentials used when pushing a public key.
type Auth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Keys holds the key pair paths for a server. Paths are tilde-expanded on load.
type Keys struct {
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"`
}

// Server is one entry of dict_of_servers.
type Server struct {
	// Name is the mapping key; it doubles as the SSH host alias and the
	// terminal profile directory name.
	Name    string `yaml:"-"`
	IP      string `yaml:"ip"`
	Port    string `yaml:"port"`
	Include bool   `yaml:"i_want_add"`
	Auth    Auth   `yaml:"authorization"`
	Keys    Keys   `yaml:"keys"`
}

// Target returns user@ip.
func (s Server) Target() string {
	return s.Auth.Username + "@" + s.IP
}

// ConnectCommand returns the ssh command a terminal profile runs.
func (s Server) ConnectCommand() string {
	return fmt.Sprintf("ssh -p %s %s", s.Port, s.Target())
}

// Describe is the one-line summary used in logs.
func (s Server) Describe() string {
	return fmt.Sprintf("Host: '%s', User: '%s', IP: '%s'", s.Name, s.Auth.Username, s.IP)
}

// Model is the parsed YAML document. It is read once and not modified.
type Model struct {
	// Path is the file the model was loaded from.
	Path string

	// Servers in document order.
	Servers []Server

	// BaseProfile is the fallback terminal profile to clone.
	BaseProfile string

	// BaseProfileKeys are the dconf key basenames copied from the base profile.
	BaseProfileKeys []string

	// SSHConfigDest is the fallback SSH config path.
	SSHConfigDest string
}

// Server looks up a server by name.
func (m *Model) Server(name string) (Server, bool) {
	for _, s := range m.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return Server{}, false
}

// Desired returns the names of servers marked for inclusion, in document order.
func (m *Model) Desired() []string {
	var names []string
	for _, s := range m.Servers {
		if s.Include {
			names = append(names, s.Name)
		}
	}
	return names
}

// Skipped returns everything that must not be added or edited: the base
// profile (when given) followed by every server not marked for inclusion.
func (m *Model) Skipped(baseProfile string) []string {
	var names []string
	if baseProfile != "" {
		names = append(names, baseProfile)
	}
	for _, s := range m.Servers {
		if !s.Include && s.Name != baseProfile {
			names = append(names, s.Name)
		}
	}
	return names
}

// Intersect returns the desired names present in existing, keeping desired order.
func Intersect(desired, existing []string) []string {
	set := toSet(existing)
	var out []string
	for _, name := range desired {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}

// Subtract returns the desired names missing from existing, keeping desired order.
func Subtract(desired, existing []string) []string {
	set := toSet(existing)
	var out []string
	for _, name := range desired {
		if !set[name] {
			out = append(out, name)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// isLiteral reports whether a string value is a {...} or [...] literal.
func isLiteral(s string, allowList bool) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}
	ends := string(s[0]) + string(s[len(s)-1])
	return ends == "{}" || (allowList && ends == "[]")
}

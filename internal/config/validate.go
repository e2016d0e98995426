package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okssh/okssh/internal/errors"
)

// Validate checks the model for errors that would otherwise surface half-way
// through a reconciliation.
func Validate(m *Model) error {
	if len(m.Servers) == 0 {
		return errors.New(errors.ErrConfig,
			"No servers defined",
			"Add at least one entry under dict_of_servers.")
	}

	seen := make(map[string]bool, len(m.Servers))
	for _, s := range m.Servers {
		if seen[s.Name] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Server '%s' is defined twice", s.Name),
				"Server names must be unique within dict_of_servers.")
		}
		seen[s.Name] = true

		if err := validateServer(s); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("Server '%s' is invalid", s.Name),
				"Check its entry in "+displayPath(m.Path))
		}
	}

	for _, key := range m.BaseProfileKeys {
		if key == "" || strings.Contains(key, "/") {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("'%s' is not a valid dconf key name", key),
				"opts_key_from_base_profile lists key basenames like 'font' or 'use-system-font'.")
		}
	}

	return nil
}

func validateServer(s Server) error {
	if s.Name == "" {
		return fmt.Errorf("empty server name")
	}
	if strings.ContainsAny(s.Name, "/ \t*?") {
		return fmt.Errorf("name must not contain '/', whitespace or wildcards")
	}
	if !s.Include {
		return nil
	}
	if s.IP == "" {
		return fmt.Errorf("ip is required")
	}
	port, err := strconv.Atoi(s.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port '%s' is not a valid TCP port", s.Port)
	}
	if s.Auth.Username == "" {
		return fmt.Errorf("authorization.username is required")
	}
	if s.Keys.PublicKey == "" || s.Keys.PrivateKey == "" {
		return fmt.Errorf("keys.public_key and keys.private_key are required")
	}
	return nil
}

func displayPath(path string) string {
	if path == "" {
		return "the server list"
	}
	return path
}

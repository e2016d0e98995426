package setup

import (
	"fmt"
	"os"
	"strings"

	"github.com/okssh/okssh/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ReadPublicKey reads the contents of a public key file.
func ReadPublicKey(pubPath string) (string, error) {
	data, err := os.ReadFile(pubPath)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Failed to read public key: %s", pubPath),
			"Check keys.public_key for this server")
	}
	return strings.TrimSpace(string(data)), nil
}

// ValidatePublicKey parses the authorized_keys line in pubPath and returns
// its SHA256 fingerprint.
func ValidatePublicKey(pubPath string) (string, error) {
	content, err := ReadPublicKey(pubPath)
	if err != nil {
		return "", err
	}

	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(content))
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("%s is not a valid public key", pubPath),
			"keys.public_key must point at the .pub file, not the private key")
	}
	return ssh.FingerprintSHA256(key), nil
}

// failureHint turns common ssh-copy-id output into a suggestion.
func failureHint(output string) string {
	switch {
	case strings.Contains(output, "Permission denied"):
		return "Double-check the password for this server."
	case strings.Contains(output, "Connection refused"):
		return "Make sure SSH is running on the remote machine and the port is right."
	case strings.Contains(output, "Could not resolve hostname"):
		return "Check the ip and your network connection."
	case strings.Contains(output, "No route to host"), strings.Contains(output, "timed out"):
		return "The host is unreachable from here."
	}
	return ""
}

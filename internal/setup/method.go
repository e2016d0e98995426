package setup

import (
	"os/exec"
	"strings"

	"github.com/okssh/okssh/internal/errors"
)

// Method is the helper that types the password for ssh-copy-id.
type Method string

const (
	MethodSSHPass Method = "sshpass"
	MethodExpect  Method = "expect"
)

// Methods lists the supported helpers in order of preference.
var Methods = []Method{MethodSSHPass, MethodExpect}

// LookPathFunc resolves a binary name to a path, like exec.LookPath.
type LookPathFunc func(file string) (string, error)

// DetectMethod chooses the key push helper. With no preference, sshpass wins
// when installed and expect is the fallback. A preference must name a
// supported helper that is installed.
func DetectMethod(lookPath LookPathFunc, preferred string) (Method, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	installed := func(m Method) bool {
		_, err := lookPath(string(m))
		return err == nil
	}

	hasSSHPass := installed(MethodSSHPass)
	hasExpect := installed(MethodExpect)
	if !hasSSHPass && !hasExpect {
		return "", errors.New(errors.ErrConfig,
			"Please install sshpass or expect for automatic authorization while copying the public key!",
			"Or pass --no-auto-authorization (-a) to skip sending keys.")
	}

	if preferred == "" {
		if hasSSHPass {
			return MethodSSHPass, nil
		}
		return MethodExpect, nil
	}

	m := Method(strings.ToLower(strings.TrimSpace(preferred)))
	switch m {
	case MethodSSHPass, MethodExpect:
	default:
		return "", errors.New(errors.ErrConfig,
			`-a "`+string(m)+`" is not correct!`,
			"Supported methods: sshpass, expect")
	}

	if !installed(m) {
		return "", errors.New(errors.ErrConfig,
			"Please install "+string(m)+" !",
			"")
	}
	return m, nil
}

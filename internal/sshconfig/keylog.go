package sshconfig

import (
	"fmt"
	"strings"

	"github.com/okssh/okssh/internal/backup"
)

// DefaultKeyLogPath is where key push failures are summarized.
const DefaultKeyLogPath = "/tmp/ssh-copy-id.log"

// KeyFailure is one host whose key push failed.
type KeyFailure struct {
	Host   string
	Stdout string
	Stderr string
}

func (f KeyFailure) String() string {
	return fmt.Sprintf("---- %s:\nStdout:\n%s\nStderr:\n%s----\n", f.Host, f.Stdout, f.Stderr)
}

// FormatKeyLog renders the success and failure sections of the key log.
func FormatKeyLog(successes []string, failures []KeyFailure) string {
	var b strings.Builder

	if len(successes) > 0 {
		b.WriteString("******************** SUCCESSFUL TRANSMISSION OF THE PUBLIC KEY: ********************\n\n")
		b.WriteString(strings.Join(successes, "\n\n"))
		b.WriteString("\n*********************************** END SUCCESS ************************************")
	} else {
		b.WriteString("Don't worry, someday it will work ^_^")
	}

	entries := make([]string, len(failures))
	for i, f := range failures {
		entries[i] = f.String()
	}
	b.WriteString("\n\n\n************************ FAILED TRANSMISSION OF PUBLIC KEY: ************************\n\n")
	b.WriteString(strings.Join(entries, "\n\n"))
	b.WriteString("\n************************************ END FAILED ************************************\n")

	return b.String()
}

// WriteKeyLog saves the key log to path through store, which applies the
// time postfix when enabled. It returns the path written.
func WriteKeyLog(store *backup.Store, path string, successes []string, failures []KeyFailure) (string, error) {
	return store.Save(path, []byte(FormatKeyLog(successes, failures)))
}

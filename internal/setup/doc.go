// Package setup pushes public keys to remote hosts.
//
// ssh-copy-id cannot take a password on the command line, so one of two
// helpers types it instead:
//
//	sshpass -p <password> ssh-copy-id -o "StrictHostKeyChecking no" -i <key.pub> user@ip
//	expect <expect.exp> <password> ssh-copy-id -o "StrictHostKeyChecking no" -i <key.pub> -f user@ip
//
// DetectMethod picks the helper: sshpass when installed, expect otherwise, or
// whichever one the operator asked for. The expect script is embedded in the
// binary and written to the save directory on first use.
//
// Before any process is spawned, the public key is parsed with
// golang.org/x/crypto/ssh. A missing or malformed key fails that host
// immediately instead of letting ssh-copy-id fail after a password exchange.
//
// Each push is bounded by a timeout. A push that times out counts as a
// failure; the timeout message is reported as its stderr. Nothing is retried.
package setup

// Package cli implements the okssh command-line interface.
//
// The root command runs the reconcilers selected by its flags:
//
//	okssh -d              create a MATE Terminal profile per server
//	okssh -s              write a Host block per server into ~/.ssh/config
//	okssh -d -s -r        remove what a previous run added
//	okssh doctor          check helper binaries and the server list
//	okssh version         print build information
//	okssh completion      generate shell completion scripts
//
// Flags are collected into an Options value, validated once, and handed to
// run, which loads the server list and drives the dconf reconciler and then
// the SSH config reconciler. Validation errors print the usage text before
// the message. A declined confirmation exits 0; every other error exits 1.
package cli

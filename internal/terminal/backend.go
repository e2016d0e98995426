// Package terminal provisions terminal emulator profiles in dconf, one per
// server, cloned from a base profile.
package terminal

import (
	"fmt"

	"github.com/okssh/okssh/internal/config"
)

// Setting is one dconf key written into a new profile. Value is in GVariant
// text form, so strings carry their own single quotes.
type Setting struct {
	Key   string
	Value string
}

// Backend describes where a terminal keeps its profiles and which keys make
// a profile open an SSH session.
type Backend interface {
	// Name identifies the terminal in messages.
	Name() string
	// SchemaPath is the dconf directory holding one sub-directory per profile.
	SchemaPath() string
	// ProfileListPath is the key holding the ordered list of profile names.
	ProfileListPath() string
	// ServerSettings are the keys written on top of the base profile's.
	ServerSettings(s config.Server) []Setting
}

// MateBackend is MATE Terminal.
type MateBackend struct{}

// NewMateBackend returns the MATE Terminal backend.
func NewMateBackend() *MateBackend { return &MateBackend{} }

func (*MateBackend) Name() string            { return "MATE Terminal" }
func (*MateBackend) SchemaPath() string      { return "/org/mate/terminal/profiles/" }
func (*MateBackend) ProfileListPath() string { return "/org/mate/terminal/global/profile-list" }

// ServerSettings sets the connect command, the name shown in the profile
// menu, and the window title.
func (*MateBackend) ServerSettings(s config.Server) []Setting {
	return []Setting{
		{Key: "custom-command", Value: fmt.Sprintf("'%s'", s.ConnectCommand())},
		{Key: "visible-name", Value: fmt.Sprintf("'%s (%s)'", s.Name, s.IP)},
		{Key: "title", Value: fmt.Sprintf("'%s'", s.Name)},
	}
}

// Backends maps backend names accepted on the command line.
var Backends = map[string]func() Backend{
	"mate": func() Backend { return NewMateBackend() },
}

// Package ui renders okssh's terminal output with Lip Gloss.
//
// Components:
//
//	StateReport - the before/after "Desired added / NOT added" summary
//	Spinner     - per-host status line ending in [__OK__] or [FAILED]
//	Styles      - SuccessStyle, ErrorStyle, WarningStyle, InfoStyle, MutedStyle
//
// Colors are ANSI codes so they follow the terminal theme. SetColorEnabled
// switches Lip Gloss to the termenv ASCII profile for --no-color and for
// output that is not a terminal; every renderer then emits plain text, which
// is also what the tests assert against.
package ui

// Package prompt asks the operator yes/no questions.
//
// On a terminal the question is rendered as a huh confirm form. When stdin is
// not a terminal (pipes, CI) a plain "[Y/n]" line is read instead, so answers
// can still be scripted with echo.
package prompt

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/okssh/okssh/internal/errors"
	"golang.org/x/term"
)

// Prompter asks a yes/no question with an explicit default.
type Prompter interface {
	Confirm(question string, defaultYes bool) (bool, error)
}

// Interactive is the Prompter used by the CLI.
type Interactive struct {
	in  io.Reader
	out io.Writer
	// isTerminal decides whether the huh form can be used.
	isTerminal func() bool
	reader     *bufio.Reader
}

// NewInteractive creates a prompter reading from in and writing to out.
// The huh form is only used when in is a terminal.
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	p := &Interactive{in: in, out: out}
	p.isTerminal = func() bool {
		f, ok := in.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
	return p
}

// Confirm implements Prompter.
func (p *Interactive) Confirm(question string, defaultYes bool) (bool, error) {
	if p.isTerminal() {
		return p.confirmForm(question, defaultYes)
	}
	return p.confirmLine(question, defaultYes)
}

func (p *Interactive) confirmForm(question string, defaultYes bool) (bool, error) {
	answer := defaultYes
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&answer),
		),
	)

	if err := form.Run(); err != nil {
		if stderrors.Is(err, huh.ErrUserAborted) {
			return false, errors.ErrCancelled
		}
		return false, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to get user input",
			"")
	}
	return answer, nil
}

func (p *Interactive) confirmLine(question string, defaultYes bool) (bool, error) {
	hint := "\nAnswer[y/N]: "
	if defaultYes {
		hint = "\nAnswer[Y/n]: "
	}
	fmt.Fprint(p.out, question+hint)

	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to get user input",
			"")
	}
	return ParseAnswer(line, defaultYes), nil
}

// ParseAnswer interprets a typed answer. An empty answer selects the default;
// only yes/y/true count as yes.
func ParseAnswer(answer string, defaultYes bool) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" {
		return defaultYes
	}
	switch answer {
	case "yes", "y", "true":
		return true
	}
	return false
}

// Scripted replays fixed answers, for tests. Once the answers run out every
// question gets its default.
type Scripted struct {
	Answers []bool
	// Asked records every question in order.
	Asked []string
}

// NewScripted creates a Scripted prompter.
func NewScripted(answers ...bool) *Scripted {
	return &Scripted{Answers: answers}
}

// Confirm implements Prompter.
func (s *Scripted) Confirm(question string, defaultYes bool) (bool, error) {
	s.Asked = append(s.Asked, question)
	if len(s.Answers) == 0 {
		return defaultYes, nil
	}
	a := s.Answers[0]
	s.Answers = s.Answers[1:]
	return a, nil
}

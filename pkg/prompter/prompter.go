package prompter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrEmpty is returned when a required answer is blank
var ErrEmpty = errors.New("input is required")

// Prompter reads answers line by line from one input
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm bool
}

// New creates a prompter over in and out. Secret input is hidden only when
// in is a terminal.
func New(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.isTerm = true
	}
	return p
}

// Line prints label and returns the trimmed answer. io.EOF is returned once
// the input is exhausted.
func (p *Prompter) Line(label string) (string, error) {
	if label != "" {
		fmt.Fprint(p.out, label)
	}
	input, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// Required is Line but rejects a blank answer
func (p *Prompter) Required(label string) (string, error) {
	answer, err := p.Line(label)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", ErrEmpty
	}
	return answer, nil
}

// Secret prompts for a value without echoing it on a terminal
func (p *Prompter) Secret(label string) (string, error) {
	if !p.isTerm {
		return p.Required(label)
	}

	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	secret := strings.TrimSpace(string(b))
	if secret == "" {
		return "", ErrEmpty
	}
	return secret, nil
}

// Confirm prompts for a yes/no answer
func (p *Prompter) Confirm(label string) (bool, error) {
	answer, err := p.Line(label + " (y/n) ")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

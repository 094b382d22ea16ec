package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/desertthunder/vibewatch/internal/shared"
)

// terminal returns the input's file descriptor when it is an interactive terminal.
func (r *Runner) terminal() (int, bool) {
	f, ok := r.input.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

func (r *Runner) readLine() (string, error) {
	if r.lines == nil {
		r.lines = bufio.NewReader(r.input)
	}
	line, err := r.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("%w: no input", shared.ErrMissingArgument)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func (r *Runner) readPassword(prompt string, fromStdin bool) (string, error) {
	fd, tty := r.terminal()
	if fromStdin || !tty {
		return r.readLine()
	}

	r.writePlain("%s", prompt)
	b, err := term.ReadPassword(fd)
	r.writePlain("\n")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// newPassword asks for a password twice on a terminal.
func (r *Runner) newPassword(fromStdin bool) (string, error) {
	pw, err := r.readPassword("Password: ", fromStdin)
	if err != nil {
		return "", err
	}
	if _, tty := r.terminal(); fromStdin || !tty {
		return pw, nil
	}
	again, err := r.readPassword("Confirm password: ", false)
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", shared.ErrPasswordMismatch
	}
	return pw, nil
}

// confirm asks a yes/no question, defaulting to no.
func (r *Runner) confirm(question string) bool {
	r.writePlain("%s [y/N] ", question)
	answer, err := r.readLine()
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

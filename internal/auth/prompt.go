// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// =============================================================================
// PROMPTER
// =============================================================================

// Prompter asks the operator for credentials.
type Prompter interface {
	// Interactive reports whether prompting is possible at all.
	Interactive() bool

	// Prompt asks for credentials for key. An empty username yields
	// ErrNoCredentials.
	Prompt(key Key) (Credentials, error)
}

// TerminalPrompter prompts on a terminal: the username is echoed, the
// password is read with echo suspended.
type TerminalPrompter struct {
	in       *os.File
	out      io.Writer
	readLine func(prompt string) (string, error)
}

// NewTerminalPrompter creates a prompter reading from in and writing
// prompts to out. readLine reads the echoed username; when nil a plain
// line read from in is used.
func NewTerminalPrompter(in *os.File, out io.Writer, readLine func(prompt string) (string, error)) *TerminalPrompter {
	p := &TerminalPrompter{in: in, out: out, readLine: readLine}
	if p.readLine == nil {
		r := bufio.NewReader(in)
		p.readLine = func(prompt string) (string, error) {
			fmt.Fprint(out, prompt)
			line, err := r.ReadString('\n')
			if err != nil && line == "" {
				return "", err
			}
			return strings.TrimRight(line, "\r\n"), nil
		}
	}
	return p
}

// Interactive returns true if the input is a terminal.
func (p *TerminalPrompter) Interactive() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

// Prompt implements Prompter.
func (p *TerminalPrompter) Prompt(key Key) (Credentials, error) {
	fmt.Fprintf(p.out, "Enter username and password for %q at %s\n", key.Realm, key.HostPort)

	user, err := p.readLine("Username: ")
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return Credentials{}, ErrNoCredentials
	}

	fmt.Fprint(p.out, "Password: ")
	pass, err := readPasswordNoEcho(int(p.in.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: read password: %v", ErrNoCredentials, err)
	}

	return Credentials{Username: user, Password: string(pass)}, nil
}

// readPasswordNoEcho reads one line with terminal echo disabled. The
// saved terminal state is restored on every return path.
func readPasswordNoEcho(fd int) ([]byte, error) {
	state, err := term.GetState(fd)
	if err != nil {
		return nil, err
	}
	defer term.Restore(fd, state)

	return term.ReadPassword(fd)
}

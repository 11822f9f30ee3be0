// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package edit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jeranaias/davsh/internal/commands"
)

// DefaultEditor is used when nothing else names an editor.
const DefaultEditor = "vi"

// Environment variables consulted for the editor, highest priority first.
var editorEnv = []string{"DAV_EDITOR", "EDITOR"}

// ResolveEditor picks the editor command line. getenv is usually os.Getenv.
func ResolveEditor(getenv func(string) string, configured string) []string {
	candidates := make([]string, 0, len(editorEnv)+2)
	for _, name := range editorEnv {
		candidates = append(candidates, getenv(name))
	}
	candidates = append(candidates, configured, DefaultEditor)

	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if argv := commands.Tokenize(c); len(argv) > 0 {
			return argv
		}
	}
	return []string{DefaultEditor}
}

// Runner starts an editor on a file and waits for it to exit.
type Runner interface {
	Run(ctx context.Context, editor []string, file string) error
}

// ExecRunner runs the editor as a child process on the controlling terminal.
type ExecRunner struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, editor []string, file string) error {
	if len(editor) == 0 {
		return errors.New("no editor configured")
	}
	args := append(append([]string{}, editor[1:]...), file)
	cmd := exec.CommandContext(ctx, editor[0], args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = orStd(r.Stdin, os.Stdin), orStd(r.Stdout, os.Stdout), orStd(r.Stderr, os.Stderr)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("editor %s exited with status %d", editor[0], exitErr.ExitCode())
		}
		return fmt.Errorf("run editor %s: %w", editor[0], err)
	}
	return nil
}

func orStd(f, std *os.File) *os.File {
	if f != nil {
		return f
	}
	return std
}

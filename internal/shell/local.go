// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/jeranaias/davsh/internal/commands"
)

// localPath resolves p against the shell's local directory.
func (s *Shell) localPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.localDir, p)
}

// =============================================================================
// LOCAL FILESYSTEM
// =============================================================================

func cmdLcd(_ context.Context, s *Shell, args []string) error {
	dir := "~"
	if len(args) > 0 {
		dir = args[0]
	}
	target := s.localPath(dir)
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("lcd: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("lcd: %s is not a directory", target)
	}
	s.localDir = target
	return nil
}

func cmdLpwd(_ context.Context, s *Shell, _ []string) error {
	s.printf("%s\n", s.localDir)
	return nil
}

func cmdLls(_ context.Context, s *Shell, args []string) error {
	dir := s.localDir
	if len(args) > 0 {
		dir = s.localPath(args[0])
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("lls: %w", err)
	}
	if len(entries) == 0 {
		s.info("(empty directory)")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		kind, name := "file", e.Name()
		if e.IsDir() {
			kind, name = "dir", name+"/"
		}
		rows = append(rows, []string{kind, formatSize(info.Size(), e.IsDir()), formatTime(info.ModTime()), name})
	}
	printTable(s.out, []string{"Type", "Size", "Modified", "Name"}, rows)
	return nil
}

// cmdSh hands the line to the system shell as typed, so quoting and
// metacharacters keep their meaning.
func cmdSh(ctx context.Context, s *Shell, args []string) error {
	line := s.rest
	if line == "" {
		line = strings.Join(args, " ")
	}
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", line)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", line)
	}
	cmd.Dir = s.localDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = s.out
	cmd.Stderr = s.errOut

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command exited with status %d", exitErr.ExitCode())
		}
		return fmt.Errorf("run %q: %w", line, err)
	}
	return nil
}

// =============================================================================
// SESSION
// =============================================================================

func cmdQuit(_ context.Context, s *Shell, _ []string) error {
	s.done = true
	return nil
}

func cmdHelp(_ context.Context, s *Shell, args []string) error {
	terse := false
	var rest []string
	for _, a := range args {
		if a == "-s" {
			terse = true
			continue
		}
		rest = append(rest, a)
	}

	if len(rest) == 0 {
		rows := make([][]string, 0, len(commands.Names()))
		for _, cmd := range commands.All() {
			summary := "no help"
			if e, ok := s.help.Lookup(string(cmd.Name)); ok && e.Summary != "" {
				summary = e.Summary
			}
			rows = append(rows, []string{string(cmd.Name), summary})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
		printTable(s.out, []string{"Command", "Description"}, rows)
		return nil
	}

	topic := strings.ToLower(rest[0])
	if cmd, err := commands.Resolve(topic); err == nil {
		topic = string(cmd.Name)
	}
	e, ok := s.help.Lookup(topic)
	if !ok {
		s.info(fmt.Sprintf("no help for %s", rest[0]))
		return nil
	}
	if terse {
		s.printf("%s: %s\n", e.Name, e.Summary)
		return nil
	}
	s.printf("%s", e.Full(s.tty))
	return nil
}

// CompleteArgs offers local path completions for commands whose
// argument names a local file. It plugs into commands.Completer.
func (s *Shell) CompleteArgs(cmd commands.Name, partial string) []string {
	switch cmd {
	case commands.Lcd, commands.Lls, commands.Put:
	default:
		return nil
	}
	matches, err := filepath.Glob(s.localPath(partial) + "*")
	if err != nil {
		return nil
	}

	dir, _ := filepath.Split(partial)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := dir + filepath.Base(m)
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			name += string(filepath.Separator)
		} else if cmd != commands.Put {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

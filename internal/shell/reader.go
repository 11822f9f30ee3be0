// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// ErrInterrupted is returned by a LineReader when the operator presses
// Ctrl-C at the prompt.
var ErrInterrupted = errors.New("interrupted")

// LineReader supplies input lines. Prompt returns io.EOF at end of input.
type LineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// =============================================================================
// LINER
// =============================================================================

// LinerReader reads lines with editing and history.
type LinerReader struct {
	line        *liner.State
	historyFile string
	historySize int
}

// NewLinerReader creates a reader and loads history from historyFile.
// complete may be nil.
func NewLinerReader(historyFile string, historySize int, complete func(string) []string) *LinerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if complete != nil {
		line.SetCompleter(complete)
	}

	r := &LinerReader{line: line, historyFile: historyFile, historySize: historySize}
	r.loadHistory()
	return r
}

func (r *LinerReader) loadHistory() {
	if r.historyFile == "" {
		return
	}
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

// Prompt implements LineReader.
func (r *LinerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", ErrInterrupted
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// ReadLine prompts without recording history. It is used for the
// username prompt.
func (r *LinerReader) ReadLine(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", ErrInterrupted
	}
	return input, err
}

// Close saves history and restores the terminal.
func (r *LinerReader) Close() error {
	r.saveHistory()
	return r.line.Close()
}

// saveHistory keeps the newest historySize lines, owner-readable only.
func (r *LinerReader) saveHistory() {
	if r.historyFile == "" || r.historySize == 0 {
		return
	}
	var buf bytes.Buffer
	if _, err := r.line.WriteHistory(&buf); err != nil {
		return
	}
	lines := strings.SplitAfter(buf.String(), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if r.historySize > 0 && len(lines) > r.historySize {
		lines = lines[len(lines)-r.historySize:]
	}

	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err != nil {
		return
	}
	os.WriteFile(r.historyFile, []byte(strings.Join(lines, "")), 0o600)
}

// =============================================================================
// PLAIN READER
// =============================================================================

// PlainReader reads lines from a non-interactive source such as a pipe
// or a script. Prompts are written to out when it is non-nil.
type PlainReader struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPlainReader creates a PlainReader.
func NewPlainReader(in io.Reader, out io.Writer) *PlainReader {
	return &PlainReader{in: bufio.NewReader(in), out: out}
}

// Prompt implements LineReader.
func (r *PlainReader) Prompt(prompt string) (string, error) {
	if r.out != nil {
		io.WriteString(r.out, prompt)
	}
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadLine implements the username prompt for auth.
func (r *PlainReader) ReadLine(prompt string) (string, error) {
	return r.Prompt(prompt)
}

// Close implements LineReader.
func (r *PlainReader) Close() error { return nil }

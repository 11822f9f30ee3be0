// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// shellEscape is the one-character prefix that runs a local shell command.
const shellEscape = "!"

// =============================================================================
// PARSE RESULT
// =============================================================================

// ParseResult contains the result of parsing one input line.
type ParseResult struct {
	// Command is the resolved command (nil if the line is empty or unknown)
	Command *Command

	// CommandName is the raw first word as typed (e.g., "MKDIR")
	CommandName string

	// Args are the remaining words
	Args []string

	// RawInput is the original line
	RawInput string

	// Error is ErrUnknownCommand (wrapped) when the first word resolves to nothing
	Error error
}

// Empty reports whether the line produced no words at all.
func (r ParseResult) Empty() bool {
	return r.CommandName == ""
}

// Parse tokenizes a line and resolves its first word.
func Parse(input string) ParseResult {
	result := ParseResult{RawInput: input}

	words := Tokenize(input)
	if len(words) == 0 {
		return result
	}

	result.CommandName = words[0]
	result.Args = words[1:]
	result.Command, result.Error = Resolve(words[0])
	return result
}

// Rest returns the raw text after the command word, quoting intact. For
// a line starting with "!" that is everything after the "!".
func (r ParseResult) Rest() string {
	line := strings.TrimLeftFunc(r.RawInput, unicode.IsSpace)
	if strings.HasPrefix(line, shellEscape) {
		return strings.TrimSpace(line[len(shellEscape):])
	}

	var inSingleQuote, inDoubleQuote bool
	for i, char := range line {
		switch {
		case char == '\'' && !inDoubleQuote:
			inSingleQuote = !inSingleQuote
		case char == '"' && !inSingleQuote:
			inDoubleQuote = !inDoubleQuote
		case unicode.IsSpace(char) && !inSingleQuote && !inDoubleQuote:
			return strings.TrimSpace(line[i:])
		}
	}
	return ""
}

// =============================================================================
// TOKENIZER
// =============================================================================

// Tokenize splits a line into shell-style words.
//
// Single and double quotes group whitespace into one word; a backslash
// inside quotes escapes a quote or another backslash. A leading "!" is
// always a word of its own so "!ls -l" becomes ["!", "ls", "-l"]. Words
// that are empty or consist only of whitespace are dropped.
func Tokenize(input string) []string {
	trimmed := strings.TrimLeftFunc(input, unicode.IsSpace)

	var words []string
	if strings.HasPrefix(trimmed, shellEscape) {
		words = append(words, shellEscape)
		trimmed = trimmed[len(shellEscape):]
	}

	for _, w := range splitCommandLine(trimmed) {
		if strings.TrimSpace(w) == "" {
			continue
		}
		words = append(words, w)
	}
	return words
}

// splitCommandLine splits a command line into tokens, respecting quotes.
func splitCommandLine(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingleQuote, inDoubleQuote bool

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		char := runes[i]

		switch {
		case char == '\'' && !inDoubleQuote:
			inSingleQuote = !inSingleQuote

		case char == '"' && !inSingleQuote:
			inDoubleQuote = !inDoubleQuote

		case char == '\\' && i+1 < len(runes) && (inDoubleQuote || inSingleQuote):
			next := runes[i+1]
			if next == '"' || next == '\'' || next == '\\' {
				current.WriteRune(next)
				i++
			} else {
				current.WriteRune(char)
			}

		case unicode.IsSpace(char) && !inSingleQuote && !inDoubleQuote:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}

		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

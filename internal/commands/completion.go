// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completer offers tab completions for the first word of a line and,
// through ArgsFn, for the last argument.
type Completer struct {
	// ArgsFn returns candidate arguments for cmd that start with partial.
	// It may be nil.
	ArgsFn func(cmd Name, partial string) []string
}

// Complete returns full-line completions for line.
func (c *Completer) Complete(line string) []string {
	words := Tokenize(line)
	endsInSpace := strings.HasSuffix(line, " ")

	if len(words) == 0 || (len(words) == 1 && !endsInSpace) {
		partial := ""
		if len(words) == 1 {
			partial = words[0]
		}
		return completeCommands(partial)
	}

	if c.ArgsFn == nil {
		return nil
	}
	cmd, err := Resolve(words[0])
	if err != nil {
		return nil
	}

	partial := ""
	prefixWords := words
	if !endsInSpace {
		partial = words[len(words)-1]
		prefixWords = words[:len(words)-1]
	}
	prefix := strings.Join(prefixWords, " ") + " "

	var out []string
	for _, cand := range c.ArgsFn(cmd.Name, partial) {
		out = append(out, prefix+quoteIfNeeded(cand))
	}
	return out
}

// completeCommands matches canonical names and aliases against partial.
func completeCommands(partial string) []string {
	partial = strings.ToLower(partial)
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if strings.HasPrefix(s, partial) && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, cmd := range builtins {
		add(string(cmd.Name))
	}
	for alias := range byAlias {
		if alias == shellEscape {
			continue
		}
		add(alias)
	}
	sort.Strings(out)
	return out
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return "'" + s + "'"
	}
	return s
}

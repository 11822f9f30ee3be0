// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the command table and line tokenizer for the shell.
//
// The table is closed: every canonical command is declared in registry.go
// and every alias maps to exactly one of them. Lookup is case-insensitive.
//
// # Key Types
//
//   - Name: canonical command name (cd, get, put, ...)
//   - Command: canonical name, aliases, usage and argument bounds
//   - ParseResult: tokenized line with its resolved command
//   - Completer: tab completion for command names and arguments
//
// # Usage
//
//	result := commands.Parse(`get "a b" c`)
//	// result.Command.Name == commands.Get
//	// result.Args == []string{"a b", "c"}
//
//	cmd, err := commands.Resolve("MKDIR")
//	// cmd.Name == commands.Mkcol
package commands

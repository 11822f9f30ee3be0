// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package shell is the davsh command loop.
//
// A Shell reads lines from a LineReader, splits them with the commands
// tokenizer, resolves the first word through the command table and calls
// the matching Handler. Every canonical command must have a handler; New
// fails otherwise.
//
// Errors from handlers are printed and the loop continues. Ctrl-C prints a
// reminder and does not cancel the running command. The loop ends on quit
// or end of input.
//
// Remote paths are resolved against the current collection, local paths
// against the shell's local directory (see lcd).
package shell

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package help holds the shell's help text.
//
// The entries live in an embedded TOML table and are decoded once into an
// Index keyed by lower-case section name. Command sections use the
// canonical command name.
package help

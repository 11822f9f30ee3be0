// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the davsh configuration.
//
// Settings come from a TOML file with built-in defaults for anything it
// leaves out. Unknown keys are rejected so typos do not go unnoticed.
//
// # Configuration Precedence
//
//   - Command-line flags (applied by main)
//   - Environment variables (DAVSH_TMPDIR, DAVSH_HISTORY, DAVSH_DEBUG)
//   - $DAVSH_CONFIG or ~/.davsh/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.LockTimeoutValue()
package config

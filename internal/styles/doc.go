// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the shared palette and output styles for davsh.
//
// Colors use Lip Gloss AdaptiveColor for light/dark detection and are
// switched off entirely when stdout is not a terminal or NO_COLOR is set.
// Always render through Render so piped output stays plain.
package styles

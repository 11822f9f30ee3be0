// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package edit runs the remote edit workflow: lock the resource, download
// it to a scratch file, run the user's editor, upload the file if it
// changed and unlock again.
//
// # Cleanup
//
// Once a lock is held it is released on every path out of Edit, and once
// the scratch file exists it is removed on every path. Failures during
// cleanup are reported but do not change the result of the edit.
//
// # Editor Resolution
//
// The editor command comes from DAV_EDITOR, then EDITOR, then the
// configured editor, then vi. It is split into words the way the shell
// splits input lines, so "code --wait" works.
package edit

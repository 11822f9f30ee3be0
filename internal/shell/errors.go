// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/davsh/internal/auth"
	"github.com/jeranaias/davsh/internal/commands"
	"github.com/jeranaias/davsh/internal/dav"
	"github.com/jeranaias/davsh/internal/styles"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess is returned after quit or end of input
	ExitSuccess = 0
	// ExitFailure indicates a start-up failure
	ExitFailure = 1
	// ExitUsageError indicates invalid command-line usage
	ExitUsageError = 2
)

// ErrMissingHandler means the command table names a command the shell
// cannot run. It is a programming error, detected by New.
var ErrMissingHandler = errors.New("command has no handler")

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports a command invoked with the wrong arguments.
type UsageError struct {
	Command string // Canonical command name
	Usage   string // Usage line from the command table
	Reason  string // Optional detail
}

func (e *UsageError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (usage: %s)", e.Command, e.Reason, e.Usage)
	}
	return "usage: " + e.Usage
}

func usageError(cmd *commands.Command, reason string) error {
	return &UsageError{Command: string(cmd.Name), Usage: cmd.Usage, Reason: reason}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError prints err in the shell's error format with a hint for
// the common cases.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %v\n", styles.Render(styles.ErrorStyle, "[ERROR]"), err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintln(w, styles.Render(styles.DimStyle, "  "+hint))
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		return "Type 'help' for a list of commands."
	case errors.Is(err, dav.ErrNotOpen):
		return "Connect first with 'open <url>'."
	case errors.Is(err, auth.ErrNoCredentials), errors.Is(err, dav.ErrUnauthorized):
		return "Check your username and password, then retry the command or 'open' again."
	case errors.Is(err, dav.ErrLocked):
		return "Someone else holds a lock; 'steal' removes it if you must."
	}
	return ""
}

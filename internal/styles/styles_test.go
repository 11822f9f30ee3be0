// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/muesli/termenv"
)

func TestRender_PlainWhenColorsDisabled(t *testing.T) {
	ForceColorsEnabled(false)

	if got := Render(ErrorStyle, "boom"); got != "boom" {
		t.Errorf("Render() = %q, want plain text", got)
	}
	if ColorProfile() != termenv.Ascii {
		t.Errorf("ColorProfile() = %v, want Ascii", ColorProfile())
	}
}

func TestDetectColors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"tty", nil, true, true},
		{"pipe", nil, false, false},
		{"force color on a pipe", map[string]string{"FORCE_COLOR": "1"}, false, true},
		{"no color on a tty", map[string]string{"NO_COLOR": "1"}, true, false},
		{"no color wins", map[string]string{"NO_COLOR": "1", "FORCE_COLOR": "1"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			if got := detectColors(getenv, tt.tty); got != tt.want {
				t.Errorf("detectColors() = %v, want %v", got, tt.want)
			}
		})
	}
}

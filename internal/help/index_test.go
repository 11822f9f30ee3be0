// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package help

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/davsh/internal/commands"
)

func TestDefault_CoversEveryCommand(t *testing.T) {
	idx, err := Default()
	require.NoError(t, err)

	for _, name := range commands.Names() {
		e, ok := idx.Lookup(string(name))
		if assert.True(t, ok, "no help for %s", name) {
			assert.NotEmpty(t, e.Summary, name)
			assert.NotEmpty(t, e.Body, name)
			assert.True(t, strings.HasPrefix(e.Title, string(name)), e.Title)
		}
	}
}

func TestLookup_IgnoresCase(t *testing.T) {
	idx, err := Default()
	require.NoError(t, err)

	e, ok := idx.Lookup("  EDIT ")
	require.True(t, ok)
	assert.Equal(t, "edit", e.Name)
	assert.Contains(t, e.Body, "DAV_EDITOR")

	_, ok = idx.Lookup("frobnicate")
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	idx, err := Parse([]byte(`
[[section]]
name = "Zed"
title = "zed - last"
summary = "  trailing  "
body = """
line one
"""

[[section]]
name = "alpha"
title = "alpha - first"
summary = "first"
body = "b"
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zed"}, idx.Names())

	e, ok := idx.Lookup("zed")
	require.True(t, ok)
	assert.Equal(t, "trailing", e.Summary)
	assert.Equal(t, "line one", e.Body)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad toml", `[[section]`},
		{"missing name", "[[section]]\ntitle = \"x\""},
		{"duplicate", "[[section]]\nname = \"a\"\n[[section]]\nname = \"A\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestEntryFull_Plain(t *testing.T) {
	e := Entry{Title: "pwd - print", Body: "Usage: `pwd`"}
	assert.Equal(t, "pwd - print\n\nUsage: `pwd`\n", e.Full(false))
}

func TestWriteManual_OverviewFirst(t *testing.T) {
	idx, err := Default()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, idx.WriteManual(&buf, false))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "davsh - interactive WebDAV shell"))
	assert.Less(t, strings.Index(out, "cat - print"), strings.Index(out, "unset - remove"))
}

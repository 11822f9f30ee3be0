// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/davsh/internal/dav"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DAVSH_TMPDIR", "DAVSH_DEBUG"} {
		t.Setenv(k, "")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4096, cfg.ChunkSize)
	assert.Equal(t, 3, cfg.MaxAuthAttempts)
	assert.Equal(t, dav.Timeout(10*time.Hour), cfg.LockTimeoutValue())
	assert.True(t, cfg.Progress)
}

func TestLoadFromPath_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().ChunkSize, cfg.ChunkSize)
}

func TestLoadFromPath_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
editor = "nano"
chunk_size = 1024
lock_timeout = "infinite"
request_timeout = "30s"
progress = false
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "nano", cfg.Editor)
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, dav.Infinite, cfg.LockTimeoutValue())
	assert.False(t, cfg.Progress)

	d, err := cfg.RequestTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestLoadFromPath_RejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	_, err := LoadFromPath(writeConfig(t, `edtor = "nano"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "edtor")
}

func TestLoadFromPath_Invalid(t *testing.T) {
	clearEnv(t)
	_, err := LoadFromPath(writeConfig(t, "chunk_size = 0\nlock_timeout = \"whenever\"\n"))
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, len(verrs))
	for i, v := range verrs {
		fields[i] = v.Field
	}
	assert.ElementsMatch(t, []string{"chunk_size", "lock_timeout"}, fields)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DAVSH_TMPDIR", "/scratch")
	t.Setenv("DAVSH_HISTORY", "")
	t.Setenv("DAVSH_DEBUG", "2")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "/scratch", cfg.TmpDir)
	assert.Empty(t, cfg.HistoryFile, "an empty DAVSH_HISTORY disables history")
	assert.Equal(t, 2, cfg.Debug)
}

func TestPath_Env(t *testing.T) {
	t.Setenv("DAVSH_CONFIG", "/etc/davsh.toml")
	p, err := Path()
	require.NoError(t, err)
	assert.Equal(t, "/etc/davsh.toml", p)
}

func TestRequestTimeoutDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"15", 15 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := (&Config{RequestTimeout: tt.in}).RequestTimeoutDuration()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".davsh/history"), expandHome("~/.davsh/history"))
	assert.Equal(t, "/abs", expandHome("/abs"))
}

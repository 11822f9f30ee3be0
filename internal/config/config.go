// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/davsh/internal/dav"
)

// =============================================================================
// CONFIG STRUCTURE
// =============================================================================

// Config is the davsh configuration.
type Config struct {
	// Editor is used when neither DAV_EDITOR nor EDITOR is set
	Editor string `toml:"editor"`

	// TmpDir holds scratch files for edit
	TmpDir string `toml:"tmp_dir"`

	// HistoryFile persists the line history; empty disables it
	HistoryFile string `toml:"history_file"`
	HistorySize int    `toml:"history_size"`

	// ChunkSize is the transfer granularity reported to the progress display
	ChunkSize int `toml:"chunk_size"`

	LockOwner   string `toml:"lock_owner"`
	LockTimeout string `toml:"lock_timeout"`

	Progress  bool `toml:"progress"`
	Highlight bool `toml:"highlight"`

	// MaxAuthAttempts is the number of challenges per realm answered before giving up
	MaxAuthAttempts int `toml:"max_auth_attempts"`

	// RequestTimeout bounds each HTTP request; "0" means no limit
	RequestTimeout string `toml:"request_timeout"`

	// Debug is the diagnostic level (0-3)
	Debug int `toml:"debug"`
}

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{
		TmpDir:          os.TempDir(),
		HistorySize:     500,
		ChunkSize:       dav.DefaultChunkSize,
		LockOwner:       defaultOwner(),
		LockTimeout:     "10h",
		Progress:        true,
		Highlight:       true,
		MaxAuthAttempts: 3,
		RequestTimeout:  "0",
	}
	if dir, err := Dir(); err == nil {
		cfg.HistoryFile = filepath.Join(dir, "history")
	}
	return cfg
}

func defaultOwner() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "davsh/" + u.Username
	}
	return dav.DefaultLockOwner
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the davsh configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".davsh"), nil
}

// Path returns the config file location: $DAVSH_CONFIG or ~/.davsh/config.toml.
func Path() (string, error) {
	if p := os.Getenv("DAVSH_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file if it exists, applies environment
// overrides and validates the result.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, cfg.Validate()
	}
	return LoadFromPath(path)
}

// LoadFromPath loads a specific file. A missing file yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies DAVSH_TMPDIR, DAVSH_HISTORY and DAVSH_DEBUG.
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("DAVSH_TMPDIR"); dir != "" {
		c.TmpDir = dir
	}
	if hist, ok := os.LookupEnv("DAVSH_HISTORY"); ok {
		c.HistoryFile = hist
	}
	if lvl := os.Getenv("DAVSH_DEBUG"); lvl != "" {
		if n, err := strconv.Atoi(lvl); err == nil {
			c.Debug = n
		}
	}
}

func (c *Config) expandPaths() {
	c.TmpDir = expandHome(c.TmpDir)
	c.HistoryFile = expandHome(c.HistoryFile)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid setting.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.ChunkSize <= 0 {
		errs = append(errs, ValidationError{"chunk_size", fmt.Sprintf("must be positive, got %d", c.ChunkSize)})
	}
	if c.HistorySize < 0 {
		errs = append(errs, ValidationError{"history_size", fmt.Sprintf("must not be negative, got %d", c.HistorySize)})
	}
	if c.MaxAuthAttempts < 0 {
		errs = append(errs, ValidationError{"max_auth_attempts", fmt.Sprintf("must not be negative, got %d", c.MaxAuthAttempts)})
	}
	if c.Debug < 0 {
		errs = append(errs, ValidationError{"debug", fmt.Sprintf("must not be negative, got %d", c.Debug)})
	}
	if _, err := dav.ParseTimeout(c.LockTimeout); err != nil {
		errs = append(errs, ValidationError{"lock_timeout", err.Error()})
	}
	if _, err := c.RequestTimeoutDuration(); err != nil {
		errs = append(errs, ValidationError{"request_timeout", err.Error()})
	}
	if c.TmpDir == "" {
		errs = append(errs, ValidationError{"tmp_dir", "must not be empty"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// LockTimeoutValue returns the parsed default lock timeout.
func (c *Config) LockTimeoutValue() dav.Timeout {
	t, err := dav.ParseTimeout(c.LockTimeout)
	if err != nil {
		return dav.Timeout(10 * time.Hour)
	}
	return t
}

// RequestTimeoutDuration parses request_timeout. "0" and "" mean no limit.
func (c *Config) RequestTimeoutDuration() (time.Duration, error) {
	s := strings.TrimSpace(c.RequestTimeout)
	if s == "" || s == "0" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", c.RequestTimeout)
	}
	return d, nil
}

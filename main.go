// davsh - an interactive shell for WebDAV servers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/jeranaias/davsh/internal/auth"
	"github.com/jeranaias/davsh/internal/commands"
	"github.com/jeranaias/davsh/internal/config"
	"github.com/jeranaias/davsh/internal/dav"
	"github.com/jeranaias/davsh/internal/help"
	"github.com/jeranaias/davsh/internal/shell"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// exitError carries a process exit code out of run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &exitError{code: shell.ExitUsageError, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "davsh: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(shell.ExitFailure)
	}
}

// flags holds the parsed command line.
type flags struct {
	user       string
	pass       string
	debug      int
	tmpDir     string
	configPath string
	help       bool
	manual     bool
	version    bool
}

func parseFlags(args []string) (*flags, []string, *pflag.FlagSet, error) {
	f := &flags{}
	fs := pflag.NewFlagSet("davsh", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVarP(&f.user, "user", "u", "", "username to offer at the first authentication challenge")
	fs.StringVarP(&f.pass, "pass", "p", "", "password to go with --user")
	fs.CountVarP(&f.debug, "debug", "d", "increase diagnostic output (repeat for more)")
	fs.StringVar(&f.tmpDir, "tmpdir", "", "directory for edit scratch files")
	fs.StringVar(&f.configPath, "config", "", "path to config.toml")
	fs.BoolVarP(&f.help, "help", "h", false, "show help")
	fs.BoolVar(&f.manual, "man", false, "print the full command manual")
	fs.BoolVar(&f.version, "version", false, "print version information")

	if err := fs.Parse(args); err != nil {
		return nil, nil, fs, err
	}
	return f, fs.Args(), fs, nil
}

func run(argv []string) error {
	f, args, fs, err := parseFlags(argv)
	if errors.Is(err, pflag.ErrHelp) {
		printHelp(fs)
		return nil
	}
	if err != nil {
		return &exitError{code: shell.ExitUsageError, err: err}
	}
	switch {
	case f.help:
		printHelp(fs)
		return nil
	case f.version:
		fmt.Printf("davsh %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return nil
	case f.manual:
		idx, err := help.Default()
		if err != nil {
			return err
		}
		return idx.WriteManual(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	}
	if len(args) > 1 {
		return usagef("unexpected argument: %s", args[1])
	}
	if f.pass != "" && f.user == "" {
		return usagef("--pass requires --user")
	}

	var cfg *config.Config
	if f.configPath != "" {
		cfg, err = config.LoadFromPath(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if f.tmpDir != "" {
		cfg.TmpDir = f.tmpDir
	}
	if f.debug > cfg.Debug {
		cfg.Debug = f.debug
	}
	requestTimeout, err := cfg.RequestTimeoutDuration()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Debug)
	slog.SetDefault(logger)

	stdinTTY := term.IsTerminal(int(os.Stdin.Fd()))
	stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))

	// The shell does not exist yet when the reader is built; completion
	// reaches it through sh once it does.
	var sh *shell.Shell
	completer := &commands.Completer{ArgsFn: func(cmd commands.Name, partial string) []string {
		if sh == nil {
			return nil
		}
		return sh.CompleteArgs(cmd, partial)
	}}

	var (
		reader   shell.LineReader
		readLine func(string) (string, error)
	)
	if stdinTTY {
		lr := shell.NewLinerReader(cfg.HistoryFile, cfg.HistorySize, completer.Complete)
		reader, readLine = lr, lr.ReadLine
	} else {
		pr := shell.NewPlainReader(os.Stdin, nil)
		reader, readLine = pr, pr.ReadLine
	}

	store := auth.NewStore(
		auth.WithMaxAttempts(cfg.MaxAuthAttempts),
		auth.WithDefaultCredentials(auth.Credentials{Username: f.user, Password: f.pass}),
	)
	transport := auth.NewTransport(http.DefaultTransport, store,
		auth.NewTerminalPrompter(os.Stdin, os.Stderr, readLine))

	client := dav.New(
		dav.WithTransport(transport),
		dav.WithTimeout(requestTimeout),
		dav.WithChunkSize(cfg.ChunkSize),
		dav.WithLogger(logger),
	)

	sh, err = shell.New(client,
		shell.WithReader(reader),
		shell.WithConfig(cfg),
		shell.WithLogger(logger),
		shell.WithTTY(stdoutTTY),
	)
	if err != nil {
		reader.Close()
		return err
	}

	ctx := context.Background()
	if len(args) == 1 {
		// a failed open leaves the shell usable without a connection
		if err := sh.Open(ctx, args[0]); err != nil {
			shell.DisplayError(os.Stderr, err)
		}
	}
	return sh.Run(ctx)
}

// newLogger maps the debug count onto slog levels. Three or more
// traces every HTTP exchange.
func newLogger(debug int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case debug >= 3:
		level = dav.LevelTrace
	case debug == 2:
		level = slog.LevelDebug
	case debug == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `davsh - interactive WebDAV shell

Browse and manage files on a WebDAV server with ftp-style commands:
ls, cd, get, put, edit, lock, propfind and more. Type 'help' at the
prompt for the command list.

Usage:
  davsh [flags] [url]

Examples:
  davsh https://dav.example.com/files/
  davsh -u alice https://dav.example.com/files/
  davsh --man | less

Flags:
%s
Configuration is read from ~/.davsh/config.toml (override with
--config or DAVSH_CONFIG).
`, fs.FlagUsages())
}

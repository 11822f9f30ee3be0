// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/jeranaias/davsh/internal/commands"
	"github.com/jeranaias/davsh/internal/config"
	"github.com/jeranaias/davsh/internal/dav"
	"github.com/jeranaias/davsh/internal/edit"
	"github.com/jeranaias/davsh/internal/help"
	"github.com/jeranaias/davsh/internal/progress"
	"github.com/jeranaias/davsh/internal/styles"
)

// Handler runs one command. Returned errors are displayed and the loop
// continues.
type Handler func(ctx context.Context, s *Shell, args []string) error

// interruptNotice is printed when Ctrl-C arrives. Work in progress is
// not cancelled.
const interruptNotice = "Interrupted. Use 'quit' or Ctrl-D to leave davsh."

// =============================================================================
// SHELL
// =============================================================================

// Shell is the interactive command loop.
type Shell struct {
	client   *dav.Client
	reader   LineReader
	out      io.Writer
	errOut   io.Writer
	cfg      *config.Config
	help     *help.Index
	reporter *progress.Reporter
	editor   *edit.Orchestrator
	log      *slog.Logger
	handlers map[commands.Name]Handler

	editRunner edit.Runner
	tty        bool

	root     *url.URL
	cwd      *url.URL
	localDir string
	done     bool

	// rest is the raw text after the command word of the line being run
	rest string
}

// Option configures a Shell.
type Option func(*Shell)

// WithReader sets the line source.
func WithReader(r LineReader) Option { return func(s *Shell) { s.reader = r } }

// WithOutput sets the output and error writers.
func WithOutput(out, errOut io.Writer) Option {
	return func(s *Shell) {
		s.out = out
		s.errOut = errOut
	}
}

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option { return func(s *Shell) { s.cfg = cfg } }

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option { return func(s *Shell) { s.log = l } }

// WithEditRunner replaces the process that runs the editor.
func WithEditRunner(r edit.Runner) Option { return func(s *Shell) { s.editRunner = r } }

// WithTTY marks the output as a terminal, enabling highlighting and
// markdown help.
func WithTTY(tty bool) Option { return func(s *Shell) { s.tty = tty } }

// WithLocalDir sets the initial local directory.
func WithLocalDir(dir string) Option { return func(s *Shell) { s.localDir = dir } }

// New creates a Shell around client. It fails if any command in the
// command table lacks a handler.
func New(client *dav.Client, opts ...Option) (*Shell, error) {
	s := &Shell{
		client: client,
		out:    os.Stdout,
		errOut: os.Stderr,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.reader == nil {
		s.reader = NewPlainReader(os.Stdin, nil)
	}
	if s.localDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		s.localDir = wd
	}
	s.errOut = &lockedWriter{w: s.errOut}

	idx, err := help.Default()
	if err != nil {
		return nil, err
	}
	s.help = idx

	s.handlers = handlerTable()
	if err := checkHandlers(s.handlers); err != nil {
		return nil, err
	}

	s.reporter = progress.New(s.out, progress.WithBars(s.cfg.Progress && s.tty))

	editOpts := []edit.Option{
		edit.WithEditor(edit.ResolveEditor(os.Getenv, s.cfg.Editor)),
		edit.WithTmpDir(s.cfg.TmpDir),
		edit.WithOwner(s.cfg.LockOwner),
		edit.WithProgress(s.reporter.Func()),
		edit.WithOutput(s.errOut),
		edit.WithLogger(s.log),
	}
	if s.editRunner != nil {
		editOpts = append(editOpts, edit.WithRunner(s.editRunner), edit.WithDelay(0))
	}
	s.editor = edit.New(client, editOpts...)
	return s, nil
}

// checkHandlers verifies that every command in the table can be run.
func checkHandlers(handlers map[commands.Name]Handler) error {
	for _, name := range commands.Names() {
		if handlers[name] == nil {
			return fmt.Errorf("%w: %s", ErrMissingHandler, name)
		}
	}
	return nil
}

// Run reads and executes lines until quit or end of input. Ctrl-C
// prints a reminder and never stops the loop.
func (s *Shell) Run(ctx context.Context) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range sigs {
			s.notice(interruptNotice)
		}
	}()
	defer func() {
		signal.Stop(sigs)
		close(sigs)
		wg.Wait()
	}()
	defer s.reader.Close()

	for !s.done {
		line, err := s.reader.Prompt(s.prompt())
		if errors.Is(err, ErrInterrupted) {
			s.notice(interruptNotice)
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		s.Execute(ctx, line)
	}
	return nil
}

// Execute runs one input line and returns the handler's error after
// displaying it. Blank lines do nothing.
func (s *Shell) Execute(ctx context.Context, line string) error {
	res := commands.Parse(line)
	if res.Empty() {
		return nil
	}
	if res.Error != nil {
		DisplayError(s.errOut, res.Error)
		return res.Error
	}

	cmd := res.Command
	s.log.Debug("dispatch", "command", cmd.Name, "args", len(res.Args))
	s.rest = res.Rest()
	var err error
	if !cmd.CheckArgs(len(res.Args)) {
		err = usageError(cmd, "")
	} else {
		err = s.handlers[cmd.Name](ctx, s, res.Args)
	}
	if err != nil {
		DisplayError(s.errOut, err)
	}
	return err
}

// Open connects to rawURL and makes it the current collection.
func (s *Shell) Open(ctx context.Context, rawURL string) error {
	res, err := s.client.Open(ctx, rawURL)
	if err != nil {
		return err
	}
	s.root = res.URL
	s.cwd = res.URL
	s.success(s.client.Message())
	return nil
}

// Done reports whether quit was requested.
func (s *Shell) Done() bool { return s.done }

func (s *Shell) prompt() string {
	p := "dav!> "
	if s.cwd != nil {
		p = "dav:" + displayPath(s.cwd) + "> "
	}
	return styles.Render(styles.PromptStyle, p)
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) success(msg string) {
	fmt.Fprintln(s.out, styles.Render(styles.SuccessStyle, msg))
}

func (s *Shell) info(msg string) {
	fmt.Fprintln(s.out, styles.Render(styles.DimStyle, msg))
}

func (s *Shell) notice(msg string) {
	fmt.Fprintln(s.errOut, styles.Render(styles.WarningStyle, msg))
}

// lockedWriter serialises writes from the interrupt goroutine with the loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// =============================================================================
// PATHS
// =============================================================================

// resolve turns a remote argument into a URL relative to the current
// collection. Absolute URLs are taken as they are.
func (s *Shell) resolve(arg string) (*url.URL, error) {
	if s.cwd == nil {
		return nil, dav.ErrNotOpen
	}
	lower := strings.ToLower(arg)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		u, err := url.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", arg, err)
		}
		return u, nil
	}
	if arg == "" || arg == "." {
		return cloneURL(s.cwd), nil
	}
	u := s.cwd.ResolveReference(&url.URL{Path: arg})
	if strings.HasSuffix(arg, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// resolveOrCwd resolves the optional argument at index i.
func (s *Shell) resolveOrCwd(args []string, i int) (*url.URL, error) {
	if i < len(args) {
		return s.resolve(args[i])
	}
	if s.cwd == nil {
		return nil, dav.ErrNotOpen
	}
	return cloneURL(s.cwd), nil
}

func displayPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func cloneURL(u *url.URL) *url.URL {
	v := *u
	return &v
}

func asCollection(u *url.URL) *url.URL {
	v := cloneURL(u)
	if !strings.HasSuffix(v.Path, "/") {
		v.Path += "/"
	}
	return v
}

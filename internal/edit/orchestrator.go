// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package edit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/davsh/internal/dav"
	"github.com/jeranaias/davsh/internal/progress"
	"github.com/jeranaias/davsh/internal/styles"
)

var (
	// ErrCollection is returned when asked to edit a collection.
	ErrCollection = errors.New("cannot edit a collection")

	// ErrLockedByOther is returned when someone else holds a lock.
	ErrLockedByOther = errors.New("locked, can't edit")
)

// =============================================================================
// STATE
// =============================================================================

// State is a step of the edit workflow.
type State int

const (
	Start State = iota
	LockAttempted
	Downloaded
	Edited
	Uploaded
	Unchanged
	Unlocked
	Done
	Aborted
)

var stateNames = [...]string{
	"start", "lock-attempted", "downloaded", "edited",
	"uploaded", "unchanged", "unlocked", "done", "aborted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session records one run of the workflow.
type Session struct {
	Remote      *url.URL
	Scratch     string
	Locked      bool
	LockTimeout dav.Timeout
	Before      time.Time

	// State is the last step reached; Trail lists every step in order.
	State State
	Trail []State

	// EditorErr is the editor's failure, if any. It does not abort the edit.
	EditorErr error
}

func (s *Session) enter(st State) {
	s.State = st
	s.Trail = append(s.Trail, st)
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Remote is the part of the dav client the workflow needs.
type Remote interface {
	Stat(ctx context.Context, u *url.URL) (*dav.Resource, error)
	Lock(ctx context.Context, u *url.URL, timeout dav.Timeout, depth dav.Depth, owner string) (dav.Lock, error)
	Unlock(ctx context.Context, u *url.URL) error
	Get(ctx context.Context, u *url.URL, w io.Writer, cb progress.Func) (int64, error)
	Put(ctx context.Context, localPath string, u *url.URL, cb progress.Func) error
}

// Lock timeouts tried in order.
var lockTimeouts = []dav.Timeout{dav.Timeout(10 * time.Hour), dav.Infinite}

// DefaultDelay separates the download from the editor start so that a
// save within the same second still changes the modification time.
const DefaultDelay = time.Second

// Orchestrator runs edits against a Remote.
type Orchestrator struct {
	remote   Remote
	runner   Runner
	editor   []string
	tmpDir   string
	owner    string
	delay    time.Duration
	progress progress.Func
	out      io.Writer
	log      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEditor sets the editor command line.
func WithEditor(argv []string) Option {
	return func(o *Orchestrator) {
		if len(argv) > 0 {
			o.editor = argv
		}
	}
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option { return func(o *Orchestrator) { o.runner = r } }

// WithTmpDir sets where scratch files are created.
func WithTmpDir(dir string) Option {
	return func(o *Orchestrator) {
		if dir != "" {
			o.tmpDir = dir
		}
	}
}

// WithOwner sets the lock owner.
func WithOwner(owner string) Option { return func(o *Orchestrator) { o.owner = owner } }

// WithDelay sets the pause before the editor starts.
func WithDelay(d time.Duration) Option { return func(o *Orchestrator) { o.delay = d } }

// WithProgress sets the transfer callback.
func WithProgress(cb progress.Func) Option { return func(o *Orchestrator) { o.progress = cb } }

// WithOutput sets where warnings are printed.
func WithOutput(w io.Writer) Option { return func(o *Orchestrator) { o.out = w } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// New creates an Orchestrator.
func New(remote Remote, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remote: remote,
		runner: ExecRunner{},
		editor: []string{DefaultEditor},
		tmpDir: os.TempDir(),
		owner:  dav.DefaultLockOwner,
		delay:  DefaultDelay,
		out:    io.Discard,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Edit runs the workflow for u. The returned session is never nil.
func (o *Orchestrator) Edit(ctx context.Context, u *url.URL) (sess *Session, err error) {
	sess = &Session{Remote: u}
	sess.enter(Start)
	defer func() {
		if err != nil {
			o.log.Debug("edit aborted", "url", u.Redacted(), "state", sess.State, "error", err)
			sess.enter(Aborted)
			return
		}
		sess.enter(Done)
	}()

	res, err := o.remote.Stat(ctx, u)
	if err != nil {
		return sess, err
	}
	if res.IsCollection {
		return sess, fmt.Errorf("%s: %w", u.Redacted(), ErrCollection)
	}

	if err := o.lock(ctx, sess); err != nil {
		return sess, err
	}
	if sess.Locked {
		defer o.unlock(ctx, sess)
	}

	if err := o.download(ctx, sess); err != nil {
		return sess, err
	}
	defer o.removeScratch(sess)

	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	if err := o.runner.Run(ctx, o.editor, sess.Scratch); err != nil {
		sess.EditorErr = err
		o.warn("%v", err)
	}
	sess.enter(Edited)

	info, err := os.Stat(sess.Scratch)
	if err != nil {
		return sess, fmt.Errorf("stat %s: %w", sess.Scratch, err)
	}
	if info.ModTime().Equal(sess.Before) {
		sess.enter(Unchanged)
		o.log.Info("edit left file unchanged", "url", u.Redacted())
		return sess, nil
	}

	if err := o.remote.Put(ctx, sess.Scratch, u, o.progress); err != nil {
		return sess, err
	}
	sess.enter(Uploaded)
	return sess, nil
}

// lock tries each timeout in turn. Any failure other than a foreign lock
// leaves the session unlocked and the edit carries on.
func (o *Orchestrator) lock(ctx context.Context, sess *Session) error {
	sess.enter(LockAttempted)
	var lastErr error
	for _, timeout := range lockTimeouts {
		_, err := o.remote.Lock(ctx, sess.Remote, timeout, dav.Depth0, o.owner)
		if err == nil {
			sess.Locked = true
			sess.LockTimeout = timeout
			return nil
		}
		o.log.Debug("lock attempt failed", "url", sess.Remote.Redacted(), "timeout", timeout, "error", err)
		lastErr = err
	}
	if errors.Is(lastErr, dav.ErrLocked) {
		return fmt.Errorf("%s: %w", sess.Remote.Redacted(), ErrLockedByOther)
	}
	o.warn("could not lock %s, editing without a lock: %v", sess.Remote.Redacted(), lastErr)
	return nil
}

func (o *Orchestrator) download(ctx context.Context, sess *Session) error {
	name := "davsh-" + uuid.NewString() + path.Ext(sess.Remote.Path)
	scratch := filepath.Join(o.tmpDir, name)

	f, err := os.OpenFile(scratch, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	sess.Scratch = scratch

	_, getErr := o.remote.Get(ctx, sess.Remote, f, o.progress)
	closeErr := f.Close()
	if getErr == nil && closeErr != nil {
		getErr = fmt.Errorf("write %s: %w", scratch, closeErr)
	}
	if getErr != nil {
		o.removeScratch(sess)
		return getErr
	}

	info, err := os.Stat(scratch)
	if err != nil {
		o.removeScratch(sess)
		return fmt.Errorf("stat %s: %w", scratch, err)
	}
	sess.Before = info.ModTime()
	sess.enter(Downloaded)
	return nil
}

func (o *Orchestrator) removeScratch(sess *Session) {
	if err := os.Remove(sess.Scratch); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.warn("could not remove %s: %v", sess.Scratch, err)
	}
}

func (o *Orchestrator) unlock(ctx context.Context, sess *Session) {
	// the lock must go even if the edit was interrupted
	if err := o.remote.Unlock(context.WithoutCancel(ctx), sess.Remote); err != nil {
		o.warn("could not unlock %s: %v", sess.Remote.Redacted(), err)
		return
	}
	sess.Locked = false
	sess.enter(Unlocked)
}

func (o *Orchestrator) warn(format string, args ...any) {
	fmt.Fprintln(o.out, styles.Render(styles.WarningStyle, fmt.Sprintf(format, args...)))
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package edit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/davsh/internal/dav"
	"github.com/jeranaias/davsh/internal/progress"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakeRemote struct {
	collection bool
	statErr    error
	lockErrs   []error
	getErr     error
	putErr     error
	content    string

	calls    []string
	timeouts []dav.Timeout
	puts     []string
	uploaded string
}

func (f *fakeRemote) Stat(_ context.Context, u *url.URL) (*dav.Resource, error) {
	f.calls = append(f.calls, "stat")
	if f.statErr != nil {
		return nil, f.statErr
	}
	return &dav.Resource{URL: u, IsCollection: f.collection}, nil
}

func (f *fakeRemote) Lock(_ context.Context, u *url.URL, timeout dav.Timeout, _ dav.Depth, _ string) (dav.Lock, error) {
	f.calls = append(f.calls, "lock")
	f.timeouts = append(f.timeouts, timeout)
	if i := len(f.timeouts) - 1; i < len(f.lockErrs) && f.lockErrs[i] != nil {
		return dav.Lock{}, f.lockErrs[i]
	}
	return dav.Lock{URL: u, Token: "tok", Timeout: timeout}, nil
}

func (f *fakeRemote) Unlock(context.Context, *url.URL) error {
	f.calls = append(f.calls, "unlock")
	return nil
}

func (f *fakeRemote) Get(_ context.Context, _ *url.URL, w io.Writer, _ progress.Func) (int64, error) {
	f.calls = append(f.calls, "get")
	if f.getErr != nil {
		return 0, f.getErr
	}
	n, err := io.WriteString(w, f.content)
	return int64(n), err
}

func (f *fakeRemote) Put(_ context.Context, local string, u *url.URL, _ progress.Func) error {
	f.calls = append(f.calls, "put")
	f.puts = append(f.puts, u.String())
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	f.uploaded = string(data)
	return f.putErr
}

// scriptedEditor modifies the scratch file when modify is set.
type scriptedEditor struct {
	modify  bool
	err     error
	file    string
	content string
}

func (e *scriptedEditor) Run(_ context.Context, _ []string, file string) error {
	e.file = file
	data, _ := os.ReadFile(file)
	e.content = string(data)
	if e.modify {
		if err := os.WriteFile(file, []byte("edited"), 0o600); err != nil {
			return err
		}
		later := time.Now().Add(time.Hour)
		if err := os.Chtimes(file, later, later); err != nil {
			return err
		}
	}
	return e.err
}

func newOrchestrator(t *testing.T, remote Remote, ed Runner, out io.Writer) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	if out == nil {
		out = io.Discard
	}
	return New(remote, WithRunner(ed), WithTmpDir(dir), WithDelay(0), WithOutput(out)), dir
}

func target(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("http://h/d/notes.txt")
	require.NoError(t, err)
	return u
}

func assertNoScratch(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch file must be removed")
}

// =============================================================================
// TESTS
// =============================================================================

func TestEdit_UnchangedSkipsUpload(t *testing.T) {
	remote := &fakeRemote{content: "hello"}
	ed := &scriptedEditor{}
	o, dir := newOrchestrator(t, remote, ed, nil)

	sess, err := o.Edit(context.Background(), target(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"stat", "lock", "get", "unlock"}, remote.calls)
	assert.Equal(t, "hello", ed.content)
	assert.Equal(t, ".txt", filepath.Ext(ed.file))
	assert.Equal(t, []State{Start, LockAttempted, Downloaded, Edited, Unchanged, Unlocked, Done}, sess.Trail)
	assert.False(t, sess.Locked)
	assertNoScratch(t, dir)
}

func TestEdit_ModifiedUploadsOnceThenUnlocks(t *testing.T) {
	remote := &fakeRemote{content: "hello"}
	o, dir := newOrchestrator(t, remote, &scriptedEditor{modify: true}, nil)

	sess, err := o.Edit(context.Background(), target(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"stat", "lock", "get", "put", "unlock"}, remote.calls)
	assert.Equal(t, []string{"http://h/d/notes.txt"}, remote.puts)
	assert.Equal(t, "edited", remote.uploaded)
	assert.Equal(t, Done, sess.State)
	assert.Contains(t, sess.Trail, Uploaded)
	assertNoScratch(t, dir)
}

func TestEdit_CollectionNeverLocksOrDownloads(t *testing.T) {
	remote := &fakeRemote{collection: true}
	o, dir := newOrchestrator(t, remote, &scriptedEditor{}, nil)

	sess, err := o.Edit(context.Background(), target(t))
	assert.ErrorIs(t, err, ErrCollection)
	assert.Equal(t, []string{"stat"}, remote.calls)
	assert.Equal(t, Aborted, sess.State)
	assertNoScratch(t, dir)
}

func TestEdit_LockRetriesWithInfiniteTimeout(t *testing.T) {
	remote := &fakeRemote{content: "x", lockErrs: []error{errors.New("timeout refused")}}
	o, _ := newOrchestrator(t, remote, &scriptedEditor{}, nil)

	sess, err := o.Edit(context.Background(), target(t))
	require.NoError(t, err)
	assert.Equal(t, []dav.Timeout{dav.Timeout(10 * time.Hour), dav.Infinite}, remote.timeouts)
	assert.Equal(t, dav.Infinite, sess.LockTimeout)
	assert.Equal(t, "unlock", remote.calls[len(remote.calls)-1])
}

func TestEdit_LockedByOtherAbortsBeforeDownload(t *testing.T) {
	locked := &dav.StatusError{Method: "LOCK", Code: 423, Status: "423 Locked"}
	remote := &fakeRemote{lockErrs: []error{locked, locked}}
	o, dir := newOrchestrator(t, remote, &scriptedEditor{}, nil)

	_, err := o.Edit(context.Background(), target(t))
	assert.ErrorIs(t, err, ErrLockedByOther)
	assert.Equal(t, []string{"stat", "lock", "lock"}, remote.calls)
	assertNoScratch(t, dir)
}

func TestEdit_LockUnsupportedEditsWithoutLock(t *testing.T) {
	other := errors.New("405 Method Not Allowed")
	remote := &fakeRemote{content: "x", lockErrs: []error{other, other}}
	var out bytes.Buffer
	o, _ := newOrchestrator(t, remote, &scriptedEditor{modify: true}, &out)

	sess, err := o.Edit(context.Background(), target(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"stat", "lock", "lock", "get", "put"}, remote.calls)
	assert.NotContains(t, sess.Trail, Unlocked)
	assert.Contains(t, out.String(), "without a lock")
}

func TestEdit_DownloadFailureReleasesLock(t *testing.T) {
	remote := &fakeRemote{getErr: dav.ErrNotFound}
	o, dir := newOrchestrator(t, remote, &scriptedEditor{}, nil)

	sess, err := o.Edit(context.Background(), target(t))
	assert.ErrorIs(t, err, dav.ErrNotFound)
	assert.Equal(t, []string{"stat", "lock", "get", "unlock"}, remote.calls)
	assert.Equal(t, Aborted, sess.State)
	assertNoScratch(t, dir)
}

func TestEdit_EditorFailureStillCompares(t *testing.T) {
	remote := &fakeRemote{content: "x"}
	var out bytes.Buffer
	ed := &scriptedEditor{modify: true, err: errors.New("editor vi exited with status 1")}
	o, dir := newOrchestrator(t, remote, ed, &out)

	sess, err := o.Edit(context.Background(), target(t))
	require.NoError(t, err)
	require.Error(t, sess.EditorErr)
	assert.Contains(t, out.String(), "status 1")
	assert.Equal(t, []string{"stat", "lock", "get", "put", "unlock"}, remote.calls)
	assertNoScratch(t, dir)
}

func TestEdit_UploadFailureStillCleansUp(t *testing.T) {
	remote := &fakeRemote{content: "x", putErr: dav.ErrForbidden}
	o, dir := newOrchestrator(t, remote, &scriptedEditor{modify: true}, nil)

	_, err := o.Edit(context.Background(), target(t))
	assert.ErrorIs(t, err, dav.ErrForbidden)
	assert.Equal(t, "unlock", remote.calls[len(remote.calls)-1])
	assertNoScratch(t, dir)
}

func TestResolveEditor(t *testing.T) {
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}

	tests := []struct {
		name       string
		env        map[string]string
		configured string
		want       []string
	}{
		{"dav editor wins", map[string]string{"DAV_EDITOR": "nano", "EDITOR": "emacs"}, "ed", []string{"nano"}},
		{"editor next", map[string]string{"EDITOR": "emacs -nw"}, "ed", []string{"emacs", "-nw"}},
		{"configured next", nil, `code --wait`, []string{"code", "--wait"}},
		{"blank ignored", map[string]string{"DAV_EDITOR": "  "}, "", []string{"vi"}},
		{"default", nil, "", []string{"vi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveEditor(env(tt.env), tt.configured))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "state(42)", State(42).String())
}

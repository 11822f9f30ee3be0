// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package shell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is read by the test while the interrupt goroutine writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// interruptingEditor sends SIGINT to the process and waits for the
// shell to acknowledge it before returning.
type interruptingEditor struct {
	errOut *syncBuffer
	calls  int
}

func (e *interruptingEditor) Run(context.Context, []string, string) error {
	e.calls++
	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		return err
	}
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(e.errOut.String(), interruptNotice) {
		if time.Now().After(deadline) {
			return errors.New("interrupt notice never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func TestRun_SIGINTDuringCommandContinues(t *testing.T) {
	errOut := &syncBuffer{}
	ed := &interruptingEditor{errOut: errOut}
	out := &bytes.Buffer{}
	h := newHarness(t, WithEditRunner(ed), WithOutput(out, errOut))
	h.remoteFile(t, "/notes.txt", "draft")
	h.reader = &scriptedReader{script: []readResult{
		{line: "open " + h.srv.URL + "/"},
		{line: "edit notes.txt"},
		{line: "lpwd"},
	}}

	require.NoError(t, h.Run(context.Background()))
	assert.Equal(t, 1, ed.calls)
	assert.Contains(t, errOut.String(), interruptNotice)
	assert.NotContains(t, errOut.String(), "never arrived")
	assert.Contains(t, out.String(), h.localDir+"\n", "the loop goes on after the signal")
	assert.Equal(t, "draft", h.remoteContent(t, "/notes.txt"))
}

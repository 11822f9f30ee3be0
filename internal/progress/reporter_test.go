// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/davsh/internal/styles"
)

func newTestReporter(buf *bytes.Buffer, bars bool) *Reporter {
	styles.ForceColorsEnabled(false)
	return New(buf, WithBars(bars), WithInterval(0))
}

func TestReporter_HeaderOncePerTransfer(t *testing.T) {
	var buf bytes.Buffer
	r := newTestReporter(&buf, true)

	r.Report(InProgress, "", "http://h/d/a.txt", 10, 30, make([]byte, 10))
	r.Report(InProgress, "", "http://h/d/a.txt", 20, 30, make([]byte, 10))
	r.Report(InProgress, "", "http://h/d/a.txt", 30, 30, make([]byte, 10))
	require.True(t, r.InTransfer())
	r.Report(Success, "Downloaded a.txt", "http://h/d/a.txt", 30, 30, nil)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "Transferring http://h/d/a.txt:"))
	assert.Equal(t, 3, strings.Count(out, "\r  "))
	assert.True(t, strings.HasSuffix(out, "\nDownloaded a.txt\n"), "final line must start on a fresh line: %q", out)
	assert.False(t, r.InTransfer())
}

func TestReporter_CounterResetsBetweenTransfers(t *testing.T) {
	var buf bytes.Buffer
	r := newTestReporter(&buf, true)

	r.Report(InProgress, "", "http://h/a", 5, 10, nil)
	r.Report(Failure, "a failed", "http://h/a", 5, 10, nil)
	r.Report(InProgress, "", "http://h/b", 5, 10, nil)
	r.Report(Success, "b done", "http://h/b", 10, 10, nil)

	out := buf.String()
	assert.Contains(t, out, "Transferring http://h/a:")
	assert.Contains(t, out, "Transferring http://h/b:")
	assert.Contains(t, out, "\na failed\n")
}

func TestReporter_NoLeadingNewlineWithoutProgress(t *testing.T) {
	var buf bytes.Buffer
	r := newTestReporter(&buf, true)

	r.Report(Success, "nothing to transfer", "http://h/x", 0, 0, nil)
	assert.Equal(t, "nothing to transfer\n", buf.String())
}

func TestReporter_BarsDisabled(t *testing.T) {
	var buf bytes.Buffer
	r := newTestReporter(&buf, false)

	r.Report(InProgress, "", "http://h/a", 5, 10, nil)
	r.Report(InProgress, "", "http://h/a", 10, 10, nil)
	r.Report(Success, "done", "http://h/a", 10, 10, nil)

	assert.Equal(t, "done\n", buf.String())
}

func TestReporter_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	r := newTestReporter(&buf, true)

	r.Report(InProgress, "", "http://h/a", 2048, -1, nil)
	assert.Contains(t, buf.String(), "2.0 kB transferred")
}

func TestReporter_NewURLClosesOpenLine(t *testing.T) {
	var buf bytes.Buffer
	r := newTestReporter(&buf, true)

	r.Report(InProgress, "", "http://h/a", 5, 10, nil)
	r.Report(InProgress, "", "http://h/b", 5, 10, nil)

	out := buf.String()
	idx := strings.Index(out, "Transferring http://h/b:")
	require.Greater(t, idx, 0)
	assert.Equal(t, byte('\n'), out[idx-1])
}

func TestReporter_TruncatesLongURL(t *testing.T) {
	var buf bytes.Buffer
	styles.ForceColorsEnabled(false)
	r := New(&buf, WithWidth(40), WithInterval(0))

	long := "http://host/" + strings.Repeat("x", 200)
	r.Report(InProgress, "", long, 1, 2, nil)

	header := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Less(t, len(header), 60)
	assert.Contains(t, header, "...")
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "failure", Failure.String())
	assert.Equal(t, "progress", InProgress.String())
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/webdav"

	"github.com/jeranaias/davsh/internal/progress"
)

// =============================================================================
// TEST SERVER
// =============================================================================

type testServer struct {
	*httptest.Server
	fs webdav.FileSystem
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fs := webdav.NewMemFS()
	h := &webdav.Handler{FileSystem: fs, LockSystem: webdav.NewMemLS()}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, fs: fs}
}

func (s *testServer) writeFile(t *testing.T, name, content string) {
	t.Helper()
	f, err := s.fs.OpenFile(context.Background(), name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func (s *testServer) url(t *testing.T, p string) *url.URL {
	t.Helper()
	u, err := url.Parse(s.URL + p)
	require.NoError(t, err)
	return u
}

func openClient(t *testing.T, srv *testServer, opts ...Option) *Client {
	t.Helper()
	c := New(opts...)
	_, err := c.Open(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	return c
}

type recordedCall struct {
	status progress.Status
	soFar  int64
	total  int64
	n      int
}

type recorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *recorder) fn(status progress.Status, _ string, _ string, soFar, total int64, chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{status: status, soFar: soFar, total: total, n: len(chunk)})
}

func (r *recorder) assertWellOrdered(t *testing.T, want progress.Status) {
	t.Helper()
	require.NotEmpty(t, r.calls)
	var last int64
	for _, c := range r.calls[:len(r.calls)-1] {
		assert.Equal(t, progress.InProgress, c.status)
		assert.Greater(t, c.soFar, last, "bytes so far must increase")
		last = c.soFar
	}
	assert.Equal(t, want, r.calls[len(r.calls)-1].status)
}

// =============================================================================
// TESTS
// =============================================================================

func TestOpen(t *testing.T) {
	srv := newTestServer(t)
	c := New()

	res, err := c.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, res.IsCollection)
	assert.True(t, strings.HasSuffix(c.Base().Path, "/"))
	assert.Contains(t, c.Message(), "Connected")
}

func TestOpen_RejectsBadURLs(t *testing.T) {
	srv := newTestServer(t)
	srv.writeFile(t, "/file.txt", "x")
	c := New()

	_, err := c.Open(context.Background(), "ftp://example.com/")
	assert.Error(t, err)

	_, err = c.Open(context.Background(), srv.URL+"/missing/")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, c.Base())
}

func TestOpen_NotDAV(t *testing.T) {
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer plain.Close()

	_, err := New().Open(context.Background(), plain.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WebDAV")
}

func TestPutGet_RoundTrip(t *testing.T) {
	srv := newTestServer(t)
	c := openClient(t, srv, WithChunkSize(7))

	content := strings.Repeat("davsh round trip\n", 20)
	local := filepath.Join(t.TempDir(), "local.txt")
	require.NoError(t, os.WriteFile(local, []byte(content), 0o644))

	var up recorder
	require.NoError(t, c.Put(context.Background(), local, srv.url(t, "/remote.txt"), up.fn))
	up.assertWellOrdered(t, progress.Success)
	assert.Equal(t, int64(len(content)), up.calls[len(up.calls)-1].soFar)

	var down recorder
	var buf bytes.Buffer
	n, err := c.Get(context.Background(), srv.url(t, "/remote.txt"), &buf, down.fn)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, buf.String())
	down.assertWellOrdered(t, progress.Success)
	for _, call := range down.calls[:len(down.calls)-1] {
		assert.LessOrEqual(t, call.n, 7)
	}
}

func TestGet_MissingReportsFailure(t *testing.T) {
	srv := newTestServer(t)
	c := openClient(t, srv)

	var rec recorder
	_, err := c.Get(context.Background(), srv.url(t, "/nope.txt"), &bytes.Buffer{}, rec.fn)
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, progress.Failure, rec.calls[0].status)
}

func TestPropfind_ListsMembers(t *testing.T) {
	srv := newTestServer(t)
	c := openClient(t, srv)
	ctx := context.Background()

	require.NoError(t, c.Mkcol(ctx, srv.url(t, "/docs")))
	srv.writeFile(t, "/docs/b.txt", "bbbb")
	srv.writeFile(t, "/docs/a.txt", "aa")
	require.NoError(t, c.Mkcol(ctx, srv.url(t, "/docs/sub")))

	res, err := c.Propfind(ctx, srv.url(t, "/docs/"), Depth1)
	require.NoError(t, err)
	require.Len(t, res, 4)

	assert.Equal(t, "docs", res[0].Name)
	assert.True(t, res[0].IsCollection)

	names := []string{res[1].Name, res[2].Name, res[3].Name}
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, names)
	assert.Equal(t, int64(2), res[1].Size)
	assert.False(t, res[1].Modified.IsZero())
	assert.True(t, res[3].IsCollection)
	assert.True(t, strings.HasSuffix(res[3].URL.Path, "/"))
}

func TestMkcol_Existing(t *testing.T) {
	srv := newTestServer(t)
	c := openClient(t, srv)
	require.NoError(t, c.Mkcol(context.Background(), srv.url(t, "/d")))

	err := c.Mkcol(context.Background(), srv.url(t, "/d"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCopyMoveDelete(t *testing.T) {
	srv := newTestServer(t)
	c := openClient(t, srv)
	ctx := context.Background()
	srv.writeFile(t, "/a.txt", "alpha")

	require.NoError(t, c.Copy(ctx, srv.url(t, "/a.txt"), srv.url(t, "/b.txt"), false))
	err := c.Copy(ctx, srv.url(t, "/a.txt"), srv.url(t, "/b.txt"), false)
	assert.Error(t, err, "copy onto an existing resource without overwrite")

	require.NoError(t, c.Move(ctx, srv.url(t, "/b.txt"), srv.url(t, "/c.txt"), true))
	_, err = c.Stat(ctx, srv.url(t, "/b.txt"))
	assert.ErrorIs(t, err, ErrNotFound)

	var buf bytes.Buffer
	_, err = c.Get(ctx, srv.url(t, "/c.txt"), &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", buf.String())

	require.NoError(t, c.Delete(ctx, srv.url(t, "/c.txt")))
	_, err = c.Stat(ctx, srv.url(t, "/c.txt"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLock_ExclusiveAgainstOtherClients(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	srv.writeFile(t, "/file.txt", "v1")

	owner := openClient(t, srv)
	other := openClient(t, srv)
	target := srv.url(t, "/file.txt")

	l, err := owner.Lock(ctx, target, Timeout(10*time.Hour), Depth0, "tester")
	require.NoError(t, err)
	assert.NotEmpty(t, l.Token)
	require.Len(t, owner.Locks(), 1)

	_, err = other.Lock(ctx, target, Timeout(10*time.Hour), Depth0, "")
	assert.ErrorIs(t, err, ErrLocked)

	local := filepath.Join(t.TempDir(), "v2.txt")
	require.NoError(t, os.WriteFile(local, []byte("v2"), 0o644))
	assert.ErrorIs(t, other.Put(ctx, local, target, nil), ErrLocked)
	require.NoError(t, owner.Put(ctx, local, target, nil), "lock holder writes with its token")

	require.NoError(t, owner.Unlock(ctx, target))
	assert.Empty(t, owner.Locks())
	require.NoError(t, other.Put(ctx, local, target, nil))
}

func TestUnlock_NotHeld(t *testing.T) {
	srv := newTestServer(t)
	c := openClient(t, srv)
	err := c.Unlock(context.Background(), srv.url(t, "/file.txt"))
	require.Error(t, err)
	assert.Contains(t, c.Message(), "no lock held")
}

func TestDelete_ForgetsLocks(t *testing.T) {
	srv := newTestServer(t)
	c := openClient(t, srv)
	ctx := context.Background()
	srv.writeFile(t, "/gone.txt", "x")

	_, err := c.Lock(ctx, srv.url(t, "/gone.txt"), Infinite, Depth0, "")
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, srv.url(t, "/gone.txt")))
	assert.Empty(t, c.Locks())
}

func TestSteal(t *testing.T) {
	var mu sync.Mutex
	var unlocked []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "PROPFIND":
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusMultiStatus)
			fmt.Fprint(w, `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:"><D:response><D:href>/f.txt</D:href><D:propstat><D:prop>
<D:lockdiscovery><D:activelock>
<D:lockscope><D:exclusive/></D:lockscope><D:locktype><D:write/></D:locktype>
<D:depth>0</D:depth><D:owner><D:href>bob</D:href></D:owner><D:timeout>Second-600</D:timeout>
<D:locktoken><D:href>opaquelocktoken:abc</D:href></D:locktoken>
</D:activelock></D:lockdiscovery>
</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response></D:multistatus>`)
		case "UNLOCK":
			mu.Lock()
			unlocked = append(unlocked, r.Header.Get("Lock-Token"))
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL + "/f.txt")
	c := New()
	res, err := c.Stat(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, res.Locks, 1)
	assert.Equal(t, "bob", res.Locks[0].Owner)
	assert.True(t, res.Locks[0].Exclusive)

	n, err := c.Steal(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"<opaquelocktoken:abc>"}, unlocked)
}

func TestSetUnsetProp(t *testing.T) {
	srv := newTestServer(t)
	c := openClient(t, srv)
	ctx := context.Background()
	srv.writeFile(t, "/p.txt", "x")
	target := srv.url(t, "/p.txt")

	require.NoError(t, c.SetProp(ctx, target, "color", "blue & green", "urn:davsh:test"))
	res, err := c.Stat(ctx, target)
	require.NoError(t, err)
	assert.Contains(t, propValues(res, "color"), "blue &amp; green")

	require.NoError(t, c.UnsetProp(ctx, target, "color", "urn:davsh:test"))
	res, err = c.Stat(ctx, target)
	require.NoError(t, err)
	assert.Empty(t, propValues(res, "color"))
}

func TestSetProp_InvalidName(t *testing.T) {
	srv := newTestServer(t)
	c := openClient(t, srv)
	err := c.SetProp(context.Background(), srv.url(t, "/"), "bad name", "v", "DAV:")
	assert.Error(t, err)
}

func propValues(res *Resource, local string) []string {
	var out []string
	for _, p := range res.Props {
		if p.Name.Local == local {
			out = append(out, p.Value)
		}
	}
	return out
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    Timeout
		header  string
		wantErr bool
	}{
		{"10h", Timeout(10 * time.Hour), "Second-36000", false},
		{"30m", Timeout(30 * time.Minute), "Second-1800", false},
		{"3600", Timeout(time.Hour), "Second-3600", false},
		{"infinite", Infinite, "Infinite", false},
		{"INF", Infinite, "Infinite", false},
		{"0", 0, "", true},
		{"soon", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeout(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.header, got.Header())
		})
	}
}

func TestParseDepth(t *testing.T) {
	d, err := ParseDepth("Infinity")
	require.NoError(t, err)
	assert.Equal(t, DepthInfinity, d)
	_, err = ParseDepth("2")
	assert.Error(t, err)
}

func TestStatusError_Unwrap(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &StatusError{Method: "PUT", URL: "/x", Code: http.StatusLocked, Status: "423 Locked"})
	assert.True(t, errors.Is(err, ErrLocked))
	assert.False(t, errors.Is(err, ErrNotFound))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusLocked, se.Code)
}

func TestIfHeader(t *testing.T) {
	c := New()
	dir, _ := url.Parse("http://h/d/")
	file, _ := url.Parse("http://h/d/f.txt")
	other, _ := url.Parse("http://h/e.txt")

	c.locks[lockKey(dir)] = Lock{URL: dir, Token: "t-dir", Depth: DepthInfinity}
	c.locks[lockKey(other)] = Lock{URL: other, Token: "t-other", Depth: Depth0}

	assert.Equal(t, "(<t-dir>)", c.ifHeader(file).Get("If"))
	assert.Nil(t, c.ifHeader(mustURL(t, "http://h/z.txt")))
	assert.Equal(t, "<http://h/d/f.txt> (<t-dir>) <http://h/e.txt> (<t-other>)", c.ifHeader(file, other).Get("If"))
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

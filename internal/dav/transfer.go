// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/jeranaias/davsh/internal/progress"
)

// =============================================================================
// DOWNLOAD
// =============================================================================

// Get streams u into w in chunks, calling cb after each chunk and once
// more with a final Success or Failure. cb may be nil.
func (c *Client) Get(ctx context.Context, u *url.URL, w io.Writer, cb progress.Func) (int64, error) {
	cb = orNoop(cb)
	target := u.Redacted()

	resp, err := c.do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		cb(progress.Failure, err.Error(), target, 0, 0, nil)
		return 0, err
	}
	defer drain(resp)
	if err := expect(resp, http.StatusOK); err != nil {
		err = c.fail(err)
		cb(progress.Failure, err.Error(), target, 0, 0, nil)
		return 0, err
	}

	total := resp.ContentLength
	buf := make([]byte, c.chunkSize)
	var soFar int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				err := c.fail(fmt.Errorf("write %s: %w", target, werr))
				cb(progress.Failure, err.Error(), target, soFar, total, nil)
				return soFar, err
			}
			soFar += int64(n)
			cb(progress.InProgress, "", target, soFar, total, buf[:n])
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			err := c.fail(fmt.Errorf("read %s: %w", target, rerr))
			cb(progress.Failure, err.Error(), target, soFar, total, nil)
			return soFar, err
		}
	}

	c.setMessage("Downloaded %s (%d bytes)", target, soFar)
	cb(progress.Success, c.Message(), target, soFar, total, nil)
	return soFar, nil
}

// =============================================================================
// UPLOAD
// =============================================================================

// Put uploads the local file at localPath to u.
func (c *Client) Put(ctx context.Context, localPath string, u *url.URL, cb progress.Func) error {
	cb = orNoop(cb)
	target := u.Redacted()

	f, err := os.Open(localPath)
	if err != nil {
		err = c.fail(fmt.Errorf("open %s: %w", localPath, err))
		cb(progress.Failure, err.Error(), target, 0, 0, nil)
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		err = c.fail(fmt.Errorf("stat %s: %w", localPath, err))
		cb(progress.Failure, err.Error(), target, 0, 0, nil)
		return err
	}
	if info.IsDir() {
		err = c.fail(fmt.Errorf("%s is a directory", localPath))
		cb(progress.Failure, err.Error(), target, 0, 0, nil)
		return err
	}
	size := info.Size()

	// reported survives body replays so callbacks stay monotonic
	var reported int64
	body := func() (io.Reader, error) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return &countingReader{
			r: f, chunk: c.chunkSize, reported: &reported,
			report: func(pos int64, p []byte) { cb(progress.InProgress, "", target, pos, size, p) },
		}, nil
	}

	resp, err := c.do(ctx, http.MethodPut, u, body, c.ifHeader(u), func(req *http.Request) {
		req.ContentLength = size
		req.Header.Set("Content-Type", "application/octet-stream")
	})
	if err != nil {
		cb(progress.Failure, err.Error(), target, reported, size, nil)
		return err
	}
	defer drain(resp)
	if err := expect(resp, http.StatusOK, http.StatusCreated, http.StatusNoContent); err != nil {
		err = c.fail(err)
		cb(progress.Failure, err.Error(), target, reported, size, nil)
		return err
	}

	c.setMessage("Uploaded %s to %s (%d bytes)", localPath, target, size)
	cb(progress.Success, c.Message(), target, size, size, nil)
	return nil
}

// countingReader reports each chunk read past the furthest position
// already reported.
type countingReader struct {
	r        io.Reader
	chunk    int
	pos      int64
	reported *int64
	report   func(pos int64, p []byte)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	if cr.chunk > 0 && len(p) > cr.chunk {
		p = p[:cr.chunk]
	}
	n, err := cr.r.Read(p)
	if n > 0 {
		start := cr.pos
		cr.pos += int64(n)
		if cr.pos > *cr.reported {
			fresh := p[:n]
			if skip := *cr.reported - start; skip > 0 {
				fresh = p[skip:n]
			}
			*cr.reported = cr.pos
			cr.report(cr.pos, fresh)
		}
	}
	return n, err
}

func orNoop(cb progress.Func) progress.Func {
	if cb != nil {
		return cb
	}
	return func(progress.Status, string, string, int64, int64, []byte) {}
}

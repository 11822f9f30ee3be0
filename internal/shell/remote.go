// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jeranaias/davsh/internal/commands"
	"github.com/jeranaias/davsh/internal/dav"
	"github.com/jeranaias/davsh/internal/edit"
	"github.com/jeranaias/davsh/internal/progress"
)

// defaultNamespace is used by set and unset when none is given.
const defaultNamespace = "DAV:"

// =============================================================================
// NAVIGATION
// =============================================================================

func cmdOpen(ctx context.Context, s *Shell, args []string) error {
	return s.Open(ctx, args[0])
}

func cmdCd(ctx context.Context, s *Shell, args []string) error {
	if len(args) == 0 {
		if s.root == nil {
			return dav.ErrNotOpen
		}
		s.cwd = cloneURL(s.root)
		return nil
	}
	u, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	res, err := s.client.Stat(ctx, u)
	if err != nil {
		return err
	}
	if !res.IsCollection {
		return fmt.Errorf("%s: %w", args[0], dav.ErrNotCollection)
	}
	s.cwd = asCollection(res.URL)
	return nil
}

func cmdPwd(_ context.Context, s *Shell, _ []string) error {
	if s.cwd == nil {
		return dav.ErrNotOpen
	}
	s.printf("%s\n", s.cwd.Redacted())
	return nil
}

func cmdLs(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolveOrCwd(args, 0)
	if err != nil {
		return err
	}
	res, err := s.client.Propfind(ctx, u, dav.Depth1)
	if err != nil {
		return err
	}
	if len(res) == 0 {
		return fmt.Errorf("%s: %w", u.Redacted(), dav.ErrNotFound)
	}

	entries := res[1:]
	if !res[0].IsCollection {
		entries = res[:1]
	}
	if len(entries) == 0 {
		s.info("(empty collection)")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		kind, name := "file", e.Name
		if e.IsCollection {
			kind, name = "dir", e.Name+"/"
		}
		rows = append(rows, []string{kind, formatSize(e.Size, e.IsCollection), formatTime(e.Modified), name})
	}
	printTable(s.out, []string{"Type", "Size", "Modified", "Name"}, rows)
	return nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

func cmdGet(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	res, err := s.client.Stat(ctx, u)
	if err != nil {
		return err
	}
	if res.IsCollection {
		return fmt.Errorf("%s: cannot download a collection", args[0])
	}

	local := res.Name
	if len(args) > 1 {
		local = args[1]
	}
	local = s.localPath(local)
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		local = filepath.Join(local, res.Name)
	}

	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("create %s: %w", local, err)
	}
	_, getErr := s.client.Get(ctx, u, f, s.reporter.Func())
	closeErr := f.Close()
	if getErr != nil {
		os.Remove(local)
		return getErr
	}
	if closeErr != nil {
		return fmt.Errorf("write %s: %w", local, closeErr)
	}
	return nil
}

func cmdPut(ctx context.Context, s *Shell, args []string) error {
	pattern := s.localPath(args[0])
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		if _, statErr := os.Stat(pattern); statErr != nil {
			return fmt.Errorf("%s: no such local file", args[0])
		}
		matches = []string{pattern}
	}

	var target *url.URL
	if len(args) > 1 {
		if target, err = s.resolve(args[1]); err != nil {
			return err
		}
	} else if s.cwd == nil {
		return dav.ErrNotOpen
	}

	intoCollection := target == nil || len(matches) > 1 || strings.HasSuffix(args[len(args)-1], "/")
	if target != nil && !intoCollection {
		if res, err := s.client.Stat(ctx, target); err == nil && res.IsCollection {
			intoCollection = true
		}
	}
	if target == nil {
		target = cloneURL(s.cwd)
	}

	var errs []error
	for _, local := range matches {
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			s.notice(fmt.Sprintf("skipping directory %s", local))
			continue
		}
		dst := target
		if intoCollection {
			dst = child(target, filepath.Base(local))
		}
		if err := s.client.Put(ctx, local, dst, s.reporter.Func()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cmdCat(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolve(args[0])
	if err != nil {
		return err
	}

	sink := &catSink{out: s.out}
	if s.tty && s.cfg.Highlight {
		// highlighting needs the whole file
		sink.buf = &bytes.Buffer{}
	}
	if _, err := s.client.Get(ctx, u, io.Discard, sink.report); err != nil {
		return err
	}
	if sink.buf != nil {
		s.printf("%s", highlight(path.Base(u.Path), sink.buf.String()))
	}
	return nil
}

// catSink is the cat transfer callback. Chunks go to out as they
// arrive unless buf is set, in which case they are collected there.
// Output always ends at a line boundary.
type catSink struct {
	out  io.Writer
	buf  *bytes.Buffer
	last byte
	n    int64
}

func (c *catSink) report(status progress.Status, _, _ string, _, _ int64, chunk []byte) {
	switch status {
	case progress.InProgress:
		if len(chunk) == 0 {
			return
		}
		c.n += int64(len(chunk))
		c.last = chunk[len(chunk)-1]
		if c.buf != nil {
			c.buf.Write(chunk)
			return
		}
		c.out.Write(chunk)
	case progress.Success, progress.Failure:
		if c.n == 0 || c.last == '\n' {
			return
		}
		if c.buf != nil {
			c.buf.WriteByte('\n')
			return
		}
		io.WriteString(c.out, "\n")
	}
}

func cmdEdit(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	sess, err := s.editor.Edit(ctx, u)
	if err != nil {
		return err
	}
	for _, st := range sess.Trail {
		if st == edit.Unchanged {
			s.info(fmt.Sprintf("%s unchanged, not uploaded", args[0]))
		}
	}
	return nil
}

// =============================================================================
// COLLECTION MANAGEMENT
// =============================================================================

func cmdDelete(ctx context.Context, s *Shell, args []string) error {
	var errs []error
	for _, arg := range args {
		u, err := s.resolve(arg)
		if err != nil {
			return err
		}
		if err := s.client.Delete(ctx, u); err != nil {
			errs = append(errs, err)
			continue
		}
		s.success(s.client.Message())
	}
	return errors.Join(errs...)
}

func cmdMkcol(ctx context.Context, s *Shell, args []string) error {
	var errs []error
	for _, arg := range args {
		u, err := s.resolve(arg)
		if err != nil {
			return err
		}
		if err := s.client.Mkcol(ctx, asCollection(u)); err != nil {
			errs = append(errs, err)
			continue
		}
		s.success(s.client.Message())
	}
	return errors.Join(errs...)
}

func cmdCopy(ctx context.Context, s *Shell, args []string) error {
	return copyOrMove(ctx, s, args, s.client.Copy)
}

func cmdMove(ctx context.Context, s *Shell, args []string) error {
	return copyOrMove(ctx, s, args, s.client.Move)
}

func copyOrMove(ctx context.Context, s *Shell, args []string, op func(context.Context, *url.URL, *url.URL, bool) error) error {
	src, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	dst, err := s.resolve(args[1])
	if err != nil {
		return err
	}
	// a collection destination receives the source under its own name
	if res, err := s.client.Stat(ctx, dst); err == nil && res.IsCollection {
		dst = child(res.URL, path.Base(strings.TrimSuffix(src.Path, "/")))
	}
	if err := op(ctx, src, dst, true); err != nil {
		return err
	}
	s.success(s.client.Message())
	return nil
}

func cmdOptions(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolveOrCwd(args, 0)
	if err != nil {
		return err
	}
	caps, err := s.client.Options(ctx, u)
	if err != nil {
		return err
	}
	printPairs(s.out, [][2]string{
		{"URL", u.Redacted()},
		{"Allow", strings.Join(caps.Allow, ", ")},
		{"DAV", strings.Join(caps.Classes, ", ")},
		{"Server", caps.Server},
	})
	return nil
}

// =============================================================================
// PROPERTIES
// =============================================================================

func cmdPropfind(ctx context.Context, s *Shell, args []string) error {
	all := false
	var rest []string
	for _, a := range args {
		if a == "-a" {
			all = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) > 1 {
		cmd, _ := commands.Lookup(commands.Propfind)
		return usageError(cmd, "too many arguments")
	}

	u, err := s.resolveOrCwd(rest, 0)
	if err != nil {
		return err
	}
	res, err := s.client.Stat(ctx, u)
	if err != nil {
		return err
	}

	if all {
		rows := make([][]string, 0, len(res.Props))
		for _, p := range res.Props {
			rows = append(rows, []string{p.Name.Space, p.Name.Local, p.Value})
		}
		printTable(s.out, []string{"Namespace", "Name", "Value"}, rows)
		return nil
	}

	kind := "file"
	if res.IsCollection {
		kind = "collection"
	}
	pairs := [][2]string{
		{"URL", res.URL.Redacted()},
		{"Type", kind},
		{"Size", formatSize(res.Size, res.IsCollection)},
		{"Modified", formatTime(res.Modified)},
	}
	if res.ContentType != "" {
		pairs = append(pairs, [2]string{"Content-Type", res.ContentType})
	}
	if res.ETag != "" {
		pairs = append(pairs, [2]string{"ETag", res.ETag})
	}
	if res.DisplayName != "" {
		pairs = append(pairs, [2]string{"Display name", res.DisplayName})
	}
	for _, l := range res.Locks {
		pairs = append(pairs, [2]string{"Lock", fmt.Sprintf("%s (owner %s, %s)", l.Token, l.Owner, l.Timeout)})
	}
	printPairs(s.out, pairs)
	return nil
}

func cmdSet(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	ns := defaultNamespace
	if len(args) > 3 {
		ns = args[3]
	}
	if err := s.client.SetProp(ctx, u, args[1], args[2], ns); err != nil {
		return err
	}
	s.success(s.client.Message())
	return nil
}

func cmdUnset(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	ns := defaultNamespace
	if len(args) > 2 {
		ns = args[2]
	}
	if err := s.client.UnsetProp(ctx, u, args[1], ns); err != nil {
		return err
	}
	s.success(s.client.Message())
	return nil
}

// =============================================================================
// LOCKS
// =============================================================================

func cmdLock(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolveOrCwd(args, 0)
	if err != nil {
		return err
	}
	cmd, _ := commands.Lookup(commands.Lock)

	timeout := s.cfg.LockTimeoutValue()
	if len(args) > 1 {
		if timeout, err = dav.ParseTimeout(args[1]); err != nil {
			return usageError(cmd, err.Error())
		}
	}

	var depth dav.Depth
	if len(args) > 2 {
		if depth, err = dav.ParseDepth(args[2]); err != nil {
			return usageError(cmd, err.Error())
		}
	} else {
		depth = dav.Depth0
		if res, err := s.client.Stat(ctx, u); err == nil && res.IsCollection {
			depth = dav.DepthInfinity
		}
	}

	if _, err := s.client.Lock(ctx, u, timeout, depth, s.cfg.LockOwner); err != nil {
		return err
	}
	s.success(s.client.Message())
	return nil
}

func cmdUnlock(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	if err := s.client.Unlock(ctx, u); err != nil {
		return err
	}
	s.success(s.client.Message())
	return nil
}

func cmdSteal(ctx context.Context, s *Shell, args []string) error {
	u, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	if _, err := s.client.Steal(ctx, u); err != nil {
		return err
	}
	s.success(s.client.Message())
	return nil
}

func cmdShowlocks(_ context.Context, s *Shell, _ []string) error {
	locks := s.client.Locks()
	if len(locks) == 0 {
		s.info("No locks held.")
		return nil
	}
	rows := make([][]string, 0, len(locks))
	for _, l := range locks {
		rows = append(rows, []string{displayPath(l.URL), l.Timeout.String(), string(l.Depth), l.Owner, l.Token})
	}
	printTable(s.out, []string{"Resource", "Timeout", "Depth", "Owner", "Token"}, rows)
	return nil
}

// child returns the member name of collection u.
func child(u *url.URL, name string) *url.URL {
	return asCollection(u).ResolveReference(&url.URL{Path: "./" + name})
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package progress renders transfer progress reported by the dav client.
//
// A transfer calls the Func once per chunk with InProgress and then
// exactly once with Success or Failure. The Reporter prints a header on
// the first chunk, redraws a single progress line (throttled with
// golang.org/x/time/rate) and terminates that line before printing the
// final status so the next output starts on a fresh line.
//
// # Usage
//
//	rep := progress.New(os.Stdout, progress.WithBars(isTTY))
//	client.Get(ctx, url, w, rep.Func())
package progress

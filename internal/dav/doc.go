// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dav is a small WebDAV client used by the shell.
//
// It speaks PROPFIND, PROPPATCH, MKCOL, COPY, MOVE, LOCK and UNLOCK on top
// of net/http and remembers the lock tokens it was granted so later writes
// carry an If header. Authentication is not handled here: install an
// auth.Transport with WithTransport.
//
// Every call records a human readable status retrievable with Message.
// Transfers report progress through a progress.Func.
package dav

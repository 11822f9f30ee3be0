// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth answers HTTP authentication challenges for the dav client.
//
// The Transport wraps the client's http.RoundTripper. It keeps a
// session-scoped Store keyed by (realm, host:port) holding pending and
// committed credentials plus a monotonic failure counter. Once a key has
// been challenged more than the threshold (3 by default) no further
// credentials are offered for it and requests fail with ErrNoCredentials
// instead of looping on the prompt.
//
// # Key Types
//
//   - Transport: challenge-answering RoundTripper (Basic and Digest)
//   - Store: pending/committed credential cache and failure counter
//   - Prompter: interactive credential source; TerminalPrompter reads the
//     password with terminal echo suspended via golang.org/x/term
//
// # Usage
//
//	store := auth.NewStore(auth.WithMaxAttempts(3))
//	rt := auth.NewTransport(http.DefaultTransport, store,
//	    auth.NewTerminalPrompter(os.Stdin, os.Stdout, nil))
//	client := &http.Client{Transport: rt}
package auth

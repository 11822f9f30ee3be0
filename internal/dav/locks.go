// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TIMEOUTS
// =============================================================================

// Timeout is a lock timeout. Infinite asks the server never to expire the lock.
type Timeout time.Duration

// Infinite is the unbounded lock timeout.
const Infinite Timeout = -1

// ParseTimeout accepts "infinite", a bare number of seconds ("3600") or
// a Go duration ("10h", "30m").
func ParseTimeout(s string) (Timeout, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "infinite", "infinity", "inf":
		return Infinite, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("invalid timeout %q: must be positive", s)
		}
		return Timeout(time.Duration(n) * time.Second), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeout %q: use 10h, 30m, 3600 or infinite", s)
	}
	return Timeout(d), nil
}

// Header renders the value of the Timeout request header.
func (t Timeout) Header() string {
	if t < 0 {
		return "Infinite"
	}
	secs := int64(time.Duration(t) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return "Second-" + strconv.FormatInt(secs, 10)
}

func (t Timeout) String() string {
	if t < 0 {
		return "infinite"
	}
	return time.Duration(t).String()
}

// =============================================================================
// LOCKS
// =============================================================================

// Lock is a lock this client holds.
type Lock struct {
	URL     *url.URL
	Token   string
	Owner   string
	Timeout Timeout
	Depth   Depth
}

// covers reports whether the lock applies to u.
func (l Lock) covers(u *url.URL) bool {
	lp, up := strings.TrimSuffix(l.URL.Path, "/"), strings.TrimSuffix(u.Path, "/")
	if lp == up {
		return true
	}
	return l.Depth == DepthInfinity && strings.HasPrefix(up, lp+"/")
}

const lockInfoFormat = `<?xml version="1.0" encoding="utf-8"?>
<D:lockinfo xmlns:D="DAV:"><D:lockscope><D:exclusive/></D:lockscope>` +
	`<D:locktype><D:write/></D:locktype><D:owner><D:href>%s</D:href></D:owner></D:lockinfo>`

// Lock takes an exclusive write lock on u. A lock held by someone else
// yields an error wrapping ErrLocked.
func (c *Client) Lock(ctx context.Context, u *url.URL, timeout Timeout, depth Depth, owner string) (Lock, error) {
	if owner == "" {
		owner = DefaultLockOwner
	}
	var esc strings.Builder
	if err := xml.EscapeText(&esc, []byte(owner)); err != nil {
		return Lock{}, c.fail(err)
	}

	h := http.Header{}
	h.Set("Content-Type", `application/xml; charset="utf-8"`)
	h.Set("Timeout", timeout.Header())
	h.Set("Depth", string(depth))

	resp, err := c.do(ctx, "LOCK", u, stringBody(fmt.Sprintf(lockInfoFormat, esc.String())), h)
	if err != nil {
		return Lock{}, err
	}
	defer drain(resp)
	if err := expect(resp, http.StatusOK, http.StatusCreated); err != nil {
		return Lock{}, c.fail(err)
	}

	token := strings.Trim(strings.TrimSpace(resp.Header.Get("Lock-Token")), "<>")
	if token == "" {
		return Lock{}, c.fail(fmt.Errorf("LOCK %s: server returned no lock token", u.Redacted()))
	}

	l := Lock{URL: cloneURL(u), Token: token, Owner: owner, Timeout: timeout, Depth: depth}
	c.mu.Lock()
	c.locks[lockKey(u)] = l
	c.mu.Unlock()

	c.setMessage("Locked %s (timeout %s)", u.Redacted(), timeout)
	return l, nil
}

// Unlock releases the lock we hold on u.
func (c *Client) Unlock(ctx context.Context, u *url.URL) error {
	c.mu.Lock()
	l, ok := c.locks[lockKey(u)]
	c.mu.Unlock()
	if !ok {
		return c.fail(fmt.Errorf("no lock held on %s", u.Redacted()))
	}
	if err := c.unlockToken(ctx, u, l.Token); err != nil {
		return err
	}
	c.setMessage("Unlocked %s", u.Redacted())
	return nil
}

// Steal releases every lock the server reports on u, whoever owns it.
func (c *Client) Steal(ctx context.Context, u *url.URL) (int, error) {
	res, err := c.Stat(ctx, u)
	if err != nil {
		return 0, err
	}
	if len(res.Locks) == 0 {
		c.setMessage("%s is not locked", u.Redacted())
		return 0, nil
	}
	for i, al := range res.Locks {
		if err := c.unlockToken(ctx, u, al.Token); err != nil {
			return i, err
		}
	}
	c.setMessage("Stole %d lock(s) on %s", len(res.Locks), u.Redacted())
	return len(res.Locks), nil
}

func (c *Client) unlockToken(ctx context.Context, u *url.URL, token string) error {
	h := http.Header{}
	h.Set("Lock-Token", "<"+token+">")
	resp, err := c.do(ctx, "UNLOCK", u, nil, h)
	if err != nil {
		return err
	}
	defer drain(resp)
	if err := expect(resp, http.StatusNoContent, http.StatusOK); err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	for k, l := range c.locks {
		if l.Token == token {
			delete(c.locks, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// Locks returns the locks this client holds, sorted by URL.
func (c *Client) Locks() []Lock {
	c.mu.Lock()
	out := make([]Lock, 0, len(c.locks))
	for _, l := range c.locks {
		out = append(out, l)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URL.String() < out[j].URL.String() })
	return out
}

// ifHeader builds an If header carrying the tokens of held locks that
// cover any of urls. It returns nil when no lock applies.
func (c *Client) ifHeader(urls ...*url.URL) http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lists []string
	seen := make(map[string]bool)
	for _, u := range urls {
		var tokens []string
		for _, l := range c.locks {
			if l.covers(u) && !seen[l.Token] {
				seen[l.Token] = true
				tokens = append(tokens, "(<"+l.Token+">)")
			}
		}
		if len(tokens) == 0 {
			continue
		}
		sort.Strings(tokens)
		if len(urls) == 1 {
			lists = append(lists, tokens...)
		} else {
			lists = append(lists, "<"+u.String()+"> "+strings.Join(tokens, " "))
		}
	}
	if len(lists) == 0 {
		return nil
	}
	h := http.Header{}
	h.Set("If", strings.Join(lists, " "))
	return h
}

// forgetLocksUnder drops held locks on u and its members, which no
// longer exist after a DELETE or MOVE.
func (c *Client) forgetLocksUnder(u *url.URL) {
	prefix := strings.TrimSuffix(u.Path, "/")
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, l := range c.locks {
		p := strings.TrimSuffix(l.URL.Path, "/")
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			delete(c.locks, k)
		}
	}
}

func lockKey(u *url.URL) string {
	k := *u
	k.Path = strings.TrimSuffix(k.Path, "/")
	k.RawPath = ""
	k.User = nil
	return k.String()
}

func cloneURL(u *url.URL) *url.URL {
	v := *u
	return &v
}

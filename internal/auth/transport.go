// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// ErrNoCredentials is returned when no credentials can be supplied for a
// challenge: prompting is impossible, the operator declined, or the key
// has been challenged too often.
var ErrNoCredentials = errors.New("no credentials available")

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport is an http.RoundTripper that answers 401 challenges.
//
// Committed credentials for a host are attached pre-emptively once the
// realm for that host is known. A challenge is counted against its
// (realm, host:port) key, then answered with committed, seeded or
// prompted credentials, and the request is replayed. A pending entry is
// committed by the first non-challenge response to a request carrying it.
// A stale Digest challenge to the credentials just sent is answered once
// with the same credentials and the fresh nonce, and is not counted.
type Transport struct {
	// Base performs the actual requests. nil means http.DefaultTransport.
	Base http.RoundTripper

	store    *Store
	prompter Prompter

	mu         sync.Mutex
	realms     map[string]string
	challenges map[Key]Challenge
	nonceCount map[string]int
}

// NewTransport creates a Transport. prompter may be nil, in which case
// only committed and seeded credentials are ever used.
func NewTransport(base http.RoundTripper, store *Store, prompter Prompter) *Transport {
	if store == nil {
		store = NewStore()
	}
	return &Transport{
		Base:       base,
		store:      store,
		prompter:   prompter,
		realms:     make(map[string]string),
		challenges: make(map[Key]Challenge),
		nonceCount: make(map[string]int),
	}
}

// Store returns the session credential store.
func (t *Transport) Store() *Store {
	return t.store
}

// attempt records which credentials the current request carries.
type attempt struct {
	key     Key
	creds   Credentials
	pending bool
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	hostPort := HostPort(req.URL)

	// the first send may consume the original body
	r := req.Clone(req.Context())

	var carried *attempt
	staleRetried := false
	if a, ch, ok := t.preemptive(hostPort); ok {
		if err := authorize(r, ch, a.creds, t.nextNonceCount(ch.Nonce())); err == nil {
			carried = a
		}
	}

	for {
		resp, err := t.base().RoundTrip(r)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusUnauthorized {
			if carried != nil && carried.pending {
				t.store.Promote(carried.key)
				slog.Debug("credentials committed", "realm", carried.key.Realm, "host", carried.key.HostPort)
			}
			return resp, nil
		}

		ch, ok := preferred(ParseChallenges(resp.Header.Values("WWW-Authenticate")))
		if !ok {
			return resp, nil
		}
		key := Key{Realm: ch.Realm, HostPort: hostPort}
		t.remember(key, ch)

		var next *attempt
		if ch.Stale && carried != nil && carried.key == key && !staleRetried {
			// only the nonce expired; the same credentials go again
			// uncounted and without a prompt
			staleRetried = true
			next = carried
			slog.Debug("digest nonce expired, retrying", "realm", key.Realm, "host", key.HostPort)
		} else {
			if carried != nil && carried.pending {
				t.store.Discard(carried.key)
			}
			if next, err = t.answer(key, carried); err != nil {
				drain(resp)
				return nil, err
			}
		}

		retry, err := cloneRequest(req)
		if err != nil {
			// body cannot be replayed; let the caller see the challenge
			return resp, nil
		}
		if err := authorize(retry, ch, next.creds, t.nextNonceCount(ch.Nonce())); err != nil {
			drain(resp)
			return nil, err
		}

		drain(resp)
		r = retry
		carried = next
	}
}

// Credentials is the authentication callback: given a realm and target
// host:port it counts the challenge and returns credentials to try, or
// ErrNoCredentials.
func (t *Transport) Credentials(realm, hostPort string) (Credentials, error) {
	a, err := t.answer(Key{Realm: realm, HostPort: hostPort}, nil)
	if err != nil {
		return Credentials{}, err
	}
	return a.creds, nil
}

// answer decides which credentials to send after a challenge for key.
func (t *Transport) answer(key Key, carried *attempt) (*attempt, error) {
	if !t.store.RecordChallenge(key) {
		slog.Info("authentication attempts exhausted", "realm", key.Realm, "host", key.HostPort,
			"failures", t.store.Failures(key))
		return nil, fmt.Errorf("%w for %q at %s: too many failed attempts", ErrNoCredentials, key.Realm, key.HostPort)
	}

	// committed credentials not yet tried on this request
	if c, ok := t.store.Committed(key); ok && (carried == nil || carried.key != key || carried.pending) {
		return &attempt{key: key, creds: c}, nil
	}

	if c, ok := t.store.takeDefault(key); ok {
		t.store.SetPending(key, c)
		return &attempt{key: key, creds: c, pending: true}, nil
	}

	if t.prompter == nil || !t.prompter.Interactive() {
		return nil, fmt.Errorf("%w for %q at %s: not interactive", ErrNoCredentials, key.Realm, key.HostPort)
	}

	c, err := t.prompter.Prompt(key)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	t.store.SetPending(key, c)
	return &attempt{key: key, creds: c, pending: true}, nil
}

func (t *Transport) preemptive(hostPort string) (*attempt, Challenge, bool) {
	t.mu.Lock()
	realm, ok := t.realms[hostPort]
	var ch Challenge
	if ok {
		ch, ok = t.challenges[Key{Realm: realm, HostPort: hostPort}]
	}
	t.mu.Unlock()
	if !ok {
		return nil, Challenge{}, false
	}

	key := Key{Realm: realm, HostPort: hostPort}
	c, ok := t.store.Committed(key)
	if !ok {
		return nil, Challenge{}, false
	}
	return &attempt{key: key, creds: c}, ch, true
}

func (t *Transport) remember(key Key, ch Challenge) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.realms[key.HostPort] = key.Realm
	t.challenges[key] = ch
}

func (t *Transport) nextNonceCount(nonce string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nonceCount[nonce]++
	return t.nonceCount[nonce]
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// =============================================================================
// HELPERS
// =============================================================================

// HostPort returns the lower-cased host:port of u, adding the scheme's
// default port when none is given.
func HostPort(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https", "davs":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(host, port)
}

// cloneRequest copies req with a fresh body so it can be sent again.
func cloneRequest(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replay request body: %w", err)
	}
	r.Body = body
	return r, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/icholy/digest"
)

// =============================================================================
// CHALLENGE PARSING
// =============================================================================

// Scheme is an HTTP authentication scheme.
type Scheme string

const (
	SchemeBasic  Scheme = "Basic"
	SchemeDigest Scheme = "Digest"
)

// Challenge is one parsed WWW-Authenticate challenge.
type Challenge struct {
	Scheme Scheme
	Realm  string

	// Stale is set on a Digest challenge whose nonce expired while the
	// credentials themselves were accepted.
	Stale bool

	digest *digest.Challenge
}

// Nonce returns the server nonce of a Digest challenge.
func (c Challenge) Nonce() string {
	if c.digest == nil {
		return ""
	}
	return c.digest.Nonce
}

// ParseChallenges parses the given WWW-Authenticate values, one
// challenge per value. Unsupported schemes and Digest algorithms are
// skipped.
func ParseChallenges(values []string) []Challenge {
	var out []Challenge
	for _, v := range values {
		if ch, ok := parseChallenge(v); ok {
			out = append(out, ch)
		}
	}
	return out
}

func parseChallenge(v string) (Challenge, bool) {
	scheme, params, _ := strings.Cut(strings.TrimSpace(v), " ")

	// Basic and Digest share the auth-param grammar
	dc, err := digest.ParseChallenge(digest.Prefix + strings.TrimSpace(params))
	if err != nil {
		return Challenge{}, false
	}

	switch {
	case strings.EqualFold(scheme, string(SchemeBasic)):
		return Challenge{Scheme: SchemeBasic, Realm: dc.Realm}, true
	case strings.EqualFold(scheme, string(SchemeDigest)):
		if dc.Nonce == "" || !digest.CanDigest(dc) {
			return Challenge{}, false
		}
		return Challenge{Scheme: SchemeDigest, Realm: dc.Realm, Stale: dc.Stale, digest: dc}, true
	}
	return Challenge{}, false
}

// preferred picks Digest over Basic.
func preferred(chs []Challenge) (Challenge, bool) {
	for _, ch := range chs {
		if ch.Scheme == SchemeDigest {
			return ch, true
		}
	}
	if len(chs) > 0 {
		return chs[0], true
	}
	return Challenge{}, false
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

// authorize sets the Authorization header of req for ch. nc is the
// nonce count to use for Digest.
func authorize(req *http.Request, ch Challenge, c Credentials, nc int) error {
	switch ch.Scheme {
	case SchemeBasic:
		req.SetBasicAuth(c.Username, c.Password)
		return nil
	case SchemeDigest:
		cred, err := digest.Digest(ch.digest, digest.Options{
			Method:   req.Method,
			URI:      req.URL.RequestURI(),
			GetBody:  req.GetBody,
			Count:    nc,
			Username: c.Username,
			Password: c.Password,
		})
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", cred.String())
		return nil
	default:
		return fmt.Errorf("unsupported authentication scheme %q", ch.Scheme)
	}
}

// Package auth checks bearer API keys for the HTTP surface.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrMissingKey is returned when a request carries no bearer token.
var ErrMissingKey = errors.New("missing api key")

// ErrInvalidKey is returned for tokens not in the configured set.
var ErrInvalidKey = errors.New("invalid api key")

// Auth holds the configured API keys. With no keys, every request is allowed.
type Auth struct {
	digests [][sha256.Size]byte
}

// New builds an Auth from a key list; blanks and duplicates are ignored.
func New(keys []string) *Auth {
	seen := make(map[string]struct{}, len(keys))
	a := &Auth{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		a.digests = append(a.digests, sha256.Sum256([]byte(k)))
	}
	return a
}

// Enabled reports whether any key is configured.
func (a *Auth) Enabled() bool {
	return a != nil && len(a.digests) > 0
}

// Allowed compares key against every configured key in constant time.
func (a *Auth) Allowed(key string) bool {
	if !a.Enabled() {
		return true
	}
	sum := sha256.Sum256([]byte(key))
	ok := 0
	for _, d := range a.digests {
		ok |= subtle.ConstantTimeCompare(sum[:], d[:])
	}
	return ok == 1
}

// Check validates the Authorization header of r.
func (a *Auth) Check(r *http.Request) error {
	if !a.Enabled() {
		return nil
	}
	key := BearerToken(r.Header.Get("Authorization"))
	if key == "" {
		return ErrMissingKey
	}
	if !a.Allowed(key) {
		return ErrInvalidKey
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

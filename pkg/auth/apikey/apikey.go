// Package apikey authenticates bearer tokens against a fixed set of API
// keys. Only SHA-256 digests of the keys are kept in memory.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/chatwire/pkg/auth"
)

// Key binds an API key to the identity it authenticates as.
type Key struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

type Authenticator struct {
	entries []entry
}

// New hashes keys and drops the plaintext. Empty keys are skipped.
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		a.entries = append(a.entries, entry{digest: sha256.Sum256([]byte(k.Key)), identity: k.Identity})
	}
	return a
}

// Authenticate abstains without a bearer token. A token that matches no
// key is rejected.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, ok := bearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(token))
	match := -1
	// Every entry is compared so the time taken does not reveal a match position.
	for i := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := a.entries[match].identity
	return auth.Result{Decision: auth.Yes, Identity: &id}
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return strings.TrimSpace(token), ok
}

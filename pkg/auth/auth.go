package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision is an authenticator's vote.
type Decision int

const (
	// Yes means the credentials are valid. The chain stops.
	Yes Decision = iota

	// No means credentials are present but invalid. The chain stops and
	// the request is rejected.
	No

	// Abstain passes the request to the next authenticator.
	Abstain
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// Result is the outcome of one authentication attempt. Identity is set
// for Yes, Err for No.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity is an authenticated caller.
type Identity struct {
	Subject string

	// TenantID scopes transcript storage. Empty means unscoped.
	TenantID string

	// ServiceTier selects the rate limit.
	ServiceTier string

	Scopes []string
}

// Authenticator examines request credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) Result

func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) Result {
	return f(ctx, r)
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Anonymous is the identity granted when a chain defaults to Yes.
var Anonymous = Identity{Subject: "anonymous", ServiceTier: "default"}

// Chain asks authenticators left to right and stops at the first Yes or
// No. When every authenticator abstains, Default decides.
type Chain struct {
	Authenticators []Authenticator
	Default        Decision
}

func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}

	if c.Default == Yes {
		id := Anonymous
		return Result{Decision: Yes, Identity: &id}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller set by Middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

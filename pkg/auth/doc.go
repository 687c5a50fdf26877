// Package auth authenticates gateway callers and enforces per-caller rate
// limits.
//
// Authenticators vote on each request: Yes (identity established), No
// (credentials present but invalid) or Abstain (credentials not theirs to
// judge). A Chain asks them in order and falls back to its Default when
// all abstain. Middleware wraps a Chain and an optional Limiter around the
// API routes and scopes transcript storage to the caller's tenant.
package auth

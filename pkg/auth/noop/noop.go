// Package noop provides an authenticator that accepts every request as
// the anonymous caller.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/chatwire/pkg/auth"
)

type Authenticator struct{}

func (Authenticator) Authenticate(context.Context, *http.Request) auth.Result {
	id := auth.Anonymous
	return auth.Result{Decision: auth.Yes, Identity: &id}
}

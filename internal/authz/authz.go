// Package authz models the external authorization collaborator.
//
// The pipeline never validates credentials itself; it consumes an Authorizer
// that resolves a request to the identity of the uploading user. The static
// token implementation covers single-operator deployments where the daemon
// API token doubles as the credential.
package authz

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized indicates the request carries no acceptable credential.
var ErrUnauthorized = errors.New("unauthorized")

// Identity describes the authenticated caller.
type Identity struct {
	Username string
	Admin    bool
}

// Authorizer resolves a request to an identity or rejects it.
type Authorizer interface {
	Authorize(r *http.Request) (Identity, error)
}

// StaticToken authorizes requests bearing a fixed token. The caller's
// identity is taken from the X-Mixdown-User header; token holders are
// treated as admins. An empty token disables authentication entirely.
type StaticToken struct {
	token string
}

// NewStaticToken constructs the fixed-token authorizer.
func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: strings.TrimSpace(token)}
}

// Authorize validates the bearer token and extracts the caller identity.
func (s *StaticToken) Authorize(r *http.Request) (Identity, error) {
	username := strings.TrimSpace(r.Header.Get("X-Mixdown-User"))

	if s.token == "" {
		return Identity{Username: username, Admin: true}, nil
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return Identity{}, ErrUnauthorized
	}
	if strings.TrimPrefix(auth, "Bearer ") != s.token {
		return Identity{}, ErrUnauthorized
	}
	return Identity{Username: username, Admin: true}, nil
}

var _ Authorizer = (*StaticToken)(nil)

// Package auth exposes the session credential consumed by the REST client
// and the realtime channel. Credential lifecycle (login, refresh) is owned by
// an external collaborator; this package only hands out whatever token is
// currently valid.
package auth

import (
	"errors"
	"os"
)

// ErrNoToken is returned when no credential is available. Connect attempts
// must not proceed without one.
var ErrNoToken = errors.New("no session token available")

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() (string, error)
}

// Static wraps a fixed token, mainly for tests.
type Static string

func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// EnvSource reads the token from an environment variable on every call, so a
// refreshed credential is picked up without restarting.
type EnvSource struct {
	Var string
}

func (e EnvSource) Token() (string, error) {
	token := os.Getenv(e.Var)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Package httpapi is the REST surface that fronts pkg/session: snapshot
// reads and directive delivery for the operators/services that own a
// device, authorized against pkg/auth.
package httpapi

import (
	"context"
	"net/http"
	"strings"
)

// TokenResolver maps a bearer token to the operator username pkg/auth
// checks permissions for. The production resolver is backed by whatever
// store issues operator tokens; StaticTokenResolver covers tests and small
// single-operator deployments.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (username string, ok bool)
}

// StaticTokenResolver is a fixed token->username map.
type StaticTokenResolver map[string]string

// Resolve looks up token in the map.
func (r StaticTokenResolver) Resolve(ctx context.Context, token string) (string, bool) {
	username, ok := r[token]
	return username, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

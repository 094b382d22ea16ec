package services

import (
	"context"
	"net/http"
)

type accessTokenKey struct{}

// WithAccessToken returns a context carrying the caller's access token.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the access token carried by ctx, or "".
func AccessToken(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// ContextTokenTransport attaches the access token carried by each request's context.
//
// A server sharing one [RESTItemStore] between callers uses it so every row request
// is made as the caller. Requests without a token are sent unchanged.
type ContextTokenTransport struct {
	Base http.RoundTripper
}

func (t *ContextTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	token := AccessToken(req.Context())
	if token == "" {
		return base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(r)
}

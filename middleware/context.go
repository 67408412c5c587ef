package middleware

import (
	"context"
	"net/http"

	"github.com/quillnotes/authcore"
)

type identityContextKey struct{}

func withIdentity(ctx context.Context, identity *authcore.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromRequest returns the identity resolved by EdgeGuard or
// ResolveUser for this request, if any.
func IdentityFromRequest(r *http.Request) (*authcore.Identity, bool) {
	identity, ok := r.Context().Value(identityContextKey{}).(*authcore.Identity)
	return identity, ok
}

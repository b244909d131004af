package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const IdentityKey contextKey = "identity"

// IdentityQueryParam and IdentityHeader carry the wallet public key on the
// handshake request. Browsers cannot set headers on a WebSocket upgrade, so
// the query parameter is the primary source.
const (
	IdentityQueryParam = "pubKey"
	IdentityHeader     = "X-Identity"
)

// Identity stores the caller's identity in the request context. The value is
// opaque and is not verified; a missing identity is stored as "".
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := strings.TrimSpace(r.URL.Query().Get(IdentityQueryParam))
		if identity == "" {
			identity = strings.TrimSpace(r.Header.Get(IdentityHeader))
		}

		ctx := context.WithValue(r.Context(), IdentityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the identity from request context.
func GetIdentity(ctx context.Context) string {
	identity, _ := ctx.Value(IdentityKey).(string)
	return identity
}

package middleware

import (
	"net/http"

	tokengate "github.com/venuekit/tokengate"
)

// RequireCapability layers a capability check on top of [RequireDevice].
// The wrapped handler only runs for devices whose credential carries the
// named capability.
func RequireCapability(engine *tokengate.Engine, capability string) func(http.Handler) http.Handler {
	guard := RequireDevice(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, c := range claims.Capabilities {
				if c == capability {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	tokengate "github.com/venuekit/tokengate"
	"github.com/venuekit/tokengate/credential"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the device claims injected by [RequireDevice].
func ClaimsFromContext(ctx context.Context) (*credential.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*credential.Claims)
	return claims, ok
}

// RequireDevice returns middleware that rejects requests lacking a valid
// device credential in the Authorization header. On success the parsed
// claims are available through [ClaimsFromContext].
func RequireDevice(engine *tokengate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			cred, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.ValidateCredential(cred)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

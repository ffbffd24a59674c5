package middleware

import (
	"net/http"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
)

// RequireCapability rejects requests whose principal lacks capability with 403.
// It must run behind [Guard]; a request without a principal gets 401.
func RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := poaAuth.PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !p.Can(capability) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

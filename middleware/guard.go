package middleware

import (
	"errors"
	"net/http"
	"strings"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
)

const realm = `Bearer realm="poa"`

// Guard authenticates the bearer token on every request and stores the
// resulting principal with [poaAuth.WithPrincipal]. Missing or rejected
// tokens get 401; a backend outage gets 503.
func Guard(engine *poaAuth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			switch {
			case engine == nil:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			case !ok:
				challenge(w, "")
				return
			}

			p, err := engine.Authenticate(r.Context(), token)
			switch {
			case errors.Is(err, poaAuth.ErrBackendUnavailable):
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			case err != nil:
				challenge(w, "invalid_token")
			default:
				next.ServeHTTP(w, r.WithContext(poaAuth.WithPrincipal(r.Context(), p)))
			}
		})
	}
}

func challenge(w http.ResponseWriter, code string) {
	h := realm
	if code != "" {
		h += `, error="` + code + `"`
	}
	w.Header().Set("WWW-Authenticate", h)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// bearerToken extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(rest)
	return token, token != ""
}

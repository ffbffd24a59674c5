package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an engine error to its HTTP status. Order matters: the
// second-factor errors wrap ErrUnauthenticated.
func statusFor(err error) int {
	switch {
	case errors.Is(err, poaAuth.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, poaAuth.ErrUnauthenticated), errors.Is(err, poaAuth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, poaAuth.ErrInvalidInput),
		errors.Is(err, poaAuth.ErrInvalidRole),
		errors.Is(err, poaAuth.ErrPasswordPolicy),
		errors.Is(err, poaAuth.ErrPasswordReuse):
		return http.StatusBadRequest
	case errors.Is(err, poaAuth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, poaAuth.ErrConflict),
		errors.Is(err, poaAuth.ErrTOTPAlreadyEnabled),
		errors.Is(err, poaAuth.ErrTOTPNotPending),
		errors.Is(err, poaAuth.ErrTOTPNotEnabled):
		return http.StatusConflict
	case errors.Is(err, poaAuth.ErrBackendUnavailable), errors.Is(err, poaAuth.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusUnauthorized:
		msg = "unauthenticated"
	case status >= http.StatusInternalServerError:
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		msg = http.StatusText(status)
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

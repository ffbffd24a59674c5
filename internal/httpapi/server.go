// Package httpapi exposes the engine's operations as a JSON API. It is the
// router behind cmd/poa-authd.
package httpapi

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
	"github.com/lucaaxano/poa-app-sub000/internal/throttle"
	"github.com/lucaaxano/poa-app-sub000/middleware"
	"github.com/lucaaxano/poa-app-sub000/role"
)

// Options tunes the router. Zero values pick the defaults noted per field.
type Options struct {
	// Logger receives one line per request. Default: stderr, UTC timestamps.
	Logger *log.Logger
	// RequestEvery and RequestBurst bound requests per client IP. A zero
	// RequestEvery disables the limit.
	RequestEvery time.Duration
	RequestBurst int
	// MaxBodyBytes caps JSON request bodies. Default 64 KiB.
	MaxBodyBytes int64
	// TrustForwardedFor takes the client IP from X-Forwarded-For.
	TrustForwardedFor bool
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
}

// Server holds the handlers' shared state.
type Server struct {
	engine  *poaAuth.Engine
	logger  *log.Logger
	limiter *throttle.Keyed
	opts    Options
}

// NewRouter builds the full route table over engine.
func NewRouter(engine *poaAuth.Engine, opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "poa-authd ", log.LstdFlags|log.LUTC)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 10
	}
	s := &Server{
		engine: engine,
		logger: opts.Logger,
		opts:   opts,
	}
	if opts.RequestEvery > 0 {
		s.limiter = throttle.New(opts.RequestEvery, opts.RequestBurst, 5*time.Minute)
	}

	r := mux.NewRouter()
	r.Use(s.logging, s.clientIP, s.rateLimit)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/register", s.register).Methods(http.MethodPost)
	v1.HandleFunc("/login", s.login).Methods(http.MethodPost)
	v1.HandleFunc("/login/second-factor", s.completeSecondFactor).Methods(http.MethodPost)
	v1.HandleFunc("/token/refresh", s.refresh).Methods(http.MethodPost)
	v1.HandleFunc("/password/forgot", s.forgotPassword).Methods(http.MethodPost)
	v1.HandleFunc("/password/reset", s.resetPassword).Methods(http.MethodPost)
	v1.HandleFunc("/invitations/accept", s.acceptInvitation).Methods(http.MethodPost)

	authed := v1.NewRoute().Subrouter()
	authed.Use(middleware.Guard(engine))
	authed.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	authed.HandleFunc("/me", s.profile).Methods(http.MethodGet)
	authed.HandleFunc("/me/password", s.changePassword).Methods(http.MethodPost)
	authed.HandleFunc("/me/totp/setup", s.totpSetup).Methods(http.MethodPost)
	authed.HandleFunc("/me/totp/enable", s.totpEnable).Methods(http.MethodPost)
	authed.HandleFunc("/me/totp/disable", s.totpDisable).Methods(http.MethodPost)
	authed.HandleFunc("/me/totp/backup-codes", s.totpRegenerate).Methods(http.MethodPost)
	authed.Handle("/invitations",
		middleware.RequireCapability(role.CapCompanyInvite)(http.HandlerFunc(s.createInvitation)),
	).Methods(http.MethodPost)

	admin := authed.PathPrefix("/identities/{id}").Subrouter()
	admin.Use(middleware.RequireCapability(role.CapIdentityAdminister))
	admin.HandleFunc("/active", s.setActive).Methods(http.MethodPost)
	admin.HandleFunc("/role", s.changeRole).Methods(http.MethodPost)

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
	"github.com/lucaaxano/poa-app-sub000/role"
	"github.com/lucaaxano/poa-app-sub000/store/memstore"
)

func newEngine(t *testing.T) *poaAuth.Engine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := poaAuth.DefaultConfig()
	cfg.Tokens.SigningMethod = "hs256"
	cfg.Tokens.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4
	cfg.Password.MaxLength = 72

	engine, err := poaAuth.New().
		WithConfig(cfg).
		WithStore(memstore.New()).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return engine
}

func register(t *testing.T, engine *poaAuth.Engine) *poaAuth.RegisterResult {
	t.Helper()

	res, err := engine.Register(context.Background(), poaAuth.RegisterRequest{
		CompanyName: "Acme",
		Name:        "Ada Admin",
		Email:       "admin@acme.test",
		Password:    "correct-password-123",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res
}

func principalEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := poaAuth.PrincipalFromContext(r.Context())
		if !ok {
			t.Error("expected principal in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(p.Email))
	})
}

func TestGuardAcceptsValidAccessToken(t *testing.T) {
	engine := newEngine(t)
	reg := register(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+reg.Tokens.AccessToken)
	rec := httptest.NewRecorder()
	Guard(engine)(principalEcho(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "admin@acme.test" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestGuardRejections(t *testing.T) {
	engine := newEngine(t)
	reg := register(t, engine)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic " + reg.Tokens.AccessToken},
		{name: "empty token", header: "Bearer "},
		{name: "garbage token", header: "Bearer not-a-token"},
		{name: "refresh token", header: "Bearer " + reg.Tokens.RefreshToken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			Guard(engine)(principalEcho(t)).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected WWW-Authenticate challenge")
			}
		})
	}
}

func TestGuardNilEngine(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	Guard(nil)(principalEcho(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireCapability(t *testing.T) {
	engine := newEngine(t)
	reg := register(t, engine)
	ctx := context.Background()

	inv, err := engine.CreateInvitation(ctx, poaAuth.CreateInvitationRequest{
		CompanyID: reg.Company.ID,
		Email:     "member@acme.test",
		Role:      role.Member,
	})
	if err != nil {
		t.Fatalf("CreateInvitation failed: %v", err)
	}
	member, err := engine.AcceptInvitation(ctx, poaAuth.AcceptInvitationRequest{
		Token:    inv.Token,
		Name:     "Max Member",
		Password: "correct-password-123",
	})
	if err != nil {
		t.Fatalf("AcceptInvitation failed: %v", err)
	}

	h := Guard(engine)(RequireCapability(role.CapCompanyInvite)(principalEcho(t)))
	for _, tc := range []struct {
		token string
		want  int
	}{
		{reg.Tokens.AccessToken, http.StatusOK},
		{member.Tokens.AccessToken, http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodPost, "/invitations", nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("expected %d, got %d", tc.want, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	RequireCapability(role.CapProfileRead)(principalEcho(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without guard, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Bearerabc", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := bearerToken(tc.header)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("bearerToken(%q) = %q, %v; want %q, %v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

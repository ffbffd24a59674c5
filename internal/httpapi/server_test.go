package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
	"github.com/lucaaxano/poa-app-sub000/role"
	"github.com/lucaaxano/poa-app-sub000/store/memstore"
)

const password = "correct-password-123"

type notifier struct {
	mu     sync.Mutex
	resets []string
	invite []string
}

func (n *notifier) PasswordReset(_ context.Context, notice poaAuth.ResetNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, notice.Token)
	return nil
}

func (n *notifier) Invitation(_ context.Context, notice poaAuth.InvitationNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invite = append(n.invite, notice.Token)
	return nil
}

func (n *notifier) last(list *[]string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(*list) == 0 {
		return ""
	}
	return (*list)[len(*list)-1]
}

type fixture struct {
	t        *testing.T
	engine   *poaAuth.Engine
	handler  http.Handler
	notifier *notifier
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := poaAuth.DefaultConfig()
	cfg.Tokens.SigningMethod = "hs256"
	cfg.Tokens.PrivateKey = []byte(strings.Repeat("s", 32))
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4
	cfg.Password.MaxLength = 72

	n := &notifier{}
	engine, err := poaAuth.New().
		WithConfig(cfg).
		WithStore(memstore.New()).
		WithRedis(rdb).
		WithNotifier(n).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &fixture{t: t, engine: engine, handler: NewRouter(engine, opts), notifier: n}
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) register(email string) poaAuth.RegisterResult {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/v1/register", "", poaAuth.RegisterRequest{
		CompanyName: "Acme",
		Name:        "Ada Admin",
		Email:       email,
		Password:    password,
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeInto[poaAuth.RegisterResult](f.t, rec)
}

func TestRegisterLoginAndProfile(t *testing.T) {
	f := newFixture(t, Options{})
	reg := f.register("admin@acme.test")
	assert.Equal(t, role.CompanyAdmin, reg.Profile.Role)
	assert.NotEmpty(t, reg.Tokens.AccessToken)

	rec := f.do(http.MethodGet, "/v1/me", reg.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeInto[poaAuth.Profile](t, rec)
	assert.Equal(t, "admin@acme.test", profile.Email)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = f.do(http.MethodPost, "/v1/login", "", map[string]string{"email": "admin@acme.test", "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeInto[poaAuth.LoginResult](t, rec)
	require.NotNil(t, login.Tokens)
	assert.False(t, login.MFARequired)

	rec = f.do(http.MethodPost, "/v1/token/refresh", "", map[string]string{"refresh_token": login.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/v1/logout", login.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestErrorResponses(t *testing.T) {
	f := newFixture(t, Options{})
	f.register("admin@acme.test")

	wrong := f.do(http.MethodPost, "/v1/login", "", map[string]string{"email": "admin@acme.test", "password": "wrong-password-123"})
	unknown := f.do(http.MethodPost, "/v1/login", "", map[string]string{"email": "ghost@acme.test", "password": "wrong-password-123"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	dup := f.do(http.MethodPost, "/v1/register", "", poaAuth.RegisterRequest{
		CompanyName: "Other", Name: "Dup", Email: "admin@acme.test", Password: password,
	})
	assert.Equal(t, http.StatusConflict, dup.Code)

	extra := f.do(http.MethodPost, "/v1/login", "", map[string]string{"email": "a@b.test", "password": "x", "otp": "1"})
	assert.Equal(t, http.StatusBadRequest, extra.Code)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/v1/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/v1/me", "garbage", nil).Code)
}

func TestInvitationAndCapabilities(t *testing.T) {
	f := newFixture(t, Options{})
	admin := f.register("admin@acme.test")

	rec := f.do(http.MethodPost, "/v1/invitations", admin.Tokens.AccessToken, map[string]string{
		"email": "member@acme.test",
		"role":  "member",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "token")

	token := f.notifier.last(&f.notifier.invite)
	require.NotEmpty(t, token)
	rec = f.do(http.MethodPost, "/v1/invitations/accept", "", poaAuth.AcceptInvitationRequest{
		Token: token, Name: "Max Member", Password: password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	member := decodeInto[poaAuth.AcceptInvitationResult](t, rec)
	assert.Equal(t, admin.Company.ID, member.Profile.CompanyID)

	rec = f.do(http.MethodPost, "/v1/invitations", member.Tokens.AccessToken, map[string]string{
		"email": "other@acme.test",
		"role":  "member",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/invitations", admin.Tokens.AccessToken, map[string]string{
		"email":      "other@acme.test",
		"role":       "member",
		"company_id": "someone-else",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	path := "/v1/identities/" + member.Profile.ID + "/active"
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, path, admin.Tokens.AccessToken, map[string]bool{"active": false}).Code)

	require.NoError(t, f.engine.ChangeRole(context.Background(), admin.Profile.ID, role.SuperAdmin))
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, path, admin.Tokens.AccessToken, map[string]bool{"active": false}).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/v1/me", member.Tokens.AccessToken, nil).Code)

	rolePath := "/v1/identities/" + member.Profile.ID + "/role"
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, rolePath, admin.Tokens.AccessToken, map[string]string{"role": "pope"}).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, rolePath, admin.Tokens.AccessToken, map[string]string{"role": "broker"}).Code)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	f := newFixture(t, Options{})
	f.register("admin@acme.test")

	known := f.do(http.MethodPost, "/v1/password/forgot", "", map[string]string{"email": "admin@acme.test"})
	unknown := f.do(http.MethodPost, "/v1/password/forgot", "", map[string]string{"email": "ghost@acme.test"})
	require.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	token := f.notifier.last(&f.notifier.resets)
	require.NotEmpty(t, token)
	rec := f.do(http.MethodPost, "/v1/password/reset", "", map[string]string{"token": token, "password": "brand-new-password-1"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/v1/password/reset", "", map[string]string{"token": token, "password": "brand-new-password-2"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/v1/login", "", map[string]string{"email": "admin@acme.test", "password": "brand-new-password-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPerIPRateLimit(t *testing.T) {
	f := newFixture(t, Options{RequestEvery: time.Hour, RequestBurst: 2})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/healthz", "", nil).Code)
}

func TestMetricsMountedWhenProvided(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/metrics", "", nil).Code)

	f = newFixture(t, Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})})
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "", nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{poaAuth.ErrRateLimited, http.StatusTooManyRequests},
		{poaAuth.ErrTOTPInvalid, http.StatusUnauthorized},
		{poaAuth.ErrInvalidToken, http.StatusUnauthorized},
		{poaAuth.ErrPasswordPolicy, http.StatusBadRequest},
		{poaAuth.ErrInvalidRole, http.StatusBadRequest},
		{poaAuth.ErrNotFound, http.StatusNotFound},
		{poaAuth.ErrTOTPAlreadyEnabled, http.StatusConflict},
		{poaAuth.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

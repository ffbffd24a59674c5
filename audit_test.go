package poaAuth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucaaxano/poa-app-sub000/role"
)

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func decodeAuditLines(t *testing.T, raw string) []AuditEvent {
	t.Helper()

	var events []AuditEvent
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad audit line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestAuditNeverCarriesSecrets(t *testing.T) {
	var buf bytes.Buffer
	env := newTestEnv(t, withSink(NewJSONWriterSink(&buf)))
	ctx := WithClientIP(context.Background(), "192.0.2.10")

	reg := env.register(t, "admin@acme.test")
	if _, err := env.engine.Login(ctx, "admin@acme.test", "wrong-password-123"); err == nil {
		t.Fatal("expected login failure")
	}
	secret, backups := env.enableTOTP(t, reg.Profile.ID)

	pending, err := env.engine.Login(ctx, "admin@acme.test", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.engine.CompleteSecondFactor(ctx, pending.PendingHandle, SecondFactor{BackupCode: backups[0]}); err != nil {
		t.Fatalf("CompleteSecondFactor failed: %v", err)
	}

	reset := requestReset(t, env, "admin@acme.test")
	if err := env.engine.ResetPassword(ctx, reset, resetPassword); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	inv := invite(t, env, reg.Company.ID, "member@acme.test", role.Member)
	if _, err := env.engine.AcceptInvitation(ctx, AcceptInvitationRequest{Token: inv.Token, Name: "M", Password: testPassword}); err != nil {
		t.Fatalf("AcceptInvitation failed: %v", err)
	}

	env.engine.Close()
	out := buf.String()

	for name, secretValue := range map[string]string{
		"password":       testPassword,
		"wrong password": "wrong-password-123",
		"reset password": resetPassword,
		"totp secret":    secret,
		"backup code":    backups[0],
		"reset token":    reset,
		"invite token":   inv.Token,
		"pending handle": pending.PendingHandle,
		"access token":   reg.Tokens.AccessToken,
		"refresh token":  reg.Tokens.RefreshToken,
	} {
		if strings.Contains(out, secretValue) {
			t.Fatalf("audit output leaks %s", name)
		}
	}

	seen := map[string]bool{}
	for _, ev := range decodeAuditLines(t, out) {
		seen[ev.EventType] = true
		if ev.Timestamp.IsZero() {
			t.Fatalf("event %s without timestamp", ev.EventType)
		}
	}
	for _, want := range []string{
		auditEventRegisterSuccess,
		auditEventLoginFailure,
		auditEventTOTPEnabled,
		auditEventMFARequired,
		auditEventMFASuccess,
		auditEventPasswordResetRequest,
		auditEventPasswordResetConfirm,
		auditEventInvitationCreated,
		auditEventInvitationAccepted,
	} {
		if !seen[want] {
			t.Fatalf("expected %s event in %v", want, seen)
		}
	}
}

func TestAuditFailureCarriesStableCode(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, withSink(sink))
	env.register(t, "admin@acme.test")
	ctx := WithClientIP(context.Background(), "192.0.2.10")

	if _, err := env.engine.Login(ctx, "admin@acme.test", "wrong-password-123"); err == nil {
		t.Fatal("expected login failure")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType != auditEventLoginFailure {
				continue
			}
			if ev.Success || ev.Error != string(auditErrUnauthenticated) {
				t.Fatalf("unexpected failure event %+v", ev)
			}
			if ev.IP != "192.0.2.10" {
				t.Fatalf("expected client ip, got %q", ev.IP)
			}
			if !ev.Timestamp.Equal(env.clock.Now()) {
				t.Fatalf("expected engine clock timestamp, got %v", ev.Timestamp)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for login failure event")
		}
	}
}

func TestAuditDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	env := newTestEnv(t, withSink(sink), withConfig(func(c *Config) {
		c.Audit.BufferSize = 1
		c.Audit.DropIfFull = true
	}))
	defer close(sink.gate)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = env.engine.Logout(context.Background(), "someone")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logout blocked on a full audit buffer")
	}
	if env.engine.AuditDropped() == 0 {
		t.Fatal("expected dropped audit events")
	}
}

func TestAuditErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrTOTPInvalid, auditErrTOTPInvalid},
		{ErrBackupCodeInvalid, auditErrBackupCodeInvalid},
		{ErrUnauthenticated, auditErrUnauthenticated},
		{ErrRateLimited, auditErrRateLimited},
		{ErrInvalidToken, auditErrInvalidToken},
		{ErrConflict, auditErrDuplicate},
		{ErrTOTPNotPending, auditErrTOTPState},
		{ErrBackendUnavailable, auditErrUnavailable},
		{context.Canceled, auditErrInternal},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestAuditMultiSinkReachesEverySink(t *testing.T) {
	var buf bytes.Buffer
	var logouts atomic.Int32
	counter := AuditSinkFunc(func(_ context.Context, ev AuditEvent) {
		if ev.EventType == auditEventLogout {
			logouts.Add(1)
		}
	})
	env := newTestEnv(t, withSink(MultiSink{NewJSONWriterSink(&buf), counter}))

	if err := env.engine.Logout(context.Background(), "someone"); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	env.engine.Close()

	if logouts.Load() != 1 {
		t.Fatalf("expected 1 logout event in func sink, got %d", logouts.Load())
	}
	if len(decodeAuditLines(t, buf.String())) != 1 {
		t.Fatalf("expected 1 json line, got %q", buf.String())
	}
}

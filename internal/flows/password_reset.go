package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// PasswordResetIdentity is a flow-local identity model.
type PasswordResetIdentity struct {
	ID        string
	Email     string
	CompanyID string
	Active    bool
}

// PasswordResetRecord is a flow-local view of a stored reset token.
type PasswordResetRecord struct {
	ID         string
	IdentityID string
	TokenHash  string
}

type PasswordResetMetrics struct {
	PasswordResetRequest          int
	PasswordResetRequestThrottled int
	PasswordResetConfirmSuccess   int
	PasswordResetConfirmFailure   int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
}

type PasswordResetErrors struct {
	EngineNotReady error
	InvalidToken   error
	PasswordPolicy error
}

type PasswordResetDeps struct {
	// GenericMessage is returned by every forgot-password call that does not
	// fail on a backend error.
	GenericMessage string
	ResetTTL       time.Duration

	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	AllowRequest func(string) bool

	FindByEmail func(context.Context, string) (PasswordResetIdentity, error)
	IsNotFound  func(error) bool

	NewToken          func() (string, error)
	CheckToken        func(string) error
	HashSecret        func(context.Context, string) (string, error)
	MatchSecret       func(context.Context, string, []string) (int, error)
	CheckPassword     func(string) error
	HashPassword      func(context.Context, string) (string, error)
	ReplaceResetToken func(context.Context, string, string, time.Time) error
	ListActiveResets  func(context.Context, time.Time) ([]PasswordResetRecord, error)
	// ApplyReset updates the password and deletes the record as one unit. It
	// returns the InvalidToken error when the record was already gone.
	ApplyReset func(context.Context, PasswordResetRecord, string) error

	Notify             func(context.Context, PasswordResetIdentity, string, time.Time) error
	InvalidateIdentity func(string)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...any)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.AllowRequest == nil {
		deps.AllowRequest = func(string) bool { return true }
	}
	if deps.InvalidateIdentity == nil {
		deps.InvalidateIdentity = func(string) {}
	}
}

// RunForgotPassword answers with GenericMessage whether or not email belongs to
// an identity. Only backend failures surface as errors.
func RunForgotPassword(ctx context.Context, email string, deps PasswordResetDeps) (string, error) {
	normalizePasswordResetDeps(&deps)
	if deps.FindByEmail == nil ||
		deps.NewToken == nil ||
		deps.HashSecret == nil ||
		deps.ReplaceResetToken == nil {
		return "", deps.Errors.EngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", nil, func() map[string]string {
			return map[string]string{
				"reason": "empty_email",
			}
		})
		return deps.GenericMessage, nil
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	if !deps.AllowRequest(email) {
		deps.MetricInc(deps.Metrics.PasswordResetRequestThrottled)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", nil, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": "throttled",
			}
		})
		return deps.GenericMessage, nil
	}

	identity, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if !deps.IsNotFound(err) {
			return "", err
		}
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, "", "", nil, func() map[string]string {
			return map[string]string{
				"email":            email,
				"enumeration_safe": "true",
			}
		})
		return deps.GenericMessage, nil
	}
	if !identity.Active {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, identity.ID, identity.CompanyID, nil, func() map[string]string {
			return map[string]string{
				"reason":           "identity_inactive",
				"enumeration_safe": "true",
			}
		})
		return deps.GenericMessage, nil
	}

	token, err := deps.NewToken()
	if err != nil {
		return "", err
	}
	hash, err := deps.HashSecret(ctx, token)
	if err != nil {
		return "", err
	}
	expiresAt := deps.Now().Add(deps.ResetTTL)
	if err := deps.ReplaceResetToken(ctx, identity.ID, hash, expiresAt); err != nil {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, identity.ID, identity.CompanyID, err, nil)
		return "", err
	}

	if deps.Notify != nil {
		if err := deps.Notify(ctx, identity, token, expiresAt); err != nil {
			deps.Warn("poaAuth: password reset notification failed")
		}
	}
	token = ""

	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, identity.ID, identity.CompanyID, nil, nil)
	return deps.GenericMessage, nil
}

// RunResetPassword matches token against every active reset record and, on a
// match, swaps the password hash and burns the record together.
func RunResetPassword(ctx context.Context, token, newPassword string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	if deps.ListActiveResets == nil ||
		deps.MatchSecret == nil ||
		deps.HashPassword == nil ||
		deps.ApplyReset == nil {
		return deps.Errors.EngineNotReady
	}

	failure := func(identityID string, err error, reason string) error {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, identityID, "", err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return err
	}

	token = strings.TrimSpace(token)
	if deps.CheckToken != nil {
		if err := deps.CheckToken(token); err != nil {
			return failure("", deps.Errors.InvalidToken, "malformed_token")
		}
	}
	if deps.CheckPassword != nil {
		if err := deps.CheckPassword(newPassword); err != nil {
			return failure("", err, "password_policy")
		}
	}

	records, err := deps.ListActiveResets(ctx, deps.Now())
	if err != nil {
		return err
	}
	hashes := make([]string, len(records))
	for i, r := range records {
		hashes[i] = r.TokenHash
	}
	idx, err := deps.MatchSecret(ctx, token, hashes)
	if err != nil {
		return err
	}
	if idx < 0 {
		return failure("", deps.Errors.InvalidToken, "no_match")
	}
	record := records[idx]

	hash, err := deps.HashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	newPassword = ""

	if err := deps.ApplyReset(ctx, record, hash); err != nil {
		if errors.Is(err, deps.Errors.InvalidToken) {
			return failure(record.IdentityID, err, "already_consumed")
		}
		return err
	}
	deps.InvalidateIdentity(record.IdentityID)

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, record.IdentityID, "", nil, nil)
	return nil
}

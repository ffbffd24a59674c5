package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	MFARequired      bool
	PendingHandle    string
	PendingExpiresAt time.Time
	Tokens           *IssuedTokens
}

// IssuedTokens is the flow-local token pair.
type IssuedTokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginIdentity is a flow-local identity model used by login/second-factor flows.
type LoginIdentity struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	CompanyID    string
	Active       bool
	TOTPEnabled  bool
}

// SecondFactorInput carries exactly one of a TOTP code or a backup code.
type SecondFactorInput struct {
	Code       string
	BackupCode string
}

// LoginMetrics carries metric IDs needed by login/second-factor flows.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	MFARequired      int
	MFASuccess       int
	MFAFailure       int
	MFAReplay        int
	BackupCodeUsed   int
	BackupCodeFailed int
}

// LoginEvents carries audit event names used by login/second-factor flows.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
	MFARequired      string
	MFASuccess       string
	MFAFailure       string
}

// LoginErrors carries host-level sentinel errors used by login/second-factor flows.
type LoginErrors struct {
	EngineNotReady     error
	Unauthenticated    error
	InvalidToken       error
	InvalidInput       error
	RateLimited        error
	BackendUnavailable error
}

// LoginDeps captures login and second-factor dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	CheckLoginRate     func(context.Context, string, string) error
	RecordLoginFailure func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string) error
	MapLimiterError    func(error) error

	FindByEmail func(context.Context, string) (LoginIdentity, error)
	FindByID    func(context.Context, string) (LoginIdentity, error)
	IsNotFound  func(error) bool
	RecordLogin func(context.Context, string, time.Time) error

	VerifyPassword       func(context.Context, string, string) (bool, error)
	DummyVerify          func(context.Context, string)
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(context.Context, string) (string, error)
	UpdatePasswordHash   func(context.Context, string, string) error

	CreatePendingHandle  func(context.Context, LoginIdentity) (string, time.Time, error)
	VerifyPendingHandle  func(string) (identityID string, handleID string, err error)
	ConsumePendingHandle func(context.Context, string, string) error

	CheckSecondFactorRate     func(context.Context, string) error
	RecordSecondFactorFailure func(context.Context, string) error
	ResetSecondFactorRate     func(context.Context, string) error
	ValidateTOTP              func(context.Context, string, string) error
	UseBackupCode             func(context.Context, string, string) error

	IssueTokens func(context.Context, LoginIdentity) (IssuedTokens, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(deps *LoginDeps) {
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
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.RateLimited }
	}
}

// RunLogin checks the password and either issues tokens or, for identities with
// a second factor, returns a pending handle.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)
	if deps.FindByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.CreatePendingHandle == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			mapped := deps.MapLimiterError(err)
			deps.MetricInc(deps.Metrics.LoginRateLimited)
			deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", "", mapped, func() map[string]string {
				return map[string]string{
					"email": email,
				}
			})
			return nil, mapped
		}
	}

	fail := func(identityID, companyID, reason string) (*LoginResult, error) {
		if deps.RecordLoginFailure != nil {
			if err := deps.RecordLoginFailure(ctx, email, ip); err != nil && !errors.Is(deps.MapLimiterError(err), deps.Errors.RateLimited) {
				deps.Warn("poaAuth: login limiter record failed")
			}
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, identityID, companyID, deps.Errors.Unauthenticated, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": reason,
			}
		})
		return nil, deps.Errors.Unauthenticated
	}

	if email == "" || password == "" {
		return fail("", "", "empty_credentials")
	}

	identity, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, err
		}
		if deps.DummyVerify != nil {
			deps.DummyVerify(ctx, password)
		}
		return fail("", "", "identity_not_found")
	}

	ok, err := deps.VerifyPassword(ctx, password, identity.PasswordHash)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}
	if err != nil || !ok {
		return fail(identity.ID, identity.CompanyID, "password_mismatch")
	}
	if !identity.Active {
		return fail(identity.ID, identity.CompanyID, "identity_inactive")
	}

	if deps.PasswordUpgradeOnLogin && deps.PasswordNeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if needsUpgrade, err := deps.PasswordNeedsUpgrade(identity.PasswordHash); err == nil && needsUpgrade {
			if upgraded, err := deps.HashPassword(ctx, password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, identity.ID, upgraded); err != nil {
					deps.Warn("poaAuth: password hash upgrade update failed")
				}
			} else {
				deps.Warn("poaAuth: password hash upgrade generation failed")
			}
		}
	}
	password = ""

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email); err != nil {
			deps.Warn("poaAuth: login limiter reset failed")
		}
	}

	if identity.TOTPEnabled {
		handle, expiresAt, err := deps.CreatePendingHandle(ctx, identity)
		if err != nil {
			deps.MetricInc(deps.Metrics.MFAFailure)
			deps.EmitAudit(ctx, deps.Events.MFAFailure, false, identity.ID, identity.CompanyID, err, func() map[string]string {
				return map[string]string{
					"reason": "pending_handle_create",
				}
			})
			return nil, err
		}
		deps.MetricInc(deps.Metrics.MFARequired)
		deps.EmitAudit(ctx, deps.Events.MFARequired, true, identity.ID, identity.CompanyID, nil, nil)
		return &LoginResult{
			MFARequired:      true,
			PendingHandle:    handle,
			PendingExpiresAt: expiresAt,
		}, nil
	}

	tokens, err := runIssueLoginTokens(ctx, identity, deps)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, identity.ID, identity.CompanyID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_tokens",
			}
		})
		return nil, err
	}

	recordLogin(ctx, identity.ID, deps)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, identity.ID, identity.CompanyID, nil, nil)
	return &LoginResult{Tokens: tokens}, nil
}

// RunCompleteSecondFactor redeems a pending handle. The handle is consumed
// before the code is checked, so it is single-use whatever the outcome.
func RunCompleteSecondFactor(ctx context.Context, handle string, input SecondFactorInput, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)
	if deps.VerifyPendingHandle == nil ||
		deps.ConsumePendingHandle == nil ||
		deps.FindByID == nil ||
		deps.ValidateTOTP == nil ||
		deps.UseBackupCode == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	code := strings.TrimSpace(input.Code)
	backup := strings.TrimSpace(input.BackupCode)
	if (code == "") == (backup == "") {
		return nil, deps.Errors.InvalidInput
	}

	identityID, handleID, err := deps.VerifyPendingHandle(handle)
	if err != nil {
		deps.MetricInc(deps.Metrics.MFAFailure)
		deps.EmitAudit(ctx, deps.Events.MFAFailure, false, "", "", deps.Errors.InvalidToken, func() map[string]string {
			return map[string]string{
				"reason": "handle_invalid",
			}
		})
		return nil, deps.Errors.InvalidToken
	}

	if err := deps.ConsumePendingHandle(ctx, handleID, identityID); err != nil {
		if errors.Is(err, deps.Errors.InvalidToken) {
			deps.MetricInc(deps.Metrics.MFAReplay)
		}
		deps.MetricInc(deps.Metrics.MFAFailure)
		deps.EmitAudit(ctx, deps.Events.MFAFailure, false, identityID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "handle_consume",
			}
		})
		return nil, err
	}

	if deps.CheckSecondFactorRate != nil {
		if err := deps.CheckSecondFactorRate(ctx, identityID); err != nil {
			mapped := deps.MapLimiterError(err)
			deps.MetricInc(deps.Metrics.MFAFailure)
			deps.EmitAudit(ctx, deps.Events.MFAFailure, false, identityID, "", mapped, func() map[string]string {
				return map[string]string{
					"reason": "rate_limited",
				}
			})
			return nil, mapped
		}
	}

	identity, err := deps.FindByID(ctx, identityID)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, err
		}
		deps.MetricInc(deps.Metrics.MFAFailure)
		deps.EmitAudit(ctx, deps.Events.MFAFailure, false, identityID, "", deps.Errors.Unauthenticated, func() map[string]string {
			return map[string]string{
				"reason": "identity_not_found",
			}
		})
		return nil, deps.Errors.Unauthenticated
	}
	if !identity.Active {
		deps.MetricInc(deps.Metrics.MFAFailure)
		deps.EmitAudit(ctx, deps.Events.MFAFailure, false, identity.ID, identity.CompanyID, deps.Errors.Unauthenticated, func() map[string]string {
			return map[string]string{
				"reason": "identity_inactive",
			}
		})
		return nil, deps.Errors.Unauthenticated
	}

	method := "totp"
	if backup != "" {
		method = "backup_code"
		err = deps.UseBackupCode(ctx, identity.ID, backup)
	} else {
		err = deps.ValidateTOTP(ctx, identity.ID, code)
	}
	if err != nil {
		if errors.Is(err, deps.Errors.Unauthenticated) && deps.RecordSecondFactorFailure != nil {
			if rerr := deps.RecordSecondFactorFailure(ctx, identity.ID); rerr != nil && !errors.Is(deps.MapLimiterError(rerr), deps.Errors.RateLimited) {
				deps.Warn("poaAuth: second factor limiter record failed")
			}
		}
		if backup != "" {
			deps.MetricInc(deps.Metrics.BackupCodeFailed)
		}
		deps.MetricInc(deps.Metrics.MFAFailure)
		deps.EmitAudit(ctx, deps.Events.MFAFailure, false, identity.ID, identity.CompanyID, err, func() map[string]string {
			return map[string]string{
				"method": method,
			}
		})
		return nil, err
	}
	if backup != "" {
		deps.MetricInc(deps.Metrics.BackupCodeUsed)
	}

	if deps.ResetSecondFactorRate != nil {
		if err := deps.ResetSecondFactorRate(ctx, identity.ID); err != nil {
			deps.Warn("poaAuth: second factor limiter reset failed")
		}
	}

	tokens, err := runIssueLoginTokens(ctx, identity, deps)
	if err != nil {
		deps.MetricInc(deps.Metrics.MFAFailure)
		deps.EmitAudit(ctx, deps.Events.MFAFailure, false, identity.ID, identity.CompanyID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_tokens",
			}
		})
		return nil, err
	}

	recordLogin(ctx, identity.ID, deps)
	deps.MetricInc(deps.Metrics.MFASuccess)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.MFASuccess, true, identity.ID, identity.CompanyID, nil, func() map[string]string {
		return map[string]string{
			"method": method,
		}
	})
	return &LoginResult{Tokens: tokens}, nil
}

// runIssueLoginTokens issues the pair. Callers stamp last-login only once the
// pair exists.
func runIssueLoginTokens(ctx context.Context, identity LoginIdentity, deps LoginDeps) (*IssuedTokens, error) {
	tokens, err := deps.IssueTokens(ctx, identity)
	if err != nil {
		return nil, err
	}
	return &tokens, nil
}

// recordLogin stamps the last-login time. A failed write is logged and does
// not undo the login.
func recordLogin(ctx context.Context, identityID string, deps LoginDeps) {
	if deps.RecordLogin == nil {
		return
	}
	if err := deps.RecordLogin(ctx, identityID, deps.Now()); err != nil {
		deps.Warn("poaAuth: last login update failed")
	}
}

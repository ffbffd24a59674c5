package poaAuth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	internalflows "github.com/lucaaxano/poa-app-sub000/internal/flows"
	"github.com/lucaaxano/poa-app-sub000/internal/limiters"
	"github.com/lucaaxano/poa-app-sub000/internal/stores"
	"github.com/lucaaxano/poa-app-sub000/jwt"
	"github.com/lucaaxano/poa-app-sub000/role"
	"github.com/lucaaxano/poa-app-sub000/store"
	"github.com/lucaaxano/poa-app-sub000/totp"
)

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Unknown email, wrong password and an inactive identity all fail with the
// same ErrUnauthenticated. Identities with a second factor get a pending
// handle instead of tokens; redeem it with CompleteSecondFactor.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	res, err := internalflows.RunLogin(ctx, email, password, e.flows.Login)
	if err != nil {
		return nil, err
	}
	return loginResultFromFlow(res), nil
}

// CompleteSecondFactor redeems a pending handle from Login with exactly one of
// a TOTP code or a backup code. The handle is spent on the first attempt,
// successful or not.
func (e *Engine) CompleteSecondFactor(ctx context.Context, pendingHandle string, factor SecondFactor) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	res, err := internalflows.RunCompleteSecondFactor(ctx, pendingHandle, internalflows.SecondFactorInput{
		Code:       factor.Code,
		BackupCode: factor.BackupCode,
	}, e.flows.Login)
	if err != nil {
		return nil, err
	}
	return loginResultFromFlow(res), nil
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	return internalflows.LoginDeps{
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		ClientIPFromContext:    clientIPFromContext,
		Now:                    e.now,

		CheckLoginRate: func(ctx context.Context, email, ip string) error {
			return e.loginLimiter.Check(ctx, email, ip)
		},
		RecordLoginFailure: func(ctx context.Context, email, ip string) error {
			return e.loginLimiter.RecordFailure(ctx, email, ip)
		},
		ResetLoginRate: func(ctx context.Context, email string) error {
			return e.loginLimiter.Reset(ctx, email)
		},
		MapLimiterError: mapLimiterErr,

		FindByEmail: func(ctx context.Context, email string) (internalflows.LoginIdentity, error) {
			identity, err := e.store.Identities().FindByEmail(ctx, email)
			if err != nil {
				return internalflows.LoginIdentity{}, err
			}
			return loginIdentityFrom(identity), nil
		},
		FindByID: func(ctx context.Context, id string) (internalflows.LoginIdentity, error) {
			identity, err := e.store.Identities().FindByID(ctx, id)
			if err != nil {
				return internalflows.LoginIdentity{}, err
			}
			return loginIdentityFrom(identity), nil
		},
		IsNotFound: func(err error) bool {
			return errors.Is(err, store.ErrNotFound)
		},
		RecordLogin: func(ctx context.Context, id string, at time.Time) error {
			at = at.UTC()
			return e.store.Identities().Update(ctx, id, store.IdentityPatch{LastLoginAt: &at})
		},

		VerifyPassword: e.hashes.Verify,
		DummyVerify: func(ctx context.Context, pw string) {
			_, _ = e.hashes.Verify(ctx, pw, e.dummyHash)
		},
		PasswordNeedsUpgrade: e.hashes.NeedsUpgrade,
		HashPassword:         e.hashes.Hash,
		UpdatePasswordHash: func(ctx context.Context, id, hash string) error {
			return e.store.Identities().Update(ctx, id, store.IdentityPatch{PasswordHash: &hash})
		},

		CreatePendingHandle:  e.createPendingHandle,
		VerifyPendingHandle:  e.verifyPendingHandle,
		ConsumePendingHandle: e.consumePendingHandle,

		CheckSecondFactorRate:     e.totpLimiter.Check,
		RecordSecondFactorFailure: e.totpLimiter.RecordFailure,
		ResetSecondFactorRate:     e.totpLimiter.Reset,
		ValidateTOTP: func(ctx context.Context, id, code string) error {
			return secondFactorErr(mapTOTPErr(e.totp.Validate(ctx, id, code), ErrTOTPInvalid))
		},
		UseBackupCode: func(ctx context.Context, id, code string) error {
			return secondFactorErr(mapTOTPErr(e.totp.UseBackupCode(ctx, id, code), ErrBackupCodeInvalid))
		},

		IssueTokens: func(_ context.Context, identity internalflows.LoginIdentity) (internalflows.IssuedTokens, error) {
			r, err := role.Parse(identity.Role)
			if err != nil {
				return internalflows.IssuedTokens{}, err
			}
			pair, err := e.issueTokenPair(identity.ID, r)
			if err != nil {
				return internalflows.IssuedTokens{}, err
			}
			return internalflows.IssuedTokens{
				AccessToken:      pair.AccessToken,
				RefreshToken:     pair.RefreshToken,
				AccessExpiresAt:  pair.AccessExpiresAt,
				RefreshExpiresAt: pair.RefreshExpiresAt,
			}, nil
		},

		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Warn:      e.warn,

		Metrics: internalflows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
			MFARequired:      int(MetricMFARequired),
			MFASuccess:       int(MetricMFASuccess),
			MFAFailure:       int(MetricMFAFailure),
			MFAReplay:        int(MetricMFAReplay),
			BackupCodeUsed:   int(MetricBackupCodeUsed),
			BackupCodeFailed: int(MetricBackupCodeFailed),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LoginRateLimited: auditEventLoginRateLimited,
			MFARequired:      auditEventMFARequired,
			MFASuccess:       auditEventMFASuccess,
			MFAFailure:       auditEventMFAFailure,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			Unauthenticated:    ErrUnauthenticated,
			InvalidToken:       ErrInvalidToken,
			InvalidInput:       ErrInvalidInput,
			RateLimited:        ErrRateLimited,
			BackendUnavailable: ErrBackendUnavailable,
		},
	}
}

// createPendingHandle signs a short-lived mfa_pending token whose jti is
// recorded in Redis until it is redeemed or expires.
func (e *Engine) createPendingHandle(ctx context.Context, identity internalflows.LoginIdentity) (string, time.Time, error) {
	handleID := uuid.NewString()
	ttl := e.config.MFA.PendingTTL
	token, expiresAt, err := e.tokens.IssueWithID(handleID, identity.ID, identity.Role, jwt.KindMFAPending, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := e.pending.Save(ctx, handleID, &stores.PendingHandle{
		IdentityID: identity.ID,
		ExpiresAt:  expiresAt.Unix(),
	}, ttl); err != nil {
		return "", time.Time{}, mapRedisErr(err)
	}
	return token, expiresAt, nil
}

func (e *Engine) verifyPendingHandle(handle string) (string, string, error) {
	claims, err := e.tokens.Verify(handle, jwt.KindMFAPending)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.ID, nil
}

func (e *Engine) consumePendingHandle(ctx context.Context, handleID, identityID string) error {
	_, err := e.pending.Consume(ctx, handleID, identityID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrPendingBackend):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return ErrInvalidToken
	}
}

func mapLimiterErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrLoginRateLimited), errors.Is(err, limiters.ErrTOTPRateLimited):
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

// mapTOTPErr translates second-factor engine errors. invalid is what a wrong
// code becomes, so TOTP and backup code failures stay distinguishable.
func mapTOTPErr(err, invalid error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, totp.ErrInvalidCode):
		return invalid
	case errors.Is(err, totp.ErrInvalidPassword):
		return ErrUnauthenticated
	case errors.Is(err, totp.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, totp.ErrAlreadyEnabled):
		return ErrTOTPAlreadyEnabled
	case errors.Is(err, totp.ErrNoPendingSecret):
		return ErrTOTPNotPending
	case errors.Is(err, totp.ErrNotEnabled):
		return ErrTOTPNotEnabled
	default:
		return err
	}
}

// secondFactorErr hides second-factor state from a caller holding only a
// pending handle: a factor disabled mid-login is a plain credential failure.
func secondFactorErr(err error) error {
	if errors.Is(err, ErrTOTPNotEnabled) || errors.Is(err, ErrNotFound) {
		return ErrUnauthenticated
	}
	return err
}

func loginIdentityFrom(identity *store.Identity) internalflows.LoginIdentity {
	return internalflows.LoginIdentity{
		ID:           identity.ID,
		Email:        identity.Email,
		PasswordHash: identity.PasswordHash,
		Role:         identity.Role.String(),
		CompanyID:    identity.CompanyID,
		Active:       identity.Active,
		TOTPEnabled:  identity.TOTPEnabled && identity.TOTPSecret != "",
	}
}

func loginResultFromFlow(res *internalflows.LoginResult) *LoginResult {
	if res == nil {
		return nil
	}
	out := &LoginResult{
		MFARequired:      res.MFARequired,
		PendingHandle:    res.PendingHandle,
		PendingExpiresAt: res.PendingExpiresAt,
	}
	if res.Tokens != nil {
		out.Tokens = &TokenPair{
			AccessToken:      res.Tokens.AccessToken,
			RefreshToken:     res.Tokens.RefreshToken,
			AccessExpiresAt:  res.Tokens.AccessExpiresAt,
			RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
		}
	}
	return out
}

package poaAuth

import (
	"context"
	"errors"
	"time"

	"github.com/lucaaxano/poa-app-sub000/internal"
	internalflows "github.com/lucaaxano/poa-app-sub000/internal/flows"
	"github.com/lucaaxano/poa-app-sub000/internal/ids"
	"github.com/lucaaxano/poa-app-sub000/store"
)

// ForgotPassword describes the forgotpassword operation and its observable behavior.
//
// ForgotPassword may return an error when input validation, dependency calls, or security checks fail.
// ForgotPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The returned message is always ForgotPasswordMessage. For an active
// identity, earlier reset tokens are replaced by one new token that goes to
// the Notifier; the plaintext is never returned.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	return internalflows.RunForgotPassword(ctx, email, e.flows.PasswordReset)
}

// ResetPassword redeems a reset token. The password update and the token
// deletion commit together; a token that was already used, or has expired,
// fails with ErrInvalidToken.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return internalflows.RunResetPassword(ctx, token, newPassword, e.flows.PasswordReset)
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	return internalflows.PasswordResetDeps{
		GenericMessage:      ForgotPasswordMessage,
		ResetTTL:            e.config.OneTimeTokens.ResetTTL,
		ClientIPFromContext: clientIPFromContext,
		Now:                 e.now,

		AllowRequest: e.resetThrottle.Allow,

		FindByEmail: func(ctx context.Context, email string) (internalflows.PasswordResetIdentity, error) {
			identity, err := e.store.Identities().FindByEmail(ctx, email)
			if err != nil {
				return internalflows.PasswordResetIdentity{}, err
			}
			return internalflows.PasswordResetIdentity{
				ID:        identity.ID,
				Email:     identity.Email,
				CompanyID: identity.CompanyID,
				Active:    identity.Active,
			}, nil
		},
		IsNotFound: func(err error) bool {
			return errors.Is(err, store.ErrNotFound)
		},

		NewToken:          internal.NewOneTimeToken,
		CheckToken:        internal.CheckOneTimeToken,
		HashSecret:        e.hashes.Hash,
		MatchSecret:       e.hashes.VerifyAny,
		CheckPassword:     e.checkPassword,
		HashPassword:      e.hashes.Hash,
		ReplaceResetToken: e.replaceResetToken,
		ListActiveResets: func(ctx context.Context, now time.Time) ([]internalflows.PasswordResetRecord, error) {
			tokens, err := e.store.ResetTokens().ListActive(ctx, now)
			if err != nil {
				return nil, err
			}
			out := make([]internalflows.PasswordResetRecord, 0, len(tokens))
			for _, t := range tokens {
				out = append(out, internalflows.PasswordResetRecord{
					ID:         t.ID,
					IdentityID: t.IdentityID,
					TokenHash:  t.TokenHash,
				})
			}
			return out, nil
		},
		ApplyReset: e.applyReset,

		Notify: func(ctx context.Context, identity internalflows.PasswordResetIdentity, token string, expiresAt time.Time) error {
			return e.notifier.PasswordReset(ctx, ResetNotice{
				IdentityID: identity.ID,
				Email:      identity.Email,
				Token:      token,
				ExpiresAt:  expiresAt,
			})
		},
		InvalidateIdentity: e.invalidate,

		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Warn:      e.warn,

		Metrics: internalflows.PasswordResetMetrics{
			PasswordResetRequest:          int(MetricPasswordResetRequest),
			PasswordResetRequestThrottled: int(MetricPasswordResetRequestThrottled),
			PasswordResetConfirmSuccess:   int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure:   int(MetricPasswordResetConfirmFailure),
		},
		Events: internalflows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidToken:   ErrInvalidToken,
			PasswordPolicy: ErrPasswordPolicy,
		},
	}
}

// replaceResetToken leaves identityID with exactly one reset record.
func (e *Engine) replaceResetToken(ctx context.Context, identityID, tokenHash string, expiresAt time.Time) error {
	now := e.now().UTC()
	return e.store.WithinTx(ctx, func(tx store.Repositories) error {
		if err := tx.ResetTokens().DeleteByIdentity(ctx, identityID); err != nil {
			return err
		}
		return tx.ResetTokens().Create(ctx, &store.ResetToken{
			ID:         ids.At(now),
			IdentityID: identityID,
			TokenHash:  tokenHash,
			ExpiresAt:  expiresAt.UTC(),
			CreatedAt:  now,
		})
	})
}

// applyReset deletes the record and sets the new hash in one unit. Losing the
// delete to a concurrent redeemer is ErrInvalidToken.
func (e *Engine) applyReset(ctx context.Context, record internalflows.PasswordResetRecord, passwordHash string) error {
	err := e.store.WithinTx(ctx, func(tx store.Repositories) error {
		deleted, err := tx.ResetTokens().Delete(ctx, record.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrInvalidToken
		}
		return tx.Identities().Update(ctx, record.IdentityID, store.IdentityPatch{PasswordHash: &passwordHash})
	})
	if errors.Is(err, ErrInvalidToken) || errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken
	}
	return err
}

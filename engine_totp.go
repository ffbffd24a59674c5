package poaAuth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/lucaaxano/poa-app-sub000/totp"
)

// GenerateTOTPSetup describes the generatetotpsetup operation and its observable behavior.
//
// GenerateTOTPSetup may return an error when input validation, dependency calls, or security checks fail.
// GenerateTOTPSetup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A new secret and backup codes replace any setup that was never confirmed.
// The second factor stays off until EnableTOTP succeeds.
func (e *Engine) GenerateTOTPSetup(ctx context.Context, identityID string) (*TOTPSetup, error) {
	if err := e.readyTOTP(identityID); err != nil {
		return nil, err
	}

	identity, err := e.store.Identities().FindByID(ctx, identityID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	setup, err := e.totp.GenerateSetup(ctx, identity.ID, identity.Email)
	if err != nil {
		mapped := mapTOTPErr(err, ErrTOTPInvalid)
		e.emitAudit(ctx, auditEventTOTPFailure, false, identity.ID, identity.CompanyID, mapped, func() map[string]string {
			return map[string]string{
				"stage": "setup",
			}
		})
		return nil, mapped
	}

	e.metricInc(MetricTOTPSetup)
	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, identity.ID, identity.CompanyID, nil, nil)
	return &TOTPSetup{
		Secret:      setup.Secret,
		URI:         setup.URI,
		BackupCodes: setup.BackupCodes,
	}, nil
}

// QRCodePNG renders the provisioning URI as a size×size PNG.
func (s *TOTPSetup) QRCodePNG(size int) ([]byte, error) {
	if s == nil {
		return nil, ErrInvalidInput
	}
	return totp.QRCodePNG(s.URI, size)
}

// EnableTOTP confirms the pending setup with a current code.
func (e *Engine) EnableTOTP(ctx context.Context, identityID, code string) error {
	if err := e.readyTOTP(identityID); err != nil {
		return err
	}
	err := e.limitedTOTP(ctx, identityID, "enable", func() error {
		return e.totp.Enable(ctx, identityID, code)
	}, ErrTOTPInvalid)
	if err != nil {
		return err
	}

	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, identityID, "", nil, nil)
	return nil
}

// DisableTOTP re-checks the password, then clears the secret and backup codes.
// A wrong password fails with ErrUnauthenticated.
func (e *Engine) DisableTOTP(ctx context.Context, identityID, password string) error {
	if err := e.readyTOTP(identityID); err != nil {
		return err
	}
	if err := e.totp.Disable(ctx, identityID, password); err != nil {
		mapped := mapTOTPErr(err, ErrTOTPInvalid)
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, identityID, "", mapped, func() map[string]string {
			return map[string]string{
				"stage": "disable",
			}
		})
		return mapped
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, identityID, "", nil, nil)
	return nil
}

// ValidateTOTP checks code against an enabled second factor. Wrong codes fail
// with ErrTOTPInvalid and count against the per-identity attempt budget.
func (e *Engine) ValidateTOTP(ctx context.Context, identityID, code string) error {
	if err := e.readyTOTP(identityID); err != nil {
		return err
	}
	err := e.limitedTOTP(ctx, identityID, "validate", func() error {
		return e.totp.Validate(ctx, identityID, code)
	}, ErrTOTPInvalid)
	if err != nil {
		return err
	}
	e.metricInc(MetricTOTPSuccess)
	return nil
}

// UseBackupCode burns one unused backup code. Each code works once.
func (e *Engine) UseBackupCode(ctx context.Context, identityID, code string) error {
	if err := e.readyTOTP(identityID); err != nil {
		return err
	}
	err := e.limitedTOTP(ctx, identityID, "backup_code", func() error {
		return e.totp.UseBackupCode(ctx, identityID, code)
	}, ErrBackupCodeInvalid)
	if err != nil {
		if errors.Is(err, ErrBackupCodeInvalid) {
			e.metricInc(MetricBackupCodeFailed)
			e.emitAudit(ctx, auditEventBackupCodeFailed, false, identityID, "", err, nil)
		}
		return err
	}

	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, auditEventBackupCodeUsed, true, identityID, "", nil, nil)
	return nil
}

// RegenerateBackupCodes replaces every backup code with a fresh set and
// returns the plaintext codes once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, identityID string) ([]string, error) {
	if err := e.readyTOTP(identityID); err != nil {
		return nil, err
	}
	codes, err := e.totp.RegenerateBackupCodes(ctx, identityID)
	if err != nil {
		return nil, mapTOTPErr(err, ErrTOTPInvalid)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, identityID, "", nil, func() map[string]string {
		return map[string]string{
			"count": strconv.Itoa(len(codes)),
		}
	})
	return codes, nil
}

// IsTOTPEnabled reports whether identityID has a confirmed second factor.
func (e *Engine) IsTOTPEnabled(ctx context.Context, identityID string) (bool, error) {
	if err := e.readyTOTP(identityID); err != nil {
		return false, err
	}
	enabled, err := e.totp.IsEnabled(ctx, identityID)
	if err != nil {
		return false, mapTOTPErr(err, ErrTOTPInvalid)
	}
	return enabled, nil
}

func (e *Engine) readyTOTP(identityID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.totp == nil {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(identityID) == "" {
		return ErrInvalidInput
	}
	return nil
}

// limitedTOTP runs check under the per-identity attempt limiter. Only wrong
// codes count as failures; a success clears the counter.
func (e *Engine) limitedTOTP(ctx context.Context, identityID, stage string, check func() error, invalid error) error {
	if err := e.totpLimiter.Check(ctx, identityID); err != nil {
		mapped := mapLimiterErr(err)
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, identityID, "", mapped, func() map[string]string {
			return map[string]string{
				"stage":  stage,
				"reason": "rate_limited",
			}
		})
		return mapped
	}

	if err := check(); err != nil {
		mapped := mapTOTPErr(err, invalid)
		if errors.Is(mapped, invalid) {
			if rerr := e.totpLimiter.RecordFailure(ctx, identityID); rerr != nil && !errors.Is(mapLimiterErr(rerr), ErrRateLimited) {
				e.warn("poaAuth: totp limiter record failed")
			}
		}
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, identityID, "", mapped, func() map[string]string {
			return map[string]string{
				"stage": stage,
			}
		})
		return mapped
	}

	if err := e.totpLimiter.Reset(ctx, identityID); err != nil {
		e.warn("poaAuth: totp limiter reset failed")
	}
	return nil
}

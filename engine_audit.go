package poaAuth

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/lucaaxano/poa-app-sub000/internal/audit"
)

const (
	auditEventRegisterSuccess         = "register_success"
	auditEventRegisterFailure         = "register_failure"
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventLoginRateLimited        = "login_rate_limited"
	auditEventMFARequired             = "mfa_required"
	auditEventMFASuccess              = "mfa_success"
	auditEventMFAFailure              = "mfa_failure"
	auditEventRefreshSuccess          = "refresh_success"
	auditEventRefreshInvalid          = "refresh_invalid"
	auditEventLogout                  = "logout"
	auditEventPasswordChangeSuccess   = "password_change_success"
	auditEventPasswordChangeInvalid   = "password_change_invalid_current"
	auditEventPasswordChangeReuse     = "password_change_reuse_attempt"
	auditEventPasswordResetRequest    = "password_reset_request"
	auditEventPasswordResetConfirm    = "password_reset_confirm"
	auditEventInvitationCreated       = "invitation_created"
	auditEventInvitationRejected      = "invitation_rejected"
	auditEventInvitationAccepted      = "invitation_accepted"
	auditEventInvitationAcceptFailure = "invitation_accept_failure"
	auditEventIdentityStatusChange    = "identity_status_change"
	auditEventIdentityRoleChange      = "identity_role_change"
	auditEventTOTPSetupRequested      = "totp_setup_requested"
	auditEventTOTPEnabled             = "totp_enabled"
	auditEventTOTPDisabled            = "totp_disabled"
	auditEventTOTPFailure             = "totp_failure"
	auditEventBackupCodesGenerated    = "backup_codes_generated"
	auditEventBackupCodeUsed          = "backup_code_used"
	auditEventBackupCodeFailed        = "backup_code_failed"
)

// AuditErrorCode defines a public type used by poaAuth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrUnauthenticated   AuditErrorCode = "unauthenticated"
	auditErrTOTPInvalid       AuditErrorCode = "totp_invalid"
	auditErrBackupCodeInvalid AuditErrorCode = "backup_code_invalid"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrNotFound          AuditErrorCode = "not_found"
	auditErrDuplicate         AuditErrorCode = "duplicate"
	auditErrInvalidRole       AuditErrorCode = "invalid_role"
	auditErrPasswordPolicy    AuditErrorCode = "password_policy"
	auditErrPasswordReuse     AuditErrorCode = "password_reuse"
	auditErrInvalidInput      AuditErrorCode = "invalid_input"
	auditErrTOTPState         AuditErrorCode = "totp_state"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	companyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	now := time.Now
	if e.now != nil {
		now = e.now
	}
	event := internalaudit.Event{
		Timestamp:  now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		CompanyID:  companyID,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTOTPInvalid):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrBackupCodeInvalid):
		return auditErrBackupCodeInvalid
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrConflict):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidRole):
		return auditErrInvalidRole
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrTOTPAlreadyEnabled),
		errors.Is(err, ErrTOTPNotPending),
		errors.Is(err, ErrTOTPNotEnabled):
		return auditErrTOTPState
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

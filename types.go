package poaAuth

import (
	"context"
	"time"

	"github.com/lucaaxano/poa-app-sub000/permission"
	"github.com/lucaaxano/poa-app-sub000/role"
)

// ForgotPasswordMessage is the only answer ForgotPassword ever gives, whether
// or not the address belongs to an identity.
const ForgotPasswordMessage = "If an account exists for that email, a password reset link has been sent."

// TokenPair is a freshly issued access/refresh pair. Neither token is stored
// server-side.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResult is returned by [Engine.Login]. Exactly one of PendingHandle and
// Tokens is set.
type LoginResult struct {
	MFARequired      bool       `json:"mfa_required"`
	PendingHandle    string     `json:"pending_handle,omitempty"`
	PendingExpiresAt time.Time  `json:"pending_expires_at,omitempty"`
	Tokens           *TokenPair `json:"tokens,omitempty"`
}

// SecondFactor carries exactly one of a current TOTP code or an unused
// backup code.
type SecondFactor struct {
	Code       string `json:"code,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
}

// Profile is the caller-visible view of an identity. It never carries hashes
// or second-factor secrets.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        role.Role `json:"role"`
	CompanyID   string    `json:"company_id,omitempty"`
	Active      bool      `json:"active"`
	TOTPEnabled bool      `json:"totp_enabled"`
	LastLoginAt time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Company is the caller-visible view of a company.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is the authenticated subject of an access token, as returned by
// [Engine.Authenticate].
type Principal struct {
	IdentityID string
	Email      string
	Name       string
	Role       role.Role
	CompanyID  string
	Mask       permission.Mask
}

// Can reports whether the principal's role carries capability.
func (p *Principal) Can(capability string) bool {
	if p == nil {
		return false
	}
	bit, ok := role.Capabilities.Bit(capability)
	if !ok {
		return p.Mask.IsRoot()
	}
	return p.Mask.Has(bit)
}

// Permissions lists the capability names in the principal's mask.
func (p *Principal) Permissions() []string {
	if p == nil {
		return nil
	}
	return role.Capabilities.Names(p.Mask)
}

// RegisterRequest creates a company together with its first company-admin.
type RegisterRequest struct {
	CompanyName string `json:"company_name"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// RegisterResult is returned by [Engine.Register].
type RegisterResult struct {
	Profile Profile   `json:"profile"`
	Company Company   `json:"company"`
	Tokens  TokenPair `json:"tokens"`
}

// CreateInvitationRequest invites Email into CompanyID with Role.
type CreateInvitationRequest struct {
	CompanyID string    `json:"company_id"`
	Email     string    `json:"email"`
	Role      role.Role `json:"role"`
	InvitedBy string    `json:"invited_by"`
}

// InvitationResult carries the plaintext token. It is returned once and never
// stored.
type InvitationResult struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AcceptInvitationRequest redeems an invitation token.
type AcceptInvitationRequest struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AcceptInvitationResult is returned by [Engine.AcceptInvitation].
type AcceptInvitationResult struct {
	Profile Profile   `json:"profile"`
	Tokens  TokenPair `json:"tokens"`
}

// TOTPSetup is returned by [Engine.GenerateTOTPSetup]. BackupCodes are shown
// once; only their hashes are kept.
type TOTPSetup struct {
	Secret      string   `json:"secret"`
	URI         string   `json:"uri"`
	BackupCodes []string `json:"backup_codes"`
}

// ResetNotice is handed to the [Notifier] when a reset token is minted.
type ResetNotice struct {
	IdentityID string
	Email      string
	Token      string
	ExpiresAt  time.Time
}

// InvitationNotice is handed to the [Notifier] when an invitation is created.
type InvitationNotice struct {
	InvitationID string
	CompanyID    string
	Email        string
	Role         role.Role
	Token        string
	ExpiresAt    time.Time
}

// Notifier delivers one-time tokens to their recipients. Delivery is outside
// this module; errors are logged and never change the operation's result.
type Notifier interface {
	PasswordReset(ctx context.Context, notice ResetNotice) error
	Invitation(ctx context.Context, notice InvitationNotice) error
}

// NoOpNotifier discards every notice.
type NoOpNotifier struct{}

// PasswordReset implements Notifier.
func (NoOpNotifier) PasswordReset(context.Context, ResetNotice) error { return nil }

// Invitation implements Notifier.
func (NoOpNotifier) Invitation(context.Context, InvitationNotice) error { return nil }

// identitySnapshot is what the identity cache holds per subject.
type identitySnapshot struct {
	ID        string
	Email     string
	Name      string
	Role      role.Role
	CompanyID string
	Active    bool
}

func (s identitySnapshot) principal() *Principal {
	return &Principal{
		IdentityID: s.ID,
		Email:      s.Email,
		Name:       s.Name,
		Role:       s.Role,
		CompanyID:  s.CompanyID,
		Mask:       s.Role.Mask(),
	}
}

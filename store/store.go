package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lucaaxano/poa-app-sub000/role"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrConflict = errors.New("store: unique constraint violated")
)

// Identity is a user account. Email is stored normalized (see NormalizeEmail).
type Identity struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         role.Role
	// CompanyID is empty for identities not owned by a company, such as brokers
	// and super-admins.
	CompanyID   string
	Active      bool
	TOTPEnabled bool
	// TOTPSecret is the base32 shared secret; empty when no secret is issued.
	TOTPSecret  string
	BackupCodes []string
	LastLoginAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdentityPatch lists the fields Update may change. Nil fields are left alone.
type IdentityPatch struct {
	Name         *string
	PasswordHash *string
	Role         *role.Role
	CompanyID    *string
	Active       *bool
	TOTPEnabled  *bool
	TOTPSecret   *string
	BackupCodes  *[]string
	LastLoginAt  *time.Time
}

// Empty reports whether the patch changes nothing.
func (p IdentityPatch) Empty() bool {
	return p.Name == nil && p.PasswordHash == nil && p.Role == nil && p.CompanyID == nil &&
		p.Active == nil && p.TOTPEnabled == nil && p.TOTPSecret == nil && p.BackupCodes == nil &&
		p.LastLoginAt == nil
}

// Apply copies the set fields of p onto id.
func (p IdentityPatch) Apply(id *Identity) {
	if p.Name != nil {
		id.Name = *p.Name
	}
	if p.PasswordHash != nil {
		id.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		id.Role = *p.Role
	}
	if p.CompanyID != nil {
		id.CompanyID = *p.CompanyID
	}
	if p.Active != nil {
		id.Active = *p.Active
	}
	if p.TOTPEnabled != nil {
		id.TOTPEnabled = *p.TOTPEnabled
	}
	if p.TOTPSecret != nil {
		id.TOTPSecret = *p.TOTPSecret
	}
	if p.BackupCodes != nil {
		id.BackupCodes = append([]string(nil), (*p.BackupCodes)...)
	}
	if p.LastLoginAt != nil {
		id.LastLoginAt = *p.LastLoginAt
	}
}

type Company struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Invitation is an outstanding offer to join a company. Only the hash of the
// token is kept.
type Invitation struct {
	ID         string
	CompanyID  string
	Email      string
	Role       role.Role
	TokenHash  string
	InvitedBy  string
	ExpiresAt  time.Time
	ConsumedAt time.Time
	CreatedAt  time.Time
}

// Active reports whether the invitation is unconsumed and unexpired at now.
func (i Invitation) Active(now time.Time) bool {
	return i.ConsumedAt.IsZero() && now.Before(i.ExpiresAt)
}

// ResetToken is a pending password reset. Only the hash of the token is kept.
type ResetToken struct {
	ID         string
	IdentityID string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// BrokerLink grants a broker identity access to a company.
type BrokerLink struct {
	ID        string
	BrokerID  string
	CompanyID string
	CreatedAt time.Time
}

type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	// Create fails with ErrConflict when the email is taken.
	Create(ctx context.Context, identity *Identity) error
	Update(ctx context.Context, id string, patch IdentityPatch) error
	Delete(ctx context.Context, id string) error
	// ConsumeBackupCode removes hash from the identity's backup codes if it is
	// still present and reports whether it removed it. Two concurrent calls for
	// the same hash never both report true.
	ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error)
}

type CompanyStore interface {
	Create(ctx context.Context, company *Company) error
	FindByID(ctx context.Context, id string) (*Company, error)
}

type InvitationStore interface {
	Create(ctx context.Context, inv *Invitation) error
	// ListActive returns every invitation that is unconsumed and unexpired at now.
	ListActive(ctx context.Context, now time.Time) ([]Invitation, error)
	// HasActive reports whether an active invitation exists for (companyID, email).
	// Inside WithinTx it also serializes concurrent units checking the same
	// pair until the caller's unit ends.
	HasActive(ctx context.Context, companyID, email string, now time.Time) (bool, error)
	// MarkConsumed stamps the invitation if it is still unconsumed and reports
	// whether it did.
	MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
}

type ResetTokenStore interface {
	Create(ctx context.Context, token *ResetToken) error
	ListActive(ctx context.Context, now time.Time) ([]ResetToken, error)
	// DeleteByIdentity removes every record for identityID. Inside WithinTx
	// concurrent units for the same identity run one after another.
	DeleteByIdentity(ctx context.Context, identityID string) error
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)
}

type BrokerLinkStore interface {
	Create(ctx context.Context, link *BrokerLink) error
	ListByBroker(ctx context.Context, brokerID string) ([]BrokerLink, error)
}

// Repositories groups the per-entity stores. Inside WithinTx the same
// interface is bound to the transaction.
type Repositories interface {
	Identities() IdentityStore
	Companies() CompanyStore
	Invitations() InvitationStore
	ResetTokens() ResetTokenStore
	BrokerLinks() BrokerLinkStore
}

// Store is the full persistence contract.
type Store interface {
	Repositories
	// WithinTx runs fn as one atomic unit. If fn returns an error, or the
	// commit fails, no write made through tx is visible.
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

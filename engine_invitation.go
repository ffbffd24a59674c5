package poaAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lucaaxano/poa-app-sub000/internal"
	"github.com/lucaaxano/poa-app-sub000/internal/ids"
	"github.com/lucaaxano/poa-app-sub000/role"
	"github.com/lucaaxano/poa-app-sub000/store"
)

// CreateInvitation describes the createinvitation operation and its observable behavior.
//
// CreateInvitation may return an error when input validation, dependency calls, or security checks fail.
// CreateInvitation does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The plaintext token is returned once and handed to the Notifier; only its
// hash is stored. At most one active invitation exists per email and company.
func (e *Engine) CreateInvitation(ctx context.Context, req CreateInvitationRequest) (*InvitationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	reject := func(err error, reason string) (*InvitationResult, error) {
		e.emitAudit(ctx, auditEventInvitationRejected, false, req.InvitedBy, req.CompanyID, err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return nil, err
	}

	if !req.Role.Invitable() {
		return reject(ErrInvalidRole, "role_not_invitable")
	}
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		return reject(fmt.Errorf("%w: company id is required", ErrInvalidInput), "missing_company")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return reject(err, "invalid_email")
	}

	if _, err := e.store.Companies().FindByID(ctx, companyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject(ErrNotFound, "company_not_found")
		}
		return nil, err
	}

	token, err := internal.NewOneTimeToken()
	if err != nil {
		return nil, err
	}
	tokenHash, err := e.hashes.Hash(ctx, token)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	inv := &store.Invitation{
		ID:        ids.At(now),
		CompanyID: companyID,
		Email:     email,
		Role:      req.Role,
		TokenHash: tokenHash,
		InvitedBy: req.InvitedBy,
		ExpiresAt: now.Add(e.config.OneTimeTokens.InvitationTTL),
		CreatedAt: now,
	}

	err = e.store.WithinTx(ctx, func(tx store.Repositories) error {
		if _, err := tx.Identities().FindByEmail(ctx, email); err == nil {
			return ErrConflict
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		active, err := tx.Invitations().HasActive(ctx, companyID, email, now)
		if err != nil {
			return err
		}
		if active {
			return ErrConflict
		}
		return tx.Invitations().Create(ctx, inv)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, store.ErrConflict) {
			return reject(ErrConflict, "duplicate")
		}
		return nil, mapStoreErr(err)
	}

	if err := e.notifier.Invitation(ctx, InvitationNotice{
		InvitationID: inv.ID,
		CompanyID:    inv.CompanyID,
		Email:        inv.Email,
		Role:         inv.Role,
		Token:        token,
		ExpiresAt:    inv.ExpiresAt,
	}); err != nil {
		e.warn("poaAuth: invitation notification failed")
	}

	e.metricInc(MetricInvitationCreated)
	e.emitAudit(ctx, auditEventInvitationCreated, true, req.InvitedBy, companyID, nil, func() map[string]string {
		return map[string]string{
			"invitation_id": inv.ID,
			"role":          inv.Role.String(),
		}
	})

	return &InvitationResult{
		ID:        inv.ID,
		Token:     token,
		ExpiresAt: inv.ExpiresAt,
	}, nil
}

// AcceptInvitation redeems an invitation token. The identity, the consumed
// mark and, for brokers, the broker link are written in one atomic unit.
//
// Brokers are not owned by the inviting company: their CompanyID stays empty
// and the company is reachable through the link instead.
func (e *Engine) AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (*AcceptInvitationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	fail := func(err error, reason string) (*AcceptInvitationResult, error) {
		e.metricInc(MetricInvitationAcceptFailure)
		e.emitAudit(ctx, auditEventInvitationAcceptFailure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return nil, err
	}

	token := strings.TrimSpace(req.Token)
	if err := internal.CheckOneTimeToken(token); err != nil {
		return fail(ErrInvalidToken, "malformed_token")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fail(fmt.Errorf("%w: name is required", ErrInvalidInput), "missing_name")
	}
	if err := e.checkPassword(req.Password); err != nil {
		return fail(err, "password_policy")
	}

	now := e.now().UTC()
	invitations, err := e.store.Invitations().ListActive(ctx, now)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(invitations))
	for i, inv := range invitations {
		hashes[i] = inv.TokenHash
	}
	idx, err := e.hashes.VerifyAny(ctx, token, hashes)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return fail(ErrInvalidToken, "no_match")
	}
	inv := invitations[idx]

	hash, err := e.hashes.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	identity := &store.Identity{
		ID:           uuid.NewString(),
		Email:        inv.Email,
		Name:         name,
		PasswordHash: hash,
		Role:         inv.Role,
		CompanyID:    inv.CompanyID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if inv.Role == role.Broker {
		identity.CompanyID = ""
	}

	err = e.store.WithinTx(ctx, func(tx store.Repositories) error {
		consumed, err := tx.Invitations().MarkConsumed(ctx, inv.ID, now)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrInvalidToken
		}
		if err := tx.Identities().Create(ctx, identity); err != nil {
			return err
		}
		if inv.Role == role.Broker {
			return tx.BrokerLinks().Create(ctx, &store.BrokerLink{
				ID:        ids.At(now),
				BrokerID:  identity.ID,
				CompanyID: inv.CompanyID,
				CreatedAt: now,
			})
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidToken), errors.Is(err, store.ErrNotFound):
		return fail(ErrInvalidToken, "already_consumed")
	case errors.Is(err, store.ErrConflict):
		return fail(ErrConflict, "duplicate")
	default:
		return nil, err
	}

	pair, err := e.issueTokenPair(identity.ID, identity.Role)
	if err != nil {
		return nil, err
	}
	e.cacheIdentity(identity)

	e.metricInc(MetricInvitationAccepted)
	e.emitAudit(ctx, auditEventInvitationAccepted, true, identity.ID, inv.CompanyID, nil, func() map[string]string {
		return map[string]string{
			"invitation_id": inv.ID,
			"role":          identity.Role.String(),
		}
	})

	return &AcceptInvitationResult{
		Profile: profileFrom(identity),
		Tokens:  pair,
	}, nil
}

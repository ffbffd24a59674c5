package poaAuth

import (
	"context"
	"strconv"
	"strings"

	"github.com/lucaaxano/poa-app-sub000/role"
	"github.com/lucaaxano/poa-app-sub000/store"
)

// SetIdentityActive activates or deactivates identityID. A deactivated
// identity can no longer log in, refresh or authenticate; its cache entry is
// dropped immediately.
func (e *Engine) SetIdentityActive(ctx context.Context, identityID string, active bool) error {
	err := e.updateIdentityAndInvalidate(ctx, identityID, store.IdentityPatch{Active: &active})
	if err == nil && !active {
		e.metricInc(MetricIdentityDeactivated)
	}
	e.emitAudit(ctx, auditEventIdentityStatusChange, err == nil, identityID, "", err, func() map[string]string {
		return map[string]string{
			"active": strconv.FormatBool(active),
		}
	})
	return err
}

// ChangeRole moves identityID to r. Tokens already issued keep their role
// claim until they expire; Authenticate reports the new role once the cache
// entry is gone.
func (e *Engine) ChangeRole(ctx context.Context, identityID string, r role.Role) error {
	if !r.Valid() {
		e.emitAudit(ctx, auditEventIdentityRoleChange, false, identityID, "", ErrInvalidRole, nil)
		return ErrInvalidRole
	}
	err := e.updateIdentityAndInvalidate(ctx, identityID, store.IdentityPatch{Role: &r})
	if err == nil {
		e.metricInc(MetricIdentityRoleChanged)
	}
	e.emitAudit(ctx, auditEventIdentityRoleChange, err == nil, identityID, "", err, func() map[string]string {
		return map[string]string{
			"role": r.String(),
		}
	})
	return err
}

func (e *Engine) updateIdentityAndInvalidate(ctx context.Context, identityID string, patch store.IdentityPatch) error {
	if err := e.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(identityID) == "" {
		return ErrInvalidInput
	}

	if err := e.store.Identities().Update(ctx, identityID, patch); err != nil {
		return mapStoreErr(err)
	}
	e.invalidate(identityID)
	return nil
}

package poaAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucaaxano/poa-app-sub000/jwt"
	"github.com/lucaaxano/poa-app-sub000/store"
)

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The new pair carries the identity's current role. The presented refresh
// token is not revoked and stays usable until it expires.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	fail := func(identityID, reason string) (*TokenPair, error) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, identityID, "", ErrInvalidToken, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return nil, ErrInvalidToken
	}

	claims, err := e.tokens.Verify(refreshToken, jwt.KindRefresh)
	if err != nil {
		return fail("", "verify")
	}

	identity, err := e.store.Identities().FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(claims.Subject, "identity_not_found")
		}
		return nil, err
	}
	if !identity.Active {
		e.invalidate(identity.ID)
		return fail(identity.ID, "identity_inactive")
	}

	pair, err := e.issueTokenPair(identity.ID, identity.Role)
	if err != nil {
		return nil, err
	}
	e.cacheIdentity(identity)

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, identity.ID, identity.CompanyID, nil, nil)
	return &pair, nil
}

// Logout evicts identityID from the identity cache so the next Authenticate
// re-reads the store. Issued tokens are not revoked.
func (e *Engine) Logout(ctx context.Context, identityID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return ErrInvalidInput
	}

	e.invalidate(identityID)
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, identityID, "", nil, nil)
	return nil
}

// Authenticate verifies an access token and resolves its subject, cache
// first. A cache miss reads the store and repopulates the cache.
//
// Any token problem fails with an error matching both ErrUnauthenticated and
// ErrInvalidToken. A missing or inactive subject fails with ErrUnauthenticated.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	claims, err := e.tokens.Verify(accessToken, jwt.KindAccess)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrInvalidToken)
	}

	if entry, ok := e.cache.Get(claims.Subject); ok {
		e.metricInc(MetricCacheHit)
		if !entry.Value.Active {
			e.metricInc(MetricAuthenticateFailure)
			return nil, ErrUnauthenticated
		}
		e.metricInc(MetricAuthenticateSuccess)
		return entry.Value.principal(), nil
	}
	e.metricInc(MetricCacheMiss)

	identity, err := e.store.Identities().FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricAuthenticateFailure)
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !identity.Active {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrUnauthenticated
	}

	snap := e.cacheIdentity(identity)
	e.metricInc(MetricAuthenticateSuccess)
	return snap.principal(), nil
}

// GetProfile returns the stored profile of identityID, or ErrNotFound.
func (e *Engine) GetProfile(ctx context.Context, identityID string) (*Profile, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(identityID) == "" {
		return nil, ErrInvalidInput
	}
	identity, err := e.store.Identities().FindByID(ctx, identityID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	profile := profileFrom(identity)
	return &profile, nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, identityID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(identityID) == "" {
		return ErrInvalidInput
	}
	if err := e.checkPassword(next); err != nil {
		return err
	}

	identity, err := e.store.Identities().FindByID(ctx, identityID)
	if err != nil {
		return mapStoreErr(err)
	}

	ok, err := e.hashes.Verify(ctx, current, identity.PasswordHash)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidCurrent)
		e.emitAudit(ctx, auditEventPasswordChangeInvalid, false, identity.ID, identity.CompanyID, ErrUnauthenticated, nil)
		return ErrUnauthenticated
	}

	if reused, err := e.hashes.Verify(ctx, next, identity.PasswordHash); err == nil && reused {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, identity.ID, identity.CompanyID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.hashes.Hash(ctx, next)
	if err != nil {
		return err
	}
	if err := e.store.Identities().Update(ctx, identity.ID, store.IdentityPatch{PasswordHash: &hash}); err != nil {
		return mapStoreErr(err)
	}
	e.invalidate(identity.ID)

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, identity.ID, identity.CompanyID, nil, nil)
	return nil
}

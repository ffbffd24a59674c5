package poaAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lucaaxano/poa-app-sub000/role"
	"github.com/lucaaxano/poa-app-sub000/store"
)

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The company and its first company-admin are created in one atomic unit; if
// either write fails neither exists. A taken email fails with ErrConflict.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	companyName := strings.TrimSpace(req.CompanyName)
	name := strings.TrimSpace(req.Name)
	if companyName == "" || name == "" {
		return nil, fmt.Errorf("%w: company name and name are required", ErrInvalidInput)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := e.checkPassword(req.Password); err != nil {
		return nil, err
	}

	fail := func(err error) (*RegisterResult, error) {
		if errors.Is(err, ErrConflict) {
			e.metricInc(MetricRegisterDuplicate)
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"email": email,
			}
		})
		return nil, err
	}

	// Pre-check only; the unique constraint in the transaction decides.
	if _, err := e.store.Identities().FindByEmail(ctx, email); err == nil {
		return fail(ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := e.hashes.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	company := &store.Company{
		ID:        uuid.NewString(),
		Name:      companyName,
		CreatedAt: now,
	}
	identity := &store.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role.CompanyAdmin,
		CompanyID:    company.ID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = e.store.WithinTx(ctx, func(tx store.Repositories) error {
		if err := tx.Companies().Create(ctx, company); err != nil {
			return err
		}
		return tx.Identities().Create(ctx, identity)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fail(ErrConflict)
		}
		return nil, mapStoreErr(err)
	}

	pair, err := e.issueTokenPair(identity.ID, identity.Role)
	if err != nil {
		return nil, err
	}
	e.cacheIdentity(identity)

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, identity.ID, company.ID, nil, nil)

	return &RegisterResult{
		Profile: profileFrom(identity),
		Company: Company{
			ID:        company.ID,
			Name:      company.Name,
			CreatedAt: company.CreatedAt,
		},
		Tokens: pair,
	}, nil
}

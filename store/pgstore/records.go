package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/lucaaxano/poa-app-sub000/role"
	"github.com/lucaaxano/poa-app-sub000/store"
)

type companies struct{ q querier }

func (r companies) Create(ctx context.Context, c *store.Company) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx,
		`insert into companies(id, name, created_at) values($1,$2,$3)`,
		c.ID, c.Name, c.CreatedAt,
	)
	return mapErr(err)
}

func (r companies) FindByID(ctx context.Context, id string) (*store.Company, error) {
	var c store.Company
	err := r.q.QueryRowContext(ctx,
		`select id, name, created_at from companies where id=$1`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

type invitations struct {
	q    querier
	inTx bool
}

const invitationColumns = `id, company_id, email, role, token_hash, invited_by, expires_at, consumed_at, created_at`

func (r invitations) Create(ctx context.Context, inv *store.Invitation) error {
	inv.Email = store.NormalizeEmail(inv.Email)
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx,
		`insert into invitations(`+invitationColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		inv.ID, inv.CompanyID, inv.Email, inv.Role.String(), inv.TokenHash, inv.InvitedBy,
		inv.ExpiresAt, nullTime(inv.ConsumedAt), inv.CreatedAt,
	)
	return mapErr(err)
}

func (r invitations) ListActive(ctx context.Context, now time.Time) ([]store.Invitation, error) {
	rows, err := r.q.QueryContext(ctx,
		`select `+invitationColumns+` from invitations
		 where consumed_at is null and expires_at > $1 order by created_at`, now)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []store.Invitation
	for rows.Next() {
		var (
			inv      store.Invitation
			roleName string
			consumed sql.NullTime
		)
		if err := rows.Scan(&inv.ID, &inv.CompanyID, &inv.Email, &roleName, &inv.TokenHash,
			&inv.InvitedBy, &inv.ExpiresAt, &consumed, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if inv.Role, err = role.Parse(roleName); err != nil {
			return nil, err
		}
		inv.ConsumedAt = consumed.Time
		out = append(out, inv)
	}
	return out, rows.Err()
}

// HasActive serializes, within a transaction, every unit checking the same
// (company, email) pair until that unit commits.
func (r invitations) HasActive(ctx context.Context, companyID, email string, now time.Time) (bool, error) {
	email = store.NormalizeEmail(email)
	if err := lockKey(ctx, r.q, r.inTx, "invitation:"+companyID+":"+email); err != nil {
		return false, err
	}
	var exists bool
	err := r.q.QueryRowContext(ctx, `
		select exists(
			select 1 from invitations
			where company_id=$1 and email=$2 and consumed_at is null and expires_at > $3
		)`, companyID, email, now,
	).Scan(&exists)
	if err != nil {
		return false, mapErr(err)
	}
	return exists, nil
}

func (r invitations) MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`update invitations set consumed_at=$2 where id=$1 and consumed_at is null`, id, at)
	if err != nil {
		return false, mapErr(err)
	}
	return requireRow(res)
}

func (r invitations) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `delete from invitations where id=$1`, id)
	if err != nil {
		return mapErr(err)
	}
	ok, err := requireRow(res)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

type resets struct {
	q    querier
	inTx bool
}

func (r resets) Create(ctx context.Context, t *store.ResetToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx,
		`insert into password_reset_tokens(id, identity_id, token_hash, expires_at, created_at) values($1,$2,$3,$4,$5)`,
		t.ID, t.IdentityID, t.TokenHash, t.ExpiresAt, t.CreatedAt,
	)
	return mapErr(err)
}

func (r resets) ListActive(ctx context.Context, now time.Time) ([]store.ResetToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		select id, identity_id, token_hash, expires_at, created_at
		from password_reset_tokens where expires_at > $1 order by created_at`, now)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []store.ResetToken
	for rows.Next() {
		var t store.ResetToken
		if err := rows.Scan(&t.ID, &t.IdentityID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteByIdentity locks the identity's reset slot for the rest of the
// transaction, so a concurrent replace cannot leave two records behind.
func (r resets) DeleteByIdentity(ctx context.Context, identityID string) error {
	if err := lockKey(ctx, r.q, r.inTx, "reset:"+identityID); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `delete from password_reset_tokens where identity_id=$1`, identityID)
	return mapErr(err)
}

func (r resets) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `delete from password_reset_tokens where id=$1`, id)
	if err != nil {
		return false, mapErr(err)
	}
	return requireRow(res)
}

type links struct{ q querier }

func (r links) Create(ctx context.Context, l *store.BrokerLink) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx,
		`insert into broker_links(id, broker_id, company_id, created_at) values($1,$2,$3,$4)`,
		l.ID, l.BrokerID, l.CompanyID, l.CreatedAt,
	)
	return mapErr(err)
}

func (r links) ListByBroker(ctx context.Context, brokerID string) ([]store.BrokerLink, error) {
	rows, err := r.q.QueryContext(ctx,
		`select id, broker_id, company_id, created_at from broker_links where broker_id=$1 order by created_at`, brokerID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []store.BrokerLink
	for rows.Next() {
		var l store.BrokerLink
		if err := rows.Scan(&l.ID, &l.BrokerID, &l.CompanyID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lucaaxano/poa-app-sub000/role"
	"github.com/lucaaxano/poa-app-sub000/store"
)

const identityColumns = `id, email, name, password_hash, role, company_id, active, totp_enabled, totp_secret, backup_codes, last_login_at, created_at, updated_at`

type identities struct{ q querier }

func (r identities) FindByEmail(ctx context.Context, email string) (*store.Identity, error) {
	row := r.q.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where email=$1`, store.NormalizeEmail(email))
	return scanIdentity(row)
}

func (r identities) FindByID(ctx context.Context, id string) (*store.Identity, error) {
	row := r.q.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where id=$1`, id)
	return scanIdentity(row)
}

func (r identities) Create(ctx context.Context, identity *store.Identity) error {
	codes, err := encodeCodes(identity.BackupCodes)
	if err != nil {
		return err
	}
	identity.Email = store.NormalizeEmail(identity.Email)
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	_, err = r.q.ExecContext(ctx,
		`insert into identities(`+identityColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		identity.ID, identity.Email, identity.Name, identity.PasswordHash, identity.Role.String(),
		nullString(identity.CompanyID), identity.Active, identity.TOTPEnabled, identity.TOTPSecret,
		codes, nullTime(identity.LastLoginAt), identity.CreatedAt, identity.UpdatedAt,
	)
	return mapErr(err)
}

// Update reads, patches and writes back the full row. Callers that need the
// read and write to be atomic run it inside WithinTx.
func (r identities) Update(ctx context.Context, id string, patch store.IdentityPatch) error {
	row := r.q.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where id=$1 for update`, id)
	current, err := scanIdentity(row)
	if err != nil {
		return err
	}
	patch.Apply(current)

	codes, err := encodeCodes(current.BackupCodes)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		update identities
		set name=$2, password_hash=$3, role=$4, company_id=$5, active=$6,
		    totp_enabled=$7, totp_secret=$8, backup_codes=$9, last_login_at=$10, updated_at=now()
		where id=$1`,
		id, current.Name, current.PasswordHash, current.Role.String(), nullString(current.CompanyID),
		current.Active, current.TOTPEnabled, current.TOTPSecret, codes, nullTime(current.LastLoginAt),
	)
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

func (r identities) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `delete from identities where id=$1`, id)
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

func (r identities) ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		update identities
		set backup_codes = backup_codes - $2::text, updated_at = now()
		where id=$1 and jsonb_exists(backup_codes, $2::text)`,
		id, hash,
	)
	if err != nil {
		return false, mapErr(err)
	}
	ok, err := requireRow(res)
	if err != nil || ok {
		return ok, err
	}

	var one int
	if err := r.q.QueryRowContext(ctx, `select 1 from identities where id=$1`, id).Scan(&one); err != nil {
		return false, mapErr(err)
	}
	return false, nil
}

func scanIdentity(row *sql.Row) (*store.Identity, error) {
	var (
		out       store.Identity
		roleName  string
		companyID sql.NullString
		codes     []byte
		lastLogin sql.NullTime
	)
	if err := row.Scan(
		&out.ID, &out.Email, &out.Name, &out.PasswordHash, &roleName, &companyID,
		&out.Active, &out.TOTPEnabled, &out.TOTPSecret, &codes, &lastLogin,
		&out.CreatedAt, &out.UpdatedAt,
	); err != nil {
		return nil, mapErr(err)
	}

	r, err := role.Parse(roleName)
	if err != nil {
		return nil, err
	}
	out.Role = r
	out.CompanyID = companyID.String
	out.LastLoginAt = lastLogin.Time
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &out.BackupCodes); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

func encodeCodes(codes []string) ([]byte, error) {
	if codes == nil {
		codes = []string{}
	}
	return json.Marshal(codes)
}

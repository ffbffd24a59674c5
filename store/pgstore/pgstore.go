// Package pgstore implements store.Store on PostgreSQL through database/sql and
// the pgx driver.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lucaaxano/poa-app-sub000/store"
)

// Schema is the DDL the store expects. Migrate applies it.
//
//go:embed schema.sql
var Schema string

const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects with the pgx driver and applies pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

func (s *Store) Identities() store.IdentityStore { return identities{q: s.db} }
func (s *Store) Companies() store.CompanyStore { return companies{q: s.db} }
func (s *Store) Invitations() store.InvitationStore { return invitations{q: s.db} }
func (s *Store) ResetTokens() store.ResetTokenStore { return resets{q: s.db} }
func (s *Store) BrokerLinks() store.BrokerLinkStore { return links{q: s.db} }

// WithinTx runs fn inside a single database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(txRepos{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type txRepos struct{ q querier }

func (t txRepos) Identities() store.IdentityStore { return identities{q: t.q} }
func (t txRepos) Companies() store.CompanyStore { return companies{q: t.q} }
func (t txRepos) Invitations() store.InvitationStore { return invitations{q: t.q, inTx: true} }
func (t txRepos) ResetTokens() store.ResetTokenStore { return resets{q: t.q, inTx: true} }
func (t txRepos) BrokerLinks() store.BrokerLinkStore { return links{q: t.q} }

// lockKey takes a transaction-scoped advisory lock on key. A second unit
// locking the same key waits for the first to commit; under READ COMMITTED
// its next statement then sees the committed rows. No-op outside a
// transaction.
func lockKey(ctx context.Context, q querier, inTx bool, key string) error {
	if !inTx {
		return nil
	}
	_, err := q.ExecContext(ctx, `select pg_advisory_xact_lock(hashtext($1))`, key)
	return mapErr(err)
}

// mapErr converts driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func requireRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

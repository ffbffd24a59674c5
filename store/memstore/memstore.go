// Package memstore is an in-process implementation of store.Store. Transactions
// run against a copy of the data set that replaces the live one on success, so
// a failed unit leaves nothing behind.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lucaaxano/poa-app-sub000/store"
)

// Operation names passed to a fault hook.
const (
	OpIdentityCreate    = "identities.create"
	OpIdentityUpdate    = "identities.update"
	OpIdentityDelete    = "identities.delete"
	OpCompanyCreate     = "companies.create"
	OpInvitationCreate  = "invitations.create"
	OpInvitationConsume = "invitations.consume"
	OpInvitationDelete  = "invitations.delete"
	OpResetCreate       = "resets.create"
	OpResetDelete       = "resets.delete"
	OpBrokerLinkCreate  = "broker_links.create"
)

// Option configures a Store.
type Option func(*Store)

// WithFault installs a hook consulted before every write. A non-nil return
// aborts the write with that error. Tests use it to break a unit midway.
func WithFault(fn func(op string) error) Option {
	return func(s *Store) { s.fault = fn }
}

// WithClock sets the clock used for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store implements store.Store in memory. The zero value is not usable; call New.
type Store struct {
	mu    sync.Mutex
	data  *dataset
	fault func(op string) error
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{data: newDataset(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dataset struct {
	identities  map[string]store.Identity
	emails      map[string]string
	companies   map[string]store.Company
	invitations map[string]store.Invitation
	resets      map[string]store.ResetToken
	links       map[string]store.BrokerLink
}

func newDataset() *dataset {
	return &dataset{
		identities:  make(map[string]store.Identity),
		emails:      make(map[string]string),
		companies:   make(map[string]store.Company),
		invitations: make(map[string]store.Invitation),
		resets:      make(map[string]store.ResetToken),
		links:       make(map[string]store.BrokerLink),
	}
}

func (d *dataset) clone() *dataset {
	out := newDataset()
	for k, v := range d.identities {
		v.BackupCodes = append([]string(nil), v.BackupCodes...)
		out.identities[k] = v
	}
	for k, v := range d.emails {
		out.emails[k] = v
	}
	for k, v := range d.companies {
		out.companies[k] = v
	}
	for k, v := range d.invitations {
		out.invitations[k] = v
	}
	for k, v := range d.resets {
		out.resets[k] = v
	}
	for k, v := range d.links {
		out.links[k] = v
	}
	return out
}

// binding runs a function against either the live data set (taking the lock)
// or a transaction's private copy (lock already held by WithinTx).
type binding struct {
	s   *Store
	run func(fn func(*dataset) error) error
}

func (s *Store) live() binding {
	return binding{s: s, run: func(fn func(*dataset) error) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(s.data)
	}}
}

func (b binding) write(op string, fn func(*dataset) error) error {
	return b.run(func(d *dataset) error {
		if b.s.fault != nil {
			if err := b.s.fault(op); err != nil {
				return err
			}
		}
		return fn(d)
	})
}

func (s *Store) Identities() store.IdentityStore { return identities{s.live()} }
func (s *Store) Companies() store.CompanyStore { return companies{s.live()} }
func (s *Store) Invitations() store.InvitationStore { return invitations{s.live()} }
func (s *Store) ResetTokens() store.ResetTokenStore { return resets{s.live()} }
func (s *Store) BrokerLinks() store.BrokerLinkStore { return links{s.live()} }

// WithinTx serializes with every other store call for its duration.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	tx := txRepos{b: binding{s: s, run: func(f func(*dataset) error) error { return f(work) }}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

type txRepos struct{ b binding }

func (t txRepos) Identities() store.IdentityStore { return identities{t.b} }
func (t txRepos) Companies() store.CompanyStore { return companies{t.b} }
func (t txRepos) Invitations() store.InvitationStore { return invitations{t.b} }
func (t txRepos) ResetTokens() store.ResetTokenStore { return resets{t.b} }
func (t txRepos) BrokerLinks() store.BrokerLinkStore { return links{t.b} }

type identities struct{ b binding }

func (r identities) FindByEmail(_ context.Context, email string) (*store.Identity, error) {
	var out *store.Identity
	err := r.b.run(func(d *dataset) error {
		id, ok := d.emails[store.NormalizeEmail(email)]
		if !ok {
			return store.ErrNotFound
		}
		out = copyIdentity(d.identities[id])
		return nil
	})
	return out, err
}

func (r identities) FindByID(_ context.Context, id string) (*store.Identity, error) {
	var out *store.Identity
	err := r.b.run(func(d *dataset) error {
		rec, ok := d.identities[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyIdentity(rec)
		return nil
	})
	return out, err
}

func (r identities) Create(_ context.Context, identity *store.Identity) error {
	return r.b.write(OpIdentityCreate, func(d *dataset) error {
		email := store.NormalizeEmail(identity.Email)
		if _, taken := d.emails[email]; taken {
			return store.ErrConflict
		}
		if _, taken := d.identities[identity.ID]; taken {
			return store.ErrConflict
		}
		rec := *copyIdentity(*identity)
		rec.Email = email
		now := r.b.s.now()
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		d.identities[rec.ID] = rec
		d.emails[email] = rec.ID
		identity.Email = rec.Email
		identity.CreatedAt = rec.CreatedAt
		identity.UpdatedAt = rec.UpdatedAt
		return nil
	})
}

func (r identities) Update(_ context.Context, id string, patch store.IdentityPatch) error {
	return r.b.write(OpIdentityUpdate, func(d *dataset) error {
		rec, ok := d.identities[id]
		if !ok {
			return store.ErrNotFound
		}
		patch.Apply(&rec)
		rec.UpdatedAt = r.b.s.now()
		d.identities[id] = rec
		return nil
	})
}

func (r identities) Delete(_ context.Context, id string) error {
	return r.b.write(OpIdentityDelete, func(d *dataset) error {
		rec, ok := d.identities[id]
		if !ok {
			return store.ErrNotFound
		}
		delete(d.identities, id)
		delete(d.emails, rec.Email)
		return nil
	})
}

func (r identities) ConsumeBackupCode(_ context.Context, id, hash string) (bool, error) {
	var removed bool
	err := r.b.write(OpIdentityUpdate, func(d *dataset) error {
		rec, ok := d.identities[id]
		if !ok {
			return store.ErrNotFound
		}
		kept := make([]string, 0, len(rec.BackupCodes))
		for _, h := range rec.BackupCodes {
			if !removed && h == hash {
				removed = true
				continue
			}
			kept = append(kept, h)
		}
		if removed {
			rec.BackupCodes = kept
			rec.UpdatedAt = r.b.s.now()
			d.identities[id] = rec
		}
		return nil
	})
	return removed, err
}

type companies struct{ b binding }

func (r companies) Create(_ context.Context, company *store.Company) error {
	return r.b.write(OpCompanyCreate, func(d *dataset) error {
		if _, taken := d.companies[company.ID]; taken {
			return store.ErrConflict
		}
		if company.CreatedAt.IsZero() {
			company.CreatedAt = r.b.s.now()
		}
		d.companies[company.ID] = *company
		return nil
	})
}

func (r companies) FindByID(_ context.Context, id string) (*store.Company, error) {
	var out *store.Company
	err := r.b.run(func(d *dataset) error {
		rec, ok := d.companies[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &rec
		return nil
	})
	return out, err
}

type invitations struct{ b binding }

func (r invitations) Create(_ context.Context, inv *store.Invitation) error {
	return r.b.write(OpInvitationCreate, func(d *dataset) error {
		if _, taken := d.invitations[inv.ID]; taken {
			return store.ErrConflict
		}
		rec := *inv
		rec.Email = store.NormalizeEmail(rec.Email)
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = r.b.s.now()
		}
		d.invitations[rec.ID] = rec
		inv.Email = rec.Email
		inv.CreatedAt = rec.CreatedAt
		return nil
	})
}

func (r invitations) ListActive(_ context.Context, now time.Time) ([]store.Invitation, error) {
	var out []store.Invitation
	err := r.b.run(func(d *dataset) error {
		for _, inv := range d.invitations {
			if inv.Active(now) {
				out = append(out, inv)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r invitations) HasActive(_ context.Context, companyID, email string, now time.Time) (bool, error) {
	email = store.NormalizeEmail(email)
	var found bool
	err := r.b.run(func(d *dataset) error {
		for _, inv := range d.invitations {
			if inv.CompanyID == companyID && inv.Email == email && inv.Active(now) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r invitations) MarkConsumed(_ context.Context, id string, at time.Time) (bool, error) {
	var marked bool
	err := r.b.write(OpInvitationConsume, func(d *dataset) error {
		inv, ok := d.invitations[id]
		if !ok || !inv.ConsumedAt.IsZero() {
			return nil
		}
		inv.ConsumedAt = at
		d.invitations[id] = inv
		marked = true
		return nil
	})
	return marked, err
}

func (r invitations) Delete(_ context.Context, id string) error {
	return r.b.write(OpInvitationDelete, func(d *dataset) error {
		if _, ok := d.invitations[id]; !ok {
			return store.ErrNotFound
		}
		delete(d.invitations, id)
		return nil
	})
}

type resets struct{ b binding }

func (r resets) Create(_ context.Context, token *store.ResetToken) error {
	return r.b.write(OpResetCreate, func(d *dataset) error {
		if _, taken := d.resets[token.ID]; taken {
			return store.ErrConflict
		}
		if token.CreatedAt.IsZero() {
			token.CreatedAt = r.b.s.now()
		}
		d.resets[token.ID] = *token
		return nil
	})
}

func (r resets) ListActive(_ context.Context, now time.Time) ([]store.ResetToken, error) {
	var out []store.ResetToken
	err := r.b.run(func(d *dataset) error {
		for _, rt := range d.resets {
			if now.Before(rt.ExpiresAt) {
				out = append(out, rt)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r resets) DeleteByIdentity(_ context.Context, identityID string) error {
	return r.b.write(OpResetDelete, func(d *dataset) error {
		for id, rt := range d.resets {
			if rt.IdentityID == identityID {
				delete(d.resets, id)
			}
		}
		return nil
	})
}

func (r resets) Delete(_ context.Context, id string) (bool, error) {
	var deleted bool
	err := r.b.write(OpResetDelete, func(d *dataset) error {
		if _, ok := d.resets[id]; ok {
			delete(d.resets, id)
			deleted = true
		}
		return nil
	})
	return deleted, err
}

type links struct{ b binding }

func (r links) Create(_ context.Context, link *store.BrokerLink) error {
	return r.b.write(OpBrokerLinkCreate, func(d *dataset) error {
		for _, l := range d.links {
			if l.BrokerID == link.BrokerID && l.CompanyID == link.CompanyID {
				return store.ErrConflict
			}
		}
		if link.CreatedAt.IsZero() {
			link.CreatedAt = r.b.s.now()
		}
		d.links[link.ID] = *link
		return nil
	})
}

func (r links) ListByBroker(_ context.Context, brokerID string) ([]store.BrokerLink, error) {
	var out []store.BrokerLink
	err := r.b.run(func(d *dataset) error {
		for _, l := range d.links {
			if l.BrokerID == brokerID {
				out = append(out, l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func copyIdentity(in store.Identity) *store.Identity {
	out := in
	out.BackupCodes = append([]string(nil), in.BackupCodes...)
	return &out
}

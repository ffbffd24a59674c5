package poaAuth

import (
	"context"
	"errors"

	"github.com/lucaaxano/poa-app-sub000/store"
	"github.com/lucaaxano/poa-app-sub000/totp"
)

// totpStore keeps second-factor state on the identity record. Conditional
// writes run inside WithinTx so a concurrent setup or disable cannot be
// overwritten by a stale read.
type totpStore struct {
	store store.Store
}

var _ totp.Store = (*totpStore)(nil)

func (s *totpStore) LoadState(ctx context.Context, identityID string) (totp.State, error) {
	identity, err := s.store.Identities().FindByID(ctx, identityID)
	if err != nil {
		return totp.State{}, totpStoreErr(err)
	}
	return totp.State{
		Secret:       identity.TOTPSecret,
		Enabled:      identity.TOTPEnabled,
		BackupCodes:  identity.BackupCodes,
		PasswordHash: identity.PasswordHash,
	}, nil
}

func (s *totpStore) SaveSecret(ctx context.Context, identityID, secret string, backupHashes []string) error {
	return s.update(ctx, identityID, func(identity *store.Identity) (store.IdentityPatch, error) {
		if identity.TOTPEnabled && identity.TOTPSecret != "" {
			return store.IdentityPatch{}, totp.ErrAlreadyEnabled
		}
		enabled := false
		codes := append([]string(nil), backupHashes...)
		return store.IdentityPatch{
			TOTPSecret:  &secret,
			TOTPEnabled: &enabled,
			BackupCodes: &codes,
		}, nil
	})
}

func (s *totpStore) MarkEnabled(ctx context.Context, identityID, secret string) error {
	return s.update(ctx, identityID, func(identity *store.Identity) (store.IdentityPatch, error) {
		if identity.TOTPSecret == "" || identity.TOTPSecret != secret {
			return store.IdentityPatch{}, totp.ErrNoPendingSecret
		}
		if identity.TOTPEnabled {
			return store.IdentityPatch{}, totp.ErrAlreadyEnabled
		}
		enabled := true
		return store.IdentityPatch{TOTPEnabled: &enabled}, nil
	})
}

func (s *totpStore) Clear(ctx context.Context, identityID string) error {
	empty := ""
	disabled := false
	codes := []string{}
	err := s.store.Identities().Update(ctx, identityID, store.IdentityPatch{
		TOTPSecret:  &empty,
		TOTPEnabled: &disabled,
		BackupCodes: &codes,
	})
	return totpStoreErr(err)
}

func (s *totpStore) ReplaceBackupCodes(ctx context.Context, identityID string, hashes []string) error {
	return s.update(ctx, identityID, func(identity *store.Identity) (store.IdentityPatch, error) {
		if !identity.TOTPEnabled || identity.TOTPSecret == "" {
			return store.IdentityPatch{}, totp.ErrNotEnabled
		}
		codes := append([]string(nil), hashes...)
		return store.IdentityPatch{BackupCodes: &codes}, nil
	})
}

func (s *totpStore) ConsumeBackupCode(ctx context.Context, identityID, hash string) (bool, error) {
	ok, err := s.store.Identities().ConsumeBackupCode(ctx, identityID, hash)
	return ok, totpStoreErr(err)
}

// update re-reads the identity inside a transaction and applies the patch
// decide returns, or aborts with its error.
func (s *totpStore) update(ctx context.Context, identityID string, decide func(*store.Identity) (store.IdentityPatch, error)) error {
	err := s.store.WithinTx(ctx, func(tx store.Repositories) error {
		identity, err := tx.Identities().FindByID(ctx, identityID)
		if err != nil {
			return err
		}
		patch, err := decide(identity)
		if err != nil {
			return err
		}
		return tx.Identities().Update(ctx, identityID, patch)
	})
	return totpStoreErr(err)
}

func totpStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return totp.ErrNotFound
	}
	return err
}

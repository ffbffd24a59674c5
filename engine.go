package poaAuth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"github.com/lucaaxano/poa-app-sub000/cache"
	internalaudit "github.com/lucaaxano/poa-app-sub000/internal/audit"
	internalflows "github.com/lucaaxano/poa-app-sub000/internal/flows"
	"github.com/lucaaxano/poa-app-sub000/internal/limiters"
	"github.com/lucaaxano/poa-app-sub000/internal/stores"
	"github.com/lucaaxano/poa-app-sub000/internal/throttle"
	"github.com/lucaaxano/poa-app-sub000/jwt"
	"github.com/lucaaxano/poa-app-sub000/password"
	"github.com/lucaaxano/poa-app-sub000/role"
	"github.com/lucaaxano/poa-app-sub000/store"
	"github.com/lucaaxano/poa-app-sub000/totp"
)

// Engine is the credential and session manager. Build one with [New] and
// [Builder.Build]; every method is safe for concurrent use.
type Engine struct {
	config Config
	store  store.Store
	now    func() time.Time

	hashes    *password.Pool
	dummyHash string
	tokens    *jwt.Manager
	cache     *cache.Cache[identitySnapshot]
	totp      *totp.Engine

	redis         redis.UniversalClient
	ownsRedis     bool
	loginLimiter  *limiters.LoginLimiter
	totpLimiter   *limiters.TOTPLimiter
	pending       *stores.PendingHandleStore
	resetThrottle *throttle.Keyed

	flows internalflows.Deps

	notifier Notifier
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
}

// Close stops the cache sweeper, drains the audit dispatcher and closes a
// Redis client that Build dialed itself.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.cache != nil {
		e.cache.Stop()
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.ownsRedis && e.redis != nil {
		if err := e.redis.Close(); err != nil {
			log.Print("poaAuth: redis close failed")
		}
	}
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the counters for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// CacheLen reports how many identities are cached.
func (e *Engine) CacheLen() int {
	if e == nil || e.cache == nil {
		return 0
	}
	return e.cache.Len()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.tokens == nil || e.hashes == nil || e.cache == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(format string, args ...any) {
	log.Printf(format, args...)
}

// issueTokenPair signs a fresh access/refresh pair for subject. Nothing is
// stored; rotation does not revoke earlier pairs.
func (e *Engine) issueTokenPair(subject string, r role.Role) (TokenPair, error) {
	access, accessExp, err := e.tokens.Issue(subject, r.String(), jwt.KindAccess, e.config.Tokens.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := e.tokens.Issue(subject, r.String(), jwt.KindRefresh, e.config.Tokens.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *Engine) cacheIdentity(identity *store.Identity) identitySnapshot {
	snap := snapshotFrom(identity)
	e.cache.Put(identity.ID, snap)
	return snap
}

func (e *Engine) invalidate(identityID string) {
	if e.cache != nil && identityID != "" {
		e.cache.Invalidate(identityID)
	}
}

func (e *Engine) checkPassword(pw string) error {
	if n := utf8.RuneCountInString(pw); n < e.config.Password.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if len(pw) > e.config.Password.MaxLength {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPasswordPolicy, e.config.Password.MaxLength)
	}
	if strings.TrimSpace(pw) == "" {
		return fmt.Errorf("%w: must not be blank", ErrPasswordPolicy)
	}
	return nil
}

// normalizeEmail lower-cases addr and rejects anything net/mail would not
// parse as a bare address.
func normalizeEmail(addr string) (string, error) {
	addr = store.NormalizeEmail(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return addr, nil
}

// mapStoreErr translates store sentinels at the engine boundary. Anything else
// propagates unchanged.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}

func mapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func snapshotFrom(identity *store.Identity) identitySnapshot {
	return identitySnapshot{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		Role:      identity.Role,
		CompanyID: identity.CompanyID,
		Active:    identity.Active,
	}
}

func profileFrom(identity *store.Identity) Profile {
	return Profile{
		ID:          identity.ID,
		Email:       identity.Email,
		Name:        identity.Name,
		Role:        identity.Role,
		CompanyID:   identity.CompanyID,
		Active:      identity.Active,
		TOTPEnabled: identity.TOTPEnabled,
		LastLoginAt: identity.LastLoginAt,
		CreatedAt:   identity.CreatedAt,
	}
}

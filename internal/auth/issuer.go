package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fraudulert-backend/internal/cache"
	"fraudulert-backend/internal/identity"
	"fraudulert-backend/internal/models"
	"fraudulert-backend/internal/storage"
)

// Issuer bridges a provider-verified identity into an internal session
// credential. One login: verify upstream, reconcile the local record, sync
// claims back to the provider, revoke the provider's outstanding tokens,
// mint the session token.
type Issuer struct {
	store    *storage.Storage
	provider identity.Provider
	cache    cache.Client
	locks    *IdentityLocks
}

func NewIssuer(store *storage.Storage, provider identity.Provider, cacheClient cache.Client, locks *IdentityLocks) *Issuer {
	return &Issuer{
		store:    store,
		provider: provider,
		cache:    cacheClient,
		locks:    locks,
	}
}

// Login performs the full bridging sequence. The first-login flag in the
// result is the pre-update value: it fires exactly once per identity.
func (i *Issuer) Login(ctx context.Context, providerToken string) (*models.LoginResult, error) {
	verified, err := i.provider.VerifyToken(ctx, providerToken)
	if err != nil {
		if errors.Is(err, identity.ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	// The steps below mutate shared state for this identity and must not
	// interleave with a concurrent login or claims change for it. The
	// record is read under the lock: a lookup taken before a role change
	// commits would push the old claims back over the fresh ones.
	unlock := i.locks.Lock(verified.UID)
	defer unlock()

	user, err := i.store.GetUser(ctx, verified.UID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUnregisteredIdentity
		}
		return nil, err
	}

	firstLogin, err := i.store.TouchLogin(ctx, user.UID)
	if err != nil {
		return nil, fmt.Errorf("update login state: %w", err)
	}

	// Claims push strictly before revocation: a session re-established
	// after the revocation already sees the fresh claims.
	claims := identity.Claims{Role: user.Role, Org: user.Organisation}
	if err := i.provider.SetClaims(ctx, user.UID, claims); err != nil {
		return nil, fmt.Errorf("sync claims: %w", err)
	}
	if err := i.provider.RevokeTokens(ctx, user.UID); err != nil {
		return nil, fmt.Errorf("revoke provider tokens: %w", err)
	}

	token, err := GenerateToken(user.UID, user.Role, user.Organisation)
	if err != nil {
		return nil, fmt.Errorf("mint session token: %w", err)
	}

	return &models.LoginResult{Token: token, FirstLogin: firstLogin}, nil
}

// RevokeSessions advances the identity's revocation horizon: session
// credentials issued before now stop validating immediately.
func (i *Issuer) RevokeSessions(uid string) error {
	if i.cache == nil {
		return nil
	}
	return i.cache.SetRevocationHorizon(uid, time.Now(), SessionTTL)
}

// Locks exposes the per-identity serialization shared with the lifecycle
// manager, whose claims changes must not race a login in flight.
func (i *Issuer) Locks() *IdentityLocks {
	return i.locks
}

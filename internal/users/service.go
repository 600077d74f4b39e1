package users

import (
	"context"
	"errors"
	"fmt"
	"log"

	"fraudulert-backend/internal/auth"
	"fraudulert-backend/internal/identity"
	"fraudulert-backend/internal/models"
	"fraudulert-backend/internal/storage"
)

var (
	// ErrPartialDeletion means the provider no longer has the identity but
	// the local record survived the conditioned delete. Operators must
	// reconcile; it is never reported as a plain success or failure.
	ErrPartialDeletion = errors.New("identity deleted at provider but not locally")
	ErrSelfTarget      = errors.New("operation cannot target the calling identity")
	ErrInvalidRole     = errors.New("invalid role")
)

// DegradedCreateError reports an identity that exists at the provider but
// failed local enrollment. The provider uid is carried so the identity can
// be enrolled or cleaned up later.
type DegradedCreateError struct {
	UID string
	Err error
}

func (e *DegradedCreateError) Error() string {
	return fmt.Sprintf("identity %s created at provider but not enrolled locally: %v", e.UID, e.Err)
}

func (e *DegradedCreateError) Unwrap() error {
	return e.Err
}

// Service creates and deletes identities across the external provider and
// the local store. Both sides can fail independently; every outcome states
// which side(s) succeeded.
type Service struct {
	store    *storage.Storage
	provider identity.Provider
	issuer   *auth.Issuer
}

func NewService(store *storage.Storage, provider identity.Provider, issuer *auth.Issuer) *Service {
	return &Service{store: store, provider: provider, issuer: issuer}
}

// Create provisions the identity at the provider (which assigns the uid),
// enrolls it locally under the caller's organisation, and triggers the
// provider's credential-recovery flow instead of transmitting a password.
func (s *Service) Create(ctx context.Context, caller auth.Principal, input models.CreateUserInput) (*models.User, error) {
	if !caller.IsAdmin() {
		return nil, auth.ErrForbidden
	}
	if !models.ValidRole(input.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, input.Role)
	}
	if input.Email == "" || input.Username == "" {
		return nil, errors.New("email and username are required")
	}

	uid, err := s.provider.CreateIdentity(ctx, input.Email)
	if err != nil {
		return nil, err
	}

	createdBy := caller.UID
	user := &models.User{
		UID:          uid,
		Email:        input.Email,
		Username:     input.Username,
		Role:         input.Role,
		Organisation: caller.Org,
		CreatedBy:    &createdBy,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		// The provider side is live. Do not mask it as a clean failure.
		return nil, &DegradedCreateError{UID: uid, Err: err}
	}

	if err := s.provider.SendPasswordReset(ctx, input.Email); err != nil {
		log.Printf("WARN password reset notification failed for %s: %v", input.Email, err)
	}

	return user, nil
}

// Delete removes the identity provider-first. Once the provider step
// succeeds the operation is irreversible; the conditioned local delete
// (organisation match, role <> admin) makes a zero-row outcome detectable
// and it is surfaced as ErrPartialDeletion.
func (s *Service) Delete(ctx context.Context, caller auth.Principal, targetUID string) error {
	if !caller.IsAdmin() {
		return auth.ErrForbidden
	}
	if targetUID == caller.UID {
		return ErrSelfTarget
	}

	if err := s.provider.DeleteIdentity(ctx, targetUID); err != nil {
		return err
	}

	n, err := s.store.DeleteUserScoped(ctx, targetUID, caller.Org)
	if err != nil {
		return fmt.Errorf("%w: local delete failed: %v", ErrPartialDeletion, err)
	}
	if n == 0 {
		return ErrPartialDeletion
	}
	return nil
}

// ChangeRole updates a non-admin identity's role inside the caller's
// organisation and resynchronizes the provider claims before revoking
// every outstanding credential for the identity, provider-side and local.
// The whole transition is serialized with logins for the same identity.
func (s *Service) ChangeRole(ctx context.Context, caller auth.Principal, targetUID, role string) (*models.User, error) {
	if !caller.IsAdmin() {
		return nil, auth.ErrForbidden
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if targetUID == caller.UID {
		return nil, ErrSelfTarget
	}

	unlock := s.issuer.Locks().Lock(targetUID)
	defer unlock()

	user, err := s.store.UpdateUserRole(ctx, targetUID, caller.Org, role)
	if err != nil {
		return nil, err
	}

	claims := identity.Claims{Role: user.Role, Org: user.Organisation}
	if err := s.provider.SetClaims(ctx, targetUID, claims); err != nil {
		return nil, fmt.Errorf("sync claims after role change: %w", err)
	}
	if err := s.provider.RevokeTokens(ctx, targetUID); err != nil {
		return nil, fmt.Errorf("revoke provider tokens after role change: %w", err)
	}
	if err := s.issuer.RevokeSessions(targetUID); err != nil {
		log.Printf("WARN session revocation horizon update failed for %s: %v", targetUID, err)
	}

	return user, nil
}

func (s *Service) List(ctx context.Context, caller auth.Principal) ([]models.User, error) {
	if !caller.IsAdmin() {
		return nil, auth.ErrForbidden
	}
	return s.store.ListUsersByCreator(ctx, caller.UID)
}

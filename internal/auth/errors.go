package auth

import "errors"

var (
	// ErrMissingCredential means no bearer token was presented.
	ErrMissingCredential = errors.New("authorization token missing")
	// ErrInvalidCredential means the token failed signature, expiry or
	// revocation checks. Distinct from ErrUnregisteredIdentity: the latter
	// authenticated upstream but has no local tenant record.
	ErrInvalidCredential    = errors.New("invalid credential")
	ErrUnregisteredIdentity = errors.New("identity not registered")
	ErrForbidden            = errors.New("forbidden")
)

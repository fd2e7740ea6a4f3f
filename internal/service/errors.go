package service

import (
	"errors"

	"github.com/ccdh/authservice/internal/tokens"
)

// The error taxonomy surfaced to callers. Anything outside this list is
// an internal error and maps to a 500 without detail. Rate-limit and
// privilege failures never reach the service layer; the middleware
// rejects those requests itself.
var (
	// ErrInvalidCredentials covers unknown email, wrong password and
	// inactive account alike. The split reason goes into the audit
	// details only, never to the caller.
	ErrInvalidCredentials = errors.New("incorrect email or password")

	ErrInvalidToken = tokens.ErrInvalidToken
	ErrExpiredToken = tokens.ErrExpiredToken

	ErrUserInactive = errors.New("user inactive")

	ErrDuplicateIdentity   = errors.New("email or username already registered")
	ErrRegistrationDecided = errors.New("registration request already decided")
	ErrRegistrationExpired = errors.New("registration request expired")

	ErrNotFound = errors.New("not found")
)

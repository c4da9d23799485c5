package market

import "errors"

// Error taxonomy. Request-time errors are recovered at the HTTP boundary and
// mapped to status codes; ErrIntegrity is reported and alerted, never shown
// to callers as a normal failure.
var (
	ErrValidation   = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("authorization expired")
	ErrAlreadyUsed  = errors.New("authorization already used")
	ErrInvalidState = errors.New("invalid state")
	ErrIntegrity    = errors.New("integrity violation")
	ErrUpstream     = errors.New("upstream failure")
)

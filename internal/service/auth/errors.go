package auth

import "errors"

// Token validation failures. Anything else returned by ValidateToken is an
// internal error.
var (
	ErrInvalidToken     = errors.New("invalid authentication token")
	ErrExpiredToken     = errors.New("authentication token has expired")
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")
	ErrWrongTokenType   = errors.New("wrong token type")

	// ErrMissingToken is returned by callers that found no bearer token.
	ErrMissingToken = errors.New("authentication token is missing")
)

// Package common defines sentinel errors and small helpers shared by the
// repositories, services and the HTTP layer of Gatekeeper. Callers should
// match errors with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// Auth errors. Their messages are what the client sees, so they must not
	// reveal which part of a credential was wrong.
	ErrorInvalidCredentials  = errors.New("invalid email or password")
	ErrorInvalidRefreshToken = errors.New("invalid refresh token")
	ErrorInvalidPassword     = errors.New("current password is incorrect")
)

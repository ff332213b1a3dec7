package services

import "errors"

var (
	// ErrValidation marks user-correctable input problems.
	ErrValidation = errors.New("invalid input")

	// ErrInvalidCredentials is returned for any login failure: unknown
	// handle and wrong password are deliberately indistinguishable so
	// callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for any refresh failure past the
	// presence check: malformed, expired, unknown user, and reused
	// tokens all collapse into it so callers cannot probe session state.
	ErrInvalidToken = errors.New("invalid token")
)

package auth

import "errors"

var (
	// Credential errors. ErrInvalidCredentials never says which field was wrong.
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token errors.
	ErrMissingToken  = errors.New("missing token")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenNotFound = errors.New("token not found")

	// User management errors.
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrAdminProtected    = errors.New("admin account cannot be modified here")
	ErrInvalidInput      = errors.New("invalid input")

	// Second factor errors.
	ErrTwoFactorRequired = errors.New("2FA code required")
	ErrInvalidTwoFactor  = errors.New("invalid 2FA code")

	// Boundary errors: the cause is logged, callers only see these.
	ErrPersistence = errors.New("persistence failure")
	ErrInternal    = errors.New("internal error")
)

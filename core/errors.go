package core

import "errors"

var (
	// ErrProviderUnavailable is returned when the NDI provider cannot be reached
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrInvalidProviderResponse is returned when the provider response lacks a usable reference
	ErrInvalidProviderResponse = errors.New("invalid identity provider response")

	// ErrChannelClosed is returned when operating on a closed event channel
	ErrChannelClosed = errors.New("event channel closed")

	// ErrRegistrationBlocked is returned while the registration guard is engaged
	ErrRegistrationBlocked = errors.New("registration is temporarily disabled during authentication")

	// ErrUserExists is returned when registering a duplicate email or username
	ErrUserExists = errors.New("user with this email or username already exists")

	// ErrInvalidRegistration is returned when registration input fails validation
	ErrInvalidRegistration = errors.New("invalid registration data")

	// ErrOutcomeNotValidated is returned when binding is attempted on a failed outcome
	ErrOutcomeNotValidated = errors.New("verification outcome not validated")

	// ErrFlowTerminal is returned when transitioning a finished flow
	ErrFlowTerminal = errors.New("verification flow already finished")

	// ErrTokenExpired is returned when a token has expired
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalidated is returned when a token has been revoked
	ErrTokenInvalidated = errors.New("token has been invalidated")

	// ErrInvalidToken is returned when a token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotFound is returned when a stored record does not exist
	ErrNotFound = errors.New("not found")
)

package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	RefreshID string `json:"rid"` // ID of the refresh token
}

// RefreshClaims combines standard claims with the owning session ID
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

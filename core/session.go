package core

import (
	"encoding/json"
	"time"
)

// User is the identity record created through NDI registration.
type User struct {
	ID                  string
	Username            string
	Email               string
	FullName            string
	NDIVerified         bool            // true only when the proof sentinel passed
	VerificationPayload json.RawMessage // raw proof evidence the account was created from
	VerifiedAt          time.Time
	CreatedAt           time.Time
}

// Session represents an authenticated user session.
type Session struct {
	ID            string    // Unique session identifier
	UserID        string    // Owner of the session
	IssuedAt      time.Time // When the session was created
	AccessExpiry  time.Time // When the access capability expires
	RefreshExpiry time.Time // When the refresh capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// Credentials are the persisted client-side session credentials. Both tokens
// are written together or not at all.
type Credentials struct {
	SessionID    string
	UserID       string
	AccessToken  string
	RefreshToken string
}

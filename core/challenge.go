package core

import "time"

// Challenge represents one proof challenge issued by the NDI provider.
// It lives for exactly one verification attempt and is discarded on retry.
type Challenge struct {
	Reference string    // Proof request URL presented to the user's wallet
	ThreadID  string    // Correlation token scoping the event stream
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the provider stops accepting the proof
}

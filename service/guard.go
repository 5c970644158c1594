package service

import "sync/atomic"

// RegistrationGuard prevents an authentication attempt from ever silently
// triggering account creation. It is owned by the service wiring for one
// authenticate scope, not a package global, so concurrent attempts in other
// scopes cannot observe each other's flag.
type RegistrationGuard struct {
	suppressed atomic.Bool
}

// NewRegistrationGuard creates a disengaged guard.
func NewRegistrationGuard() *RegistrationGuard {
	return &RegistrationGuard{}
}

// During runs fn with registration suppressed. The flag is cleared on every
// exit path, including panic, so shared error handling after a failed
// authentication can never fall through into account creation.
func (g *RegistrationGuard) During(fn func() error) error {
	g.suppressed.Store(true)
	defer g.suppressed.Store(false)
	return fn()
}

// Engaged reports whether an authenticate attempt is in progress.
func (g *RegistrationGuard) Engaged() bool {
	return g.suppressed.Load()
}

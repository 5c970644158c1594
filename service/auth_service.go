package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/formbt/ndi-gateway/core"
	"github.com/formbt/ndi-gateway/ports"
)

// AuthService handles session token validation, rotation and revocation.
type AuthService struct {
	tokenizer   ports.Tokenizer
	revocations ports.RevocationStore
	users       ports.UserStore
	binder      *SessionBinder
	guard       *RegistrationGuard
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	tokenizer ports.Tokenizer,
	revocations ports.RevocationStore,
	users ports.UserStore,
	binder *SessionBinder,
	guard *RegistrationGuard,
) *AuthService {
	return &AuthService{
		tokenizer:   tokenizer,
		revocations: revocations,
		users:       users,
		binder:      binder,
		guard:       guard,
	}
}

// Authenticate runs fn as one authenticate attempt. Registration is refused
// for the attempt's full duration and re-enabled on every exit path,
// including panic.
func (s *AuthService) Authenticate(fn func() error) error {
	return s.guard.During(fn)
}

// Refresh rotates the refresh token: the old token is revoked for its
// remaining lifetime and a fresh bound session is issued.
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (BoundSession, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return BoundSession{}, fmt.Errorf("invalid refresh token: %w", err)
	}

	if time.Now().After(session.RefreshExpiry) {
		return BoundSession{}, core.ErrTokenExpired
	}

	invalidated, err := s.revocations.IsInvalidated(ctx, session.RefreshID)
	if err != nil {
		return BoundSession{}, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return BoundSession{}, core.ErrTokenInvalidated
	}

	// Revoke the old refresh token for the time it would otherwise remain valid
	remaining := time.Until(session.RefreshExpiry)
	if err := s.revocations.Invalidate(ctx, session.RefreshID, remaining); err != nil {
		return BoundSession{}, fmt.Errorf("failed to invalidate old token: %w", err)
	}

	// The superseded session's stored credentials are dead weight now
	if err := s.binder.Unbind(ctx, session.ID); err != nil {
		log.Printf("auth: failed to clear superseded session %s: %v", session.ID, err)
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return BoundSession{}, fmt.Errorf("failed to load user for refresh: %w", err)
	}

	return s.binder.Login(ctx, user)
}

// Logout revokes a refresh token and clears the bound session.
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	// Even an expired token gets a revocation record. The minimum one hour
	// TTL covers clock skew between instances.
	remaining := time.Until(session.RefreshExpiry)
	if remaining < time.Hour {
		remaining = time.Hour
	}

	if err := s.revocations.Invalidate(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	if err := s.binder.Unbind(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to clear session credentials: %w", err)
	}

	return nil
}

// ValidateAccessToken checks an access token's signature, expiry and the
// revocation state of its owning refresh token.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if time.Now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Revoking a refresh token kills its access tokens too
	if session.RefreshID != "" {
		invalidated, err := s.revocations.IsInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

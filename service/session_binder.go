package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formbt/ndi-gateway/core"
	"github.com/formbt/ndi-gateway/ports"
)

// BoundSession is the result of binding a login: the authenticated user
// together with the issued credential pair.
type BoundSession struct {
	User         core.User
	Session      *core.Session
	AccessToken  string
	RefreshToken string
}

// SessionBinder is the single writer of persisted session credentials.
// Everything that turns a user into a live session goes through it.
type SessionBinder struct {
	tokenizer    ports.Tokenizer
	credentials  ports.CredentialStore
	registration *RegistrationService

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewSessionBinder creates a session binder with the default token lifetimes.
func NewSessionBinder(tokenizer ports.Tokenizer, credentials ports.CredentialStore, registration *RegistrationService) *SessionBinder {
	return &SessionBinder{
		tokenizer:    tokenizer,
		credentials:  credentials,
		registration: registration,
		accessTTL:    5 * time.Minute,
		refreshTTL:   5 * 24 * time.Hour, // 5 days
	}
}

// Issue mints a fresh session and its access/refresh token pair for a user.
// Nothing is persisted until BindLogin.
func (b *SessionBinder) Issue(user core.User) (*core.Session, string, string, error) {
	now := time.Now()
	session := &core.Session{
		ID:            uuid.New().String(),
		UserID:        user.ID,
		IssuedAt:      now,
		AccessExpiry:  now.Add(b.accessTTL),
		RefreshExpiry: now.Add(b.refreshTTL),
		RefreshID:     uuid.New().String(),
	}

	accessToken, err := b.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := b.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to create refresh token: %w", err)
	}

	return session, accessToken, refreshToken, nil
}

// BindLogin persists the credential pair for a session. The underlying store
// write is atomic, and repeating the call with the same pair leaves the same
// state, so a retried bind is harmless.
func (b *SessionBinder) BindLogin(ctx context.Context, session *core.Session, accessToken, refreshToken string) error {
	creds := core.Credentials{
		SessionID:    session.ID,
		UserID:       session.UserID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if err := b.credentials.Save(ctx, creds); err != nil {
		return fmt.Errorf("failed to persist session credentials: %w", err)
	}
	return nil
}

// Login issues a session for the user and binds it in one step.
func (b *SessionBinder) Login(ctx context.Context, user core.User) (BoundSession, error) {
	session, accessToken, refreshToken, err := b.Issue(user)
	if err != nil {
		return BoundSession{}, err
	}
	if err := b.BindLogin(ctx, session, accessToken, refreshToken); err != nil {
		return BoundSession{}, err
	}
	return BoundSession{
		User:         user,
		Session:      session,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// BindRegistration creates an account from verified identity attributes and
// logs the new user in. The username is derived from the full name and a
// provider-domain email is filled in when the proof carried none.
func (b *SessionBinder) BindRegistration(ctx context.Context, attrs core.IdentityAttributes, payload []byte) (BoundSession, error) {
	username := GenerateUsername(attrs.FullName)
	email := attrs.Email
	if email == "" {
		email = PlaceholderEmail(username)
	}

	user, err := b.registration.Register(ctx, RegistrationRequest{
		FullName:            attrs.FullName,
		Email:               email,
		Username:            username,
		VerificationPayload: payload,
	})
	if err != nil {
		return BoundSession{}, err
	}

	return b.Login(ctx, user)
}

// Unbind removes the persisted credentials for a session.
func (b *SessionBinder) Unbind(ctx context.Context, sessionID string) error {
	return b.credentials.Clear(ctx, sessionID)
}

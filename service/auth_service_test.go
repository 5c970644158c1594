package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbt/ndi-gateway/adapters/store"
	"github.com/formbt/ndi-gateway/adapters/tokenizer"
	"github.com/formbt/ndi-gateway/core"
)

type authFixture struct {
	auth   *AuthService
	binder *SessionBinder
	store  *store.MemoryStore
	guard  *RegistrationGuard
	user   core.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	tok := tokenizer.NewJWTTokenizer(key)
	guard := NewRegistrationGuard()
	registration := NewRegistrationService(mem, guard)
	binder := NewSessionBinder(tok, mem, registration)
	auth := NewAuthService(tok, mem, mem, binder, guard)

	user := core.User{ID: "user-1", Username: "dorji_sonam", Email: "dorji@example.bt", FullName: "Dorji Sonam"}
	require.NoError(t, mem.Create(context.Background(), user))

	return &authFixture{auth: auth, binder: binder, store: mem, guard: guard, user: user}
}

func TestLoginBindsAndValidates(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	bound, err := f.binder.Login(ctx, f.user)
	require.NoError(t, err)
	require.NotNil(t, bound.Session)
	assert.NotEmpty(t, bound.AccessToken)
	assert.NotEmpty(t, bound.RefreshToken)

	session, err := f.auth.ValidateAccessToken(ctx, bound.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, session.UserID)
	assert.Equal(t, bound.Session.ID, session.ID)

	// Both credentials landed in the store together
	creds, err := f.store.Load(ctx, bound.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, bound.AccessToken, creds.AccessToken)
	assert.Equal(t, bound.RefreshToken, creds.RefreshToken)
}

func TestBindLoginIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	bound, err := f.binder.Login(ctx, f.user)
	require.NoError(t, err)

	require.NoError(t, f.binder.BindLogin(ctx, bound.Session, bound.AccessToken, bound.RefreshToken))
	require.NoError(t, f.binder.BindLogin(ctx, bound.Session, bound.AccessToken, bound.RefreshToken))

	creds, err := f.store.Load(ctx, bound.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, bound.RefreshToken, creds.RefreshToken)
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	bound, err := f.binder.Login(ctx, f.user)
	require.NoError(t, err)

	rotated, err := f.auth.Refresh(ctx, bound.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, bound.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, f.user.ID, rotated.User.ID)

	// The superseded refresh token is dead
	_, err = f.auth.Refresh(ctx, bound.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	// And so are access tokens minted against it
	_, err = f.auth.ValidateAccessToken(ctx, bound.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	// The rotated pair still works
	_, err = f.auth.ValidateAccessToken(ctx, rotated.AccessToken)
	require.NoError(t, err)
}

func TestLogoutRevokesAndClearsSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	bound, err := f.binder.Login(ctx, f.user)
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, bound.RefreshToken))

	_, err = f.auth.ValidateAccessToken(ctx, bound.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	_, err = f.auth.Refresh(ctx, bound.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	_, err = f.store.Load(ctx, bound.Session.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.auth.Refresh(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestAuthenticateScopesTheGuard(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	registration := NewRegistrationService(f.store, f.guard)

	err := f.auth.Authenticate(func() error {
		_, err := registration.Register(ctx, RegistrationRequest{
			FullName: "Pema Lhamo",
			Email:    "pema@example.bt",
			Username: "pema_lhamo",
		})
		return err
	})
	assert.ErrorIs(t, err, core.ErrRegistrationBlocked)

	_, err = registration.Register(ctx, RegistrationRequest{
		FullName: "Pema Lhamo",
		Email:    "pema@example.bt",
		Username: "pema_lhamo",
	})
	require.NoError(t, err)
}

package ports

import (
	"context"
	"time"

	"github.com/formbt/ndi-gateway/core"
)

// RevocationStore tracks invalidated refresh token IDs
type RevocationStore interface {
	Invalidate(ctx context.Context, tokenID string, ttl time.Duration) error
	IsInvalidated(ctx context.Context, tokenID string) (bool, error)
}

// CredentialStore persists session credentials. Save must be atomic: either
// both tokens are stored or neither is.
type CredentialStore interface {
	Save(ctx context.Context, creds core.Credentials) error
	Load(ctx context.Context, sessionID string) (core.Credentials, error)
	Clear(ctx context.Context, sessionID string) error
}

// ProofStore keeps the latest webhook payload per thread for legacy polling
type ProofStore interface {
	SaveLatest(ctx context.Context, threadID string, payload []byte, ttl time.Duration) error
	Latest(ctx context.Context, threadID string) ([]byte, error)
}

// UserStore persists identity records created through registration
type UserStore interface {
	Create(ctx context.Context, user core.User) error
	FindByID(ctx context.Context, id string) (core.User, error)
	Exists(ctx context.Context, email, username string) (bool, error)
}

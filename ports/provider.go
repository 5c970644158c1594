package ports

import (
	"context"

	"github.com/formbt/ndi-gateway/core"
)

// ProofIssuer requests proof challenges from the identity provider.
// Issue performs no internal retries; retry policy belongs to the caller.
type ProofIssuer interface {
	Issue(ctx context.Context) (core.Challenge, error)
	Status(ctx context.Context, threadID string) ([]byte, error)
}

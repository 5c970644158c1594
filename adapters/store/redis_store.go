package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/formbt/ndi-gateway/core"
)

// proofTTL bounds how long the latest webhook payload is kept for the
// legacy polling endpoint.
const proofTTL = 30 * time.Minute

// RedisStore backs every gateway store on a shared Redis client.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "ndi:",
	}
}

// Invalidate marks a refresh token ID as revoked until its natural expiry.
func (s *RedisStore) Invalidate(ctx context.Context, tokenID string, ttl time.Duration) error {
	key := s.prefix + "revoked:" + tokenID
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// IsInvalidated checks whether a refresh token ID has been revoked.
func (s *RedisStore) IsInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + "revoked:" + tokenID
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	return val > 0, nil
}

// Save persists session credentials. Both tokens go through one MULTI/EXEC
// pipeline so a failure leaves neither stored.
func (s *RedisStore) Save(ctx context.Context, creds core.Credentials) error {
	key := s.prefix + "creds:" + creds.SessionID

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", creds.UserID,
			"access_token", creds.AccessToken,
			"refresh_token", creds.RefreshToken,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Load retrieves session credentials by session ID.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (core.Credentials, error) {
	key := s.prefix + "creds:" + sessionID
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return core.Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if len(fields) == 0 {
		return core.Credentials{}, core.ErrNotFound
	}
	return core.Credentials{
		SessionID:    sessionID,
		UserID:       fields["user_id"],
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
	}, nil
}

// Clear removes session credentials, e.g. on logout.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	key := s.prefix + "creds:" + sessionID
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// SaveLatest keeps the most recent webhook payload for a thread.
func (s *RedisStore) SaveLatest(ctx context.Context, threadID string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = proofTTL
	}
	key := s.prefix + "proof:" + threadID
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save proof: %w", err)
	}
	return nil
}

// Latest returns the most recent webhook payload for a thread.
func (s *RedisStore) Latest(ctx context.Context, threadID string) ([]byte, error) {
	key := s.prefix + "proof:" + threadID
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proof: %w", err)
	}
	return val, nil
}

// Create stores a new user, claiming the email and username first so a
// duplicate registration fails before any record is written.
func (s *RedisStore) Create(ctx context.Context, user core.User) error {
	emailKey := s.prefix + "user:email:" + strings.ToLower(user.Email)
	nameKey := s.prefix + "user:name:" + strings.ToLower(user.Username)

	ok, err := s.client.SetNX(ctx, emailKey, user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim email: %w", err)
	}
	if !ok {
		return core.ErrUserExists
	}

	ok, err = s.client.SetNX(ctx, nameKey, user.ID, 0).Result()
	if err != nil || !ok {
		// Release the email claim so a corrected retry can succeed.
		s.client.Del(ctx, emailKey)
		if err != nil {
			return fmt.Errorf("failed to claim username: %w", err)
		}
		return core.ErrUserExists
	}

	record, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+"user:"+user.ID, record, 0).Err(); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// FindByID loads a user record.
func (s *RedisStore) FindByID(ctx context.Context, id string) (core.User, error) {
	val, err := s.client.Get(ctx, s.prefix+"user:"+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("failed to load user: %w", err)
	}

	var user core.User
	if err := json.Unmarshal(val, &user); err != nil {
		return core.User{}, fmt.Errorf("failed to decode user: %w", err)
	}
	return user, nil
}

// Exists reports whether the email or username is already taken.
func (s *RedisStore) Exists(ctx context.Context, email, username string) (bool, error) {
	n, err := s.client.Exists(ctx,
		s.prefix+"user:email:"+strings.ToLower(email),
		s.prefix+"user:name:"+strings.ToLower(username),
	).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return n > 0, nil
}

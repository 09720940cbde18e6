package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenStore persists session tokens independently of the cart record, so a
// cleared cart keeps its correlation token for future sign-ins.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// Ensure returns the session token for the profile, minting and persisting
// one on first use.
func (s *TokenStore) Ensure(ctx context.Context, profileID string) (string, error) {
	key := tokenKey(profileID)

	token, err := s.client.Get(ctx, key).Result()
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("session token read failed: %w", err)
	}

	token = uuid.NewString()
	// SetNX keeps the first writer's token when two requests race.
	ok, err := s.client.SetNX(ctx, key, token, 0).Result()
	if err != nil {
		return "", fmt.Errorf("session token write failed: %w", err)
	}
	if !ok {
		if token, err = s.client.Get(ctx, key).Result(); err != nil {
			return "", fmt.Errorf("session token re-read failed: %w", err)
		}
	}

	return token, nil
}

func tokenKey(profileID string) string {
	return fmt.Sprintf("cartsync:session:%s", profileID)
}

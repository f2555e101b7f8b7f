package cache

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
)

const revokedKeyPrefix = "judge:revoked:"

// RedisSessionRevocationStore reads revoked-session flags written by the
// authentication service.
type RedisSessionRevocationStore struct {
	client *redis.Client
}

func NewRedisSessionRevocationStore(client *redis.Client) *RedisSessionRevocationStore {
	return &RedisSessionRevocationStore{client: client}
}

func (s *RedisSessionRevocationStore) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+sessionID.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ ports.SessionRevocationStore = (*RedisSessionRevocationStore)(nil)

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers refresh token IDs that must no longer be accepted.
// Revoke is an atomic claim: it reports true only for the call that moved the
// token from live to revoked.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) (bool, error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type noopRevocations struct{}

func (noopRevocations) Revoke(context.Context, string, time.Time) (bool, error) { return true, nil }

func (noopRevocations) IsRevoked(context.Context, string) (bool, error) { return false, nil }

const revocationKeyPrefix = "employee:refresh:revoked:"

// RedisRevocationStore keeps revoked refresh token IDs in Redis until the token
// would have expired on its own.
type RedisRevocationStore struct {
	rdb *redis.Client
}

func NewRedisRevocationStore(rdb *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{rdb: rdb}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) (bool, error) {
	ttl := time.Until(until)
	if ttl <= 0 {
		// already expired; signature validation rejects it
		return false, nil
	}
	return s.rdb.SetNX(ctx, revocationKeyPrefix+tokenID, 1, ttl).Result()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := s.rdb.Get(ctx, revocationKeyPrefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisRevocationStore_ExpiredTokenIsNoop(t *testing.T) {
	t.Parallel()

	// no server behind this address; an expired token must not touch Redis
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer rdb.Close()

	s := NewRedisRevocationStore(rdb)
	first, err := s.Revoke(context.Background(), "jti-1", time.Now().Add(-time.Minute))
	if err != nil || first {
		t.Fatalf("expected expired revocation to be skipped, got %v %v", first, err)
	}
	if _, err := s.IsRevoked(context.Background(), "jti-1"); err == nil {
		t.Fatalf("expected lookup against an unreachable server to fail closed with an error")
	}
}

func TestClaimsContext(t *testing.T) {
	t.Parallel()

	if _, ok := ClaimsFromContext(context.Background()); ok {
		t.Fatalf("expected no claims in empty context")
	}
	ctx := WithClaims(context.Background(), &Claims{RecordID: "emp-1"})
	c, ok := ClaimsFromContext(ctx)
	if !ok || c.RecordID != "emp-1" {
		t.Fatalf("unexpected claims %+v", c)
	}
}

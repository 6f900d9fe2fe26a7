package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/entity"
)

func testConfig() Config {
	return Config{
		AccessSecretKey:  "access-secret",
		AccessExpiry:     15 * time.Minute,
		RefreshSecretKey: "refresh-secret",
		RefreshExpiry:    7 * 24 * time.Hour,
		HashCost:         bcrypt.MinCost,
	}
}

func newTestGuard(t *testing.T, cfg Config) *Guard {
	t.Helper()
	g, err := NewGuard(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewGuard returned error: %v", err)
	}
	return g
}

func TestNewGuard_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing access key", func(c *Config) { c.AccessSecretKey = "" }},
		{"missing refresh key", func(c *Config) { c.RefreshSecretKey = "" }},
		{"shared key", func(c *Config) { c.RefreshSecretKey = c.AccessSecretKey }},
		{"zero access expiry", func(c *Config) { c.AccessExpiry = 0 }},
		{"negative refresh expiry", func(c *Config) { c.RefreshExpiry = -time.Second }},
		{"equal expiries", func(c *Config) { c.RefreshExpiry = c.AccessExpiry }},
		{"cost too high", func(c *Config) { c.HashCost = bcrypt.MaxCost + 1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tc.mutate(&cfg)
			if _, err := NewGuard(cfg, nil, nil); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestPrepareForPersistence_HashesModifiedSecret(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t, testConfig())
	rec := entity.Employee{ID: "emp-1", EmailAddress: "a@x.com", Secret: "pw123"}

	prepared, err := g.PrepareForPersistence(context.Background(), rec, true)
	if err != nil {
		t.Fatalf("PrepareForPersistence returned error: %v", err)
	}
	if prepared.Secret == "pw123" || prepared.Secret == "" {
		t.Fatalf("expected secret to be replaced by a hash, got %q", prepared.Secret)
	}
	if rec.Secret != "pw123" {
		t.Fatalf("input record must not be mutated")
	}
	if cost, err := bcrypt.Cost([]byte(prepared.Secret)); err != nil || cost != bcrypt.MinCost {
		t.Fatalf("unexpected cost %d (err %v)", cost, err)
	}
	if !g.Verify("pw123", &prepared) {
		t.Fatalf("expected original secret to verify")
	}
	if g.Verify("wrong", &prepared) {
		t.Fatalf("expected wrong secret to be rejected")
	}
}

func TestPrepareForPersistence_DefaultCost(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.HashCost = 0
	g := newTestGuard(t, cfg)

	prepared, err := g.PrepareForPersistence(context.Background(), entity.Employee{Secret: "pw"}, true)
	if err != nil {
		t.Fatalf("PrepareForPersistence returned error: %v", err)
	}
	if cost, _ := bcrypt.Cost([]byte(prepared.Secret)); cost != DefaultHashCost {
		t.Fatalf("expected default cost %d, got %d", DefaultHashCost, cost)
	}
}

func TestPrepareForPersistence_UntouchedSecretIsKept(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t, testConfig())
	hashed, err := g.PrepareForPersistence(context.Background(), entity.Employee{Secret: "pw"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	again, err := g.PrepareForPersistence(context.Background(), hashed, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Secret != hashed.Secret {
		t.Fatalf("expected hash to stay byte-for-byte identical")
	}
}

func TestPrepareForPersistence_HashFailure(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t, testConfig())
	// bcrypt refuses inputs longer than 72 bytes
	_, err := g.PrepareForPersistence(context.Background(), entity.Employee{Secret: strings.Repeat("x", 73)}, true)
	if !errors.Is(err, ErrCredentialProcessing) {
		t.Fatalf("expected ErrCredentialProcessing, got %v", err)
	}
	var cpe *CredentialProcessingError
	if !errors.As(err, &cpe) {
		t.Fatalf("expected *CredentialProcessingError, got %T", err)
	}
}

func TestPrepareForPersistence_CancelledContext(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.PrepareForPersistence(ctx, entity.Employee{Secret: "pw"}, true)
	if !errors.Is(err, ErrCredentialProcessing) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled credential processing error, got %v", err)
	}
}

func TestIssueTokens_SameClaimsSeparateKeys(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t, testConfig())
	rec := &entity.Employee{ID: "emp-1", EmailAddress: "a@x.com"}

	access, err := g.IssueAccessToken(rec)
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}
	refresh, err := g.IssueRefreshToken(rec)
	if err != nil {
		t.Fatalf("IssueRefreshToken returned error: %v", err)
	}

	for _, tok := range []string{access, refresh} {
		if parts := strings.Split(tok, "."); len(parts) != 3 {
			t.Fatalf("expected compact JWS with 3 segments, got %d", len(parts))
		}
	}
	if strings.Split(access, ".")[2] == strings.Split(refresh, ".")[2] {
		t.Fatalf("expected different signatures")
	}

	accessClaims, err := g.ParseAccessToken(access)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	refreshClaims, err := g.ParseRefreshToken(context.Background(), refresh)
	if err != nil {
		t.Fatalf("ParseRefreshToken returned error: %v", err)
	}

	if accessClaims.RecordID != refreshClaims.RecordID || accessClaims.EmailAddress != refreshClaims.EmailAddress {
		t.Fatalf("claims differ: %+v vs %+v", accessClaims, refreshClaims)
	}
	if accessClaims.RecordID != "emp-1" || accessClaims.EmailAddress != "a@x.com" {
		t.Fatalf("unexpected claims %+v", accessClaims)
	}
	if !accessClaims.ExpiresAt.Before(refreshClaims.ExpiresAt.Time) {
		t.Fatalf("expected access token to expire before refresh token")
	}

	if _, err := g.ParseAccessToken(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not verify with the access key, got %v", err)
	}
	if _, err := g.ParseRefreshToken(context.Background(), access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not verify with the refresh key, got %v", err)
	}
}

func TestAccessToken_Expires(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AccessExpiry = time.Second
	g := newTestGuard(t, cfg)

	issuedAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return issuedAt }

	tok, err := g.IssueAccessToken(&entity.Employee{ID: "emp-1", EmailAddress: "a@x.com"})
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	g.now = func() time.Time { return issuedAt.Add(500 * time.Millisecond) }
	if _, err := g.ParseAccessToken(tok); err != nil {
		t.Fatalf("expected token to be valid before expiry, got %v", err)
	}

	g.now = func() time.Time { return issuedAt.Add(2 * time.Second) }
	if _, err := g.ParseAccessToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestIssueToken_MissingKey(t *testing.T) {
	t.Parallel()

	// bypasses NewGuard to simulate a guard built without validation
	g := &Guard{cfg: Config{AccessExpiry: time.Minute}, hasher: BcryptHasher{Cost: bcrypt.MinCost}, revocations: noopRevocations{}, now: time.Now}

	tok, err := g.IssueAccessToken(&entity.Employee{ID: "emp-1"})
	if tok != "" {
		t.Fatalf("expected no token, got %q", tok)
	}
	if !errors.Is(err, ErrTokenIssuance) || !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected token issuance error for missing key, got %v", err)
	}
	var tie *TokenIssuanceError
	if !errors.As(err, &tie) || tie.Kind != TokenAccess {
		t.Fatalf("expected *TokenIssuanceError for access token, got %v", err)
	}
}

func TestIssueToken_RequiresRecordID(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t, testConfig())
	if _, err := g.IssueRefreshToken(&entity.Employee{EmailAddress: "a@x.com"}); !errors.Is(err, ErrTokenIssuance) {
		t.Fatalf("expected ErrTokenIssuance, got %v", err)
	}
}

type memoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func (m *memoryRevocations) Revoke(_ context.Context, id string, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revoked[id]; ok {
		return false, nil
	}
	m.revoked[id] = until
	return true, nil
}

func (m *memoryRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[id]
	return ok, nil
}

func TestRevokeRefreshToken(t *testing.T) {
	t.Parallel()

	store := &memoryRevocations{revoked: map[string]time.Time{}}
	g, err := NewGuard(testConfig(), nil, store)
	if err != nil {
		t.Fatalf("NewGuard returned error: %v", err)
	}

	tok, err := g.IssueRefreshToken(&entity.Employee{ID: "emp-1", EmailAddress: "a@x.com"})
	if err != nil {
		t.Fatalf("IssueRefreshToken returned error: %v", err)
	}
	claims, err := g.ParseRefreshToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("ParseRefreshToken returned error: %v", err)
	}
	if err := g.RevokeRefreshToken(context.Background(), claims); err != nil {
		t.Fatalf("RevokeRefreshToken returned error: %v", err)
	}
	if until := store.revoked[claims.ID]; !until.Equal(claims.ExpiresAt.Time) {
		t.Fatalf("expected revocation to last until expiry, got %v", until)
	}
	if _, err := g.ParseRefreshToken(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
}

func TestClaimRefreshToken_OnlyFirstClaimWins(t *testing.T) {
	t.Parallel()

	g, err := NewGuard(testConfig(), nil, &memoryRevocations{revoked: map[string]time.Time{}})
	if err != nil {
		t.Fatalf("NewGuard returned error: %v", err)
	}
	tok, err := g.IssueRefreshToken(&entity.Employee{ID: "emp-1", EmailAddress: "a@x.com"})
	if err != nil {
		t.Fatalf("IssueRefreshToken returned error: %v", err)
	}
	claims, err := g.ParseRefreshToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("ParseRefreshToken returned error: %v", err)
	}

	if err := g.ClaimRefreshToken(context.Background(), claims); err != nil {
		t.Fatalf("first claim returned error: %v", err)
	}
	if err := g.ClaimRefreshToken(context.Background(), claims); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected second claim to fail with ErrInvalidToken, got %v", err)
	}
	// plain revocation stays idempotent
	if err := g.RevokeRefreshToken(context.Background(), claims); err != nil {
		t.Fatalf("RevokeRefreshToken returned error: %v", err)
	}
}

func TestBcryptHasher_NeedsRehash(t *testing.T) {
	t.Parallel()

	low := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := low.Hash("pw")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if low.NeedsRehash(hash) {
		t.Fatalf("hash at configured cost must not need rehash")
	}
	if !(BcryptHasher{Cost: bcrypt.MinCost + 1}).NeedsRehash(hash) {
		t.Fatalf("hash at lower cost must need rehash")
	}
	if low.NeedsRehash("not-a-hash") {
		t.Fatalf("unparseable hash must not report rehash")
	}
}

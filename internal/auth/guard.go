package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/entity"
)

// TokenKind distinguishes access from refresh tokens inside the claim set.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Config is the explicit credential configuration, validated once at startup.
type Config struct {
	AccessSecretKey  string
	AccessExpiry     time.Duration
	RefreshSecretKey string
	RefreshExpiry    time.Duration
	HashCost         int
}

// Validate checks that both signing keys and expiries are present and independent.
func (c Config) Validate() error {
	if c.AccessSecretKey == "" {
		return fmt.Errorf("%w: access secret key is required", ErrInvalidConfig)
	}
	if c.RefreshSecretKey == "" {
		return fmt.Errorf("%w: refresh secret key is required", ErrInvalidConfig)
	}
	if c.AccessSecretKey == c.RefreshSecretKey {
		return fmt.Errorf("%w: access and refresh secret keys must differ", ErrInvalidConfig)
	}
	if c.AccessExpiry <= 0 {
		return fmt.Errorf("%w: access expiry must be positive", ErrInvalidConfig)
	}
	if c.RefreshExpiry <= 0 {
		return fmt.Errorf("%w: refresh expiry must be positive", ErrInvalidConfig)
	}
	if c.AccessExpiry == c.RefreshExpiry {
		return fmt.Errorf("%w: access and refresh expiries must differ", ErrInvalidConfig)
	}
	if c.HashCost != 0 && (c.HashCost < bcrypt.MinCost || c.HashCost > bcrypt.MaxCost) {
		return fmt.Errorf("%w: hash cost %d outside [%d,%d]", ErrInvalidConfig, c.HashCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

// Claims is the signed identity assertion carried by both token kinds.
type Claims struct {
	RecordID     string    `json:"recordId"`
	EmailAddress string    `json:"emailAddress"`
	TokenUse     TokenKind `json:"tokenUse"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login and refresh flows.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Guard protects the stored secret and mints signed tokens.
type Guard struct {
	cfg         Config
	hasher      Hasher
	revocations RevocationStore
	now         func() time.Time
}

// NewGuard validates cfg eagerly. A nil hasher defaults to bcrypt at cfg.HashCost,
// a nil revocation store accepts every unexpired refresh token.
func NewGuard(cfg Config, hasher Hasher, revocations RevocationStore) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = DefaultHashCost
	}
	if hasher == nil {
		hasher = BcryptHasher{Cost: cfg.HashCost}
	}
	if revocations == nil {
		revocations = noopRevocations{}
	}
	return &Guard{cfg: cfg, hasher: hasher, revocations: revocations, now: time.Now}, nil
}

// PrepareForPersistence is the pre-write hook. It must run once, right before the
// record is committed. When the secret was not modified the record is returned
// untouched so an existing hash is never re-hashed.
func (g *Guard) PrepareForPersistence(ctx context.Context, rec entity.Employee, secretModified bool) (entity.Employee, error) {
	if !secretModified {
		return rec, nil
	}
	if err := ctx.Err(); err != nil {
		return entity.Employee{}, &CredentialProcessingError{Err: err}
	}
	if rec.Secret == "" {
		return entity.Employee{}, &CredentialProcessingError{Err: errors.New("empty secret")}
	}
	hash, err := g.hasher.Hash(rec.Secret)
	if err != nil {
		return entity.Employee{}, &CredentialProcessingError{Err: err}
	}
	// the caller may have given up while bcrypt was running
	if err := ctx.Err(); err != nil {
		return entity.Employee{}, &CredentialProcessingError{Err: err}
	}
	rec.Secret = hash
	return rec, nil
}

// Verify reports whether presented matches the stored hash of rec.
func (g *Guard) Verify(presented string, rec *entity.Employee) bool {
	if rec == nil || rec.Secret == "" {
		return false
	}
	return g.hasher.Compare(rec.Secret, presented)
}

// NeedsRehash reports whether the stored hash predates the configured cost.
func (g *Guard) NeedsRehash(rec *entity.Employee) bool {
	if rec == nil || rec.Secret == "" {
		return false
	}
	return g.hasher.NeedsRehash(rec.Secret)
}

// IssueAccessToken signs a short-lived token with the access key.
func (g *Guard) IssueAccessToken(rec *entity.Employee) (string, error) {
	tok, _, err := g.issue(rec, TokenAccess, g.cfg.AccessSecretKey, g.cfg.AccessExpiry)
	return tok, err
}

// IssueRefreshToken signs a long-lived token with the refresh key.
func (g *Guard) IssueRefreshToken(rec *entity.Employee) (string, error) {
	tok, _, err := g.issue(rec, TokenRefresh, g.cfg.RefreshSecretKey, g.cfg.RefreshExpiry)
	return tok, err
}

// IssueTokenPair issues both tokens; either both are returned or neither.
func (g *Guard) IssueTokenPair(rec *entity.Employee) (*TokenPair, error) {
	access, accessExp, err := g.issue(rec, TokenAccess, g.cfg.AccessSecretKey, g.cfg.AccessExpiry)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := g.issue(rec, TokenRefresh, g.cfg.RefreshSecretKey, g.cfg.RefreshExpiry)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (g *Guard) issue(rec *entity.Employee, kind TokenKind, key string, ttl time.Duration) (string, time.Time, error) {
	if rec == nil || rec.ID == "" {
		return "", time.Time{}, &TokenIssuanceError{Kind: kind, Err: errors.New("record has no identifier")}
	}
	if key == "" {
		return "", time.Time{}, &TokenIssuanceError{Kind: kind, Err: ErrMissingSigningKey}
	}
	if ttl <= 0 {
		return "", time.Time{}, &TokenIssuanceError{Kind: kind, Err: fmt.Errorf("%w: non-positive expiry", ErrInvalidConfig)}
	}

	now := g.now()
	exp := now.Add(ttl)
	claims := Claims{
		RecordID:     rec.ID,
		EmailAddress: rec.EmailAddress,
		TokenUse:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, &TokenIssuanceError{Kind: kind, Err: err}
	}
	return signed, exp, nil
}

// ParseAccessToken verifies an access token and returns its claims.
func (g *Guard) ParseAccessToken(token string) (*Claims, error) {
	return g.parse(token, TokenAccess, g.cfg.AccessSecretKey)
}

// ParseRefreshToken verifies a refresh token and rejects revoked ones.
func (g *Guard) ParseRefreshToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := g.parse(token, TokenRefresh, g.cfg.RefreshSecretKey)
	if err != nil {
		return nil, err
	}
	revoked, err := g.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return claims, nil
}

// RevokeRefreshToken blocks the token until it would have expired anyway.
// Revoking a token twice is not an error.
func (g *Guard) RevokeRefreshToken(ctx context.Context, claims *Claims) error {
	_, err := g.revoke(ctx, claims)
	return err
}

// ClaimRefreshToken revokes the token and fails with ErrInvalidToken unless
// this call was the one that revoked it. Rotation goes through here so a
// replayed token yields at most one new pair.
func (g *Guard) ClaimRefreshToken(ctx context.Context, claims *Claims) error {
	first, err := g.revoke(ctx, claims)
	if err != nil {
		return err
	}
	if !first {
		return fmt.Errorf("%w: already used", ErrInvalidToken)
	}
	return nil
}

func (g *Guard) revoke(ctx context.Context, claims *Claims) (bool, error) {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return false, fmt.Errorf("%w: missing token id", ErrInvalidToken)
	}
	return g.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

func (g *Guard) parse(token string, kind TokenKind, key string) (*Claims, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, ErrMissingSigningKey)
	}
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid || claims.TokenUse != kind || claims.RecordID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

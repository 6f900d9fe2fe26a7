package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt work factor used when none is configured.
const DefaultHashCost = 10

// MaxSecretBytes is the longest secret bcrypt accepts.
const MaxSecretBytes = 72

// Hasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return DefaultHashCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Compare uses bcrypt's own comparison, which is constant time over the digest.
func (b BcryptHasher) Compare(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// NeedsRehash reports whether hash was produced with a different cost than the configured one.
// Unparseable hashes are left alone; Compare will reject them anyway.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return c != b.cost()
}

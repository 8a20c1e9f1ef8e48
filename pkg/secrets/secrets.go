// Package secrets hashes learner credentials. Plaintext never leaves the
// draft request; drafts and accounts store only the bcrypt hash.
package secrets

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "brightpath/pkg/domain-errors"
)

// maxSecretBytes is bcrypt's input limit.
const maxSecretBytes = 72

type Hasher struct {
	cost int
}

// NewHasher clamps cost into bcrypt's accepted range, using DefaultCost for
// zero or out-of-range values.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(secret string) (string, error) {
	switch {
	case secret == "":
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	case len(secret) > maxSecretBytes:
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// Matches reports whether secret produced hash. A malformed hash is an
// error, a wrong secret is not.
func (h *Hasher) Matches(secret, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare secret: %w", err)
	}
}

// NeedsRehash is true when hash was produced with a different cost than h uses.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != h.cost
}

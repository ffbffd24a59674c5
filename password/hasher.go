package password

import (
	"errors"
	"fmt"
)

// Algorithm selects the hashing scheme.
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

var (
	ErrEmptySecret          = errors.New("secret must not be empty")
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
	ErrMalformedHash        = errors.New("malformed hash")
)

// Hasher hashes and verifies secrets. Implementations are safe for concurrent use.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
	// NeedsUpgrade reports whether encoded was produced with weaker parameters
	// than the hasher is configured for.
	NeedsUpgrade(encoded string) (bool, error)
}

// Config selects an algorithm and carries the parameters for each.
type Config struct {
	Algorithm  Algorithm
	Argon2     Argon2Params
	BcryptCost int
}

// New builds the Hasher named by cfg.Algorithm. An empty algorithm means argon2id.
func New(cfg Config) (Hasher, error) {
	switch cfg.Algorithm {
	case "", AlgorithmArgon2id:
		return NewArgon2(cfg.Argon2)
	case AlgorithmBcrypt:
		return NewBcrypt(cfg.BcryptCost)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}
}

package password

import (
	"errors"
	"fmt"
)

// Algorithm names a supported hashing scheme.
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

// ErrUnknownHash is returned when a stored hash matches no supported scheme.
var ErrUnknownHash = errors.New("unrecognized password hash format")

// HasherConfig selects the scheme used for new hashes. Both schemes are
// always available for verification.
type HasherConfig struct {
	Algorithm  Algorithm
	Argon2     Config
	BcryptCost int
}

// Hasher hashes with the configured scheme and verifies any supported one,
// so stores can hold a mix of argon2id and bcrypt hashes.
type Hasher struct {
	algorithm Algorithm
	argon     *Argon2
	bcrypt    *Bcrypt
}

// NewHasher builds a [Hasher]. An empty Algorithm selects argon2id and a
// zero Argon2 config selects DefaultConfig.
func NewHasher(cfg HasherConfig) (*Hasher, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmArgon2id
	}
	if cfg.Argon2 == (Config{}) {
		cfg.Argon2 = DefaultConfig()
	}

	argon, err := NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	bc, err := NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	switch cfg.Algorithm {
	case AlgorithmArgon2id, AlgorithmBcrypt:
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", cfg.Algorithm)
	}

	return &Hasher{algorithm: cfg.Algorithm, argon: argon, bcrypt: bc}, nil
}

// Algorithm returns the scheme used for new hashes.
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

func (h *Hasher) Hash(password string) (string, error) {
	if h.algorithm == AlgorithmBcrypt {
		return h.bcrypt.Hash(password)
	}
	return h.argon.Hash(password)
}

// Verify dispatches on the stored hash prefix.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case isArgon2Hash(encodedHash):
		return h.argon.Verify(password, encodedHash)
	case isBcryptHash(encodedHash):
		return h.bcrypt.Verify(password, encodedHash)
	default:
		return false, ErrUnknownHash
	}
}

// NeedsUpgrade reports true when encodedHash uses a different scheme than
// the configured one or weaker parameters of the same scheme.
func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	switch {
	case isArgon2Hash(encodedHash):
		if h.algorithm != AlgorithmArgon2id {
			return true, nil
		}
		return h.argon.NeedsUpgrade(encodedHash)
	case isBcryptHash(encodedHash):
		if h.algorithm != AlgorithmBcrypt {
			return true, nil
		}
		return h.bcrypt.NeedsUpgrade(encodedHash)
	default:
		return false, ErrUnknownHash
	}
}

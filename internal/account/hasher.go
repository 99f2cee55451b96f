// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// DefaultBcryptCost matches the cost used by accounts created before the
// argon2id migration.
const DefaultBcryptCost = 10

// Hash algorithm names accepted by NewHasher.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

const argon2Prefix = "$argon2id$"

// Upper bounds accepted when parsing a stored argon2id hash. A hash outside
// them is rejected before any key derivation runs.
const (
	maxArgon2Memory = 256 * 1024 // 256 MB
	maxArgon2Time   = 16
	maxArgon2KeyLen = 1024
)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way hash of the password.
	Hash(password string) (string, error)

	// Compare checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error
	// wrapping ErrComparison on a malformed hash.
	Compare(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be recomputed with the
	// current algorithm or parameters.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code("ACCOUNT_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("ACCOUNT_HASH_FAILED").
			With("operation", "generate salt").
			Wrapf(ErrHashing, "%v", err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Compare checks if the password matches an argon2id hash.
func (h *Argon2idHasher) Compare(password, encodedHash string) (bool, error) {
	p, err := parseArgon2id(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id or was produced
// with different parameters.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	p, err := parseArgon2id(hash)
	if err != nil {
		return true
	}
	return p.version != argon2.Version ||
		p.memory != argon2Memory ||
		p.time != argon2Time ||
		p.threads != argon2Threads ||
		len(p.key) != argon2KeyLen
}

type argon2Params struct {
	version int
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func invalidHash(format string, args ...any) error {
	return oops.Code("ACCOUNT_INVALID_HASH").Wrapf(ErrComparison, format, args...)
}

func parseArgon2id(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, invalidHash("invalid hash format")
	}
	if parts[1] != AlgorithmArgon2id {
		return nil, invalidHash("unsupported hash algorithm: %s", parts[1])
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &p.version); err != nil {
		return nil, invalidHash("version: %v", err)
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &threads); err != nil {
		return nil, invalidHash("parameters: %v", err)
	}
	// Validate threads fits in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return nil, invalidHash("threads value %d out of range", threads)
	}
	p.threads = uint8(threads)
	if p.time == 0 || p.time > maxArgon2Time {
		return nil, invalidHash("time value %d out of range", p.time)
	}
	if p.memory == 0 || p.memory > maxArgon2Memory {
		return nil, invalidHash("memory value %d out of range", p.memory)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, invalidHash("salt: %v", err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, invalidHash("key: %v", err)
	}
	if len(p.key) == 0 || len(p.key) > maxArgon2KeyLen {
		return nil, invalidHash("invalid hash key length: %d", len(p.key))
	}
	return p, nil
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. A cost outside bcrypt's accepted
// range falls back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code("ACCOUNT_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("ACCOUNT_HASH_FAILED").
			With("operation", "bcrypt generate").
			With("cost", h.cost).
			Wrapf(ErrHashing, "%v", err)
	}
	return string(hash), nil
}

// Compare checks if the password matches a bcrypt hash.
func (h *BcryptHasher) Compare(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, invalidHash("bcrypt: %v", err)
	}
}

// NeedsUpgrade returns true if the hash was produced with a lower cost.
func (h *BcryptHasher) NeedsUpgrade(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}

// MultiHasher hashes with a preferred algorithm and compares against any
// supported algorithm, selected by the hash prefix.
type MultiHasher struct {
	preferred string
	argon2id  *Argon2idHasher
	bcrypt    *BcryptHasher
}

// NewHasher creates a MultiHasher that produces hashes with the named
// algorithm. An empty algorithm defaults to argon2id.
func NewHasher(algorithm string, bcryptCost int) (*MultiHasher, error) {
	switch algorithm {
	case "":
		algorithm = AlgorithmArgon2id
	case AlgorithmArgon2id, AlgorithmBcrypt:
	default:
		return nil, oops.Code("ACCOUNT_UNKNOWN_HASHER").
			With("algorithm", algorithm).
			Errorf("unsupported password hash algorithm %q", algorithm)
	}
	return &MultiHasher{
		preferred: algorithm,
		argon2id:  NewArgon2idHasher(),
		bcrypt:    NewBcryptHasher(bcryptCost),
	}, nil
}

// Hash produces a hash with the preferred algorithm.
func (h *MultiHasher) Hash(password string) (string, error) {
	if h.preferred == AlgorithmBcrypt {
		return h.bcrypt.Hash(password)
	}
	return h.argon2id.Hash(password)
}

// Compare checks the password against a hash of any supported algorithm.
func (h *MultiHasher) Compare(password, hash string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, argon2Prefix):
		return h.argon2id.Compare(password, hash)
	case isBcryptHash(hash):
		return h.bcrypt.Compare(password, hash)
	default:
		return false, invalidHash("unrecognized hash format")
	}
}

// NeedsUpgrade returns true if the hash was not produced by the preferred
// algorithm with current parameters.
func (h *MultiHasher) NeedsUpgrade(hash string) bool {
	if h.preferred == AlgorithmBcrypt {
		return !isBcryptHash(hash) || h.bcrypt.NeedsUpgrade(hash)
	}
	return h.argon2id.NeedsUpgrade(hash)
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

// Compile-time interface checks.
var (
	_ PasswordHasher = (*Argon2idHasher)(nil)
	_ PasswordHasher = (*BcryptHasher)(nil)
	_ PasswordHasher = (*MultiHasher)(nil)
)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"crypto/rand"
	"math/big"

	"github.com/samber/oops"
)

// VerificationTokenLength is the number of characters in a verification token.
const VerificationTokenLength = 32

const tokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// TokenGenerator produces opaque random tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// TokenGeneratorFunc adapts a function to TokenGenerator.
type TokenGeneratorFunc func() (string, error)

// Generate calls f.
func (f TokenGeneratorFunc) Generate() (string, error) {
	return f()
}

// RandomTokenGenerator generates alphanumeric tokens from crypto/rand.
type RandomTokenGenerator struct {
	Length int
}

// Generate returns a random alphanumeric token. Uniqueness is only as
// strong as the randomness.
func (g RandomTokenGenerator) Generate() (string, error) {
	n := g.Length
	if n <= 0 {
		n = VerificationTokenLength
	}
	return GenerateToken(n)
}

// GenerateToken returns a random alphanumeric string of length n.
func GenerateToken(n int) (string, error) {
	limit := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", oops.Code("ACCOUNT_TOKEN_GENERATE_FAILED").Wrap(err)
		}
		buf[i] = tokenAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

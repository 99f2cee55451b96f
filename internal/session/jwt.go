// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// MinSecretLength is the shortest HMAC secret accepted by NewJWTCodec.
const MinSecretLength = 32

const jwtIssuer = "accountd"

// JWTCodec stores the account id in an HS256-signed token.
type JWTCodec struct {
	accounts AccountFinder
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewJWTCodec creates a JWTCodec. A non-positive ttl uses DefaultTTL.
func NewJWTCodec(accounts AccountFinder, secret []byte, ttl time.Duration) (*JWTCodec, error) {
	if accounts == nil {
		return nil, oops.Code("SESSION_CONFIG_INVALID").With("field", "accounts").Errorf("account finder is required")
	}
	if len(secret) < MinSecretLength {
		return nil, oops.Code("SESSION_CONFIG_INVALID").
			With("field", "secret").
			With("min_length", MinSecretLength).
			Errorf("session secret too short")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JWTCodec{accounts: accounts, secret: secret, ttl: ttl, now: time.Now}, nil
}

// Encode implements Codec.
func (c *JWTCodec) Encode(_ context.Context, acct *account.Account) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    jwtIssuer,
		Subject:   acct.ID.String(),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", oops.Code("SESSION_ENCODE_FAILED").With("account_id", acct.ID.String()).Wrap(err)
	}
	return signed, nil
}

// Decode implements Codec.
func (c *JWTCodec) Decode(ctx context.Context, value string) (*account.Account, error) {
	if value == "" {
		return nil, oops.Code("SESSION_INVALID").With("reason", "empty").Wrap(ErrSessionNotFound)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").With("reason", err.Error()).Wrap(ErrSessionNotFound)
	}
	return rehydrate(ctx, c.accounts, claims.Subject)
}

// Revoke implements Codec. Signed tokens cannot be revoked server-side; the
// web layer clears the cookie and the token expires after the TTL.
func (c *JWTCodec) Revoke(context.Context, string) error {
	return nil
}

var _ Codec = (*JWTCodec)(nil)

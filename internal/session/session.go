// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session binds an authenticated account to an opaque cookie value.
//
// Two codecs are provided. JWTCodec is stateless: the cookie carries a signed
// token naming the account. RedisCodec keeps the binding server-side so a
// logout revokes it everywhere. Both rehydrate the account from the
// repository on every request, so a deactivated or deleted account loses its
// session immediately.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// ErrSessionNotFound is returned when a session value is missing, malformed,
// expired, revoked, or names an account that can no longer log in.
var ErrSessionNotFound = errors.New("session not found")

// DefaultTTL is the session lifetime used when none is configured.
const DefaultTTL = 24 * time.Hour

// Codec issues and resolves session values.
type Codec interface {
	// Encode creates a session for acct and returns the cookie value.
	Encode(ctx context.Context, acct *account.Account) (string, error)

	// Decode resolves a cookie value to its account.
	Decode(ctx context.Context, value string) (*account.Account, error)

	// Revoke ends the session. Revoking an unknown session is not an error.
	Revoke(ctx context.Context, value string) error
}

// AccountFinder looks up accounts by id.
type AccountFinder interface {
	FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error)
}

// rehydrate loads the account named by rawID and checks it may hold a session.
func rehydrate(ctx context.Context, accounts AccountFinder, rawID string) (*account.Account, error) {
	id, err := ulid.Parse(rawID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").With("reason", "bad subject").Wrap(ErrSessionNotFound)
	}
	acct, err := accounts.FindByID(ctx, id)
	if errors.Is(err, account.ErrNotFound) {
		return nil, oops.Code("SESSION_INVALID").
			With("reason", "account gone").
			With("account_id", id.String()).
			Wrap(ErrSessionNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOOKUP_FAILED").With("account_id", id.String()).Wrap(err)
	}
	if !acct.Active {
		return nil, oops.Code("SESSION_INVALID").
			With("reason", "account inactive").
			With("account_id", id.String()).
			Wrap(ErrSessionNotFound)
	}
	return acct, nil
}

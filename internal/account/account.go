// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account represents a registered user.
type Account struct {
	ID                ulid.ULID
	Email             string
	Username          string
	PasswordHash      string
	VerificationToken string
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewAccount creates an inactive account awaiting email verification.
// The email is normalized with NormalizeEmail.
func NewAccount(email, username, passwordHash, verificationToken string) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID").With("field", "email").Wrap(ErrValidation)
	}
	if strings.TrimSpace(username) == "" {
		return nil, oops.Code("ACCOUNT_INVALID").With("field", "username").Wrap(ErrValidation)
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID").With("field", "password_hash").Wrap(ErrValidation)
	}
	if verificationToken == "" {
		return nil, oops.Code("ACCOUNT_INVALID").With("field", "verification_token").Wrap(ErrValidation)
	}

	now := time.Now()
	return &Account{
		ID:                ulid.Make(),
		Email:             email,
		Username:          strings.TrimSpace(username),
		PasswordHash:      passwordHash,
		VerificationToken: verificationToken,
		Active:            false,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Activate marks the account verified and clears its verification token.
// Activating an already active account is a no-op.
func (a *Account) Activate() {
	if a.Active {
		return
	}
	a.Active = true
	a.VerificationToken = ""
	a.UpdatedAt = time.Now()
}

// SetPasswordHash replaces the stored password hash.
func (a *Account) SetPasswordHash(hash string) {
	a.PasswordHash = hash
	a.UpdatedAt = time.Now()
}

// NormalizeEmail trims and lowercases an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository manages account persistence.
type Repository interface {
	// FindByEmail retrieves an account by email (case-insensitive).
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByID retrieves an account by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// FindByToken retrieves a pending account by its verification token.
	// An empty token never matches.
	FindByToken(ctx context.Context, token string) (*Account, error)

	// Insert stores a new account. Returns ErrDuplicateEmail when the
	// store's uniqueness constraint rejects the email.
	Insert(ctx context.Context, draft *Account) (*Account, error)

	// Save persists mutations of an existing account.
	// Returns ErrNotFound if the account no longer exists.
	Save(ctx context.Context, acct *Account) error

	// List returns accounts ordered by creation time.
	List(ctx context.Context, limit, offset int) ([]*Account, error)
}

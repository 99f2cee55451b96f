// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides in-process implementations of the account
// repositories. Both stores are safe for concurrent use and enforce the
// same uniqueness rules as the PostgreSQL schema.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// AccountStore implements account.Repository in memory.
type AccountStore struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*account.Account
	byEmail map[string]ulid.ULID
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[ulid.ULID]*account.Account),
		byEmail: make(map[string]ulid.ULID),
	}
}

func clone(a *account.Account) *account.Account {
	c := *a
	return &c
}

// FindByEmail retrieves an account by email (case-insensitive).
func (s *AccountStore) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[account.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(account.ErrNotFound)
	}
	return clone(s.byID[id]), nil
}

// FindByID retrieves an account by ID.
func (s *AccountStore) FindByID(_ context.Context, id ulid.ULID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return clone(a), nil
}

// FindByToken retrieves an account by verification token.
func (s *AccountStore) FindByToken(_ context.Context, token string) (*account.Account, error) {
	if token != "" {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, a := range s.byID {
			if a.VerificationToken == token {
				return clone(a), nil
			}
		}
	}
	return nil, oops.Code("ACCOUNT_NOT_FOUND").With("by", "token").Wrap(account.ErrNotFound)
}

// Insert stores a new account. The email index is checked and updated
// under the same lock, so concurrent inserts of one email admit only one.
func (s *AccountStore) Insert(_ context.Context, draft *account.Account) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := account.NormalizeEmail(draft.Email)
	if _, taken := s.byEmail[email]; taken {
		return nil, oops.Code("ACCOUNT_DUPLICATE_EMAIL").With("email", email).Wrap(account.ErrDuplicateEmail)
	}

	stored := clone(draft)
	if stored.ID.IsZero() {
		stored.ID = ulid.Make()
	}
	now := time.Now()
	stored.Email = email
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID
	return clone(stored), nil
}

// Save persists mutations of an existing account.
func (s *AccountStore) Save(_ context.Context, acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[acct.ID]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", acct.ID.String()).Wrap(account.ErrNotFound)
	}

	email := account.NormalizeEmail(acct.Email)
	if owner, taken := s.byEmail[email]; taken && owner != acct.ID {
		return oops.Code("ACCOUNT_DUPLICATE_EMAIL").With("email", email).Wrap(account.ErrDuplicateEmail)
	}

	updated := clone(acct)
	updated.Email = email
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()

	delete(s.byEmail, existing.Email)
	s.byEmail[email] = acct.ID
	s.byID[acct.ID] = updated

	acct.UpdatedAt = updated.UpdatedAt
	return nil
}

// List returns accounts ordered by creation time, then ID.
func (s *AccountStore) List(_ context.Context, limit, offset int) ([]*account.Account, error) {
	s.mu.RLock()
	all := make([]*account.Account, 0, len(s.byID))
	for _, a := range s.byID {
		all = append(all, clone(a))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.Compare(all[j].ID) < 0
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*account.Account{}, nil
	}
	all = all[max(offset, 0):]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// ResetStore implements account.ResetRepository in memory.
type ResetStore struct {
	mu     sync.Mutex
	byHash map[string]*account.PasswordReset
}

// NewResetStore creates an empty ResetStore.
func NewResetStore() *ResetStore {
	return &ResetStore{byHash: make(map[string]*account.PasswordReset)}
}

// Create stores a new password reset request.
func (s *ResetStore) Create(_ context.Context, reset *account.PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[reset.TokenHash]; exists {
		return oops.Code("RESET_CREATE_FAILED").Errorf("token hash already exists")
	}
	r := *reset
	s.byHash[reset.TokenHash] = &r
	return nil
}

// GetByTokenHash retrieves a reset request by its token hash.
func (s *ResetStore) GetByTokenHash(_ context.Context, tokenHash string) (*account.PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byHash[tokenHash]
	if !ok {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	c := *r
	return &c, nil
}

// Consume removes the reset request with tokenHash and returns it.
func (s *ResetStore) Consume(_ context.Context, tokenHash string) (*account.PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byHash[tokenHash]
	if !ok {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	delete(s.byHash, tokenHash)
	return r, nil
}

// DeleteByAccount removes all reset requests for an account.
func (s *ResetStore) DeleteByAccount(_ context.Context, accountID ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, r := range s.byHash {
		if r.AccountID == accountID {
			delete(s.byHash, hash)
		}
	}
	return nil
}

// DeleteExpired removes all expired reset requests and returns the count.
func (s *ResetStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, r := range s.byHash {
		if r.IsExpired() {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}

// Compile-time interface checks.
var (
	_ account.Repository      = (*AccountStore)(nil)
	_ account.ResetRepository = (*ResetStore)(nil)
)

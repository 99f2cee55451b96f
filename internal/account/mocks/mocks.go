// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the account interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/accountd/internal/account"
)

// Repository is a mock of account.Repository.
type Repository struct {
	mock.Mock
}

func accountResult(args mock.Arguments) (*account.Account, error) {
	acct, _ := args.Get(0).(*account.Account)
	return acct, args.Error(1)
}

// FindByEmail provides a mock function.
func (m *Repository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return accountResult(m.Called(ctx, email))
}

// FindByID provides a mock function.
func (m *Repository) FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	return accountResult(m.Called(ctx, id))
}

// FindByToken provides a mock function.
func (m *Repository) FindByToken(ctx context.Context, token string) (*account.Account, error) {
	return accountResult(m.Called(ctx, token))
}

// Insert provides a mock function.
func (m *Repository) Insert(ctx context.Context, draft *account.Account) (*account.Account, error) {
	return accountResult(m.Called(ctx, draft))
}

// Save provides a mock function.
func (m *Repository) Save(ctx context.Context, acct *account.Account) error {
	return m.Called(ctx, acct).Error(0)
}

// List provides a mock function.
func (m *Repository) List(ctx context.Context, limit, offset int) ([]*account.Account, error) {
	args := m.Called(ctx, limit, offset)
	accts, _ := args.Get(0).([]*account.Account)
	return accts, args.Error(1)
}

// ResetRepository is a mock of account.ResetRepository.
type ResetRepository struct {
	mock.Mock
}

// Create provides a mock function.
func (m *ResetRepository) Create(ctx context.Context, reset *account.PasswordReset) error {
	return m.Called(ctx, reset).Error(0)
}

// GetByTokenHash provides a mock function.
func (m *ResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*account.PasswordReset, error) {
	args := m.Called(ctx, tokenHash)
	reset, _ := args.Get(0).(*account.PasswordReset)
	return reset, args.Error(1)
}

// Consume provides a mock function.
func (m *ResetRepository) Consume(ctx context.Context, tokenHash string) (*account.PasswordReset, error) {
	args := m.Called(ctx, tokenHash)
	reset, _ := args.Get(0).(*account.PasswordReset)
	return reset, args.Error(1)
}

// DeleteByAccount provides a mock function.
func (m *ResetRepository) DeleteByAccount(ctx context.Context, accountID ulid.ULID) error {
	return m.Called(ctx, accountID).Error(0)
}

// DeleteExpired provides a mock function.
func (m *ResetRepository) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

// Notifier is a mock of account.Notifier.
type Notifier struct {
	mock.Mock
}

// SendVerification provides a mock function.
func (m *Notifier) SendVerification(ctx context.Context, acct *account.Account, token string) error {
	return m.Called(ctx, acct, token).Error(0)
}

// SendPasswordReset provides a mock function.
func (m *Notifier) SendPasswordReset(ctx context.Context, acct *account.Account, token string) error {
	return m.Called(ctx, acct, token).Error(0)
}

// Compile-time interface checks.
var (
	_ account.Repository      = (*Repository)(nil)
	_ account.ResetRepository = (*ResetRepository)(nil)
	_ account.Notifier        = (*Notifier)(nil)
)

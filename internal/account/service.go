// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accountd/pkg/errutil"
)

// Notifier delivers account emails. Implementations build the message body
// and links; the service only supplies the account and the raw token.
type Notifier interface {
	// SendVerification mails the verification token to a new account.
	SendVerification(ctx context.Context, acct *Account, token string) error

	// SendPasswordReset mails a reset link embedding token.
	SendPasswordReset(ctx context.Context, acct *Account, token string) error
}

// ServiceDeps holds the collaborators of a Service.
type ServiceDeps struct {
	Accounts Repository
	Resets   ResetRepository
	Hasher   PasswordHasher
	Tokens   TokenGenerator
	Notifier Notifier
	Logger   *slog.Logger

	// ResetExpiry overrides ResetTokenExpiry when positive.
	ResetExpiry time.Duration
}

// Service coordinates registration, verification, login and password reset.
type Service struct {
	accounts    Repository
	resets      ResetRepository
	hasher      PasswordHasher
	tokens      TokenGenerator
	notifier    Notifier
	logger      *slog.Logger
	resetExpiry time.Duration
}

// NewService creates a Service. Accounts, Resets, Hasher and Notifier are
// required; Tokens defaults to RandomTokenGenerator and Logger to
// slog.Default.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("account repository is required")
	case deps.Resets == nil:
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("reset repository is required")
	case deps.Hasher == nil:
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("password hasher is required")
	case deps.Notifier == nil:
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("notifier is required")
	}

	s := &Service{
		accounts:    deps.Accounts,
		resets:      deps.Resets,
		hasher:      deps.Hasher,
		tokens:      deps.Tokens,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		resetExpiry: deps.ResetExpiry,
	}
	if s.tokens == nil {
		s.tokens = RandomTokenGenerator{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.resetExpiry <= 0 {
		s.resetExpiry = ResetTokenExpiry
	}
	return s, nil
}

// Register creates an inactive account and mails its verification token.
//
// Returns an error wrapping ErrValidation for malformed input and
// ErrDuplicateEmail when the email is taken, whether detected by the
// pre-check or by the store constraint on insert.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	email := NormalizeEmail(in.Email)
	_, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, oops.Code("ACCOUNT_DUPLICATE_EMAIL").With("email", email).Wrap(ErrDuplicateEmail)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "find account by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	token, err := s.tokens.Generate()
	if err != nil {
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "generate token").Wrap(err)
	}

	draft, err := NewAccount(email, in.Username, hash, token)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.Insert(ctx, draft)
	if err != nil {
		return nil, oops.With("operation", "insert account").With("email", email).Wrap(err)
	}

	if err := s.notifier.SendVerification(ctx, acct, token); err != nil {
		return nil, oops.Code("MAIL_DELIVERY_FAILED").
			With("operation", "send verification").
			With("account_id", acct.ID.String()).
			Wrap(deliveryError(err))
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", acct.ID.String())
	return acct, nil
}

// Verify activates the account holding token and clears the token.
// An unknown or already consumed token returns ErrNotFound and changes
// nothing.
func (s *Service) Verify(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, oops.Code("ACCOUNT_TOKEN_NOT_FOUND").Wrap(ErrNotFound)
	}

	acct, err := s.accounts.FindByToken(ctx, token)
	if err != nil {
		return nil, oops.With("operation", "find account by token").Wrap(err)
	}

	acct.Activate()
	if err := s.accounts.Save(ctx, acct); err != nil {
		return nil, oops.With("operation", "save verified account").
			With("account_id", acct.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account verified", "account_id", acct.ID.String())
	return acct, nil
}

// Login runs Authenticate and, on success, upgrades the stored hash when
// the hasher reports it outdated. A failed upgrade is logged and does not
// fail the login.
func (s *Service) Login(ctx context.Context, email, password string) (Outcome, error) {
	outcome, err := Authenticate(ctx, s.accounts, s.hasher, email, password)
	if err != nil || !outcome.Authenticated() {
		return outcome, err
	}

	acct := outcome.Account
	if s.hasher.NeedsUpgrade(acct.PasswordHash) {
		hash, hashErr := s.hasher.Hash(password)
		if hashErr == nil {
			acct.SetPasswordHash(hash)
			hashErr = s.accounts.Save(ctx, acct)
		}
		if hashErr != nil {
			errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", hashErr)
		}
	}
	return outcome, nil
}

// RequestPasswordReset issues a reset token for the account with email and
// mails the reset link. Returns ErrNotFound for an unknown email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	acct, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return oops.With("operation", "find account by email").Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "generate reset token").Wrap(err)
	}

	reset, err := NewPasswordReset(acct.ID, hash, time.Now().Add(s.resetExpiry))
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "new password reset").Wrap(err)
	}

	if err := s.resets.Create(ctx, reset); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "store password reset").Wrap(err)
	}

	if err := s.notifier.SendPasswordReset(ctx, acct, token); err != nil {
		return oops.Code("MAIL_DELIVERY_FAILED").
			With("operation", "send password reset").
			With("account_id", acct.ID.String()).
			Wrap(deliveryError(err))
	}

	s.logger.InfoContext(ctx, "password reset requested", "account_id", acct.ID.String())
	return nil
}

// ValidateResetToken resolves a reset token to its account.
// Returns ErrNotFound for an unknown token and ErrResetExpired for an
// expired one.
func (s *Service) ValidateResetToken(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrNotFound)
	}

	reset, err := s.resets.GetByTokenHash(ctx, HashResetToken(token))
	if err != nil {
		return nil, oops.With("operation", "get reset by token hash").Wrap(err)
	}
	if reset.IsExpired() {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").
			With("account_id", reset.AccountID.String()).
			Wrap(ErrResetExpired)
	}

	acct, err := s.accounts.FindByID(ctx, reset.AccountID)
	if err != nil {
		return nil, oops.With("operation", "find account by id").Wrap(err)
	}
	return acct, nil
}

// ResetPassword validates the new password, consumes the reset token and
// stores the new hash. Invalid input is rejected with ErrValidation before
// the token is looked up. The token is consumed before anything else
// happens, so of several concurrent calls with one token only the first
// succeeds; the rest get ErrNotFound.
func (s *Service) ResetPassword(ctx context.Context, token string, in ResetInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if token == "" {
		return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrNotFound)
	}

	reset, err := s.resets.Consume(ctx, HashResetToken(token))
	if err != nil {
		return oops.With("operation", "consume reset token").Wrap(err)
	}
	if reset.IsExpired() {
		return oops.Code("RESET_TOKEN_EXPIRED").
			With("account_id", reset.AccountID.String()).
			Wrap(ErrResetExpired)
	}

	acct, err := s.accounts.FindByID(ctx, reset.AccountID)
	if err != nil {
		return oops.With("operation", "find account by id").Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	acct.SetPasswordHash(hash)
	if err := s.accounts.Save(ctx, acct); err != nil {
		return oops.With("operation", "save account").With("account_id", acct.ID.String()).Wrap(err)
	}

	// Other outstanding tokens for the account are dropped too. Failure is
	// logged only; the password is already updated.
	if err := s.resets.DeleteByAccount(ctx, acct.ID); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to delete reset tokens", err)
	}

	s.logger.InfoContext(ctx, "password reset", "account_id", acct.ID.String())
	return nil
}

// PurgeExpiredResets removes expired reset tokens.
func (s *Service) PurgeExpiredResets(ctx context.Context) (int64, error) {
	n, err := s.resets.DeleteExpired(ctx)
	if err != nil {
		return 0, oops.With("operation", "purge expired resets").Wrap(err)
	}
	return n, nil
}

// deliveryError marks err as ErrMailDelivery unless the notifier already
// did.
func deliveryError(err error) error {
	if errors.Is(err, ErrMailDelivery) {
		return err
	}
	return errors.Join(ErrMailDelivery, err)
}

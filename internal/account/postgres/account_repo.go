// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides PostgreSQL implementations of the account repositories.
package postgres

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// Constraint names from the accounts schema.
const (
	emailUniqueConstraint = "accounts_email_key"
	tokenUniqueConstraint = "accounts_verification_token_key"
)

// poolIface is the subset of *pgxpool.Pool used by the repositories.
// pgxmock.PgxPoolIface satisfies it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, email, username, password_hash, verification_token, active, created_at, updated_at`

// AccountRepository implements account.Repository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// FindByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`, email)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_FIND_FAILED").
			With("operation", "find account by email").
			With("email", email).
			Wrap(err)
	}
	return acct, nil
}

// FindByID retrieves an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id.String())

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_FIND_FAILED").
			With("operation", "find account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return acct, nil
}

// FindByToken retrieves a pending account by verification token.
func (r *AccountRepository) FindByToken(ctx context.Context, token string) (*account.Account, error) {
	if token == "" {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("by", "token").Wrap(account.ErrNotFound)
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE verification_token = $1
	`, token)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("by", "token").Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_FIND_FAILED").
			With("operation", "find account by token").
			Wrap(err)
	}
	return acct, nil
}

// Insert stores a new account. created_at and updated_at are assigned by
// the database.
func (r *AccountRepository) Insert(ctx context.Context, draft *account.Account) (*account.Account, error) {
	stored := *draft
	if stored.ID.IsZero() {
		stored.ID = ulid.Make()
	}
	stored.Email = account.NormalizeEmail(stored.Email)

	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, username, password_hash, verification_token, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`,
		stored.ID.String(),
		stored.Email,
		stored.Username,
		stored.PasswordHash,
		stored.VerificationToken,
		stored.Active,
	).Scan(&stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, writeError(err, "insert account", stored.Email)
	}
	return &stored, nil
}

// Save persists mutations of an existing account.
func (r *AccountRepository) Save(ctx context.Context, acct *account.Account) error {
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts SET
			email = $2,
			username = $3,
			password_hash = $4,
			verification_token = $5,
			active = $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		acct.ID.String(),
		account.NormalizeEmail(acct.Email),
		acct.Username,
		acct.PasswordHash,
		acct.VerificationToken,
		acct.Active,
	).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", acct.ID.String()).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return writeError(err, "update account", acct.Email)
	}
	acct.UpdatedAt = updatedAt
	return nil
}

// List returns accounts ordered by creation time. A non-positive limit
// returns all rows.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*account.Account, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	offset = max(offset, 0)

	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "list accounts").Wrap(err)
	}
	defer rows.Close()

	accounts := make([]*account.Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "scan account row").Wrap(err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return accounts, nil
}

// writeError maps constraint violations on insert/update to domain errors.
func writeError(err error, operation, email string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case emailUniqueConstraint:
			return oops.Code("ACCOUNT_DUPLICATE_EMAIL").
				With("email", email).
				Wrap(account.ErrDuplicateEmail)
		case tokenUniqueConstraint:
			return oops.Code("ACCOUNT_TOKEN_COLLISION").
				With("operation", operation).
				Wrap(err)
		}
	}
	return oops.Code("ACCOUNT_WRITE_FAILED").
		With("operation", operation).
		With("email", email).
		Wrap(err)
}

// scanAccount scans a single row into an Account.
// Scan errors are returned unwrapped; callers handle pgx.ErrNoRows and
// attach their own code.
func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		idStr string
		acct  account.Account
	)
	err := row.Scan(
		&idStr,
		&acct.Email,
		&acct.Username,
		&acct.PasswordHash,
		&acct.VerificationToken,
		&acct.Active,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}

	acct.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	return &acct, nil
}

// Compile-time interface check.
var _ account.Repository = (*AccountRepository)(nil)

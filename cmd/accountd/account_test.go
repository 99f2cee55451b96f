// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/store"
)

var accountCols = []string{
	"id", "email", "username", "password_hash", "verification_token", "active", "created_at", "updated_at",
}

func runAccount(t *testing.T, pool pgxmock.PgxPoolIface, passwords []string, args ...string) (string, error) {
	t.Helper()
	cmd := newAccountCmdWithDeps(&AccountDeps{
		DatabaseURLLoader: func(config.LoadOptions) (string, error) {
			return "postgres://test/accountd", nil
		},
		PoolFactory: func(context.Context, string, store.ConnectOptions) (Pool, error) {
			return pool, nil
		},
		PasswordReader: func(string) (string, error) {
			require.NotEmpty(t, passwords, "unexpected password prompt")
			p := passwords[0]
			passwords = passwords[1:]
			return p, nil
		},
	})
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func newPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, pool.ExpectationsWereMet()) })
	return pool
}

func TestAccountList(t *testing.T) {
	pool := newPool(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pool.ExpectQuery(`ORDER BY created_at, id`).
		WithArgs(10, 0).
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow(ulid.Make().String(), "a@x.com", "alice", "h", "", true, now, now))
	pool.ExpectClose()

	out, err := runAccount(t, pool, nil, "list", "--limit", "10")
	require.NoError(t, err)

	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, "a@x.com")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
}

func TestAccountList_Empty(t *testing.T) {
	pool := newPool(t)
	pool.ExpectQuery(`ORDER BY created_at, id`).
		WithArgs(50, 0).
		WillReturnRows(pgxmock.NewRows(accountCols))
	pool.ExpectClose()

	out, err := runAccount(t, pool, nil, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No accounts")
}

func TestAccountActivate(t *testing.T) {
	pool := newPool(t)
	id := ulid.Make()
	now := time.Now().UTC()
	pool.ExpectQuery(`WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("a@x.com").
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow(id.String(), "a@x.com", "alice", "h", "tok", false, now, now))
	pool.ExpectQuery(`UPDATE accounts SET`).
		WithArgs(id.String(), "a@x.com", "alice", "h", "", true).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	pool.ExpectClose()

	out, err := runAccount(t, pool, nil, "activate", "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Activated a@x.com")
}

func TestAccountActivate_AlreadyActive(t *testing.T) {
	pool := newPool(t)
	now := time.Now().UTC()
	pool.ExpectQuery(`WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("a@x.com").
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow(ulid.Make().String(), "a@x.com", "alice", "h", "", true, now, now))
	pool.ExpectClose()

	out, err := runAccount(t, pool, nil, "activate", "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, out, "already active")
}

func TestAccountActivate_Unknown(t *testing.T) {
	pool := newPool(t)
	pool.ExpectQuery(`WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("ghost@x.com").
		WillReturnRows(pgxmock.NewRows(accountCols))
	pool.ExpectClose()

	_, err := runAccount(t, pool, nil, "activate", "ghost@x.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountSetPassword(t *testing.T) {
	pool := newPool(t)
	id := ulid.Make()
	now := time.Now().UTC()
	pool.ExpectQuery(`WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("a@x.com").
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow(id.String(), "a@x.com", "alice", "old", "", true, now, now))
	pool.ExpectQuery(`UPDATE accounts SET`).
		WithArgs(id.String(), "a@x.com", "alice", pgxmock.AnyArg(), "", true).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	pool.ExpectClose()

	out, err := runAccount(t, pool, []string{"newpass1", "newpass1"}, "set-password", "--algorithm", "bcrypt", "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Password updated for a@x.com")
}

func TestAccountSetPassword_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		passwords []string
	}{
		{"mismatch", []string{"newpass1", "newpass2"}},
		{"policy", []string{"no spaces!", "no spaces!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := newPool(t)

			_, err := runAccount(t, pool, tt.passwords, "set-password", "a@x.com")
			require.Error(t, err)
			assert.ErrorIs(t, err, account.ErrValidation)
		})
	}
}

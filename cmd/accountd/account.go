// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/postgres"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/store"
)

// NewAccountCmd creates the account administration subcommand.
func NewAccountCmd() *cobra.Command {
	return newAccountCmdWithDeps(nil)
}

func newAccountCmdWithDeps(deps *AccountDeps) *cobra.Command {
	if deps == nil {
		deps = &AccountDeps{}
	}
	if deps.DatabaseURLLoader == nil {
		deps.DatabaseURLLoader = config.LoadDatabaseURL
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = connectPool
	}
	if deps.PasswordReader == nil {
		deps.PasswordReader = readPassword
	}

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer user accounts",
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts by creation time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			return withAccounts(cmd, deps, func(ctx context.Context, repo account.Repository) error {
				accounts, err := repo.List(ctx, limit, offset)
				if err != nil {
					return err
				}
				return printAccounts(cmd, accounts)
			})
		},
	}
	list.Flags().Int("limit", 50, "maximum accounts to show (0 = all)")
	list.Flags().Int("offset", 0, "accounts to skip")

	activate := &cobra.Command{
		Use:   "activate EMAIL",
		Short: "Mark an account verified without its email token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(cmd, deps, func(ctx context.Context, repo account.Repository) error {
				acct, err := repo.FindByEmail(ctx, args[0])
				if err != nil {
					return err
				}
				if acct.Active {
					cmd.Printf("%s is already active\n", acct.Email)
					return nil
				}
				acct.Activate()
				if err := repo.Save(ctx, acct); err != nil {
					return err
				}
				cmd.Printf("Activated %s\n", acct.Email)
				return nil
			})
		},
	}

	setPassword := &cobra.Command{
		Use:   "set-password EMAIL",
		Short: "Replace an account's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			algorithm, _ := cmd.Flags().GetString("algorithm")
			hasher, err := account.NewHasher(algorithm, account.DefaultBcryptCost)
			if err != nil {
				return err
			}

			password, err := deps.PasswordReader("New password: ")
			if err != nil {
				return err
			}
			confirmation, err := deps.PasswordReader("Confirm password: ")
			if err != nil {
				return err
			}
			if err := (account.ResetInput{Password: password, ConfirmationPassword: confirmation}).Validate(); err != nil {
				return err
			}

			return withAccounts(cmd, deps, func(ctx context.Context, repo account.Repository) error {
				acct, err := repo.FindByEmail(ctx, args[0])
				if err != nil {
					return err
				}
				hash, err := hasher.Hash(password)
				if err != nil {
					return err
				}
				acct.SetPasswordHash(hash)
				if err := repo.Save(ctx, acct); err != nil {
					return err
				}
				cmd.Printf("Password updated for %s\n", acct.Email)
				return nil
			})
		},
	}
	setPassword.Flags().String("algorithm", account.AlgorithmArgon2id, "hash algorithm (argon2id or bcrypt)")

	cmd.AddCommand(list, activate, setPassword)
	return cmd
}

// withAccounts opens a pool for the configured database and runs fn
// against a PostgreSQL account repository.
func withAccounts(cmd *cobra.Command, deps *AccountDeps, fn func(context.Context, account.Repository) error) error {
	databaseURL, err := deps.DatabaseURLLoader(loadOptions(cmd))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := deps.PoolFactory(ctx, databaseURL, store.DefaultConnectOptions())
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	return fn(ctx, postgres.NewAccountRepository(pool))
}

func printAccounts(cmd *cobra.Command, accounts []*account.Account) error {
	if len(accounts) == 0 {
		cmd.Println("No accounts")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tUSERNAME\tACTIVE\tCREATED")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			a.ID, a.Email, a.Username, a.Active, a.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

var stdinReader = bufio.NewReader(os.Stdin)

// readPassword prompts on stderr and reads without echo from a terminal, or
// reads one line when stdin is piped.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return string(raw), nil
	}

	line, err := stdinReader.ReadString('\n')
	if err != nil && line == "" {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

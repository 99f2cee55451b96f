// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// OutcomeKind identifies the terminal state of a login attempt.
type OutcomeKind int

// Login outcomes.
const (
	OutcomeAuthenticated OutcomeKind = iota
	OutcomeUnknownUser
	OutcomeBadPassword
	OutcomeUnverified
)

// Reasons shown to the user for each failure outcome.
const (
	ReasonUnknownUser = "Unknown User"
	ReasonBadPassword = "Unknown Password"
	ReasonUnverified  = "You need to verify email first"
)

// String returns a metric-friendly name for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeUnknownUser:
		return "unknown_user"
	case OutcomeBadPassword:
		return "bad_password"
	case OutcomeUnverified:
		return "unverified"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single login attempt.
// Account is set only when Kind is OutcomeAuthenticated.
type Outcome struct {
	Kind    OutcomeKind
	Account *Account
	Reason  string
}

// Authenticated reports whether the attempt succeeded.
func (o Outcome) Authenticated() bool {
	return o.Kind == OutcomeAuthenticated && o.Account != nil
}

// Err returns the AuthFailure error for a failed outcome, or nil on success.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeAuthenticated:
		return nil
	case OutcomeUnknownUser:
		return oops.Code("AUTH_UNKNOWN_USER").Wrap(ErrUnknownUser)
	case OutcomeBadPassword:
		return oops.Code("AUTH_BAD_PASSWORD").Wrap(ErrBadPassword)
	default:
		return oops.Code("AUTH_UNVERIFIED").Wrap(ErrUnverified)
	}
}

// Authenticate resolves an email and password to an Outcome.
//
// The checks run in order: the account must exist, the password must
// match, and the account must be active. Store and hash parse failures are
// returned as errors rather than outcomes.
func Authenticate(ctx context.Context, repo Repository, hasher PasswordHasher, email, password string) (Outcome, error) {
	acct, err := repo.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return Outcome{Kind: OutcomeUnknownUser, Reason: ReasonUnknownUser}, nil
	}
	if err != nil {
		return Outcome{}, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "find account by email").
			Wrap(err)
	}

	ok, err := hasher.Compare(password, acct.PasswordHash)
	if err != nil {
		return Outcome{}, oops.Code("AUTH_COMPARE_FAILED").
			With("account_id", acct.ID.String()).
			Wrap(err)
	}
	if !ok {
		return Outcome{Kind: OutcomeBadPassword, Reason: ReasonBadPassword}, nil
	}

	if !acct.Active {
		return Outcome{Kind: OutcomeUnverified, Reason: ReasonUnverified}, nil
	}

	return Outcome{Kind: OutcomeAuthenticated, Account: acct}, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "errors"

// Sentinel errors. Callers match them with errors.Is; implementations wrap
// them with oops codes and context.
var (
	// ErrNotFound is returned when a requested account or reset token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an account with the same email already exists.
	ErrDuplicateEmail = errors.New("email already in use")

	// ErrValidation is returned when submitted form data is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrResetExpired is returned when a password reset token is past its expiry.
	ErrResetExpired = errors.New("reset token expired")

	// ErrHashing is returned when the password hashing primitive fails.
	ErrHashing = errors.New("password hashing failed")

	// ErrComparison is returned when a stored password hash cannot be parsed.
	ErrComparison = errors.New("password comparison failed")

	// ErrMailDelivery is returned when a notification email cannot be sent.
	ErrMailDelivery = errors.New("mail delivery failed")

	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")
)

// Authentication failures. Each one is the error form of a non-success
// Outcome.
var (
	ErrUnknownUser = errors.New("unknown user")
	ErrBadPassword = errors.New("bad password")
	ErrUnverified  = errors.New("account not verified")
)

// IsAuthFailure reports whether err is one of the expected login failures.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnknownUser) ||
		errors.Is(err, ErrBadPassword) ||
		errors.Is(err, ErrUnverified)
}

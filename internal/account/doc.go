// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account implements the account lifecycle for accountd.
//
// # Domain Types
//
// Account is the only persisted identity record. New accounts are built with
// NewAccount, which starts them inactive and carrying a verification token.
// PasswordReset records are built with NewPasswordReset and only ever store
// the sha256 of the token that was mailed out.
//
// # Flows
//
// Authenticate is a stateless function over a Repository and a
// PasswordHasher. Service coordinates the remaining flows:
//   - Register - validate, hash, insert inactive account, mail token
//   - Verify - consume a verification token and activate the account
//   - RequestPasswordReset - issue a single-use reset token and mail a link
//   - ResetPassword - validate input, consume the reset token, rehash
//
// Storage and mail delivery are injected through the Repository,
// ResetRepository and Notifier interfaces.
package account

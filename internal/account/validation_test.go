// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/pkg/errutil"
)

func TestRegisterInput_Validate(t *testing.T) {
	valid := account.RegisterInput{
		Email:                "a@x.com",
		Username:             "a",
		Password:             "abc123",
		ConfirmationPassword: "abc123",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(in *account.RegisterInput)
	}{
		{"missing email", func(in *account.RegisterInput) { in.Email = "" }},
		{"malformed email", func(in *account.RegisterInput) { in.Email = "not-an-email" }},
		{"missing username", func(in *account.RegisterInput) { in.Username = "" }},
		{"password too short", func(in *account.RegisterInput) { in.Password, in.ConfirmationPassword = "ab", "ab" }},
		{"password too long", func(in *account.RegisterInput) {
			in.Password = "abcdefghijabcdefghijabcdefghij1"
			in.ConfirmationPassword = in.Password
		}},
		{"password with symbols", func(in *account.RegisterInput) { in.Password, in.ConfirmationPassword = "abc-123", "abc-123" }},
		{"confirmation mismatch", func(in *account.RegisterInput) { in.ConfirmationPassword = "abc124" }},
		{"missing confirmation", func(in *account.RegisterInput) { in.ConfirmationPassword = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			errutil.AssertKind(t, in.Validate(), account.ErrValidation, "ACCOUNT_VALIDATION")
		})
	}
}

func TestResetInput_Validate(t *testing.T) {
	assert.NoError(t, account.ResetInput{Password: "newpass1", ConfirmationPassword: "newpass1"}.Validate())

	err := account.ResetInput{Password: "newpass1", ConfirmationPassword: "newpass2"}.Validate()
	errutil.AssertKind(t, err, account.ErrValidation, "ACCOUNT_VALIDATION")
	errutil.AssertErrorContext(t, err, "fields", []string{"ConfirmationPassword:eqfield"})

	err = account.ResetInput{Password: "a", ConfirmationPassword: "a"}.Validate()
	assert.ErrorIs(t, err, account.ErrValidation)
}

func TestValidPassword(t *testing.T) {
	assert.True(t, account.ValidPassword("abc"))
	assert.True(t, account.ValidPassword("ABCdef123456789012345678901234"))
	assert.False(t, account.ValidPassword("ab"))
	assert.False(t, account.ValidPassword("pass word"))
	assert.False(t, account.ValidPassword(""))
}

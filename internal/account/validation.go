// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"errors"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// passwordRegex is the only password policy: 3 to 30 ASCII letters or digits.
var passwordRegex = regexp.MustCompile(`^[a-zA-Z0-9]{3,30}$`)

// RegisterInput is the registration form.
type RegisterInput struct {
	Email                string `validate:"required,email"`
	Username             string `validate:"required"`
	Password             string `validate:"required,password"`
	ConfirmationPassword string `validate:"required,eqfield=Password"`
}

// ResetInput is the password reset form.
type ResetInput struct {
	Password             string `validate:"required,password"`
	ConfirmationPassword string `validate:"required,eqfield=Password"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// RegisterValidation only fails on an empty tag name.
		_ = validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
			return passwordRegex.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidPassword reports whether a password satisfies the password policy.
func ValidPassword(password string) bool {
	return passwordRegex.MatchString(password)
}

// Validate checks the registration form. The returned error wraps
// ErrValidation and carries the failing field names.
func (in RegisterInput) Validate() error {
	return validateForm(in)
}

// Validate checks the reset form. The returned error wraps ErrValidation.
func (in ResetInput) Validate() error {
	return validateForm(in)
}

func validateForm(form any) error {
	err := formValidator().Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return oops.Code("ACCOUNT_VALIDATION").Wrapf(ErrValidation, "%v", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+":"+fe.Tag())
	}
	return oops.Code("ACCOUNT_VALIDATION").
		With("fields", fields).
		Wrap(ErrValidation)
}

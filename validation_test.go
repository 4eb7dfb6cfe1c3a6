package accounts_test

import (
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDetails() accounts.AccountDetails {
	return accounts.AccountDetails{
		FullName:        "Ada Lovelace",
		Email:           "ada@example.com",
		ConfirmEmail:    "ada@example.com",
		Password:        "Passw0rd",
		ConfirmPassword: "Passw0rd",
	}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	assert.True(t, accounts.IsValidationError(err))

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, 422, richErr.Code)
	return richErr.ValidationMap()
}

func TestValidateStep_AccountDetails(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*accounts.AccountDetails)
		field   string
		message string
	}{
		{
			name:    "missing full name",
			mutate:  func(d *accounts.AccountDetails) { d.FullName = " " },
			field:   "fullName",
			message: "Full name is required",
		},
		{
			name:    "short full name",
			mutate:  func(d *accounts.AccountDetails) { d.FullName = "A" },
			field:   "fullName",
			message: "Full name must be at least 2 characters",
		},
		{
			name:    "invalid email",
			mutate:  func(d *accounts.AccountDetails) { d.Email = "not-an-email"; d.ConfirmEmail = "not-an-email" },
			field:   "email",
			message: "Please enter a valid email address",
		},
		{
			name:    "confirm email mismatch",
			mutate:  func(d *accounts.AccountDetails) { d.ConfirmEmail = "grace@example.com" },
			field:   "confirmEmail",
			message: "Email addresses do not match",
		},
		{
			name:    "short password",
			mutate:  func(d *accounts.AccountDetails) { d.Password = "Pa55"; d.ConfirmPassword = "Pa55" },
			field:   "password",
			message: "Password must be at least 8 characters",
		},
		{
			name:    "symbols in password",
			mutate:  func(d *accounts.AccountDetails) { d.Password = "Passw0rd!"; d.ConfirmPassword = "Passw0rd!" },
			field:   "password",
			message: "Password should contain only alphabets and numbers",
		},
		{
			name:    "confirm password mismatch",
			mutate:  func(d *accounts.AccountDetails) { d.ConfirmPassword = "Passw0rd2" },
			field:   "confirmPassword",
			message: "Passwords do not match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := validDetails()
			tt.mutate(&details)

			draft := accounts.NewRegistrationDraft()
			details.Apply(&draft)

			fields := fieldErrors(t, draft.ValidateStep(accounts.StepAccountDetails))
			assert.Equal(t, tt.message, fields[tt.field])
		})
	}
}

func TestValidateStep_EmailMismatchOnlyFlagsConfirmation(t *testing.T) {
	details := validDetails()
	details.ConfirmEmail = "grace@example.com"

	draft := accounts.NewRegistrationDraft()
	details.Apply(&draft)

	fields := fieldErrors(t, draft.ValidateStep(accounts.StepAccountDetails))
	assert.Len(t, fields, 1)
	assert.Contains(t, fields, "confirmEmail")
	assert.NotContains(t, fields, "email")
}

func TestValidateStep_OTP(t *testing.T) {
	tests := []struct {
		otp     string
		message string
	}{
		{otp: "", message: "OTP is required"},
		{otp: "12345", message: "OTP must be 6 digits"},
		{otp: "1234567", message: "OTP must be 6 digits"},
		{otp: "12a456", message: "OTP must contain only numbers"},
		{otp: " 12345", message: "OTP must contain only numbers"},
	}

	for _, tt := range tests {
		t.Run(tt.otp, func(t *testing.T) {
			draft := accounts.NewRegistrationDraft()
			draft.OTP = tt.otp

			fields := fieldErrors(t, draft.ValidateStep(accounts.StepEmailVerification))
			assert.Equal(t, tt.message, fields["otp"])
		})
	}

	draft := accounts.NewRegistrationDraft()
	draft.OTP = "123456"
	assert.NoError(t, draft.ValidateStep(accounts.StepEmailVerification))
}

func TestValidateStep_Type(t *testing.T) {
	draft := accounts.NewRegistrationDraft()
	assert.Equal(t, accounts.UserTypeOwner, draft.Type)
	assert.NoError(t, draft.ValidateStep(accounts.StepTypeSelection))

	draft.Type = "admin"
	fields := fieldErrors(t, draft.ValidateStep(accounts.StepTypeSelection))
	assert.Contains(t, fields, "type")

	// steps only check their own fields
	assert.NoError(t, draft.ValidateStep(accounts.StepComplete))
}

func TestValidateDraft(t *testing.T) {
	draft := accounts.NewRegistrationDraft()
	details := validDetails()
	details.Apply(&draft)
	draft.OTP = "123456"
	assert.NoError(t, accounts.ValidateDraft(draft))

	draft.Type = ""
	draft.OTP = "abc"
	fields := fieldErrors(t, accounts.ValidateDraft(draft))
	assert.Contains(t, fields, "type")
	assert.Contains(t, fields, "otp")
}

func TestSplitFullName(t *testing.T) {
	first, last := accounts.SplitFullName("  Ada King Lovelace ")
	assert.Equal(t, "Ada", first)
	assert.Equal(t, "King Lovelace", last)

	first, last = accounts.SplitFullName("Plato")
	assert.Equal(t, "Plato", first)
	assert.Empty(t, last)
}

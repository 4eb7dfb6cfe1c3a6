package memory

import (
	"unicode"

	accounts "github.com/goliatone/go-accounts"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	return hashPassword(password, passwordHashCost())
}

func hashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", accounts.NewError(accounts.ErrWeakCredential)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// CheckPasswordPolicy rejects passwords without both a letter and a digit.
func CheckPasswordPolicy(password string) error {
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	if !letter || !digit {
		return accounts.NewError(accounts.ErrWeakCredential, map[string]any{
			"policy": "password must contain a letter and a digit",
		})
	}
	return nil
}

package utils

import (
	"errors"
	"net/mail"
	"regexp"
	"unicode"
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codeRegex  = regexp.MustCompile(`^[0-9]{6}$`)
)

const minPasswordLen = 8

var (
	ErrEmailEmpty       = errors.New("`email` is empty")
	ErrEmailInvalid     = errors.New("`email` is not valid")
	ErrPasswordTooShort = errors.New("`password` must be at least 8 characters")
	ErrPasswordWeak     = errors.New("`password` must mix letters and digits")
	ErrCodeInvalid      = errors.New("`code` must be 6 digits")
)

func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailEmpty
	}

	// RFC 5322 accepts addresses like example@value, the regex rejects them
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrEmailInvalid
	}
	if !emailRegex.MatchString(email) {
		return ErrEmailInvalid
	}

	return nil
}

// ValidatePassword applies the sign up password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return ErrPasswordTooShort
	}

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
		return ErrPasswordWeak
	}
	return nil
}

// ValidateCode checks a confirmation or password reset code.
func ValidateCode(code string) error {
	if !codeRegex.MatchString(code) {
		return ErrCodeInvalid
	}
	return nil
}

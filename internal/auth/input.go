// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "strings"

// RegistrationInput is a decoded registration request.
type RegistrationInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Username  string
}

// Normalize trims whitespace from every field except the password and
// lower-cases the email.
func (in RegistrationInput) Normalize() RegistrationInput {
	return RegistrationInput{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     NormalizeEmail(in.Email),
		Password:  in.Password,
		Username:  strings.TrimSpace(in.Username),
	}
}

// Validate checks a normalized input. Email, password and username are
// required; first and last names are optional.
func (in RegistrationInput) Validate() error {
	if in.Email == "" {
		return validationError("email", "email is required")
	}
	if in.Password == "" {
		return validationError("password", "password is required")
	}
	if in.Username == "" {
		return validationError("userName", "username is required")
	}
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	return ValidateUsername(in.Username)
}

// Credentials is a decoded login request.
type Credentials struct {
	Identifier string
	Password   string

	// ShortLived selects the short session ttl instead of the default.
	ShortLived bool
}

// Validate checks that both identifier and password are present.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Identifier) == "" {
		return validationError("email", "email is required")
	}
	if c.Password == "" {
		return validationError("password", "password is required")
	}
	return nil
}

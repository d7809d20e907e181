// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Username validation constraints.
const (
	MinUsernameLength = 1
	MaxUsernameLength = 30
	MaxEmailLength    = 254
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// User is a persisted identity record.
type User struct {
	ID           ulid.ULID
	Email        string
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the redacted view of a User handed to callers.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"userName"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity returns the user without credential material.
func (u *User) Identity() Identity {
	return Identity{
		ID:        u.ID.String(),
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
	}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsEmailIdentifier reports whether a login identifier names an email address
// rather than a username.
func IsEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// ValidateEmail checks the shape of an already normalized email address.
func ValidateEmail(email string) error {
	if email == "" {
		return validationError("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return validationError("email", "email is too long")
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") || strings.ContainsAny(email, " \t\r\n") {
		return validationError("email", "email is malformed")
	}
	return nil
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return validationError("userName", "username is required")
	}
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return validationError("userName", "username must be between 1 and 30 characters")
	}
	if !usernameRegex.MatchString(username) {
		return validationError("userName",
			"username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// Directory manages user persistence. Implementations must be safe for
// concurrent use and must enforce email and username uniqueness atomically.
type Directory interface {
	// FindByIdentifier retrieves a user by email (when the identifier contains
	// "@") or by username, both case-insensitively.
	// Returns ErrNotFound if no user matches.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)

	// Exists reports whether a user matches the identifier.
	Exists(ctx context.Context, identifier string) (bool, error)

	// Create stores a new user verbatim.
	// Returns ErrDuplicate if the email or username is already taken.
	Create(ctx context.Context, user *User) error

	// FindByID retrieves a user by ID.
	// Returns ErrNotFound if no user has the given ID.
	FindByID(ctx context.Context, id ulid.ULID) (*User, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error
}

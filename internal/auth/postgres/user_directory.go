// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides a PostgreSQL-backed auth.Directory.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Pool is the subset of *pgxpool.Pool used by UserDirectory.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Unique index names from the users migration.
const (
	emailUniqueIndex    = "users_email_lower_key"
	usernameUniqueIndex = "users_username_lower_key"
)

const selectUser = `
	SELECT id, email, username, password_hash, first_name, last_name, created_at, updated_at
	FROM users
`

// UserDirectory implements auth.Directory using PostgreSQL. Uniqueness is
// enforced by unique indexes on LOWER(email) and LOWER(username).
type UserDirectory struct {
	pool Pool
}

// NewUserDirectory creates a new UserDirectory.
func NewUserDirectory(pool Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

// FindByIdentifier retrieves a user by email or username (case-insensitive).
func (r *UserDirectory) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	column := identifierColumn(identifier)
	row := r.pool.QueryRow(ctx, selectUser+`WHERE LOWER(`+column+`) = LOWER($1)`, identifier)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With(column, identifier).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "get user by "+column).
			Wrap(err)
	}
	return user, nil
}

// Exists reports whether a user matches the identifier.
func (r *UserDirectory) Exists(ctx context.Context, identifier string) (bool, error) {
	column := identifierColumn(identifier)

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(`+column+`) = LOWER($1))`,
		identifier,
	).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_QUERY_FAILED").
			With("operation", "check user exists by "+column).
			Wrap(err)
	}
	return exists, nil
}

// Create stores a new user. A unique violation is reported as auth.ErrDuplicate.
func (r *UserDirectory) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, username, password_hash, first_name, last_name, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID.String(),
		user.Email,
		user.Username,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.Code("USER_DUPLICATE").
			With("field", duplicateField(pgErr.ConstraintName)).
			With("constraint", pgErr.ConstraintName).
			Wrap(auth.ErrDuplicate)
	}
	return oops.Code("USER_CREATE_FAILED").
		With("operation", "insert user").
		With("user_id", user.ID.String()).
		Wrap(err)
}

// FindByID retrieves a user by ID.
func (r *UserDirectory) FindByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, selectUser+`WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("user_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "get user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *UserDirectory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id.String(), passwordHash, time.Now().UTC(),
	)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password hash").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("user_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func identifierColumn(identifier string) string {
	if auth.IsEmailIdentifier(identifier) {
		return "email"
	}
	return "username"
}

func duplicateField(constraint string) string {
	switch constraint {
	case emailUniqueIndex:
		return "email"
	case usernameUniqueIndex:
		return "username"
	default:
		return "id"
	}
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		user  auth.User
	)
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		//nolint:wrapcheck // callers classify pgx.ErrNoRows before wrapping
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT").With("id", idStr).Wrap(err)
	}
	user.ID = id
	return &user, nil
}

var _ auth.Directory = (*UserDirectory)(nil)

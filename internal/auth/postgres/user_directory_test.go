// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/pkg/errutil"
)

var userColumns = []string{
	"id", "email", "username", "password_hash", "first_name", "last_name", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestUserDirectory_FindByIdentifier(t *testing.T) {
	id := ulid.Make()
	now := time.Now().UTC()

	tests := []struct {
		name       string
		identifier string
		setupMock  func(mock pgxmock.PgxPoolIface)
		wantErr    error
		wantCode   string
	}{
		{
			name:       "by email",
			identifier: "ada@example.com",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`WHERE LOWER\(email\) = LOWER\(\$1\)`).
					WithArgs("ada@example.com").
					WillReturnRows(pgxmock.NewRows(userColumns).
						AddRow(id.String(), "ada@example.com", "ada", "hash", "Ada", "", now, now))
			},
		},
		{
			name:       "by username",
			identifier: "Ada",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`WHERE LOWER\(username\) = LOWER\(\$1\)`).
					WithArgs("Ada").
					WillReturnRows(pgxmock.NewRows(userColumns).
						AddRow(id.String(), "ada@example.com", "ada", "hash", "Ada", "", now, now))
			},
		},
		{
			name:       "not found",
			identifier: "ghost",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users`).WithArgs("ghost").WillReturnRows(pgxmock.NewRows(userColumns))
			},
			wantErr:  auth.ErrNotFound,
			wantCode: "USER_NOT_FOUND",
		},
		{
			name:       "database error",
			identifier: "ada",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users`).WithArgs("ada").WillReturnError(errors.New("connection refused"))
			},
			wantCode: "USER_QUERY_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			user, err := postgres.NewUserDirectory(mock).FindByIdentifier(context.Background(), tt.identifier)
			if tt.wantCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.NotErrorIs(t, err, auth.ErrNotFound)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, user.ID)
			assert.Equal(t, "ada", user.Username)
			assert.Equal(t, "Ada", user.FirstName)
		})
	}
}

func TestUserDirectory_FindByIdentifier_CorruptID(t *testing.T) {
	now := time.Now().UTC()
	mock := newMock(t)
	mock.ExpectQuery(`FROM users`).WithArgs("ada").
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow("not-a-ulid", "ada@example.com", "ada", "hash", "", "", now, now))

	_, err := postgres.NewUserDirectory(mock).FindByIdentifier(context.Background(), "ada")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrNotFound)
}

func TestUserDirectory_Exists(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM users WHERE LOWER\(email\)`).
		WithArgs("ada@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM users WHERE LOWER\(username\)`).
		WithArgs("bob").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("carol").
		WillReturnError(errors.New("timeout"))

	dir := postgres.NewUserDirectory(mock)
	ctx := context.Background()

	exists, err := dir.Exists(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = dir.Exists(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = dir.Exists(ctx, "carol")
	errutil.AssertErrorCode(t, err, "USER_QUERY_FAILED")
}

func TestUserDirectory_Create(t *testing.T) {
	newUser := func() *auth.User {
		now := time.Now().UTC()
		return &auth.User{
			ID:           ulid.Make(),
			Email:        "ada@example.com",
			Username:     "ada",
			PasswordHash: "hash",
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	t.Run("inserts", func(t *testing.T) {
		mock := newMock(t)
		user := newUser()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), "ada@example.com", "ada", "hash", "", "", user.CreatedAt, user.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, postgres.NewUserDirectory(mock).Create(context.Background(), user))
	})

	for constraint, field := range map[string]string{
		"users_email_lower_key":    "email",
		"users_username_lower_key": "username",
		"users_pkey":               "id",
	} {
		t.Run("unique violation on "+field, func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(`INSERT INTO users`).
				WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraint})

			err := postgres.NewUserDirectory(mock).Create(context.Background(), newUser())
			require.ErrorIs(t, err, auth.ErrDuplicate)
			errutil.AssertErrorCode(t, err, "USER_DUPLICATE")
			errutil.AssertErrorContext(t, err, "field", field)
		})
	}

	t.Run("other failure is not a duplicate", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.CheckViolation})

		err := postgres.NewUserDirectory(mock).Create(context.Background(), newUser())
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrDuplicate)
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
	})
}

func TestUserDirectory_FindByID(t *testing.T) {
	id := ulid.Make()
	now := time.Now().UTC()

	mock := newMock(t)
	mock.ExpectQuery(`WHERE id = \$1`).WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow(id.String(), "ada@example.com", "ada", "hash", "", "", now, now))
	mock.ExpectQuery(`WHERE id = \$1`).WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(userColumns))

	dir := postgres.NewUserDirectory(mock)

	user, err := dir.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = dir.FindByID(context.Background(), ulid.Make())
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserDirectory_UpdatePasswordHash(t *testing.T) {
	id := ulid.Make()

	tests := []struct {
		name     string
		setup    func(mock pgxmock.PgxPoolIface)
		wantCode string
	}{
		{
			name: "updates",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET password_hash`).
					WithArgs(id.String(), "new-hash", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "missing user",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET password_hash`).
					WithArgs(id.String(), "new-hash", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			wantCode: "USER_NOT_FOUND",
		},
		{
			name: "database error",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET password_hash`).
					WithArgs(id.String(), "new-hash", pgxmock.AnyArg()).
					WillReturnError(errors.New("read-only transaction"))
			},
			wantCode: "USER_UPDATE_FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)

			err := postgres.NewUserDirectory(mock).UpdatePasswordHash(context.Background(), id, "new-hash")
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

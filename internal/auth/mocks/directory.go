// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks holds testify mocks for the auth collaborator interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/holoauth/internal/auth"
)

// MockDirectory is a mock of auth.Directory.
type MockDirectory struct {
	mock.Mock
}

var _ auth.Directory = (*MockDirectory)(nil)

// NewMockDirectory creates a MockDirectory whose expectations are asserted
// when the test ends.
func NewMockDirectory(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockDirectory {
	m := &MockDirectory{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindByIdentifier provides a mock function.
func (m *MockDirectory) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// Exists provides a mock function.
func (m *MockDirectory) Exists(ctx context.Context, identifier string) (bool, error) {
	args := m.Called(ctx, identifier)
	return args.Bool(0), args.Error(1)
}

// Create provides a mock function.
func (m *MockDirectory) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// FindByID provides a mock function.
func (m *MockDirectory) FindByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// UpdatePasswordHash provides a mock function.
func (m *MockDirectory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/holoauth/internal/auth"
)

// MockTokens is a mock of auth.Tokens.
type MockTokens struct {
	mock.Mock
}

var _ auth.Tokens = (*MockTokens)(nil)

// NewMockTokens creates a MockTokens whose expectations are asserted when the
// test ends.
func NewMockTokens(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTokens {
	m := &MockTokens{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Issue provides a mock function.
func (m *MockTokens) Issue(subject ulid.ULID, extra auth.ExtraClaims, ttl time.Duration) (string, *auth.Claims, error) {
	args := m.Called(subject, extra, ttl)
	claims, _ := args.Get(1).(*auth.Claims)
	return args.String(0), claims, args.Error(2)
}

// Verify provides a mock function.
func (m *MockTokens) Verify(token string) (*auth.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*auth.Claims)
	return claims, args.Error(1)
}

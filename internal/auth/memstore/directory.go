// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memstore provides an in-memory auth.Directory for development and tests.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Directory is a mutex-guarded auth.Directory. Email and username uniqueness
// is checked and claimed under one write lock, so concurrent Create calls for
// the same identity yield exactly one success.
type Directory struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*auth.User
	byEmail    map[string]ulid.ULID
	byUsername map[string]ulid.ULID
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		byID:       make(map[ulid.ULID]*auth.User),
		byEmail:    make(map[string]ulid.ULID),
		byUsername: make(map[string]ulid.ULID),
	}
}

// FindByIdentifier retrieves a user by email or username.
func (d *Directory) FindByIdentifier(_ context.Context, identifier string) (*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.lookup(identifier)
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	return copyUser(d.byID[id]), nil
}

// Exists reports whether a user matches the identifier.
func (d *Directory) Exists(_ context.Context, identifier string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.lookup(identifier)
	return ok, nil
}

// Create stores a new user.
func (d *Directory) Create(_ context.Context, user *auth.User) error {
	if user == nil {
		return oops.Code("USER_INVALID").Errorf("user is nil")
	}
	emailKey := auth.NormalizeEmail(user.Email)
	usernameKey := strings.ToLower(user.Username)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byID[user.ID]; taken {
		return oops.Code("USER_DUPLICATE").With("field", "id").Wrap(auth.ErrDuplicate)
	}
	if _, taken := d.byEmail[emailKey]; taken {
		return oops.Code("USER_DUPLICATE").With("field", "email").Wrap(auth.ErrDuplicate)
	}
	if _, taken := d.byUsername[usernameKey]; taken {
		return oops.Code("USER_DUPLICATE").With("field", "username").Wrap(auth.ErrDuplicate)
	}

	stored := copyUser(user)
	stored.Email = emailKey
	d.byID[user.ID] = stored
	d.byEmail[emailKey] = user.ID
	d.byUsername[usernameKey] = user.ID
	return nil
}

// FindByID retrieves a user by ID.
func (d *Directory) FindByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return copyUser(user), nil
}

// UpdatePasswordHash replaces the stored password hash.
func (d *Directory) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// Len returns the number of stored users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// lookup must be called with d.mu held.
func (d *Directory) lookup(identifier string) (ulid.ULID, bool) {
	if auth.IsEmailIdentifier(identifier) {
		id, ok := d.byEmail[auth.NormalizeEmail(identifier)]
		return id, ok
	}
	id, ok := d.byUsername[strings.ToLower(strings.TrimSpace(identifier))]
	return id, ok
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	return &c
}

var _ auth.Directory = (*Directory)(nil)

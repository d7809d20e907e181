// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides registration, login and token-based authorization.
//
// # Domain Types
//
//   - User - a persisted identity; Identity is its redacted view
//   - RegistrationInput, Credentials - decoded requests, validated once
//   - Claims - the payload of a signed session token
//
// # Components
//
//   - PasswordHasher (Argon2idHasher) - salted one-way hashing with a tunable work factor
//   - Directory - user persistence with atomic uniqueness (see memstore and postgres)
//   - TokenIssuer - HS256 session tokens; Verify checks signature, then expiry, then structure
//   - Carrier - moves tokens in and out of the "token" cookie
//
// # Services
//
// Service coordinates the components. It is created with NewService, which
// validates its dependencies. Errors carry a single oops code (see the Code*
// constants) and wrap a sentinel for errors.Is.
//
// Logout only clears the cookie. Tokens are not revoked and remain valid
// until they expire.
package auth

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretLength is the minimum signing key length in bytes.
const MinSecretLength = 32

// DefaultIssuer is the iss claim used when none is configured.
const DefaultIssuer = "holoauth"

// Claims is the payload of a session token.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject as a user ID.
func (c *Claims) UserID() (ulid.ULID, error) {
	id, err := ulid.ParseStrict(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeTokenClaims).With("sub", c.Subject).Wrap(errors.Join(ErrTokenInvalid, err))
	}
	return id, nil
}

// ExtraClaims are auxiliary claims embedded alongside the subject.
type ExtraClaims struct {
	Email string
}

// TokenIssuer mints and verifies HS256-signed session tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

// WithIssuer sets the iss claim written and required by the issuer.
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) {
		t.issuer = issuer
	}
}

// NewTokenIssuer creates an issuer signing with secret.
func NewTokenIssuer(secret []byte, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("min_length", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}

	t := &TokenIssuer{
		secret: append([]byte(nil), secret...),
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	// Expiry and claim structure are checked by Verify itself so that the
	// order of checks is fixed.
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return t, nil
}

// Issue signs a token for subject that expires ttl from now.
func (t *TokenIssuer) Issue(subject ulid.ULID, extra ExtraClaims, ttl time.Duration) (string, *Claims, error) {
	if ttl < 0 {
		return "", nil, oops.Code("TOKEN_INVALID_TTL").With("ttl", ttl.String()).Errorf("ttl must not be negative")
	}

	now := t.now()
	claims := &Claims{
		Email: extra.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").With("sub", claims.Subject).Wrap(err)
	}
	return signed, claims, nil
}

// Verify checks signature, then expiry, then claim structure, and returns the
// claims. Signature and format failures wrap ErrTokenInvalid; expiry wraps
// ErrTokenExpired; structural failures wrap ErrTokenInvalid.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := t.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, oops.Code(CodeTokenMalformed).Wrap(errors.Join(ErrTokenInvalid, err))
		}
		return nil, oops.Code(CodeTokenSignature).Wrap(errors.Join(ErrTokenInvalid, err))
	}

	// A token is valid strictly before its expiry instant.
	if claims.ExpiresAt != nil && !t.now().Before(claims.ExpiresAt.Time) {
		return nil, oops.Code(CodeTokenExpired).
			With("expired_at", claims.ExpiresAt.Time).
			Wrap(ErrTokenExpired)
	}

	if err := t.checkStructure(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *TokenIssuer) checkStructure(claims *Claims) error {
	switch {
	case claims.ExpiresAt == nil:
		return oops.Code(CodeTokenClaims).Wrapf(ErrTokenInvalid, "missing exp claim")
	case claims.IssuedAt == nil:
		return oops.Code(CodeTokenClaims).Wrapf(ErrTokenInvalid, "missing iat claim")
	case claims.Issuer != t.issuer:
		return oops.Code(CodeTokenClaims).With("iss", claims.Issuer).Wrapf(ErrTokenInvalid, "unexpected issuer")
	case claims.NotBefore != nil && t.now().Before(claims.NotBefore.Time):
		return oops.Code(CodeTokenClaims).Wrapf(ErrTokenInvalid, "token not yet valid")
	}
	if _, err := ulid.ParseStrict(claims.Subject); err != nil {
		return oops.Code(CodeTokenClaims).With("sub", claims.Subject).Wrapf(ErrTokenInvalid, "subject is not a user id")
	}
	return nil
}

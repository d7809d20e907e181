// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/pkg/errutil"
)

// Sentinel errors for errors.Is classification. Errors returned by Service
// wrap one of these; callers classify with errors.Is rather than by code.
var (
	// ErrNotFound is returned by a Directory when no record matches.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned by Directory.Create when the email or username
	// is already taken.
	ErrDuplicate = errors.New("duplicate identity")

	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("expired token")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Error codes attached with oops.Code.
const (
	CodeValidation         = "AUTH_VALIDATION"
	CodeConflict           = "AUTH_CONFLICT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeTokenIssueFailed   = "AUTH_TOKEN_ISSUE_FAILED"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"

	CodeTokenSignature = "TOKEN_SIGNATURE_INVALID"
	CodeTokenMalformed = "TOKEN_MALFORMED"
	CodeTokenExpired   = "TOKEN_EXPIRED"
	CodeTokenClaims    = "TOKEN_CLAIMS_INVALID"
)

// Unauthorized reasons reported by Authorize.
const (
	ReasonMissingToken = "missing token"
	ReasonInvalidToken = "invalid token"
	ReasonExpiredToken = "expired token"
)

// invalidCredentials is shared by every login failure so that unknown
// identifiers and wrong passwords are indistinguishable to the caller.
func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func validationError(field, msg string) error {
	return oops.Code(CodeValidation).
		With("field", field).
		With("message", msg).
		Wrapf(ErrValidation, "%s", msg)
}

func unauthorized(reason string) error {
	return oops.Code(CodeUnauthorized).With("reason", reason).Wrapf(ErrUnauthorized, "%s", reason)
}

func storageUnavailable(operation string, err error) error {
	return oops.Code(CodeStorageUnavailable).
		With("operation", operation).
		Wrap(errors.Join(ErrStorageUnavailable, err))
}

// UnauthorizedReason returns the reason attached by Authorize, or "" when err
// is not an authorization failure.
func UnauthorizedReason(err error) string {
	if !errors.Is(err, ErrUnauthorized) {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if reason, ok := oopsErr.Context()["reason"].(string); ok {
			return reason
		}
	}
	return ReasonInvalidToken
}

// ValidationMessage returns the human-readable message of a validation
// error, or "" when err is not one.
func ValidationMessage(err error) string {
	if !errors.Is(err, ErrValidation) {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if msg, ok := oopsErr.Context()["message"].(string); ok {
			return msg
		}
	}
	return ErrValidation.Error()
}

// ErrorCode returns the oops code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	return errutil.Code(err)
}

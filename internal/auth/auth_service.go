// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/holoauth/pkg/errutil"
)

var tracer = otel.Tracer("github.com/holomush/holoauth/internal/auth")

// Operation names reported to the Recorder.
const (
	OpRegister  = "register"
	OpLogin     = "login"
	OpLogout    = "logout"
	OpAuthorize = "authorize"
)

// Outcome labels reported to the Recorder.
const (
	OutcomeSuccess            = "success"
	OutcomeValidation         = "validation"
	OutcomeConflict           = "conflict"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeMissingToken       = "missing_token"
	OutcomeInvalidToken       = "invalid_token"
	OutcomeExpiredToken       = "expired_token"
	OutcomeStorageError       = "storage_error"
	OutcomeInternalError      = "internal_error"
)

// RegistrationTokenPolicy decides what Register does when the account was
// created but no session token could be issued.
type RegistrationTokenPolicy string

const (
	// PolicyLenient reports the registration as successful without a token.
	PolicyLenient RegistrationTokenPolicy = "lenient"
	// PolicyStrict fails the registration with AUTH_TOKEN_ISSUE_FAILED. The
	// account stays created and the caller may log in.
	PolicyStrict RegistrationTokenPolicy = "strict"
)

// Valid reports whether p names a known policy.
func (p RegistrationTokenPolicy) Valid() bool {
	return p == PolicyLenient || p == PolicyStrict
}

// Tokens issues and verifies session tokens. *TokenIssuer implements it.
type Tokens interface {
	Issue(subject ulid.ULID, extra ExtraClaims, ttl time.Duration) (string, *Claims, error)
	Verify(token string) (*Claims, error)
}

// Recorder receives one outcome per service operation.
type Recorder interface {
	RecordAuth(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(string, string) {}

// Outcome is the successful result of Register or Login.
type Outcome struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
	Cookie    *http.Cookie

	// TokenIssued is false only for a lenient registration whose token could
	// not be minted; Token and Cookie are then empty.
	TokenIssued bool
}

// ServiceConfig holds the collaborators and policy of a Service.
type ServiceConfig struct {
	Directory Directory
	Hasher    PasswordHasher
	Tokens    Tokens
	Carrier   *Carrier

	// SessionTTL defaults to DefaultSessionTTL, ShortLivedTTL to DefaultShortLivedTTL.
	SessionTTL    time.Duration
	ShortLivedTTL time.Duration

	// RegistrationTokenPolicy defaults to PolicyLenient.
	RegistrationTokenPolicy RegistrationTokenPolicy

	// Logger defaults to slog.Default().
	Logger   *slog.Logger
	Recorder Recorder
}

// Service orchestrates registration, login, logout and authorization.
type Service struct {
	users      Directory
	hasher     PasswordHasher
	tokens     Tokens
	carrier    *Carrier
	sessionTTL time.Duration
	shortTTL   time.Duration
	policy     RegistrationTokenPolicy
	logger     *slog.Logger
	recorder   Recorder
	clock      func() time.Time

	// dummyHash is verified against when a login names no account, so an
	// unknown user costs the same work factor as a real one.
	dummyHash string
}


// NewService creates a Service, rejecting missing collaborators.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Directory == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("user directory is required")
	}
	if cfg.Hasher == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("password hasher is required")
	}
	if cfg.Tokens == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token issuer is required")
	}
	if cfg.Carrier == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("session carrier is required")
	}
	if cfg.SessionTTL < 0 || cfg.ShortLivedTTL < 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token ttl must not be negative")
	}

	policy := cfg.RegistrationTokenPolicy
	if policy == "" {
		policy = PolicyLenient
	}
	if !policy.Valid() {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("policy", string(policy)).
			Errorf("unknown registration token policy")
	}

	s := &Service{
		users:      cfg.Directory,
		hasher:     cfg.Hasher,
		tokens:     cfg.Tokens,
		carrier:    cfg.Carrier,
		sessionTTL: cfg.SessionTTL,
		shortTTL:   cfg.ShortLivedTTL,
		policy:     policy,
		logger:     cfg.Logger,
		recorder:   cfg.Recorder,
		clock:      time.Now,
	}
	if s.sessionTTL == 0 {
		s.sessionTTL = DefaultSessionTTL
	}
	if s.shortTTL == 0 {
		s.shortTTL = DefaultShortLivedTTL
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}

	dummy, err := s.hasher.Hash(rand.Text())
	if err != nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Wrapf(err, "derive dummy password hash")
	}
	s.dummyHash = dummy
	return s, nil
}

// Register creates an account and, policy permitting, a session for it.
func (s *Service) Register(ctx context.Context, in RegistrationInput) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer span.End()

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, s.fail(span, OpRegister, OutcomeValidation, err)
	}

	for _, identifier := range []string{in.Email, in.Username} {
		exists, err := s.users.Exists(ctx, identifier)
		if err != nil {
			return nil, s.fail(span, OpRegister, OutcomeStorageError, storageUnavailable("check existing user", err))
		}
		if exists {
			return nil, s.fail(span, OpRegister, OutcomeConflict, conflict("precheck", identifier))
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fail(span, OpRegister, OutcomeInternalError, oops.With("operation", "hash password").Wrap(err))
	}

	now := s.clock().UTC()
	user := &User{
		ID:           ulid.Make(),
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can win the race after the pre-check.
		if errors.Is(err, ErrDuplicate) {
			return nil, s.fail(span, OpRegister, OutcomeConflict, conflict("create", in.Email))
		}
		return nil, s.fail(span, OpRegister, OutcomeStorageError, storageUnavailable("create user", err))
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	outcome, err := s.issue(user, s.sessionTTL)
	if err != nil {
		errutil.LogError(s.logger, "registered user without session token", err)
		if s.policy == PolicyStrict {
			return nil, s.fail(span, OpRegister, OutcomeInternalError, tokenIssueFailed(user.ID))
		}
		s.recorder.RecordAuth(OpRegister, OutcomeSuccess)
		return &Outcome{Identity: user.Identity()}, nil
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	s.recorder.RecordAuth(OpRegister, OutcomeSuccess)
	return outcome, nil
}

// Login verifies credentials and issues a session. Unknown identifiers and
// wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer span.End()

	if err := creds.Validate(); err != nil {
		return nil, s.fail(span, OpLogin, OutcomeValidation, err)
	}

	identifier := strings.TrimSpace(creds.Identifier)
	if IsEmailIdentifier(identifier) {
		identifier = NormalizeEmail(identifier)
	}

	user, lookupErr := s.users.FindByIdentifier(ctx, identifier)

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	targetHash := s.dummyHash
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
	default:
		return nil, s.fail(span, OpLogin, OutcomeStorageError, storageUnavailable("find user", lookupErr))
	}

	// Always verify password (constant-time operation for timing attack prevention)
	valid, verifyErr := s.hasher.Verify(creds.Password, targetHash)
	if verifyErr != nil {
		valid = false
		if userExists {
			errutil.LogError(s.logger, "stored password hash is unreadable", oops.
				With("user_id", user.ID.String()).
				Wrap(verifyErr))
		}
	}

	if !userExists || !valid {
		s.logger.DebugContext(ctx, "login rejected", "user_found", userExists)
		return nil, s.fail(span, OpLogin, OutcomeInvalidCredentials, invalidCredentials())
	}

	s.upgradeHash(ctx, user, creds.Password)

	ttl := s.sessionTTL
	if creds.ShortLived {
		ttl = s.shortTTL
	}
	outcome, err := s.issue(user, ttl)
	if err != nil {
		errutil.LogError(s.logger, "login could not issue session token", err)
		return nil, s.fail(span, OpLogin, OutcomeInternalError, tokenIssueFailed(user.ID))
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	s.recorder.RecordAuth(OpLogin, OutcomeSuccess)
	return outcome, nil
}

// Logout returns the cookie that clears the session on the client. Tokens are
// stateless and are not revoked: a token issued before logout verifies until
// it expires.
func (s *Service) Logout(ctx context.Context) *http.Cookie {
	_, span := tracer.Start(ctx, "auth.Logout")
	defer span.End()

	s.recorder.RecordAuth(OpLogout, OutcomeSuccess)
	return s.carrier.Clear()
}

// Authorize extracts and verifies the session token carried by headers and
// returns a context holding its claims.
func (s *Service) Authorize(ctx context.Context, headers http.Header) (context.Context, *Claims, error) {
	ctx, span := tracer.Start(ctx, "auth.Authorize")
	defer span.End()

	token, ok := s.carrier.Extract(headers)
	if !ok {
		return ctx, nil, s.fail(span, OpAuthorize, OutcomeMissingToken, unauthorized(ReasonMissingToken))
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.DebugContext(ctx, "token rejected", "code", ErrorCode(err))
		if errors.Is(err, ErrTokenExpired) {
			return ctx, nil, s.fail(span, OpAuthorize, OutcomeExpiredToken, unauthorized(ReasonExpiredToken))
		}
		return ctx, nil, s.fail(span, OpAuthorize, OutcomeInvalidToken, unauthorized(ReasonInvalidToken))
	}

	span.SetAttributes(attribute.String("user.id", claims.Subject))
	s.recorder.RecordAuth(OpAuthorize, OutcomeSuccess)
	return WithClaims(ctx, claims), claims, nil
}

// CurrentIdentity loads the identity named by the claims in ctx.
func (s *Service) CurrentIdentity(ctx context.Context) (*Identity, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, unauthorized(ReasonMissingToken)
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, unauthorized(ReasonInvalidToken)
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthorized(ReasonInvalidToken)
		}
		return nil, storageUnavailable("find user by id", err)
	}
	identity := user.Identity()
	return &identity, nil
}

func (s *Service) issue(user *User, ttl time.Duration) (*Outcome, error) {
	token, claims, err := s.tokens.Issue(user.ID, ExtraClaims{Email: user.Email}, ttl)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Identity:    user.Identity(),
		Token:       token,
		ExpiresAt:   claims.ExpiresAt.Time,
		Cookie:      s.carrier.Attach(token, ttl),
		TokenIssued: true,
	}, nil
}

// upgradeHash replaces a legacy or weak hash after a successful login.
// Failures are logged and never fail the login.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "hash_password",
			"error", err.Error())
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "update_password_hash",
			"error", err.Error())
		return
	}
	user.PasswordHash = newHash
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

func (s *Service) fail(span trace.Span, operation, outcome string, err error) error {
	span.RecordError(err)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	s.recorder.RecordAuth(operation, outcome)
	return err
}

func conflict(stage, identifier string) error {
	field := "userName"
	if IsEmailIdentifier(identifier) {
		field = "email"
	}
	return oops.Code(CodeConflict).
		With("stage", stage).
		With("field", field).
		Wrap(ErrConflict)
}

func tokenIssueFailed(userID ulid.ULID) error {
	return oops.Code(CodeTokenIssueFailed).
		With("user_id", userID.String()).
		Errorf("session token could not be issued")
}

// Package service implements the session lifecycle: login with password, refresh-token
// rotation and logout. Tokens are stateless JWTs; the only server-side session state is the
// revocation registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/ratelimit"
	"digicheese/backend/internal/revocation"
	"digicheese/backend/internal/security"
	"digicheese/backend/internal/server/middleware"
	"digicheese/backend/internal/telemetry"
	userdomain "digicheese/backend/internal/user/domain"
)

// dummyPassword is hashed once so unknown usernames cost the same as wrong passwords.
const dummyPassword = "digicheese-timing-equalizer"

// CredentialStore is the subset of the user repository needed for login.
type CredentialStore interface {
	GetCredentialByUsername(ctx context.Context, username string) (*userdomain.Credential, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// SessionPair is an access and refresh token issued together for one subject and role set.
type SessionPair struct {
	Access    security.IssuedToken
	Refresh   security.IssuedToken
	SubjectID string
	Roles     domain.RoleSet
}

// AuthService creates, rotates and revokes session pairs.
type AuthService struct {
	creds   CredentialStore
	hasher  *security.Hasher
	tokens  *security.TokenCodec
	revoked revocation.Store
	limiter ratelimit.LoginLimiter
	metrics *telemetry.AuthMetrics
	events  telemetry.EventEmitter

	dummyOnce sync.Once
	dummyHash string
}

// Option customizes an AuthService.
type Option func(*AuthService)

// WithLimiter throttles failed logins per username. Without it login is never throttled.
func WithLimiter(l ratelimit.LoginLimiter) Option {
	return func(s *AuthService) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithMetrics records login, refresh and logout outcomes. m may be nil.
func WithMetrics(m *telemetry.AuthMetrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// WithEvents emits one auth event per operation. e may be nil.
func WithEvents(e telemetry.EventEmitter) Option {
	return func(s *AuthService) { s.events = e }
}

// NewAuthService returns an AuthService.
func NewAuthService(creds CredentialStore, hasher *security.Hasher, tokens *security.TokenCodec, revoked revocation.Store, opts ...Option) *AuthService {
	s := &AuthService{
		creds:   creds,
		hasher:  hasher,
		tokens:  tokens,
		revoked: revoked,
		limiter: ratelimit.Disabled{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates username and password and issues a new session pair.
// Unknown users, inactive users and wrong passwords all yield domain.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (pair *SessionPair, err error) {
	username = userdomain.NormalizeUsername(username)
	defer func() {
		event := s.event(ctx, telemetry.EventLogin, err)
		event.Username = username
		if pair != nil {
			event.SubjectID = pair.SubjectID
		}
		s.metrics.Login(ctx, event.Outcome, event.Reason)
		telemetry.EmitAsync(ctx, s.events, event)
	}()

	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if err := s.limiter.Allow(ctx, username); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			return nil, domain.ErrTooManyAttempts
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("login limiter unavailable, continuing without throttling")
	}

	cred, err := s.creds.GetCredentialByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("credential lookup: %w", err)
	}
	if cred == nil {
		s.hasher.Verify(password, s.dummy())
		s.recordFailure(ctx, username)
		return nil, domain.ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, cred.PasswordHash) || !cred.Active {
		s.recordFailure(ctx, username)
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, username); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("login limiter reset failed")
	}
	if s.hasher.NeedsRehash(cred.PasswordHash) {
		s.rehash(ctx, cred.UserID, password)
	}
	return s.issuePair(cred.UserID, cred.Roles)
}

// Refresh rotates refreshToken: the presented token id is revoked and a new pair with the
// same subject and roles is issued. A refresh token is accepted at most once, even under
// concurrent calls. Every failure wraps domain.ErrRefreshRejected around the cause.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (pair *SessionPair, err error) {
	defer func() {
		event := s.event(ctx, telemetry.EventRefresh, err)
		if pair != nil {
			event.SubjectID = pair.SubjectID
		}
		s.metrics.Refresh(ctx, event.Outcome, event.Reason)
		telemetry.EmitAsync(ctx, s.events, event)
		if err != nil {
			err = fmt.Errorf("%w: %w", domain.ErrRefreshRejected, err)
		}
	}()

	if refreshToken == "" {
		return nil, domain.ErrUnauthenticated
	}
	claims, err := s.tokens.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != security.KindRefresh {
		return nil, fmt.Errorf("%w: expected refresh token", security.ErrTokenMalformed)
	}
	roles, err := domain.ParseRoles(claims.Roles)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", security.ErrTokenMalformed, err)
	}
	first, err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !first {
		return nil, domain.ErrTokenRevoked
	}
	s.metrics.Revoked(ctx, 1)
	return s.issuePair(claims.Subject, roles)
}

// Logout revokes the session. With a resolved identity both of its token ids are revoked.
// Without one, a decodable refresh token (the cookie) is enough to revoke that token.
// A refresh token that was already rotated or revoked ends no session, so Logout then fails
// with domain.ErrUnauthenticated wrapping domain.ErrTokenRevoked. With neither, Logout returns
// domain.ErrUnauthenticated.
func (s *AuthService) Logout(ctx context.Context, id *domain.Identity, refreshToken string) (err error) {
	var subject string
	defer func() {
		event := s.event(ctx, telemetry.EventLogout, err)
		event.SubjectID = subject
		if err == nil {
			s.metrics.Logout(ctx)
		}
		telemetry.EmitAsync(ctx, s.events, event)
	}()

	if id != nil {
		subject = id.SubjectID
		if _, err := s.revoke(ctx, id.AccessTokenID, id.AccessExpiresAt); err != nil {
			return err
		}
		return s.endSession(ctx, id.RefreshTokenID, id.RefreshExpiresAt)
	}
	if refreshToken == "" {
		return domain.ErrUnauthenticated
	}
	claims, err := s.tokens.Decode(refreshToken)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if claims.Kind != security.KindRefresh {
		return fmt.Errorf("%w: expected refresh token", domain.ErrUnauthenticated)
	}
	subject = claims.Subject
	return s.endSession(ctx, claims.ID, claims.ExpiresAt.Time)
}

// AccessTTL is the access token lifetime, reported to clients as expires_in.
func (s *AuthService) AccessTTL() time.Duration { return s.tokens.AccessTTL() }

// RefreshTTL is the refresh token lifetime and the refresh cookie max-age.
func (s *AuthService) RefreshTTL() time.Duration { return s.tokens.RefreshTTL() }

func (s *AuthService) issuePair(subject string, roles domain.RoleSet) (*SessionPair, error) {
	names := roles.Strings()
	access, err := s.tokens.Create(security.KindAccess, subject, names)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.Create(security.KindRefresh, subject, names)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &SessionPair{Access: access, Refresh: refresh, SubjectID: subject, Roles: roles}, nil
}

func (s *AuthService) revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	first, err := s.revoked.Revoke(ctx, tokenID, expiresAt)
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	if first {
		s.metrics.Revoked(ctx, 1)
	}
	return first, nil
}

// endSession revokes the refresh token id; only the first revocation ends a session.
func (s *AuthService) endSession(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return domain.ErrUnauthenticated
	}
	first, err := s.revoke(ctx, tokenID, expiresAt)
	if err != nil {
		return err
	}
	if !first {
		return fmt.Errorf("%w: %w", domain.ErrUnauthenticated, domain.ErrTokenRevoked)
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, username string) {
	if err := s.limiter.Failure(ctx, username); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("login limiter failure count not recorded")
	}
}

// rehash upgrades a stale stored hash. Failures are logged; the login still succeeds.
func (s *AuthService) rehash(ctx context.Context, userID, password string) {
	log := zerolog.Ctx(ctx)
	hash, err := s.hasher.Hash(password)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("password rehash failed")
		return
	}
	if err := s.creds.UpdatePasswordHash(ctx, userID, hash); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("password rehash not stored")
		return
	}
	log.Info().Str("user_id", userID).Msg("password hash upgraded")
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(dummyPassword)
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func (s *AuthService) event(ctx context.Context, typ telemetry.EventType, err error) *telemetry.AuthEvent {
	event := &telemetry.AuthEvent{
		Type:      typ,
		Outcome:   telemetry.OutcomeSuccess,
		ClientIP:  middleware.ClientIPFrom(ctx),
		RequestID: middleware.RequestIDFrom(ctx),
	}
	if err != nil {
		event.Outcome = telemetry.OutcomeFailure
		event.Reason = telemetry.Reason(err)
	}
	return event
}

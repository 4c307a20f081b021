package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/portalauth/internal/apperrors"
	"github.com/nkiryanov/portalauth/internal/logger"
	"github.com/nkiryanov/portalauth/internal/models"
	"github.com/nkiryanov/portalauth/internal/repository"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour

	// Added to blacklist entries on top of the token remaining lifetime
	blacklistMargin = time.Second
)

// Signs and verifies access and refresh tokens
type TokenCodec interface {
	Issue(subject string, role models.Role, kind models.TokenKind, ttl time.Duration) (models.IssuedToken, error)
	Verify(token string) (models.Claims, error)
}

type Config struct {
	// Access and refresh token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Names of cookies tokens are transported in
	AccessCookieName  string
	RefreshCookieName string

	// Set Secure attribute on cookies (requires https)
	SecureCookies bool

	// Hasher to use during user registration or login process
	Hasher PasswordHasher

	Logger logger.Logger

	// Clock used to compute blacklist lifetimes, time.Now if nil
	Now func() time.Time
}

// Auth service: issues sessions on login and rotates them on refresh
type Service struct {
	codec    TokenCodec
	storage  repository.Storage
	store    repository.RevocationStore
	hasher   PasswordHasher
	verifier *CredentialVerifier
	log      logger.Logger
	now      func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration

	accessCookieName  string
	refreshCookieName string
	secureCookies     bool
}

// NewService creates auth service.
// Users and logins are taken from storage; refresh tokens live in store, which may be backed by other database
func NewService(cfg Config, codec TokenCodec, storage repository.Storage, store repository.RevocationStore) (*Service, error) {
	if codec == nil || storage == nil || store == nil {
		return nil, errors.New("codec, storage and revocation store must not be nil")
	}

	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token ttl must be positive")
	}
	if cfg.AccessCookieName == "" {
		cfg.AccessCookieName = defaultAccessCookieName
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = defaultRefreshCookieName
	}
	if cfg.Hasher == nil {
		cfg.Hasher = DefaultHasher
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	verifier, err := NewCredentialVerifier(storage.Login(), cfg.Hasher)
	if err != nil {
		return nil, err
	}

	return &Service{
		codec:             codec,
		storage:           storage,
		store:             store,
		hasher:            cfg.Hasher,
		verifier:          verifier,
		log:               cfg.Logger.With("component", "auth"),
		now:               cfg.Now,
		accessTTL:         cfg.AccessTTL,
		refreshTTL:        cfg.RefreshTTL,
		accessCookieName:  cfg.AccessCookieName,
		refreshCookieName: cfg.RefreshCookieName,
		secureCookies:     cfg.SecureCookies,
	}, nil
}

// Register creates user with password and opens a session for it
// Has to return apperrors.ErrUserAlreadyExists if email is taken
func (s *Service) Register(ctx context.Context, email string, password string, role models.Role) (models.TokenPair, error) {
	if !role.Valid() {
		return models.TokenPair{}, fmt.Errorf("unknown role %q", role)
	}
	email = models.NormalizeEmail(email)

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	var user models.User
	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err = storage.User().CreateUser(ctx, email, role)
		if err != nil {
			return err
		}
		return storage.Login().SetPasswordHash(ctx, user.ID, hash)
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	s.log.Info("user registered", "subject", user.Email, "role", user.Role)

	return s.issueSession(ctx, user)
}

// Login checks credentials and opens a new session, replacing previous one of the same user
// Unknown account returns apperrors.ErrUserNotFound, wrong password apperrors.ErrInvalidCredentials
func (s *Service) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	email = models.NormalizeEmail(email)
	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_, _ = s.verifier.Verify(ctx, nil, password)
		s.log.Warn("login rejected", "kind", apperrors.Kind(err), "subject", email)
		return models.TokenPair{}, err
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("can't load user: %w", err)
	}

	ok, err := s.verifier.Verify(ctx, &user, password)
	if err != nil {
		return models.TokenPair{}, err
	}
	if !ok {
		s.log.Warn("login rejected", "kind", apperrors.Kind(apperrors.ErrInvalidCredentials), "subject", email)
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user models.User) (models.TokenPair, error) {
	pair, err := s.issuePair(user.Email, user.Role)
	if err != nil {
		return models.TokenPair{}, err
	}

	if err := s.store.Put(ctx, user.Email, pair.Refresh.Value, s.refreshTTL); err != nil {
		return models.TokenPair{}, fmt.Errorf("can't store refresh token: %w", err)
	}

	return pair, nil
}

func (s *Service) issuePair(subject string, role models.Role) (models.TokenPair, error) {
	access, err := s.codec.Issue(subject, role, models.TokenAccess, s.accessTTL)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not be issued: %w", err)
	}

	refresh, err := s.codec.Issue(subject, role, models.TokenRefresh, s.refreshTTL)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not be issued: %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges refresh token for a new pair. The presented token becomes unusable.
// Every rejection wraps apperrors.ErrUnauthorized and the client has to log in again
func (s *Service) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	pair, subject, err := s.rotate(ctx, refresh)
	if err != nil {
		s.audit("refresh rejected", subject, refresh, err)
	}
	return pair, err
}

func (s *Service) rotate(ctx context.Context, refresh string) (models.TokenPair, string, error) {
	if refresh == "" {
		return models.TokenPair{}, "", apperrors.ErrMissingToken
	}

	claims, err := s.codec.Verify(refresh)
	if err != nil {
		return models.TokenPair{}, "", fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}
	if claims.Kind != models.TokenRefresh {
		return models.TokenPair{}, claims.Subject, fmt.Errorf("%w: %s token used as refresh", apperrors.ErrInvalidToken, claims.Kind)
	}

	blacklisted, err := s.store.IsBlacklisted(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, claims.Subject, fmt.Errorf("can't check blacklist: %w", err)
	}
	if blacklisted {
		return models.TokenPair{}, claims.Subject, apperrors.ErrReplayDetected
	}

	stored, err := s.store.Get(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return models.TokenPair{}, claims.Subject, fmt.Errorf("%w: no active session", apperrors.ErrStoreMismatch)
	case err != nil:
		return models.TokenPair{}, claims.Subject, fmt.Errorf("can't load refresh token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(refresh)) != 1 {
		return models.TokenPair{}, claims.Subject, apperrors.ErrStoreMismatch
	}

	// Role is always taken from the account, so role changes apply on next refresh
	user, err := s.storage.User().GetUserByEmail(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.TokenPair{}, claims.Subject, fmt.Errorf("%w: subject no longer exists", apperrors.ErrInvalidToken)
	case err != nil:
		return models.TokenPair{}, claims.Subject, fmt.Errorf("can't load user: %w", err)
	}

	pair, err := s.issuePair(user.Email, user.Role)
	if err != nil {
		return models.TokenPair{}, claims.Subject, err
	}

	err = s.store.Rotate(ctx, claims.Subject, refresh, pair.Refresh.Value, s.refreshTTL, s.blacklistTTL(claims.ExpiresAt))
	if err != nil {
		return models.TokenPair{}, claims.Subject, fmt.Errorf("can't rotate refresh token: %w", err)
	}

	return pair, claims.Subject, nil
}

// Blacklist entry has to outlive the token it blocks
func (s *Service) blacklistTTL(expiresAt time.Time) time.Duration {
	return max(expiresAt.Sub(s.now()), 0) + blacklistMargin
}

// Logout ends the session the refresh token belongs to.
// Missing or invalid token is not an error: there is nothing to end
func (s *Service) Logout(ctx context.Context, refresh string) error {
	if refresh == "" {
		return nil
	}

	claims, err := s.codec.Verify(refresh)
	if err != nil || claims.Kind != models.TokenRefresh {
		return nil
	}

	stored, err := s.store.Get(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		// Session already ended, still make sure the token is dead
	case err != nil:
		return fmt.Errorf("can't load refresh token: %w", err)
	case subtle.ConstantTimeCompare([]byte(stored), []byte(refresh)) == 1:
		if err := s.store.Delete(ctx, claims.Subject); err != nil {
			return fmt.Errorf("can't delete refresh token: %w", err)
		}
	}

	if err := s.store.Blacklist(ctx, refresh, s.blacklistTTL(claims.ExpiresAt)); err != nil {
		return fmt.Errorf("can't blacklist refresh token: %w", err)
	}

	s.log.Info("user logged out", "subject", claims.Subject)
	return nil
}

// Revoke ends current session of the user, if any
func (s *Service) Revoke(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)
	stored, err := s.store.Get(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("can't load refresh token: %w", err)
	}

	if err := s.store.Delete(ctx, email); err != nil {
		return fmt.Errorf("can't delete refresh token: %w", err)
	}

	// Token is ours, so verification only fails when it is already expired
	ttl := s.refreshTTL + blacklistMargin
	if claims, err := s.codec.Verify(stored); err == nil {
		ttl = s.blacklistTTL(claims.ExpiresAt)
	}
	if err := s.store.Blacklist(ctx, stored, ttl); err != nil {
		return fmt.Errorf("can't blacklist refresh token: %w", err)
	}

	s.log.Warn("session revoked", "subject", email)
	return nil
}

// ParseAccess verifies access token. Refresh tokens are not accepted
func (s *Service) ParseAccess(access string) (models.Claims, error) {
	if access == "" {
		return models.Claims{}, fmt.Errorf("%w: access", apperrors.ErrMissingToken)
	}

	claims, err := s.codec.Verify(access)
	if err != nil {
		return models.Claims{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}
	if claims.Kind != models.TokenAccess {
		return models.Claims{}, fmt.Errorf("%w: %s token used as access", apperrors.ErrInvalidToken, claims.Kind)
	}

	return claims, nil
}

// Presented token goes to the record masked by the logger, so replays can be traced to a session
func (s *Service) audit(msg string, subject string, refresh string, err error) {
	args := []any{"kind", apperrors.Kind(err), "subject", subject, "refresh", refresh, "error", err}

	switch {
	case errors.Is(err, apperrors.ErrReplayDetected):
		s.log.Error(msg, args...)
	case errors.Is(err, apperrors.ErrUnauthorized):
		s.log.Warn(msg, args...)
	default:
		s.log.Error("refresh failed", "subject", subject, "error", err)
	}
}

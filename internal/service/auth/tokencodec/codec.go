package tokencodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/portalauth/internal/models"
)

const (
	defaultSigningMethod = "HS256"
)

var (
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token is expired")
	ErrMalformed        = errors.New("token is malformed")
)

type tokenClaims struct {
	jwt.RegisteredClaims
	Role models.Role      `json:"role"`
	Kind models.TokenKind `json:"kind"`
}

type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Clock used for issue and expiry checks
	// If not set than time.Now is used
	Now func() time.Time
}

// Codec signs and verifies expiring tokens. It has no side effects
type Codec struct {
	key []byte
	alg jwt.SigningMethod
	now func() time.Time
}

func New(cfg Config) (*Codec, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing method %q is not supported, use one of HS256, HS384, HS512", cfg.Alg)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Codec{
		key: []byte(cfg.SecretKey),
		alg: alg,
		now: cfg.Now,
	}, nil
}

func (c *Codec) Issue(subject string, role models.Role, kind models.TokenKind, ttl time.Duration) (models.IssuedToken, error) {
	var issued models.IssuedToken

	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(
		c.alg,
		tokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   subject,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Role: role,
			Kind: kind,
		},
	)

	value, err := token.SignedString(c.key)
	if err != nil {
		return issued, fmt.Errorf("error while signing %s token. Err: %w", kind, err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, then expiry, then claims structure
func (c *Codec) Verify(value string) (models.Claims, error) {
	claims := &tokenClaims{}

	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) {
			return c.key, nil
		},
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return models.Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return models.Claims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.Claims{}, fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return models.Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case claims.Subject == "":
		return models.Claims{}, fmt.Errorf("%w: subject is empty", ErrMalformed)
	case claims.IssuedAt == nil:
		return models.Claims{}, fmt.Errorf("%w: issued at is missing", ErrMalformed)
	case !claims.Role.Valid():
		return models.Claims{}, fmt.Errorf("%w: unknown role %q", ErrMalformed, claims.Role)
	case claims.Kind != models.TokenAccess && claims.Kind != models.TokenRefresh:
		return models.Claims{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, claims.Kind)
	}

	return models.Claims{
		Subject:   claims.Subject,
		Role:      claims.Role,
		Kind:      claims.Kind,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

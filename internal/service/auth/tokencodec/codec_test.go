package tokencodec

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/portalauth/internal/models"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newCodec(t *testing.T, clock *fakeClock) *Codec {
	c, err := New(Config{SecretKey: "test-secret-key", Now: clock.Now})
	require.NoError(t, err, "codec should be created without errors")
	return c
}

func Test_Codec(t *testing.T) {
	t.Parallel()

	t.Run("new defaults", func(t *testing.T) {
		c, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		require.Equal(t, []byte("secret"), c.key)
		require.Equal(t, defaultSigningMethod, c.alg.Alg(), "default signing method should be set")
		require.NotNil(t, c.now)
	})

	t.Run("new fails without key", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err)
	})

	t.Run("new fails on not hmac alg", func(t *testing.T) {
		_, err := New(Config{SecretKey: "secret", Alg: "RS256"})
		require.Error(t, err)

		_, err = New(Config{SecretKey: "secret", Alg: "none"})
		require.Error(t, err)
	})

	t.Run("Issue", func(t *testing.T) {
		t.Run("claims round trip", func(t *testing.T) {
			clock := newClock()
			c := newCodec(t, clock)

			issued, err := c.Issue("a@x.com", models.RoleProfessor, models.TokenAccess, 15*time.Minute)
			require.NoError(t, err)
			require.Equal(t, clock.now.Add(15*time.Minute), issued.ExpiresAt)

			claims, err := c.Verify(issued.Value)
			require.NoError(t, err)

			assert.Equal(t, "a@x.com", claims.Subject)
			assert.Equal(t, models.RoleProfessor, claims.Role)
			assert.Equal(t, models.TokenAccess, claims.Kind)
			assert.NotEmpty(t, claims.ID, "token has to has jti")
			assert.Equal(t, clock.now, claims.IssuedAt)
			assert.Equal(t, issued.ExpiresAt, claims.ExpiresAt)
		})

		t.Run("different tokens in same second", func(t *testing.T) {
			c := newCodec(t, newClock())

			first, err := c.Issue("a@x.com", models.RoleStudent, models.TokenRefresh, time.Hour)
			require.NoError(t, err)
			second, err := c.Issue("a@x.com", models.RoleStudent, models.TokenRefresh, time.Hour)
			require.NoError(t, err)

			require.NotEqual(t, first.Value, second.Value, "jti should make tokens unique")
		})
	})

	t.Run("Verify", func(t *testing.T) {
		t.Run("expired", func(t *testing.T) {
			clock := newClock()
			c := newCodec(t, clock)
			issued, err := c.Issue("a@x.com", models.RoleStudent, models.TokenRefresh, time.Minute)
			require.NoError(t, err)

			clock.Advance(time.Minute)

			_, err = c.Verify(issued.Value)
			require.ErrorIs(t, err, ErrExpired)
		})

		t.Run("not a token", func(t *testing.T) {
			c := newCodec(t, newClock())

			_, err := c.Verify("invalid token")
			require.ErrorIs(t, err, ErrMalformed)
		})

		t.Run("signed with other key", func(t *testing.T) {
			clock := newClock()
			other, err := New(Config{SecretKey: "other-key", Now: clock.Now})
			require.NoError(t, err)
			issued, err := other.Issue("a@x.com", models.RoleStudent, models.TokenAccess, time.Minute)
			require.NoError(t, err)

			_, err = newCodec(t, clock).Verify(issued.Value)
			require.ErrorIs(t, err, ErrInvalidSignature)
		})

		t.Run("signature checked before expiry", func(t *testing.T) {
			clock := newClock()
			other, err := New(Config{SecretKey: "other-key", Now: clock.Now})
			require.NoError(t, err)
			issued, err := other.Issue("a@x.com", models.RoleStudent, models.TokenAccess, time.Minute)
			require.NoError(t, err)

			clock.Advance(time.Hour)

			_, err = newCodec(t, clock).Verify(issued.Value)
			require.ErrorIs(t, err, ErrInvalidSignature, "forged and expired token must be reported as forged")
		})

		t.Run("single bit flipped in payload", func(t *testing.T) {
			c := newCodec(t, newClock())
			issued, err := c.Issue("a@x.com", models.RoleStudent, models.TokenRefresh, time.Hour)
			require.NoError(t, err)

			parts := strings.Split(issued.Value, ".")
			require.Len(t, parts, 3)
			payload, err := base64.RawURLEncoding.DecodeString(parts[1])
			require.NoError(t, err)

			// 'a' (0x61) -> 'c' (0x63) is one bit
			idx := bytes.Index(payload, []byte("a@x.com"))
			require.GreaterOrEqual(t, idx, 0)
			payload[idx] ^= 0x02
			parts[1] = base64.RawURLEncoding.EncodeToString(payload)

			_, err = c.Verify(strings.Join(parts, "."))
			require.ErrorIs(t, err, ErrInvalidSignature)
		})

		t.Run("not signed token", func(t *testing.T) {
			clock := newClock()
			token := jwt.NewWithClaims(
				jwt.SigningMethodNone,
				tokenClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						Subject:   "a@x.com",
						IssuedAt:  jwt.NewNumericDate(clock.now),
						ExpiresAt: jwt.NewNumericDate(clock.now.Add(15 * time.Minute)),
					},
					Role: models.RoleAdmin,
					Kind: models.TokenAccess,
				},
			)
			value, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)

			_, err = newCodec(t, clock).Verify(value)
			require.ErrorIs(t, err, ErrInvalidSignature, "Valid token with empty alg must fail")
		})

		t.Run("signed token with bad structure", func(t *testing.T) {
			clock := newClock()
			sign := func(claims tokenClaims) string {
				value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
				require.NoError(t, err)
				return value
			}
			registered := jwt.RegisteredClaims{
				Subject:   "a@x.com",
				IssuedAt:  jwt.NewNumericDate(clock.now),
				ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
			}

			tests := []struct {
				name   string
				claims tokenClaims
			}{
				{"no subject", tokenClaims{RegisteredClaims: jwt.RegisteredClaims{IssuedAt: registered.IssuedAt, ExpiresAt: registered.ExpiresAt}, Role: models.RoleStudent, Kind: models.TokenAccess}},
				{"unknown role", tokenClaims{RegisteredClaims: registered, Role: "ROOT", Kind: models.TokenAccess}},
				{"unknown kind", tokenClaims{RegisteredClaims: registered, Role: models.RoleStudent, Kind: "session"}},
				{"no issued at", tokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a@x.com", ExpiresAt: registered.ExpiresAt}, Role: models.RoleStudent, Kind: models.TokenRefresh}},
				{"no expiry", tokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a@x.com"}, Role: models.RoleStudent, Kind: models.TokenAccess}},
			}

			c := newCodec(t, clock)
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					_, err := c.Verify(sign(tt.claims))
					require.ErrorIs(t, err, ErrMalformed)
				})
			}
		})
	})
}

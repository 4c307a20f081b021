package redis

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/portalauth/internal/apperrors"
	"github.com/nkiryanov/portalauth/internal/testutil"
)

func Test_RevocationStore(t *testing.T) {
	t.Parallel()

	// Every subtest gets its own clean redis
	withStore := func(t *testing.T, fn func(s *RevocationStore, rds testutil.RedisServer)) {
		rds := testutil.StartRedis(t)
		fn(NewRevocationStore(rds.Client, "test"), rds)
	}

	t.Run("new defaults", func(t *testing.T) {
		s := NewRevocationStore(nil, "")

		require.Equal(t, defaultPrefix, s.prefix)
	})

	t.Run("put and get", func(t *testing.T) {
		withStore(t, func(s *RevocationStore, rds testutil.RedisServer) {
			err := s.Put(t.Context(), "a@x.com", "token-1", time.Hour)
			require.NoError(t, err)

			got, err := s.Get(t.Context(), "a@x.com")
			require.NoError(t, err)
			require.Equal(t, "token-1", got)
			assert.Equal(t, time.Hour, rds.Server.TTL("test:rt:a@x.com"), "entry should expire with refresh ttl")
		})
	})

	t.Run("put overwrites previous token", func(t *testing.T) {
		withStore(t, func(s *RevocationStore, _ testutil.RedisServer) {
			require.NoError(t, s.Put(t.Context(), "a@x.com", "token-1", time.Hour))
			require.NoError(t, s.Put(t.Context(), "a@x.com", "token-2", time.Hour))

			got, err := s.Get(t.Context(), "a@x.com")
			require.NoError(t, err)
			require.Equal(t, "token-2", got, "last writer wins")
		})
	})

	t.Run("put rejects zero ttl", func(t *testing.T) {
		withStore(t, func(s *RevocationStore, _ testutil.RedisServer) {
			err := s.Put(t.Context(), "a@x.com", "token-1", 0)
			require.Error(t, err)
		})
	})

	t.Run("get absent", func(t *testing.T) {
		withStore(t, func(s *RevocationStore, _ testutil.RedisServer) {
			_, err := s.Get(t.Context(), "nobody@x.com")
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("entry expires", func(t *testing.T) {
		withStore(t, func(s *RevocationStore, rds testutil.RedisServer) {
			require.NoError(t, s.Put(t.Context(), "a@x.com", "token-1", time.Minute))

			rds.Server.FastForward(time.Minute)

			_, err := s.Get(t.Context(), "a@x.com")
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("delete", func(t *testing.T) {
		withStore(t, func(s *RevocationStore, _ testutil.RedisServer) {
			require.NoError(t, s.Put(t.Context(), "a@x.com", "token-1", time.Hour))

			require.NoError(t, s.Delete(t.Context(), "a@x.com"))
			require.NoError(t, s.Delete(t.Context(), "a@x.com"), "delete is idempotent")

			_, err := s.Get(t.Context(), "a@x.com")
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("blacklist", func(t *testing.T) {
		withStore(t, func(s *RevocationStore, rds testutil.RedisServer) {
			listed, err := s.IsBlacklisted(t.Context(), "token-1")
			require.NoError(t, err)
			require.False(t, listed)

			require.NoError(t, s.Blacklist(t.Context(), "token-1", time.Minute))

			listed, err = s.IsBlacklisted(t.Context(), "token-1")
			require.NoError(t, err)
			require.True(t, listed)

			listed, err = s.IsBlacklisted(t.Context(), "token-2")
			require.NoError(t, err)
			require.False(t, listed, "only blacklisted token is rejected")

			rds.Server.FastForward(time.Minute)

			listed, err = s.IsBlacklisted(t.Context(), "token-1")
			require.NoError(t, err)
			require.False(t, listed, "blacklist entry expires with its ttl")
		})
	})

	t.Run("blacklist never shortens entry", func(t *testing.T) {
		withStore(t, func(s *RevocationStore, rds testutil.RedisServer) {
			require.NoError(t, s.Blacklist(t.Context(), "token-1", time.Hour))
			require.NoError(t, s.Blacklist(t.Context(), "token-1", time.Minute))

			rds.Server.FastForward(30 * time.Minute)

			listed, err := s.IsBlacklisted(t.Context(), "token-1")
			require.NoError(t, err)
			require.True(t, listed)
		})
	})

	t.Run("blacklist key is token hash", func(t *testing.T) {
		withStore(t, func(s *RevocationStore, rds testutil.RedisServer) {
			require.NoError(t, s.Blacklist(t.Context(), "raw-token-value", time.Minute))

			for _, key := range rds.Server.Keys() {
				require.NotContains(t, key, "raw-token-value", "raw token must not be used as key")
			}
		})
	})

	t.Run("Rotate", func(t *testing.T) {
		t.Run("swap ok", func(t *testing.T) {
			withStore(t, func(s *RevocationStore, rds testutil.RedisServer) {
				require.NoError(t, s.Put(t.Context(), "a@x.com", "old", time.Hour))

				err := s.Rotate(t.Context(), "a@x.com", "old", "new", 2*time.Hour, 30*time.Minute)
				require.NoError(t, err)

				got, err := s.Get(t.Context(), "a@x.com")
				require.NoError(t, err)
				require.Equal(t, "new", got)
				assert.Equal(t, 2*time.Hour, rds.Server.TTL("test:rt:a@x.com"))

				listed, err := s.IsBlacklisted(t.Context(), "old")
				require.NoError(t, err)
				require.True(t, listed, "old token has to be blacklisted")
			})
		})

		t.Run("mismatch changes nothing", func(t *testing.T) {
			withStore(t, func(s *RevocationStore, _ testutil.RedisServer) {
				require.NoError(t, s.Put(t.Context(), "a@x.com", "current", time.Hour))

				err := s.Rotate(t.Context(), "a@x.com", "stale", "new", time.Hour, time.Hour)
				require.ErrorIs(t, err, apperrors.ErrStoreMismatch)

				got, err := s.Get(t.Context(), "a@x.com")
				require.NoError(t, err)
				require.Equal(t, "current", got)

				listed, err := s.IsBlacklisted(t.Context(), "stale")
				require.NoError(t, err)
				require.False(t, listed)
			})
		})

		t.Run("absent entry is mismatch", func(t *testing.T) {
			withStore(t, func(s *RevocationStore, _ testutil.RedisServer) {
				err := s.Rotate(t.Context(), "a@x.com", "old", "new", time.Hour, time.Hour)
				require.ErrorIs(t, err, apperrors.ErrStoreMismatch)

				_, err = s.Get(t.Context(), "a@x.com")
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "failed rotation must not create entry")
			})
		})

		t.Run("concurrent rotations of same token", func(t *testing.T) {
			withStore(t, func(s *RevocationStore, _ testutil.RedisServer) {
				require.NoError(t, s.Put(t.Context(), "a@x.com", "old", time.Hour))

				const workers = 16
				var wg sync.WaitGroup
				errs := make([]error, workers)
				for i := range workers {
					wg.Add(1)
					go func() {
						defer wg.Done()
						errs[i] = s.Rotate(t.Context(), "a@x.com", "old", "new-"+string(rune('a'+i)), time.Hour, time.Hour)
					}()
				}
				wg.Wait()

				succeeded := 0
				for _, err := range errs {
					switch {
					case err == nil:
						succeeded++
					case errors.Is(err, apperrors.ErrStoreMismatch):
					default:
						t.Fatalf("unexpected error: %v", err)
					}
				}
				require.Equal(t, 1, succeeded, "exactly one rotation has to win")
			})
		})
	})
}

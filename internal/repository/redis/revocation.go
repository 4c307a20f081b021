package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/portalauth/internal/apperrors"
	"github.com/nkiryanov/portalauth/internal/repository"
)

const defaultPrefix = "portalauth"

// Sets blacklist marker unless existing one lives longer
const blacklistScript = `
local ttl = redis.call("PTTL", KEYS[1])
if ttl < tonumber(ARGV[1]) then
  redis.call("SET", KEYS[1], "1", "PX", ARGV[1])
end
return 1
`

// KEYS[1] identity key, KEYS[2] blacklist key of the old token
// ARGV[1] old token, ARGV[2] new token, ARGV[3] ttl ms, ARGV[4] blacklist ttl ms
const rotateScript = `
local current = redis.call("GET", KEYS[1])
if current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
local ttl = redis.call("PTTL", KEYS[2])
if ttl < tonumber(ARGV[4]) then
  redis.call("SET", KEYS[2], "1", "PX", ARGV[4])
end
return 1
`

var (
	blacklistLua = goredis.NewScript(blacklistScript)
	rotateLua    = goredis.NewScript(rotateScript)
)

var ErrRedisUnavailable = errors.New("redis unavailable")

// Revocation store on top of redis. Entries expire by native key TTL.
// Identity and blacklist keys of one rotation live in different hash slots,
// so the store expects a standalone (or sentinel) deployment, not a cluster
type RevocationStore struct {
	client goredis.UniversalClient
	prefix string
}

func NewRevocationStore(client goredis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &RevocationStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RevocationStore) refreshKey(identity string) string {
	return s.prefix + ":rt:" + identity
}

func (s *RevocationStore) blacklistKey(token string) string {
	return s.prefix + ":bl:" + repository.TokenKey(token)
}

func checkTTL(ttl time.Duration) error {
	if ttl.Milliseconds() <= 0 {
		return fmt.Errorf("ttl must be at least 1ms, got %s", ttl)
	}
	return nil
}

func (s *RevocationStore) Put(ctx context.Context, identity string, token string, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}

	err := s.client.Set(ctx, s.refreshKey(identity), token, ttl).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RevocationStore) Get(ctx context.Context, identity string) (string, error) {
	token, err := s.client.Get(ctx, s.refreshKey(identity)).Result()

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, goredis.Nil):
		return "", fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}

func (s *RevocationStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, s.blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

func (s *RevocationStore) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}

	err := blacklistLua.Run(ctx, s.client, []string{s.blacklistKey(token)}, ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RevocationStore) Delete(ctx context.Context, identity string) error {
	err := s.client.Del(ctx, s.refreshKey(identity)).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RevocationStore) Rotate(ctx context.Context, identity string, oldToken string, newToken string, ttl time.Duration, blacklistTTL time.Duration) error {
	if err := errors.Join(checkTTL(ttl), checkTTL(blacklistTTL)); err != nil {
		return err
	}

	swapped, err := rotateLua.Run(
		ctx,
		s.client,
		[]string{s.refreshKey(identity), s.blacklistKey(oldToken)},
		oldToken, newToken, ttl.Milliseconds(), blacklistTTL.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if swapped == 0 {
		return fmt.Errorf("repo error: %w", apperrors.ErrStoreMismatch)
	}

	return nil
}

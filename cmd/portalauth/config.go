package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/portalauth/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultRedisAddr       = "localhost:6379"
	defaultRevocationStore = storeRedis
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 24 * time.Hour
	defaultPurgeInterval   = 10 * time.Minute
	defaultEnvironment     = logger.EnvProduction
)

// Revocation store backends
const (
	storeRedis    = "redis"
	storePostgres = "postgres"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis to keep refresh tokens and blacklist in
	RedisAddr     string
	RedisPassword string

	// Where refresh tokens are kept: redis or postgres
	RevocationStore string

	// How often expired rows are removed when refresh tokens are kept in postgres
	PurgeInterval time.Duration

	// Secret key
	// Access and refresh tokens are signed with it (HMAC), so it must be kept private
	SecretKey string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Mark cookies Secure, set when served over https
	SecureCookies bool

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		RedisAddr:       defaultRedisAddr,
		RevocationStore: defaultRevocationStore,
		PurgeInterval:   defaultPurgeInterval,
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		Environment:     defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"REDIS_ADDRESS":     setString(&c.RedisAddr),
		"REDIS_PASSWORD":    setString(&c.RedisPassword),
		"REVOCATION_STORE":  setString(&c.RevocationStore),
		"PURGE_INTERVAL":    setDuration(&c.PurgeInterval),
		"SECRET_KEY":        setString(&c.SecretKey),
		"ACCESS_TOKEN_TTL":  setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL": setDuration(&c.RefreshTokenTTL),
		"SECURE_COOKIES":    setBool(&c.SecureCookies),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("portalauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address")
	fs.StringVar(&c.RevocationStore, "revocation-store", c.RevocationStore, "Where refresh tokens are kept (redis, postgres)")
	fs.DurationVar(&c.PurgeInterval, "purge-interval", c.PurgeInterval, "Expired tokens purge interval (postgres store only)")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", c.SecureCookies, "Set Secure attribute on auth cookies")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Validate checks options that have no usable default
func (c *Config) Validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database connection string is required"))
	}
	if c.RevocationStore != storeRedis && c.RevocationStore != storePostgres {
		errs = append(errs, fmt.Errorf("unknown revocation store %q, use %s or %s", c.RevocationStore, storeRedis, storePostgres))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		errs = append(errs, errors.New("access token has to live shorter than refresh token"))
	}

	return errors.Join(errs...)
}

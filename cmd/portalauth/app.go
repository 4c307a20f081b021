package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/portalauth/internal/db"
	"github.com/nkiryanov/portalauth/internal/handlers"
	"github.com/nkiryanov/portalauth/internal/logger"
	"github.com/nkiryanov/portalauth/internal/repository"
	"github.com/nkiryanov/portalauth/internal/repository/postgres"
	"github.com/nkiryanov/portalauth/internal/repository/redis"
	"github.com/nkiryanov/portalauth/internal/service/auth"
	"github.com/nkiryanov/portalauth/internal/service/auth/tokencodec"
	"github.com/nkiryanov/portalauth/internal/service/janitor"
	"github.com/nkiryanov/portalauth/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger

	// Background jobs run along with http server, each returns channel closed on stop
	jobs []func(ctx context.Context) <-chan struct{}

	// Release connections on stop
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	app := &ServerApp{ListenAddr: c.ListenAddr}

	// Close what has been opened if app could not be built
	built := false
	defer func() {
		if !built {
			app.close()
		}
	}()

	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app.Logger = l

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	var store repository.RevocationStore
	switch c.RevocationStore {
	case storePostgres:
		repo := &postgres.RevocationRepo{DB: pool}
		app.jobs = append(app.jobs, janitor.New(repo, c.PurgeInterval, app.Logger).Run)
		store = repo
	default:
		client := goredis.NewClient(&goredis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
		})
		app.closers = append(app.closers, func() { _ = client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		store = redis.NewRevocationStore(client, "")
	}

	// Initialize services
	codec, err := tokencodec.New(tokencodec.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token codec: %w", err)
	}
	authService, err := auth.NewService(auth.Config{
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
		SecureCookies: c.SecureCookies,
		Logger:        app.Logger,
	}, codec, storage, store)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	userService := user.NewService(storage.User())

	app.Handler = handlers.NewRouter(authService, userService, app.Logger)

	app.Logger.Info("app initialized", "revocation_store", c.RevocationStore, "environment", c.Environment)
	built = true
	return app, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	jobsStopped := make([]<-chan struct{}, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobsStopped = append(jobsStopped, job(srvCtx))
	}

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	for _, stopped := range jobsStopped {
		<-stopped
	}

	return err
}

func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

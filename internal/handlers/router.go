package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/portalauth/internal/handlers/middleware"
	"github.com/nkiryanov/portalauth/internal/logger"
	"github.com/nkiryanov/portalauth/internal/models"
)

// Path clients are sent to when their session can't be continued
const logoutPath = "/api/auth/logout"

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.Auth(authService)
	adminOnly := func(h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.RequireRole(models.RoleAdmin))
	}

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /register", handleRegister(authService, logger))
	apiauth.Handle("POST /refresh", handleTokenRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))

	apiuser := http.NewServeMux()
	apiuser.Handle("GET /me", withAuth(handleUserMe()))

	apiadmin := http.NewServeMux()
	apiadmin.Handle("DELETE /sessions/{email}", adminOnly(handleRevokeSession(authService, logger)))
	apiadmin.Handle("PUT /users/{email}/role", adminOnly(handleChangeRole(userService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", apiadmin))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user with email and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, email string, password string, role models.Role) (models.TokenPair, error)

	// Login user with email and password
	// Has to return apperrors.ErrUserNotFound or error wrapping apperrors.ErrUnauthorized if credentials are wrong
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Rotate refresh token. Every rejection has to wrap apperrors.ErrUnauthorized
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// End session the refresh token belongs to
	Logout(ctx context.Context, refresh string) error

	// End current session of the user
	Revoke(ctx context.Context, email string) error

	// Set auth tokens (access, refresh) to response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Expire auth cookies on the client
	ClearTokens(w http.ResponseWriter)

	// Get refresh token from request, empty if there is none
	GetRefreshString(r *http.Request) string

	// Get request and return access token claims if it authenticated or error
	Authenticate(r *http.Request) (models.Claims, error)
}

type userService interface {
	// Has to return apperrors.ErrUserNotFound if user not exists
	ChangeRole(ctx context.Context, email string, role string) (models.User, error)
}

package middleware

import (
	"net/http"
	"slices"

	"github.com/nkiryanov/portalauth/internal/apperrors"
	"github.com/nkiryanov/portalauth/internal/handlers/render"
	"github.com/nkiryanov/portalauth/internal/handlers/userctx"
	"github.com/nkiryanov/portalauth/internal/models"
)

type authenticator interface {
	// Return claims of valid access token found in request or error
	Authenticate(r *http.Request) (models.Claims, error)
}

// Auth rejects requests without valid access token and puts its claims to request context
func Auth(a authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.Authenticate(r)
			if err != nil {
				render.Unauthorized(w, "Unauthorized", err)
				return
			}
			ctx := userctx.New(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through only users with one of roles. Has to be used after Auth
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := userctx.FromContext(r.Context())
			if !ok {
				render.Unauthorized(w, "Unauthorized", apperrors.ErrMissingToken)
				return
			}
			if !slices.Contains(roles, claims.Role) {
				render.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

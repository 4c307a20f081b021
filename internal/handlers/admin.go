package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/portalauth/internal/apperrors"
	"github.com/nkiryanov/portalauth/internal/handlers/render"
	"github.com/nkiryanov/portalauth/internal/handlers/userctx"
	"github.com/nkiryanov/portalauth/internal/logger"
)

func handleRevokeSession(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.PathValue("email")

		if err := authService.Revoke(r.Context(), email); err != nil {
			l.Error("Failed to revoke session", "subject", email, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if admin, ok := userctx.FromContext(r.Context()); ok {
			l.Info("Session revoked by admin", "subject", email, "admin", admin.Subject)
		}
		render.JSON(w, messageResponse{Message: "Session revoked"})
	})
}

func handleChangeRole(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Role string `json:"role" validate:"required,role"`
	}
	type response struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.ChangeRole(r.Context(), r.PathValue("email"), data.Role)
		switch {
		case err == nil:
			render.JSON(w, response{Email: user.Email, Role: string(user.Role)})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			l.Error("Failed to change role", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

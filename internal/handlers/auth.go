package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/portalauth/internal/apperrors"
	"github.com/nkiryanov/portalauth/internal/handlers/render"
	"github.com/nkiryanov/portalauth/internal/logger"
	"github.com/nkiryanov/portalauth/internal/models"
)

type messageResponse struct {
	Message string `json:"message"`
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// Public sign up always yields a student, other roles are granted by an admin
		pair, err := authService.Register(r.Context(), data.Email, data.Password, models.RoleStudent)
		switch {
		case err == nil:
			authService.SetTokenPairToResponse(w, pair)
			render.JSON(w, messageResponse{Message: "User registered successfully"})
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		default:
			l.Error("Failed to register user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Login(r.Context(), data.Email, data.Password)
		switch {
		case err == nil:
			authService.SetTokenPairToResponse(w, pair)
			render.JSON(w, messageResponse{Message: "Login successful"})
		// Same answer for unknown account and wrong password
		case errors.Is(err, apperrors.ErrUserNotFound), errors.Is(err, apperrors.ErrUnauthorized):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		default:
			l.Error("Failed to login user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// Any refresh failure ends the session: cookies are cleared and client is sent to logout
func handleTokenRefresh(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pair, err := authService.Refresh(r.Context(), authService.GetRefreshString(r))
		if err == nil {
			authService.SetTokenPairToResponse(w, pair)
			render.JSON(w, messageResponse{Message: "Tokens refreshed"})
			return
		}

		authService.ClearTokens(w)
		w.Header().Set("Location", logoutPath)

		if !errors.Is(err, apperrors.ErrUnauthorized) {
			l.Error("Failed to refresh tokens", "error", err)
		}
		render.Unauthorized(w, "Session expired, please log in again", err)
	})
}

func handleLogout(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Cookies are cleared even if the session could not be ended server side
		authService.ClearTokens(w)

		if err := authService.Logout(r.Context(), authService.GetRefreshString(r)); err != nil {
			l.Error("Failed to logout user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, messageResponse{Message: "Logged out"})
	})
}

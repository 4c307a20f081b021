package handlers

import (
	"net/http"

	"github.com/nkiryanov/portalauth/internal/handlers/render"
	"github.com/nkiryanov/portalauth/internal/handlers/userctx"
)

func handleUserMe() http.Handler {
	type response struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		render.JSON(w, response{Email: claims.Subject, Role: string(claims.Role)})
	})
}

package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/portalauth/internal/models"
)

const (
	defaultAccessCookieName  = "jwt"
	defaultRefreshCookieName = "refreshToken"

	accessHeaderName = "Authorization"
	accessAuthScheme = "Bearer"
)

// SetTokenPairToResponse writes both tokens as cookies and access token in Authorization header
func (s *Service) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(accessHeaderName, accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, s.cookie(s.accessCookieName, pair.Access.Value, pair.Access.ExpiresAt))
	http.SetCookie(w, s.cookie(s.refreshCookieName, pair.Refresh.Value, pair.Refresh.ExpiresAt))
}

// ClearTokens expires both cookies on the client
func (s *Service) ClearTokens(w http.ResponseWriter) {
	for _, name := range []string{s.accessCookieName, s.refreshCookieName} {
		c := s.cookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

// GetRefreshString returns refresh token from request cookie; empty string if there is none
func (s *Service) GetRefreshString(r *http.Request) string {
	c, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// GetAccessString returns access token from Authorization header or, if absent, from cookie
func (s *Service) GetAccessString(r *http.Request) string {
	header := r.Header.Get(accessHeaderName)
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, accessAuthScheme) {
		return strings.TrimSpace(token)
	}

	c, err := r.Cookie(s.accessCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Authenticate returns claims of valid access token found in request
func (s *Service) Authenticate(r *http.Request) (models.Claims, error) {
	return s.ParseAccess(s.GetAccessString(r))
}

func (s *Service) cookie(name string, value string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   max(int(expiresAt.Sub(s.now()).Round(time.Second).Seconds()), 0),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

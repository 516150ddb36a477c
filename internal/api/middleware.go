package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prudhvinik1/whatsnote/internal/services"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the authenticated session claims set by
// requireAuth.
func ClaimsFromContext(ctx context.Context) (*services.TokenClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*services.TokenClaims)
	return claims, ok
}

// requireAuth rejects requests without a valid session cookie and renews the
// cookie once it is past half its lifetime.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "please log in")
			return
		}

		claims, err := s.auth.VerifyToken(r.Context(), cookie.Value)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "please log in")
			return
		}

		if time.Since(claims.IssuedAt) > s.auth.SessionTTL()/2 {
			if token, expiresAt, err := s.auth.RenewToken(claims); err == nil {
				s.setSessionCookie(w, token, expiresAt)
			}
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

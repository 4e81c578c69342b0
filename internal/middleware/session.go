package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/AnshRaj112/physiq-backend/internal/models"
)

type contextKey string

const currentUserKey contextKey = "current_user"

// SessionResolver maps a session token to a user id ("" when anonymous).
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// UserLoader loads the member behind a session.
type UserLoader interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// Session resolves the session cookie (or a Bearer token) into the current
// user and stores it in the request context. Anonymous requests pass through.
func Session(cookieName string, sessions SessionResolver, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r, cookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				log.Printf("⚠️  Session lookup failed: %v", err)
			}
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.Get(r.Context(), userID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func sessionToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// SessionToken returns the raw token the request carries, if any.
func SessionToken(r *http.Request, cookieName string) string {
	return sessionToken(r, cookieName)
}

// WithUser returns ctx carrying user as the current user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, currentUserKey, user)
}

// CurrentUser returns the authenticated member, or nil for anonymous requests.
func CurrentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(currentUserKey).(*models.User)
	return u
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"error":{"kind":"NotAuthenticated","message":"please log in"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

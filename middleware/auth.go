package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/auth"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/permissions"
)

type contextKey string

const (
	UserKey  contextKey = "staffUser"
	TokenKey contextKey = "staffToken"
)

// TokenCookie carries the staff token for page requests.
const TokenCookie = "admin_auth_token"

// TokenVerifier resolves a bearer token to a staff identity.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*models.PublicUser, error)
}

// TokenFromRequest returns the bearer token, falling back to the
// admin_auth_token cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if tok := strings.TrimSpace(parts[1]); tok != "" {
				return tok
			}
		}
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// Staff authenticates the caller as the admin or a staff user and stores
// the identity in the request context.
func Staff(v TokenVerifier, log logging.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			user, err := v.VerifyToken(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrMissingToken):
				JSONError(w, http.StatusUnauthorized, "No token provided")
				return
			case errors.Is(err, auth.ErrTokenExpired):
				JSONError(w, http.StatusUnauthorized, "Token expired")
				return
			case errors.Is(err, auth.ErrTokenNotFound):
				log.Warn(r.Context(), "staff auth rejected", "path", r.URL.Path)
				JSONError(w, http.StatusUnauthorized, "Invalid token")
				return
			default:
				JSONError(w, http.StatusInternalServerError, "Authentication failed")
				return
			}
			ctx := context.WithValue(r.Context(), UserKey, user)
			ctx = context.WithValue(ctx, TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Staff.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok || !strings.EqualFold(u.Role, models.RoleAdmin) {
			JSONError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission lets the admin through and otherwise requires any of
// keys in the caller's permission set, with aliases resolved.
func RequirePermission(keys ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok || !HasPermission(u, keys...) {
				JSONError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasPermission reports whether u may use any of keys.
func HasPermission(u *models.PublicUser, keys ...string) bool {
	if u == nil {
		return false
	}
	if strings.EqualFold(u.Role, models.RoleAdmin) {
		return true
	}
	return permissions.HasAny(u.Permissions, keys...)
}

// PageGate is the redirecting variant of Staff+RequireAdmin for HTML
// pages: unauthenticated callers go to loginPath, non-admins get 403.
func PageGate(v TokenVerifier, loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := v.VerifyToken(r.Context(), TokenFromRequest(r))
			if err != nil {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			if !strings.EqualFold(user.Role, models.RoleAdmin) {
				http.Error(w, "Access Denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserKey, user)))
		})
	}
}

func UserFromContext(ctx context.Context) (*models.PublicUser, bool) {
	u, ok := ctx.Value(UserKey).(*models.PublicUser)
	return u, ok && u != nil
}

func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(TokenKey).(string)
	return t
}

// JSONError writes {"success":false,"message":msg}.
func JSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

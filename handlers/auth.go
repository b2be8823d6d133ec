package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/auth"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/middleware"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
)

type AuthHandler struct {
	Auth *auth.Service
	// SecureCookie marks the session cookie Secure (production).
	SecureCookie bool
	CookieTTL    time.Duration
}

type LoginRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode"`
	Code          string `json:"code"`
}

type LoginResponse struct {
	Success bool              `json:"success"`
	Token   string            `json:"token"`
	User    models.PublicUser `json:"user"`
	Message string            `json:"message"`
}

type MeResponse struct {
	Success bool   `json:"success"`
	User    MeUser `json:"user"`
}

// MeUser is the staff/me projection.
type MeUser struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Status      string   `json:"status"`
	Permissions []string `json:"permissions"`
}

// Login handles POST /api/admin-login for the admin and staff users.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	code := req.TwoFactorCode
	if code == "" {
		code = req.Code
	}

	res, err := h.Auth.Login(r.Context(), identifier, req.Password, code)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case errors.Is(err, auth.ErrTwoFactorRequired), errors.Is(err, auth.ErrInvalidTwoFactor):
		msg := "2FA code required"
		if errors.Is(err, auth.ErrInvalidTwoFactor) {
			msg = "Invalid 2FA code"
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": msg, "twoFactorRequired": true})
		return
	default:
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	http.SetCookie(w, h.sessionCookie(res.Token, h.cookieTTL()))
	writeJSON(w, http.StatusOK, LoginResponse{Success: true, Token: res.Token, User: res.User, Message: "Login successful"})
}

func (h *AuthHandler) cookieTTL() time.Duration {
	if h.CookieTTL > 0 {
		return h.CookieTTL
	}
	return auth.DefaultTokenTTL
}

func (h *AuthHandler) sessionCookie(value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl / time.Second),
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}

// Me handles GET /api/staff/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}
	perms := u.Permissions
	if perms == nil {
		perms = []string{}
	}
	writeJSON(w, http.StatusOK, MeResponse{Success: true, User: MeUser{
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Status:      u.Status,
		Permissions: perms,
	}})
}

// Verify handles GET /api/admin/verify.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u, "message": "Admin access verified"})
}

// Logout revokes the caller's tokens and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}
	if err := h.Auth.RevokeToken(r.Context(), u.Username); err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusInternalServerError, "Logout failed")
		return
	}
	http.SetCookie(w, h.sessionCookie("", 0))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateCredentials handles PUT /api/admin/credentials.
func (h *AuthHandler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.Auth.UpdateAdminCredentials(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		http.SetCookie(w, h.sessionCookie("", 0))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Credentials updated successfully"})
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "Username and password are required")
	case errors.Is(err, auth.ErrUserAlreadyExists):
		writeError(w, http.StatusConflict, "Username already in use")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to update credentials")
	}
}

// TwoFactorStatus handles GET /api/admin/2fa/status.
func (h *AuthHandler) TwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	on, err := h.Auth.TwoFactorStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read 2FA status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "enabled": on})
}

// TwoFactorSetup handles POST /api/admin/2fa/setup.
func (h *AuthHandler) TwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	setup, err := h.Auth.GenerateTwoFactor(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate 2FA secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "secret": setup.Secret, "otpauthUrl": setup.URL})
}

type TwoFactorEnableRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

// TwoFactorEnable handles POST /api/admin/2fa/enable.
func (h *AuthHandler) TwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorEnableRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.Auth.EnableTwoFactor(r.Context(), req.Secret, req.Code)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "enabled": true})
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "2FA secret and a valid 6-digit code are required")
	case errors.Is(err, auth.ErrInvalidTwoFactor):
		writeError(w, http.StatusBadRequest, "Invalid 2FA code for the provided secret")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to enable 2FA")
	}
}

// TwoFactorDisable handles POST /api/admin/2fa/disable.
func (h *AuthHandler) TwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.DisableTwoFactor(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to disable 2FA")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "enabled": false})
}

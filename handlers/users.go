package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/auth"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/permissions"
)

type UsersHandler struct {
	Auth *auth.Service
}

type CreateUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Password    string `json:"password"`
	Permissions []any  `json:"permissions"`
}

// UpdateUserRequest mirrors auth.UserPatch. Permissions is raw so an
// explicit empty list can be told apart from an absent field.
type UpdateUserRequest struct {
	Email       *string         `json:"email"`
	Role        *string         `json:"role"`
	Status      *string         `json:"status"`
	Password    *string         `json:"password"`
	Permissions json.RawMessage `json:"permissions"`
}

// List handles GET /api/admin/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.Auth.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

// Create handles POST /api/admin/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Email == "" || req.Role == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	u, err := h.Auth.CreateUser(r.Context(), auth.NewUser{
		Username:    req.Username,
		Email:       req.Email,
		Role:        req.Role,
		Password:    req.Password,
		Permissions: permissions.Normalize(req.Permissions),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": u})
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid role; use editor or viewer")
	case errors.Is(err, auth.ErrUserAlreadyExists):
		writeError(w, http.StatusConflict, "User already exists")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to create user")
	}
}

// Update handles PUT /api/admin/users/{username}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var req UpdateUserRequest
	if !decode(w, r, &req) {
		return
	}
	patch := auth.UserPatch{Email: req.Email, Role: req.Role, Status: req.Status, Password: req.Password}
	if len(req.Permissions) > 0 && string(req.Permissions) != "null" {
		var raw []any
		if err := json.Unmarshal(req.Permissions, &raw); err != nil {
			writeError(w, http.StatusBadRequest, "permissions must be a list")
			return
		}
		patch.Permissions = permissions.Normalize(raw)
		patch.SetPermissions = true
	}
	u, err := h.Auth.UpdateUser(r.Context(), username, patch)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
	case errors.Is(err, auth.ErrAdminProtected):
		writeError(w, http.StatusForbidden, "The admin account can only be changed via admin credentials")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid user data")
	case errors.Is(err, auth.ErrUserAlreadyExists):
		writeError(w, http.StatusConflict, "Email already in use")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to update user")
	}
}

// Delete handles DELETE /api/admin/users/{username}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.Auth.DeleteUser(r.Context(), chi.URLParam(r, "username"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, auth.ErrAdminProtected):
		writeError(w, http.StatusForbidden, "The admin account cannot be deleted")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to delete user")
	}
}

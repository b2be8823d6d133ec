package models

import (
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/permissions"
)

// Role constants for staff authorization.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

var ValidRoles = []string{RoleAdmin, RoleEditor, RoleViewer}

// Account status values.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User is a staff account stored in the user list. The admin singleton is
// never stored here.
type User struct {
	ID              string     `bson:"_id" json:"id"`
	Username        string     `bson:"username" json:"username"`
	Email           string     `bson:"email" json:"email"`
	Role            string     `bson:"role" json:"role"`
	PasswordHash    string     `bson:"passwordHash" json:"passwordHash,omitempty"` // bcrypt hash
	Status          string     `bson:"status" json:"status"`
	Permissions     []string   `bson:"permissions" json:"permissions"`
	CreatedAt       time.Time  `bson:"createdAt" json:"createdAt"`
	LastLogin       *time.Time `bson:"lastLogin,omitempty" json:"lastLogin"`
	Token           string     `bson:"token,omitempty" json:"token,omitempty"`
	TokenIssuedAt   *time.Time `bson:"tokenIssuedAt,omitempty" json:"tokenIssuedAt,omitempty"`
	PrevToken       string     `bson:"prevToken,omitempty" json:"prevToken,omitempty"`
	PrevTokenAt     *time.Time `bson:"prevTokenAt,omitempty" json:"prevTokenAt,omitempty"`
	PasswordResetAt *time.Time `bson:"passwordResetAt,omitempty" json:"passwordResetAt,omitempty"`
}

// Key implements store.Record.
func (u User) Key() string { return u.ID }

// IsShadow reports whether u is a stray copy of the admin singleton: same
// username, no password hash.
func (u *User) IsShadow(adminUsername string) bool {
	return adminUsername != "" && u.Username == adminUsername && u.PasswordHash == ""
}

// Public returns the projection of u that is safe to hand to clients.
func (u *User) Public() PublicUser {
	status := u.Status
	if status == "" {
		status = StatusActive
	}
	return PublicUser{
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Status:      status,
		Permissions: permissions.Normalize(u.Permissions),
		CreatedAt:   &u.CreatedAt,
		LastLogin:   u.LastLogin,
	}
}

// PublicUser is what staff/me, login and the user management API return.
// Admin projections carry no permission list; the role implies full access.
type PublicUser struct {
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	Permissions []string   `json:"permissions"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	LastLogin   *time.Time `json:"lastLogin"`
}

// IsAdmin reports whether the projection carries the admin role.
func (p PublicUser) IsAdmin() bool { return p.Role == RoleAdmin }

// RoleValid reports whether role is one of ValidRoles.
func RoleValid(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

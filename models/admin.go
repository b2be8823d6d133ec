package models

import "time"

// AdminEmail is reported for the admin singleton in user listings.
const AdminEmail = "admin@buypvaaccount.com"

// AdminCredentials is the built-in super-admin identity, stored separately
// from the user list.
type AdminCredentials struct {
	Username     string     `bson:"username" json:"username"`
	PasswordHash string     `bson:"passwordHash" json:"passwordHash"`
	LastLogin    *time.Time `bson:"lastLogin,omitempty" json:"lastLogin"`
	TwoFactor    TwoFactor  `bson:"twoFactor" json:"twoFactor"`
}

// TwoFactor holds the admin's TOTP enrolment.
type TwoFactor struct {
	Enabled   bool       `bson:"enabled" json:"enabled"`
	Secret    string     `bson:"secret,omitempty" json:"secret,omitempty"` // base32
	UpdatedAt *time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Public returns the admin singleton's client-facing projection.
func (a *AdminCredentials) Public() PublicUser {
	return PublicUser{
		Username:    a.Username,
		Email:       AdminEmail,
		Role:        RoleAdmin,
		Status:      StatusActive,
		Permissions: []string{},
		LastLogin:   a.LastLogin,
	}
}

// AdminToken is the admin singleton's token state. IssuedAt bounds the
// absolute lifetime of Token; PrevToken stays valid for a grace window
// after PrevTokenAt.
type AdminToken struct {
	Username    string     `bson:"username" json:"username"`
	Token       string     `bson:"token" json:"token"`
	IssuedAt    time.Time  `bson:"issuedAt" json:"issuedAt"`
	PrevToken   string     `bson:"prevToken,omitempty" json:"prevToken,omitempty"`
	PrevTokenAt *time.Time `bson:"prevTokenAt,omitempty" json:"prevTokenAt,omitempty"`
}

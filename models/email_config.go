package models

import "time"

// EmailSettings is the runtime SMTP configuration. Password holds the
// sealed ("enc:" prefixed) app password when an encryption key is set.
type EmailSettings struct {
	Provider  string    `json:"provider"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	From      string    `json:"from,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

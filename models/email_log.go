package models

import "time"

// EmailLog records a notification email handed to the SMTP server.
type EmailLog struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"` // reset_code, order_confirmation, test
	ToEmail string    `json:"toEmail"`
	Subject string    `json:"subject"`
	OrderID string    `json:"orderId,omitempty"`
	SentBy  string    `json:"sentBy,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

// Key implements store.Record.
func (l EmailLog) Key() string { return l.ID }

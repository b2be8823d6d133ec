package store

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
)

// EmailLogStore is an append-only record of sent notification emails.
type EmailLogStore struct {
	logs Repository[models.EmailLog]
}

func NewEmailLogStore(dir string) *EmailLogStore {
	return &EmailLogStore{logs: NewCollection[models.EmailLog](filepath.Join(dir, EmailLogFile))}
}

// InsertEmailLog records that an email was sent.
func (s *EmailLogStore) InsertEmailLog(ctx context.Context, log models.EmailLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	return s.logs.Insert(ctx, log, nil)
}

// ListByRecipient returns every log entry addressed to email.
func (s *EmailLogStore) ListByRecipient(ctx context.Context, email string) ([]models.EmailLog, error) {
	return s.logs.Scan(ctx, func(l *models.EmailLog) bool { return l.ToEmail == email })
}

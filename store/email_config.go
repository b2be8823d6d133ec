package store

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/utils"
)

// EmailSettingsStore persists the runtime SMTP configuration. The app
// password is sealed at rest when a Sealer is configured.
type EmailSettingsStore struct {
	doc    Singleton[models.EmailSettings]
	sealer *utils.Sealer // nil stores the password in plaintext
}

// NewEmailSettingsStore returns a store in dir. sealer may be nil.
func NewEmailSettingsStore(dir string, sealer *utils.Sealer) *EmailSettingsStore {
	return &EmailSettingsStore{
		doc:    NewDocument[models.EmailSettings](filepath.Join(dir, EmailSettingsFile)),
		sealer: sealer,
	}
}

// Load returns the stored settings with the password opened, or nil when
// nothing was saved yet.
func (s *EmailSettingsStore) Load(ctx context.Context) (*models.EmailSettings, error) {
	cfg, err := s.doc.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.sealer != nil && cfg.Password != "" {
		pw, err := s.sealer.Open(cfg.Password)
		if err != nil {
			return nil, err
		}
		cfg.Password = pw
	}
	return cfg, nil
}

// Save stores cfg, sealing its password first.
func (s *EmailSettingsStore) Save(ctx context.Context, cfg models.EmailSettings) error {
	if s.sealer != nil && cfg.Password != "" {
		sealed, err := s.sealer.Seal(cfg.Password)
		if err != nil {
			return err
		}
		cfg.Password = sealed
	}
	cfg.UpdatedAt = time.Now().UTC()
	return s.doc.Put(ctx, cfg)
}

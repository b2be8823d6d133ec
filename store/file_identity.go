package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
)

// File names inside the data directory.
const (
	UsersFile            = "admin_users.json"
	AdminCredentialsFile = "admin-credentials.json"
	AdminTokenFile       = "admin-token.json"
	EmailSettingsFile    = "email-config.json"
	EmailLogFile         = "email_logs.json"
)

// FileIdentityStore keeps identities as JSON files in one directory.
type FileIdentityStore struct {
	dir   string
	users *Collection[models.User]
	creds *Document[models.AdminCredentials]
	token *Document[models.AdminToken]
}

// NewFileIdentityStore creates dir if needed and returns a store rooted there.
func NewFileIdentityStore(dir string) (*FileIdentityStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileIdentityStore{
		dir:   dir,
		users: NewCollection[models.User](filepath.Join(dir, UsersFile)),
		creds: NewDocument[models.AdminCredentials](filepath.Join(dir, AdminCredentialsFile)),
		token: NewDocument[models.AdminToken](filepath.Join(dir, AdminTokenFile)),
	}, nil
}

func (s *FileIdentityStore) Users() Repository[models.User] { return s.users }

func (s *FileIdentityStore) AdminCredentials() Singleton[models.AdminCredentials] { return s.creds }

func (s *FileIdentityStore) AdminToken() Singleton[models.AdminToken] { return s.token }

func (s *FileIdentityStore) Close(context.Context) error { return nil }

// Dir returns the data directory.
func (s *FileIdentityStore) Dir() string { return s.dir }

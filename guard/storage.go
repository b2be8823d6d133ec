package guard

import (
	"context"
	"errors"
	"sync"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/store"
)

// Session is everything the guard keeps locally about the signed-in staff
// member.
type Session struct {
	Token    string `json:"admin_auth_token"`
	LoggedIn bool   `json:"adminLoggedIn"`
	User     *User  `json:"admin_user,omitempty"`
}

// TokenStorage holds the local session. Clear removes every identity field.
type TokenStorage interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// FileStorage keeps the session in a JSON document on disk.
type FileStorage struct {
	doc *store.Document[Session]
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{doc: store.NewDocument[Session](path)}
}

// Load returns an empty session when nothing is stored.
func (f *FileStorage) Load(ctx context.Context) (*Session, error) {
	s, err := f.doc.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return &Session{}, nil
	}
	return s, err
}

func (f *FileStorage) Save(ctx context.Context, s Session) error { return f.doc.Put(ctx, s) }

func (f *FileStorage) Clear(ctx context.Context) error {
	err := f.doc.Delete(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// MemoryStorage is an in-process TokenStorage.
type MemoryStorage struct {
	mu sync.Mutex
	s  Session
}

func (m *MemoryStorage) Load(context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.s
	return &s, nil
}

func (m *MemoryStorage) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	m.s = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Clear(context.Context) error {
	m.mu.Lock()
	m.s = Session{}
	m.mu.Unlock()
	return nil
}

// Package store persists staff identities and mail bookkeeping. Call sites
// depend on the Repository and Singleton interfaces so the JSON-file backend
// and the MongoDB backend are interchangeable.
package store

import (
	"context"
	"errors"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
)

var (
	// ErrNotFound is returned when a record or singleton document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint
	// enforced by the backend itself.
	ErrDuplicate = errors.New("duplicate key")
)

// Record is anything stored in a key-indexed collection.
type Record interface {
	Key() string
}

// Repository is a key-indexed, insertion-ordered collection.
type Repository[T Record] interface {
	// Get returns the record with the given key or ErrNotFound.
	Get(ctx context.Context, id string) (*T, error)
	// Put replaces the record with the same key, or appends it.
	Put(ctx context.Context, rec T) error
	// Insert appends rec after check approves the current contents. check
	// runs inside the write critical section.
	Insert(ctx context.Context, rec T, check func(existing []T) error) error
	// Delete removes the record with the given key or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// Scan returns every record for which pred is true, in stored order.
	// A nil pred matches everything.
	Scan(ctx context.Context, pred func(*T) bool) ([]T, error)
	// Update runs fn on the record with the given key and persists the
	// result as one read-modify-write critical section.
	Update(ctx context.Context, id string, fn func(*T) error) (*T, error)
	// UpdateChecked is Update with a check over every stored record,
	// including the one being updated, run in the same critical section
	// before fn.
	UpdateChecked(ctx context.Context, id string, check func(existing []T) error, fn func(*T) error) (*T, error)
}

// Singleton is a single document addressed by name.
type Singleton[T any] interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context) (*T, error)
	Put(ctx context.Context, doc T) error
	// Update passes the current document (nil when missing) to fn and
	// persists what fn returns.
	Update(ctx context.Context, fn func(cur *T) (T, error)) (*T, error)
	Delete(ctx context.Context) error
}

// IdentityStore groups the staff user list with the admin singleton.
type IdentityStore interface {
	Users() Repository[models.User]
	AdminCredentials() Singleton[models.AdminCredentials]
	AdminToken() Singleton[models.AdminToken]
	Close(ctx context.Context) error
}

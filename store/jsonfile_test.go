package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func (i item) Key() string { return i.ID }

func TestCollection_CRUD(t *testing.T) {
	ctx := context.Background()
	c := NewCollection[item](filepath.Join(t.TempDir(), "items.json"))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := c.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, c.Put(ctx, item{ID: "a", Count: 1}))
	require.NoError(t, c.Put(ctx, item{ID: "b", Count: 2}))
	require.NoError(t, c.Put(ctx, item{ID: "a", Count: 3}))

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)

	all, err = c.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []item{{"a", 3}, {"b", 2}}, all, "replace keeps position")

	big, err := c.Scan(ctx, func(i *item) bool { return i.Count > 2 })
	require.NoError(t, err)
	assert.Equal(t, []item{{"a", 3}}, big)

	require.NoError(t, c.Delete(ctx, "a"))
	assert.ErrorIs(t, c.Delete(ctx, "a"), ErrNotFound)

	all, err = c.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []item{{"b", 2}}, all)
}

func TestCollection_InsertCheckRejects(t *testing.T) {
	ctx := context.Background()
	c := NewCollection[item](filepath.Join(t.TempDir(), "items.json"))
	errDup := errors.New("dup")
	check := func(existing []item) error {
		for _, e := range existing {
			if e.ID == "x" {
				return errDup
			}
		}
		return nil
	}
	require.NoError(t, c.Insert(ctx, item{ID: "x"}, check))
	assert.ErrorIs(t, c.Insert(ctx, item{ID: "x"}, check), errDup)

	all, err := c.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCollection_UpdateIsCriticalSection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "items.json")
	c := NewCollection[item](path)
	require.NoError(t, c.Put(ctx, item{ID: "n"}))

	// A second handle on the same path shares the lock.
	other := NewCollection[item](path)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := c
			if i%2 == 0 {
				target = other
			}
			_, err := target.Update(ctx, "n", func(it *item) error {
				it.Count++
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := c.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Count)
}

func TestCollection_UpdateErrorsLeaveFileUntouched(t *testing.T) {
	ctx := context.Background()
	c := NewCollection[item](filepath.Join(t.TempDir(), "items.json"))
	require.NoError(t, c.Put(ctx, item{ID: "k", Count: 1}))

	boom := errors.New("boom")
	_, err := c.Update(ctx, "k", func(it *item) error {
		it.Count = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = c.Update(ctx, "k", func(it *item) error {
		it.ID = "other"
		return nil
	})
	assert.Error(t, err)

	_, err = c.Update(ctx, "missing", func(*item) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)
}

func TestCollection_UpdateCheckedSeesAllRecords(t *testing.T) {
	ctx := context.Background()
	c := NewCollection[item](filepath.Join(t.TempDir(), "items.json"))
	require.NoError(t, c.Put(ctx, item{ID: "a", Count: 1}))
	require.NoError(t, c.Put(ctx, item{ID: "b", Count: 2}))

	taken := errors.New("count taken")
	unique := func(want int) func([]item) error {
		return func(existing []item) error {
			for _, it := range existing {
				if it.ID != "a" && it.Count == want {
					return taken
				}
			}
			return nil
		}
	}
	_, err := c.UpdateChecked(ctx, "a", unique(2), func(it *item) error {
		it.Count = 2
		return nil
	})
	assert.ErrorIs(t, err, taken)

	got, err := c.UpdateChecked(ctx, "a", unique(3), func(it *item) error {
		it.Count = 3
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)

	_, err = c.UpdateChecked(ctx, "missing", unique(4), func(*item) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollection_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	c := NewCollection[item](path)
	_, err := c.Scan(context.Background(), nil)
	assert.Error(t, err)
}

func TestCollection_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCollection[item](filepath.Join(t.TempDir(), "items.json"))
	assert.ErrorIs(t, c.Put(ctx, item{ID: "a"}), context.Canceled)
}

func TestDocument_Lifecycle(t *testing.T) {
	ctx := context.Background()
	d := NewDocument[models.AdminToken](filepath.Join(t.TempDir(), "token.json"))

	_, err := d.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, d.Delete(ctx), ErrNotFound)

	got, err := d.Update(ctx, func(cur *models.AdminToken) (models.AdminToken, error) {
		assert.Nil(t, cur)
		return models.AdminToken{Username: "root", Token: "t1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", got.Token)

	got, err = d.Update(ctx, func(cur *models.AdminToken) (models.AdminToken, error) {
		require.NotNil(t, cur)
		next := *cur
		next.PrevToken = cur.Token
		next.Token = "t2"
		return next, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", got.PrevToken)

	require.NoError(t, d.Delete(ctx))
	_, err = d.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileIdentityStore_Files(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := NewFileIdentityStore(dir)
	require.NoError(t, err)
	defer s.Close(ctx)

	require.NoError(t, s.Users().Put(ctx, models.User{ID: "u1", Username: "ed"}))
	require.NoError(t, s.AdminCredentials().Put(ctx, models.AdminCredentials{Username: "root"}))

	assert.FileExists(t, filepath.Join(dir, UsersFile))
	assert.FileExists(t, filepath.Join(dir, AdminCredentialsFile))
	assert.Equal(t, dir, s.Dir())
}

func TestEmailSettingsStore_SealsPassword(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sealer, err := utils.NewSealer(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	s := NewEmailSettingsStore(dir, sealer)

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, s.Save(ctx, models.EmailSettings{Provider: "gmail", Email: "shop@example.com", Password: "app-pass"}))

	raw, err := os.ReadFile(filepath.Join(dir, EmailSettingsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "app-pass")

	cfg, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app-pass", cfg.Password)
	assert.False(t, cfg.UpdatedAt.IsZero())
}

func TestEmailLogStore(t *testing.T) {
	ctx := context.Background()
	s := NewEmailLogStore(t.TempDir())
	require.NoError(t, s.InsertEmailLog(ctx, models.EmailLog{Kind: "reset_code", ToEmail: "a@example.com"}))
	require.NoError(t, s.InsertEmailLog(ctx, models.EmailLog{Kind: "order_confirmation", ToEmail: "b@example.com"}))

	logs, err := s.ListByRecipient(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.NotEmpty(t, logs[0].ID)
}

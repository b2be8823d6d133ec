package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileLocks serializes access per absolute file path across every
// Collection and Document in the process.
var fileLocks sync.Map // map[string]*sync.Mutex

func lockFor(path string) *sync.Mutex {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	mu, _ := fileLocks.LoadOrStore(abs, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// readJSON decodes path into v. A missing or empty file leaves v untouched
// and reports found=false.
func readJSON(path string, v any) (found bool, err error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON replaces path atomically: temp file in the same directory, then
// rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Collection is a Repository backed by one JSON array file that is read and
// rewritten in full on every operation.
type Collection[T Record] struct {
	path string
	mu   *sync.Mutex
}

// NewCollection returns a collection stored at path. The file is created on
// first write.
func NewCollection[T Record](path string) *Collection[T] {
	return &Collection[T]{path: path, mu: lockFor(path)}
}

// Path returns the backing file.
func (c *Collection[T]) Path() string { return c.path }

func (c *Collection[T]) load() ([]T, error) {
	var recs []T
	if _, err := readJSON(c.path, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Collection[T]) save(recs []T) error {
	if recs == nil {
		recs = []T{}
	}
	return writeJSON(c.path, recs)
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, err := c.load()
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Key() == id {
			rec := recs[i]
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (c *Collection[T]) Put(ctx context.Context, rec T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, err := c.load()
	if err != nil {
		return err
	}
	for i := range recs {
		if recs[i].Key() == rec.Key() {
			recs[i] = rec
			return c.save(recs)
		}
	}
	return c.save(append(recs, rec))
}

func (c *Collection[T]) Insert(ctx context.Context, rec T, check func(existing []T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, err := c.load()
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(recs); err != nil {
			return err
		}
	}
	return c.save(append(recs, rec))
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, err := c.load()
	if err != nil {
		return err
	}
	for i := range recs {
		if recs[i].Key() == id {
			return c.save(append(recs[:i], recs[i+1:]...))
		}
	}
	return ErrNotFound
}

func (c *Collection[T]) Scan(ctx context.Context, pred func(*T) bool) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, err := c.load()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for i := range recs {
		if pred == nil || pred(&recs[i]) {
			out = append(out, recs[i])
		}
	}
	return out, nil
}

func (c *Collection[T]) Update(ctx context.Context, id string, fn func(*T) error) (*T, error) {
	return c.UpdateChecked(ctx, id, nil, fn)
}

func (c *Collection[T]) UpdateChecked(ctx context.Context, id string, check func(existing []T) error, fn func(*T) error) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, err := c.load()
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Key() != id {
			continue
		}
		if check != nil {
			if err := check(recs); err != nil {
				return nil, err
			}
		}
		rec := recs[i]
		if err := fn(&rec); err != nil {
			return nil, err
		}
		if rec.Key() != id {
			return nil, fmt.Errorf("update of %q changed its key", id)
		}
		recs[i] = rec
		if err := c.save(recs); err != nil {
			return nil, err
		}
		return &rec, nil
	}
	return nil, ErrNotFound
}

// Document is a Singleton backed by one JSON object file.
type Document[T any] struct {
	path string
	mu   *sync.Mutex
}

// NewDocument returns a singleton stored at path.
func NewDocument[T any](path string) *Document[T] {
	return &Document[T]{path: path, mu: lockFor(path)}
}

func (d *Document[T]) load() (*T, error) {
	var doc T
	found, err := readJSON(d.path, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (d *Document[T]) Get(ctx context.Context) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load()
}

func (d *Document[T]) Put(ctx context.Context, doc T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return writeJSON(d.path, doc)
}

func (d *Document[T]) Update(ctx context.Context, fn func(cur *T) (T, error)) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, err := d.load()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if err := writeJSON(d.path, next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (d *Document[T]) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	err := os.Remove(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

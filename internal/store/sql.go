package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

type sqlBackend struct {
	repo   repository.KVRepository
	prefix string
	driver string
	now    func() time.Time
}

// NewSQLStore stores blobs as rows of the kv_entries table (SQLite or PostgreSQL).
func NewSQLStore(repo repository.KVRepository, driver, prefix string, maxBytes int) Store {
	return newJSONStore(&sqlBackend{repo: repo, prefix: prefix, driver: driver, now: time.Now}, maxBytes)
}

func (b *sqlBackend) name() string { return b.driver }

func (b *sqlBackend) get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.repo.Get(ctx, b.prefix+key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(entry.Value), nil
}

func (b *sqlBackend) put(ctx context.Context, key string, value []byte) error {
	return b.repo.Put(ctx, &models.KVEntry{
		Key:       b.prefix + key,
		Value:     datatypes.JSON(value),
		UpdatedAt: b.now(),
	})
}

func (b *sqlBackend) del(ctx context.Context, key string) error {
	return b.repo.Delete(ctx, b.prefix+key)
}

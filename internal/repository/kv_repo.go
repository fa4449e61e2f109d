package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grader/internal/models"
)

// KVRepository persists JSON blobs addressed by key.
type KVRepository interface {
	Get(ctx context.Context, key string) (models.KVEntry, error)
	Put(ctx context.Context, entry *models.KVEntry) error
	Delete(ctx context.Context, key string) error
}

type kvRepository struct {
	db *gorm.DB
}

// NewKVRepository constructs a repository for key-value rows.
func NewKVRepository(db *gorm.DB) KVRepository {
	return &kvRepository{db: db}
}

func (r *kvRepository) Get(ctx context.Context, key string) (models.KVEntry, error) {
	var entry models.KVEntry
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	return entry, err
}

func (r *kvRepository) Put(ctx context.Context, entry *models.KVEntry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry).Error
}

func (r *kvRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("key = ?", key).Delete(&models.KVEntry{}).Error
}

package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// Open builds the store selected by cfg.StoreDriver. The returned close function releases
// the underlying connection and is never nil.
func Open(ctx context.Context, cfg config.Config) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		return NewMemoryStore(cfg.StoreMaxValueBytes), noop, nil
	case config.StoreDriverRedis:
		client, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return NewRedisStore(client, cfg.StoreKeyPrefix, cfg.StoreMaxValueBytes), client.Close, nil
	case config.StoreDriverSQLite, config.StoreDriverPostgres:
		var (
			db  *gorm.DB
			err error
		)
		if cfg.StoreDriver == config.StoreDriverPostgres {
			db, err = database.ConnectPostgres(cfg.DatabaseURL)
		} else {
			db, err = database.ConnectSQLite(cfg.StoreSQLitePath)
		}
		if err != nil {
			return nil, noop, err
		}
		if err := db.WithContext(ctx).AutoMigrate(&models.KVEntry{}); err != nil {
			return nil, noop, fmt.Errorf("failed to migrate kv store: %w", err)
		}
		closeFn := noop
		if sqlDB, err := db.DB(); err == nil {
			closeFn = sqlDB.Close
		}
		return NewSQLStore(repository.NewKVRepository(db), cfg.StoreDriver, cfg.StoreKeyPrefix, cfg.StoreMaxValueBytes), closeFn, nil
	default:
		return nil, noop, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

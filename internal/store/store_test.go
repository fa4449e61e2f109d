package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

func storesUnderTest(t *testing.T, maxBytes int) map[string]Store {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.KVEntry{}))

	return map[string]Store{
		"memory": NewMemoryStore(maxBytes),
		"redis":  NewRedisStore(redisClient, "grader:", maxBytes),
		"sqlite": NewSQLStore(repository.NewKVRepository(db), "sqlite", "grader:", maxBytes),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range storesUnderTest(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var missing models.EditorSettings
			require.True(t, errors.Is(s.Load(ctx, KeyEditorSettings, &missing), ErrNotFound))

			want := models.EditorSettings{AutoSaveEnabled: false, AutoSaveIntervalSeconds: 15}
			require.NoError(t, s.Save(ctx, KeyEditorSettings, want))

			var got models.EditorSettings
			require.NoError(t, s.Load(ctx, KeyEditorSettings, &got))
			require.Equal(t, want, got)

			require.NoError(t, s.Remove(ctx, KeyEditorSettings))
			require.True(t, errors.Is(s.Load(ctx, KeyEditorSettings, &got), ErrNotFound))
			require.Equal(t, name, s.Backend())
		})
	}
}

func TestStoreQuotaExceeded(t *testing.T) {
	for name, s := range storesUnderTest(t, 64) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			large := models.WorkspaceCache{Version: 1, StatusText: strings.Repeat("x", 128)}

			err := s.Save(ctx, KeyWorkspace, large)
			require.ErrorIs(t, err, ErrQuotaExceeded)

			var got models.WorkspaceCache
			require.ErrorIs(t, s.Load(ctx, KeyWorkspace, &got), ErrNotFound)
		})
	}
}

func TestRedisStoreUsesPrefix(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	s := NewRedisStore(client, "desk-a:", 0)

	require.NoError(t, s.Save(context.Background(), KeyTheme, models.ThemeLight))
	raw, err := mini.Get("desk-a:" + KeyTheme)
	require.NoError(t, err)
	require.Equal(t, `"light"`, raw)
}

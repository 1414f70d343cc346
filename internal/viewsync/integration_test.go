//go:build integration

package viewsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kosench/shortlink/internal/logger"
	"github.com/Kosench/shortlink/internal/repository"
	"github.com/Kosench/shortlink/internal/service"
	"github.com/Kosench/shortlink/internal/testutils"
	"github.com/Kosench/shortlink/internal/viewsync"
)

func TestViewSync_PostgresRedis(t *testing.T) {
	env := testutils.SetupEnvironment(t)
	ctx := context.Background()
	log := logger.Discard()

	repo := repository.NewPostgresURLRepository(env.DB)
	keys := env.Redis.GetKeyBuilder()

	svc := service.NewURLService(repo, env.Redis, service.Options{
		BaseURL:  "http://localhost:8080",
		CacheTTL: time.Hour,
		Keys:     keys,
		Logger:   log,
	})
	syncer := viewsync.New(env.Redis, repo, viewsync.Config{
		Interval:     15 * time.Minute,
		LowWaterMark: 15 * time.Minute,
		CacheTTL:     time.Hour,
		Keys:         keys,
		Logger:       log,
	})

	code, err := svc.Create(ctx, "https://example.com/integration")
	require.NoError(t, err)

	again, err := svc.Create(ctx, "https://example.com/integration")
	require.NoError(t, err)
	assert.Equal(t, code, again)

	for i := 0; i < 3; i++ {
		original, err := svc.Resolve(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/integration", original)
	}

	count, err := svc.GetAccessCount(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	res, err := syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flushed)
	assert.Equal(t, int64(3), res.Views)

	stored, err := repo.FindByShortCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.AccessCount)

	pending, err := env.Redis.GetInt64(ctx, keys.Views(code))
	require.NoError(t, err)
	assert.Zero(t, pending)

	count, err = svc.GetAccessCount(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Запись кэша свежая: вытеснения нет
	assert.Zero(t, res.Evicted)
	_, err = env.Redis.GetString(ctx, keys.URL(code))
	assert.NoError(t, err)
}

func TestViewSync_OrphanCounterIsIgnored(t *testing.T) {
	env := testutils.SetupEnvironment(t)
	ctx := context.Background()

	repo := repository.NewPostgresURLRepository(env.DB)
	keys := env.Redis.GetKeyBuilder()
	syncer := viewsync.New(env.Redis, repo, viewsync.Config{Keys: keys, Logger: logger.Discard()})

	_, err := env.Redis.IncrementWithTTL(ctx, keys.Views("ghost"), 5, time.Hour)
	require.NoError(t, err)

	res, err := syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Orphans)
	assert.Zero(t, res.Flushed)

	pending, err := env.Redis.GetInt64(ctx, keys.Views("ghost"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), pending)
}

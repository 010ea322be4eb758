package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"diary/internal/config"
	"diary/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Env:             "test",
		StorageDriver:   config.StorageMemory,
		CacheTTLSeconds: 60,
	}
}

func TestInitRuntimeMemoryWithoutRedis(t *testing.T) {
	rt, err := InitRuntime(memoryConfig(), Options{})
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.DB)
	assert.Nil(t, rt.Redis)
	assert.IsType(t, &repository.MemoryStore{}, rt.Store)
}

func TestInitRuntimeConnectsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisURL = mr.Addr()

	rt, err := InitRuntime(cfg, Options{})
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Redis)
	assert.NoError(t, rt.Redis.Ping(context.Background()).Err())
}

func TestInitRuntimeSQLiteUsesGormStore(t *testing.T) {
	cfg := memoryConfig()
	cfg.StorageDriver = config.StorageSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "diary.db")

	rt, err := InitRuntime(cfg, Options{})
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.DB)
	assert.IsType(t, &repository.GormStore{}, rt.Store)
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	cfg := memoryConfig()
	store := repository.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, seedDemo(cfg, store))
	first, err := store.GetUserByUsername(ctx, "demo_1")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, seedDemo(cfg, store))
	entries, err := store.GetEntries(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	fourth, err := store.GetUserByUsername(ctx, "demo_4")
	require.NoError(t, err)
	assert.Nil(t, fourth)
}

func TestSeedDemoRefusedInProduction(t *testing.T) {
	cfg := memoryConfig()
	cfg.Env = "production"
	assert.Error(t, seedDemo(cfg, repository.NewMemoryStore()))
}

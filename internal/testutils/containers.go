package testutils

import (
	"context"
	"database/sql"
	"net"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Kosench/shortlink/internal/cache"
	"github.com/Kosench/shortlink/internal/database"
	"github.com/Kosench/shortlink/internal/logger"
)

// Environment - Postgres и Redis в контейнерах для интеграционных тестов.
// Контейнеры останавливаются автоматически в t.Cleanup.
type Environment struct {
	DB    *sql.DB
	Redis *cache.RedisClient
}

// SetupEnvironment поднимает оба контейнера и применяет миграции
func SetupEnvironment(t testing.TB) *Environment {
	t.Helper()

	return &Environment{
		DB:    setupPostgres(t),
		Redis: setupRedis(t),
	}
}

func setupPostgres(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shortlink"),
		tcpostgres.WithUsername("shortlink"),
		tcpostgres.WithPassword("shortlink"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := database.Connect(dsn, database.PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(db, logger.Discard()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func setupRedis(t testing.TB) *cache.RedisClient {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		t.Fatalf("failed to parse redis endpoint %q: %v", endpoint, err)
	}

	client, err := cache.NewRedisClient(cache.RedisConfig{
		Host:         host,
		Port:         port,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client
}

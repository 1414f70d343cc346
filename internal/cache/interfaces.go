package cache

import (
	"context"
	"time"
)

// KeyValueStore - кэш с TTL и атомарными счетчиками.
// Операции над разными ключами не атомарны относительно друг друга.
type KeyValueStore interface {
	// Строковые значения (запись кэша short:{code})
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error

	// Счетчики. IncrementBy создает ключ со значением delta, если его нет.
	GetInt64(ctx context.Context, key string) (int64, error)
	IncrementBy(ctx context.Context, key string, delta int64) (int64, error)
	IncrementWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	DecrementBy(ctx context.Context, key string, delta int64) (int64, error)

	// TTL и удаление. GetTTL возвращает ErrCacheMiss для отсутствующего ключа
	// и отрицательную длительность для ключа без срока жизни.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	GetTTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, keys ...string) error

	// ScanKeys - снимок ключей по паттерну, без изоляции
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// RateLimiter - интерфейс для rate limiting
type RateLimiter interface {
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// HealthChecker - проверка соединения
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

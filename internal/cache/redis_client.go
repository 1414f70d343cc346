package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Проверяем, что RedisClient реализует все интерфейсы
var (
	_ KeyValueStore = (*RedisClient)(nil)
	_ RateLimiter   = (*RedisClient)(nil)
	_ HealthChecker = (*RedisClient)(nil)
)

// scanBatchSize - подсказка COUNT для SCAN
const scanBatchSize = 100

// RedisClient - реализация кэша на основе Redis
type RedisClient struct {
	client     *redis.Client
	keyBuilder *KeyBuilder
}

// RedisConfig - конфигурация для Redis
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	Namespace    string // опциональный namespace для ключей
}

// NewRedisClient создает новый Redis клиент
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Проверяем подключение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, NewCacheError("connect", "", fmt.Errorf("failed to connect to Redis: %w", err))
	}

	return &RedisClient{
		client:     client,
		keyBuilder: NewKeyBuilder(cfg.Namespace),
	}, nil
}

// === Строковые значения ===

// GetString получает строковое значение
func (r *RedisClient) GetString(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", NewCacheError("get", key, ErrInvalidCacheKey)
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", NewCacheError("get", key, err)
	}

	return value, nil
}

// SetString сохраняет строковое значение с TTL
func (r *RedisClient) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	if key == "" {
		return NewCacheError("set", key, ErrInvalidCacheKey)
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return NewCacheError("set", key, err)
	}

	return nil
}

// === Счетчики ===

// GetInt64 получает значение счетчика
func (r *RedisClient) GetInt64(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, NewCacheError("get", key, ErrInvalidCacheKey)
	}

	result, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, NewCacheError("get", key, err)
	}

	return result, nil
}

// IncrementBy атомарно увеличивает счетчик (INCRBY создает ключ, если его нет)
func (r *RedisClient) IncrementBy(ctx context.Context, key string, delta int64) (int64, error) {
	if key == "" {
		return 0, NewCacheError("incrby", key, ErrInvalidCacheKey)
	}

	result, err := r.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, NewCacheError("incrby", key, err)
	}

	return result, nil
}

// IncrementWithTTL увеличивает счетчик и обновляет его TTL одним pipeline
func (r *RedisClient) IncrementWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, NewCacheError("incrby", key, ErrInvalidCacheKey)
	}

	pipe := r.client.Pipeline()

	incr := pipe.IncrBy(ctx, key, delta)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, NewCacheError("incrby", key, err)
	}

	return incr.Val(), nil
}

// DecrementBy атомарно уменьшает счетчик
func (r *RedisClient) DecrementBy(ctx context.Context, key string, delta int64) (int64, error) {
	if key == "" {
		return 0, NewCacheError("decrby", key, ErrInvalidCacheKey)
	}

	result, err := r.client.DecrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, NewCacheError("decrby", key, err)
	}

	return result, nil
}

// === TTL и удаление ===

// Expire устанавливает TTL существующему ключу
func (r *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return NewCacheError("expire", key, ErrInvalidCacheKey)
	}

	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return NewCacheError("expire", key, err)
	}

	return nil
}

// GetTTL возвращает оставшееся время жизни ключа
func (r *RedisClient) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, NewCacheError("ttl", key, err)
	}

	// -2: ключа нет, -1: ключ без срока жизни
	if ttl == -2 {
		return 0, ErrCacheMiss
	}

	return ttl, nil
}

// Delete удаляет значения из кэша
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	// Фильтруем пустые ключи
	validKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			validKeys = append(validKeys, key)
		}
	}

	if len(validKeys) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, validKeys...).Err(); err != nil {
		return NewCacheError("delete", "", err)
	}

	return nil
}

// ScanKeys возвращает ключи по паттерну через курсорный SCAN.
// SCAN может вернуть один ключ дважды, поэтому результат дедуплицируется.
func (r *RedisClient) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	var cursor uint64

	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, NewCacheError("scan", pattern, err)
		}

		for _, key := range batch {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// === RateLimiter ===

// IncrementRateLimit увеличивает счетчик окна rate limiting.
// TTL ставится, только если у ключа его нет, чтобы окно не сдвигалось.
// Ключ без TTL (например, после неудачного EXPIRE) получает его на следующем запросе.
func (r *RedisClient) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.Pipeline()

	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, NewCacheError("incr", key, err)
	}

	// -1: ключ без срока жизни
	if ttl.Val() < 0 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return incr.Val(), NewCacheError("expire", key, err)
		}
	}

	return incr.Val(), nil
}

// HealthCheck проверяет соединение с Redis
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewCacheError("ping", "", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisClient) Close() error {
	if err := r.client.Close(); err != nil {
		return NewCacheError("close", "", err)
	}
	return nil
}

// GetKeyBuilder возвращает построитель ключей
func (r *RedisClient) GetKeyBuilder() *KeyBuilder {
	return r.keyBuilder
}

// Package testutils содержит in-memory реализации хранилищ для unit-тестов.
package testutils

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Kosench/shortlink/internal/cache"
)

var _ cache.KeyValueStore = (*MemoryKV)(nil)

// MemoryKV - потокобезопасная имитация Redis с TTL и ленивым истечением ключей.
// Время управляется вручную через Advance.
type MemoryKV struct {
	mu      sync.Mutex
	now     time.Time
	values  map[string]string
	expires map[string]time.Time
	fail    map[string]error

	// Calls считает вызовы по имени операции
	Calls map[string]int
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		now:     time.Date(2025, 7, 26, 12, 0, 0, 0, time.UTC),
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		fail:    make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// Now возвращает текущее время имитации
func (m *MemoryKV) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance сдвигает часы имитации вперед
func (m *MemoryKV) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// FailOn заставляет операцию op возвращать err; nil снимает ошибку
func (m *MemoryKV) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// Has сообщает, жив ли ключ
func (m *MemoryKV) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key)
	return ok
}

// Value возвращает сырое значение ключа
func (m *MemoryKV) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(key)
}

// Put записывает значение напрямую, минуя счетчики вызовов
func (m *MemoryKV) Put(key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.setTTL(key, ttl)
}

func (m *MemoryKV) GetString(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("get"); err != nil {
		return "", err
	}

	value, ok := m.lookup(key)
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return value, nil
}

func (m *MemoryKV) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("set"); err != nil {
		return err
	}

	m.values[key] = value
	m.setTTL(key, ttl)
	return nil
}

func (m *MemoryKV) GetInt64(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("getint"); err != nil {
		return 0, err
	}

	value, ok := m.lookup(key)
	if !ok {
		return 0, cache.ErrCacheMiss
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, cache.NewCacheError("get", key, err)
	}
	return n, nil
}

func (m *MemoryKV) IncrementBy(ctx context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("incrby"); err != nil {
		return 0, err
	}
	return m.incr(key, delta)
}

func (m *MemoryKV) IncrementWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("incrby"); err != nil {
		return 0, err
	}
	n, err := m.incr(key, delta)
	if err != nil {
		return 0, err
	}
	m.setTTL(key, ttl)
	return n, nil
}

func (m *MemoryKV) DecrementBy(ctx context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("decrby"); err != nil {
		return 0, err
	}
	return m.incr(key, -delta)
}

func (m *MemoryKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("expire"); err != nil {
		return err
	}
	if _, ok := m.lookup(key); ok {
		m.setTTL(key, ttl)
	}
	return nil
}

func (m *MemoryKV) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("ttl"); err != nil {
		return 0, err
	}
	if _, ok := m.lookup(key); !ok {
		return 0, cache.ErrCacheMiss
	}
	exp, ok := m.expires[key]
	if !ok {
		return -1, nil
	}
	return exp.Sub(m.now), nil
}

func (m *MemoryKV) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("delete"); err != nil {
		return err
	}
	for _, key := range keys {
		delete(m.values, key)
		delete(m.expires, key)
	}
	return nil
}

func (m *MemoryKV) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("scan"); err != nil {
		return nil, err
	}

	var keys []string
	for key := range m.values {
		if _, ok := m.lookup(key); !ok {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryKV) enter(op string) error {
	m.Calls[op]++
	return m.fail[op]
}

// lookup возвращает значение с учетом истечения TTL; вызывается под mu
func (m *MemoryKV) lookup(key string) (string, bool) {
	if exp, ok := m.expires[key]; ok && !m.now.Before(exp) {
		delete(m.values, key)
		delete(m.expires, key)
		return "", false
	}
	value, ok := m.values[key]
	return value, ok
}

func (m *MemoryKV) setTTL(key string, ttl time.Duration) {
	if ttl > 0 {
		m.expires[key] = m.now.Add(ttl)
	} else {
		delete(m.expires, key)
	}
}

func (m *MemoryKV) incr(key string, delta int64) (int64, error) {
	var current int64
	if value, ok := m.lookup(key); ok {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, cache.NewCacheError("incrby", key, err)
		}
		current = n
	}
	current += delta
	m.values[key] = strconv.FormatInt(current, 10)
	return current, nil
}

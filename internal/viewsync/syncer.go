// Package viewsync переносит счетчики просмотров из Redis в Postgres.
//
// Каждая итерация:
//  1. SCAN short:*:views - снимок ключей счетчиков;
//  2. чтение значения и поиск записи в БД (ключи без записи пропускаются);
//  3. один пакетный UPDATE access_count = access_count + delta;
//  4. только после успешного коммита: удаление записей кэша с TTL ниже
//     low-water mark и DECRBY счетчика ровно на сброшенное значение.
//
// Нулевые счетчики в пакет не попадают, но для них тоже проверяется low-water mark:
// иначе запись кэша истечет вместе со счетчиком, и просмотры между ними пропадут.
//
// Просмотры, пришедшие между чтением и DECRBY, остаются в счетчике до следующей итерации.
// Если коммит не прошел, счетчики не трогаются и те же значения уйдут в следующий раз.
package viewsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kosench/shortlink/internal/cache"
	apperrors "github.com/Kosench/shortlink/internal/errors"
	"github.com/Kosench/shortlink/internal/model"
	"github.com/Kosench/shortlink/internal/repository"
)

const (
	DefaultInterval     = 15 * time.Minute
	DefaultLowWaterMark = 15 * time.Minute
	DefaultCacheTTL     = time.Hour
)

var (
	// ErrAlreadyRunning возвращается вторым одновременным вызовом Run
	ErrAlreadyRunning = errors.New("view sync is already running")

	// ErrSyncInProgress возвращается SyncOnce, если итерация уже идет
	ErrSyncInProgress = errors.New("view sync iteration in progress")
)

// Config - параметры синхронизации. Нулевые значения заменяются значениями по умолчанию.
type Config struct {
	Interval     time.Duration
	LowWaterMark time.Duration
	// CacheTTL - срок, на который продлевается счетчик после вытеснения записи кэша
	CacheTTL time.Duration
	Keys     *cache.KeyBuilder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Result - итоги одной итерации
type Result struct {
	Scanned int
	Flushed int
	Views   int64
	Skipped int
	Orphans int
	Failed  int
	Evicted int
}

type pendingFlush struct {
	key       string
	shortCode string
	views     int64
}

// Syncer - единственная на процесс фоновая задача синхронизации счетчиков
type Syncer struct {
	kv   cache.KeyValueStore
	repo repository.URLRepository

	interval     time.Duration
	lowWaterMark time.Duration
	cacheTTL     time.Duration
	keys         *cache.KeyBuilder
	logger       *slog.Logger
	now          func() time.Time

	running atomic.Bool
	iterMu  sync.Mutex
}

func New(kv cache.KeyValueStore, repo repository.URLRepository, cfg Config) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LowWaterMark <= 0 {
		cfg.LowWaterMark = DefaultLowWaterMark
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Keys == nil {
		cfg.Keys = cache.DefaultKeyBuilder
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Syncer{
		kv:           kv,
		repo:         repo,
		interval:     cfg.Interval,
		lowWaterMark: cfg.LowWaterMark,
		cacheTTL:     cfg.CacheTTL,
		keys:         cfg.Keys,
		logger:       cfg.Logger.With("component", "view_sync"),
		now:          cfg.Now,
	}
}

// Run выполняет итерации до отмены ctx: итерация, затем пауза interval.
// Ошибки итерации логируются и не останавливают цикл.
func (s *Syncer) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("view sync started",
		"interval", s.interval,
		"low_water_mark", s.lowWaterMark)

	for {
		if ctx.Err() != nil {
			break
		}

		s.iterate(ctx)

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	s.logger.Info("view sync stopped")
	return nil
}

func (s *Syncer) iterate(ctx context.Context) {
	started := time.Now()

	res, err := s.SyncOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Info("view sync iteration cancelled", "scanned", res.Scanned)
			return
		}
		s.logger.Error("view sync iteration failed", "error", err, "scanned", res.Scanned)
		return
	}

	s.logger.Info("view sync finished",
		"scanned", res.Scanned,
		"flushed", res.Flushed,
		"views", res.Views,
		"skipped", res.Skipped,
		"orphans", res.Orphans,
		"failed", res.Failed,
		"evicted", res.Evicted,
		"duration", time.Since(started))
}

// SyncOnce выполняет ровно одну итерацию синхронизации
func (s *Syncer) SyncOnce(ctx context.Context) (Result, error) {
	var res Result

	if !s.iterMu.TryLock() {
		return res, ErrSyncInProgress
	}
	defer s.iterMu.Unlock()

	keys, err := s.kv.ScanKeys(ctx, s.keys.ViewsPattern())
	if err != nil {
		return res, fmt.Errorf("failed to scan view counters: %w", err)
	}
	res.Scanned = len(keys)

	pending := make([]pendingFlush, 0, len(keys))
	for _, key := range keys {
		// Отмена до коммита: ничего не сбрасываем
		if err := ctx.Err(); err != nil {
			return res, err
		}

		p, ok := s.collect(ctx, key, &res)
		if ok {
			pending = append(pending, p)
		}
	}

	if len(pending) == 0 {
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	now := s.now().UTC()
	updates := make([]model.AccessUpdate, 0, len(pending))
	for _, p := range pending {
		updates = append(updates, model.AccessUpdate{
			ShortCode:  p.shortCode,
			Delta:      p.views,
			ModifiedAt: now,
		})
	}

	if err := s.repo.BatchUpdate(ctx, updates); err != nil {
		return res, fmt.Errorf("failed to commit view counts: %w", err)
	}

	// После коммита счетчики обязаны быть уменьшены даже при отмене ctx,
	// иначе следующая итерация сбросит те же просмотры повторно.
	postCtx := context.WithoutCancel(ctx)
	for _, p := range pending {
		res.Flushed++
		res.Views += p.views

		evicted, err := s.retireCacheEntry(postCtx, p, true)
		if err != nil {
			s.logger.Warn("failed to retire cache entry", "short_code", p.shortCode, "error", err)
		}
		if evicted {
			res.Evicted++
		}

		if _, err := s.kv.DecrementBy(postCtx, p.key, p.views); err != nil {
			res.Failed++
			s.logger.Error("failed to decrement view counter after commit",
				"short_code", p.shortCode,
				"views", p.views,
				"error", err)
		}
	}

	return res, nil
}

// collect читает счетчик и проверяет, что для него есть запись в БД
func (s *Syncer) collect(ctx context.Context, key string, res *Result) (pendingFlush, bool) {
	shortCode, ok := s.keys.ParseViews(key)
	if !ok {
		res.Skipped++
		s.logger.Warn("skipping malformed view counter key", "key", key)
		return pendingFlush{}, false
	}

	views, err := s.kv.GetInt64(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		res.Skipped++
		return pendingFlush{}, false
	}
	if err == nil && views <= 0 {
		res.Skipped++
		s.retireIdle(ctx, pendingFlush{key: key, shortCode: shortCode}, res)
		return pendingFlush{}, false
	}
	if err != nil {
		res.Failed++
		s.logger.Warn("failed to read view counter", "short_code", shortCode, "error", err)
		return pendingFlush{}, false
	}

	if _, err := s.repo.FindByShortCode(ctx, shortCode); err != nil {
		if errors.Is(err, apperrors.ErrURLNotFound) {
			res.Orphans++
			s.logger.Warn("skipping orphan view counter", "short_code", shortCode, "views", views)
			return pendingFlush{}, false
		}
		res.Failed++
		s.logger.Warn("failed to look up URL for view counter", "short_code", shortCode, "error", err)
		return pendingFlush{}, false
	}

	return pendingFlush{key: key, shortCode: shortCode, views: views}, true
}

// retireIdle применяет low-water mark к счетчику без несброшенных просмотров.
// Запись кэша есть только у открытых ссылок, поэтому поиск в БД не нужен;
// нулевой счетчик без записи кэша просто доживает свой TTL.
func (s *Syncer) retireIdle(ctx context.Context, p pendingFlush, res *Result) {
	evicted, err := s.retireCacheEntry(ctx, p, false)
	if err != nil {
		s.logger.Warn("failed to retire cache entry", "short_code", p.shortCode, "error", err)
	}
	if evicted {
		res.Evicted++
	}
}

// retireCacheEntry удаляет запись кэша, если до ее истечения осталось меньше low-water mark.
// Счетчик при этом продлевается, чтобы следующие просмотры дожили до следующей итерации.
// extendWithoutEntry продлевает счетчик и тогда, когда записи кэша уже нет.
func (s *Syncer) retireCacheEntry(ctx context.Context, p pendingFlush, extendWithoutEntry bool) (bool, error) {
	cacheKey := s.keys.URL(p.shortCode)

	ttl, err := s.kv.GetTTL(ctx, cacheKey)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		// запись уже истекла, продлеваем только счетчик
		if !extendWithoutEntry {
			return false, nil
		}
		return false, s.kv.Expire(ctx, p.key, s.cacheTTL)
	case err != nil:
		return false, err
	case ttl < 0 || ttl >= s.lowWaterMark:
		return false, nil
	}

	if err := s.kv.Delete(ctx, cacheKey); err != nil {
		return false, err
	}
	s.logger.Debug("cache entry retired", "short_code", p.shortCode, "ttl", ttl)

	return true, s.kv.Expire(ctx, p.key, s.cacheTTL)
}

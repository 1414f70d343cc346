package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kosench/shortlink/internal/cache"
	apperrors "github.com/Kosench/shortlink/internal/errors"
	"github.com/Kosench/shortlink/internal/model"
	"github.com/Kosench/shortlink/internal/repository"
	"github.com/Kosench/shortlink/internal/utils"
)

const (
	DefaultCacheTTL   = time.Hour
	DefaultMaxRetries = 5
)

// Options - настройки URLService. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	BaseURL         string
	CacheTTL        time.Duration
	ShortCodeLength int
	MaxRetries      int
	Keys            *cache.KeyBuilder
	Logger          *slog.Logger
}

// URLService обслуживает создание коротких ссылок, редиректы и статистику.
// Быстрый путь редиректа идет только в Redis; БД читается при промахе кэша.
type URLService struct {
	urlRepo    repository.URLRepository
	kv         cache.KeyValueStore
	keys       *cache.KeyBuilder
	logger     *slog.Logger
	baseURL    string
	cacheTTL   time.Duration
	maxRetries int
	generate   func() (string, error)
}

func NewURLService(urlRepo repository.URLRepository, kv cache.KeyValueStore, opts Options) *URLService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.ShortCodeLength <= 0 {
		opts.ShortCodeLength = utils.DefaultShortCodeLength
	}
	if opts.Keys == nil {
		opts.Keys = cache.DefaultKeyBuilder
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	length := opts.ShortCodeLength
	return &URLService{
		urlRepo:    urlRepo,
		kv:         kv,
		keys:       opts.Keys,
		logger:     opts.Logger.With("component", "url_service"),
		baseURL:    opts.BaseURL,
		cacheTTL:   opts.CacheTTL,
		maxRetries: opts.MaxRetries,
		generate: func() (string, error) {
			return utils.GenerateShortCodeWithLength(length)
		},
	}
}

// WithCodeGenerator подменяет генератор коротких кодов
func (s *URLService) WithCodeGenerator(generate func() (string, error)) *URLService {
	s.generate = generate
	return s
}

// CreateShortURL валидирует URL и возвращает короткую ссылку для него
func (s *URLService) CreateShortURL(ctx context.Context, req *model.CreateURLRequest) (*model.URLResponse, error) {
	url, err := s.create(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	return s.toResponse(url, url.AccessCount), nil
}

// Create возвращает короткий код для URL. Повторный вызов с тем же URL вернет тот же код.
func (s *URLService) Create(ctx context.Context, originalURL string) (string, error) {
	url, err := s.create(ctx, originalURL)
	if err != nil {
		return "", err
	}
	return url.ShortCode, nil
}

func (s *URLService) create(ctx context.Context, rawURL string) (*model.URL, error) {
	originalURL := utils.SanitizeInput(rawURL)
	if err := utils.ValidateURL(originalURL); err != nil {
		return nil, fmt.Errorf("validate error: %w", err)
	}

	existing, err := s.urlRepo.FindByOriginalURL(ctx, originalURL)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrURLNotFound) {
		return nil, fmt.Errorf("failed to look up URL: %w", err)
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		shortCode, err := s.generateUniqueShortCode(ctx)
		if err != nil {
			return nil, err
		}

		url := &model.URL{
			OriginalURL: originalURL,
			ShortCode:   shortCode,
			AccessCount: 0,
			CreatedAt:   time.Now().UTC(),
		}

		err = s.urlRepo.Insert(ctx, url)
		switch {
		case err == nil:
			s.logger.Info("short URL created", "short_code", shortCode)
			return url, nil
		case errors.Is(err, apperrors.ErrShortCodeExists):
			// код заняли между проверкой и вставкой
			continue
		case errors.Is(err, apperrors.ErrURLAlreadyExists):
			// параллельный запрос с тем же URL успел первым
			winner, findErr := s.urlRepo.FindByOriginalURL(ctx, originalURL)
			if findErr != nil {
				return nil, fmt.Errorf("failed to reload concurrently created URL: %w", findErr)
			}
			return winner, nil
		default:
			return nil, fmt.Errorf("failed to create URL: %w", err)
		}
	}

	return nil, apperrors.NewBusinessError(
		apperrors.CodeShortCodeGenerate,
		fmt.Sprintf("failed to insert unique short code after %d attempts", s.maxRetries),
		nil,
	)
}

// Resolve возвращает исходный URL и учитывает просмотр.
// Попадание в кэш: INCRBY счетчика с продлением TTL, без обращения к БД.
// Промах: запись из БД кладется в кэш, счетчик засевается этим просмотром.
func (s *URLService) Resolve(ctx context.Context, shortCode string) (string, error) {
	if err := utils.ValidateShortCode(shortCode); err != nil {
		return "", err
	}

	cacheKey := s.keys.URL(shortCode)
	viewsKey := s.keys.Views(shortCode)

	originalURL, err := s.kv.GetString(ctx, cacheKey)
	if err == nil {
		// TTL продлевается на каждом просмотре: счетчик живет дольше любой паузы между синхронизациями
		if _, err := s.kv.IncrementWithTTL(ctx, viewsKey, 1, s.cacheTTL); err != nil {
			s.logger.Warn("failed to count view", "short_code", shortCode, "error", err)
		}
		return originalURL, nil
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		return "", apperrors.NewCacheError("failed to read cache", err)
	}

	s.logger.Debug("cache miss", "short_code", shortCode)

	url, err := s.urlRepo.FindByShortCode(ctx, shortCode)
	if err != nil {
		return "", err
	}

	if err := s.kv.SetString(ctx, cacheKey, url.OriginalURL, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache URL", "short_code", shortCode, "error", err)
	}

	// INCRBY вместо SET 1: несброшенные просмотры пережившего кэш счетчика сохраняются
	if _, err := s.kv.IncrementWithTTL(ctx, viewsKey, 1, s.cacheTTL); err != nil {
		s.logger.Warn("failed to seed view counter", "short_code", shortCode, "error", err)
	}

	return url.OriginalURL, nil
}

// GetAccessCount возвращает сброшенный в БД счетчик плюс несброшенные просмотры из Redis
func (s *URLService) GetAccessCount(ctx context.Context, shortCode string) (int64, error) {
	if err := utils.ValidateShortCode(shortCode); err != nil {
		return 0, err
	}

	url, err := s.urlRepo.FindByShortCode(ctx, shortCode)
	if err != nil {
		return 0, err
	}

	pending, err := s.pendingViews(ctx, shortCode)
	if err != nil {
		return 0, err
	}

	return url.AccessCount + pending, nil
}

// GetStats - ответ для /stats/:shortCode
func (s *URLService) GetStats(ctx context.Context, shortCode string) (*model.StatsResponse, error) {
	count, err := s.GetAccessCount(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	return &model.StatsResponse{
		ShortCode:   shortCode,
		AccessCount: count,
	}, nil
}

// GetURL возвращает метаданные ссылки без учета просмотра
func (s *URLService) GetURL(ctx context.Context, shortCode string) (*model.URLResponse, error) {
	if err := utils.ValidateShortCode(shortCode); err != nil {
		return nil, err
	}

	url, err := s.urlRepo.FindByShortCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	pending, err := s.pendingViews(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	return s.toResponse(url, url.AccessCount+pending), nil
}

func (s *URLService) pendingViews(ctx context.Context, shortCode string) (int64, error) {
	pending, err := s.kv.GetInt64(ctx, s.keys.Views(shortCode))
	if errors.Is(err, cache.ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.NewCacheError("failed to read view counter", err)
	}

	// Счетчик может уйти в минус, если истек между чтением и DECRBY синхронизации
	if pending < 0 {
		return 0, nil
	}
	return pending, nil
}

func (s *URLService) generateUniqueShortCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		code, err := s.generate()
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}

		// Проверяем уникальность
		exists, err := s.urlRepo.ExistsByShortCode(ctx, code)
		if err != nil {
			return "", err
		}

		if !exists {
			return code, nil
		}
	}

	return "", apperrors.NewBusinessError(
		apperrors.CodeShortCodeGenerate,
		fmt.Sprintf("failed to generate unique short code after %d attempts", s.maxRetries),
		nil,
	)
}

func (s *URLService) toResponse(url *model.URL, accessCount int64) *model.URLResponse {
	return &model.URLResponse{
		ShortCode:   url.ShortCode,
		OriginalURL: url.OriginalURL,
		ShortURL:    s.buildShortURL(url.ShortCode),
		AccessCount: accessCount,
		CreatedAt:   url.CreatedAt,
	}
}

func (s *URLService) buildShortURL(shortCode string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, shortCode)
}

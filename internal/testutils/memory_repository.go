package testutils

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/Kosench/shortlink/internal/errors"
	"github.com/Kosench/shortlink/internal/model"
	"github.com/Kosench/shortlink/internal/repository"
)

var _ repository.URLRepository = (*MemoryRepository)(nil)

// MemoryRepository - in-memory имитация таблицы urls с уникальными
// ограничениями на short_code и original_url.
type MemoryRepository struct {
	mu     sync.Mutex
	byCode map[string]*model.URL
	byURL  map[string]string
	nextID int64

	// Ошибки для инъекции
	InsertErr error
	FindErr   error
	BatchErr  error

	// BeforeInsert вызывается перед вставкой (без блокировки), например чтобы сымитировать гонку
	BeforeInsert func(url *model.URL)

	BatchCalls int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byCode: make(map[string]*model.URL),
		byURL:  make(map[string]string),
	}
}

// Seed добавляет запись напрямую
func (r *MemoryRepository) Seed(url model.URL) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	url.ID = r.nextID
	r.byCode[url.ShortCode] = &url
	r.byURL[url.OriginalURL] = url.ShortCode
}

// Get возвращает копию записи без инъекции ошибок
func (r *MemoryRepository) Get(shortCode string) (model.URL, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	url, ok := r.byCode[shortCode]
	if !ok {
		return model.URL{}, false
	}
	return *url, true
}

// Len возвращает количество записей
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byCode)
}

func (r *MemoryRepository) Insert(ctx context.Context, url *model.URL) error {
	if r.BeforeInsert != nil {
		r.BeforeInsert(url)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.InsertErr != nil {
		return r.InsertErr
	}
	if _, ok := r.byURL[url.OriginalURL]; ok {
		return fmt.Errorf("original URL '%s': %w", url.OriginalURL, apperrors.ErrURLAlreadyExists)
	}
	if _, ok := r.byCode[url.ShortCode]; ok {
		return fmt.Errorf("short code '%s': %w", url.ShortCode, apperrors.ErrShortCodeExists)
	}

	r.nextID++
	url.ID = r.nextID
	url.LastModifiedAt = url.CreatedAt

	stored := *url
	r.byCode[url.ShortCode] = &stored
	r.byURL[url.OriginalURL] = url.ShortCode
	return nil
}

func (r *MemoryRepository) FindByShortCode(ctx context.Context, shortCode string) (*model.URL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FindErr != nil {
		return nil, r.FindErr
	}
	url, ok := r.byCode[shortCode]
	if !ok {
		return nil, fmt.Errorf("URL with short code '%s': %w", shortCode, apperrors.ErrURLNotFound)
	}
	found := *url
	return &found, nil
}

func (r *MemoryRepository) FindByOriginalURL(ctx context.Context, originalURL string) (*model.URL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FindErr != nil {
		return nil, r.FindErr
	}
	code, ok := r.byURL[originalURL]
	if !ok {
		return nil, apperrors.ErrURLNotFound
	}
	found := *r.byCode[code]
	return &found, nil
}

func (r *MemoryRepository) ExistsByShortCode(ctx context.Context, shortCode string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FindErr != nil {
		return false, r.FindErr
	}
	_, ok := r.byCode[shortCode]
	return ok, nil
}

// BatchUpdate применяет все дельты атомарно: при ошибке ничего не меняется
func (r *MemoryRepository) BatchUpdate(ctx context.Context, updates []model.AccessUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.BatchCalls++
	if r.BatchErr != nil {
		return r.BatchErr
	}

	for _, u := range updates {
		url, ok := r.byCode[u.ShortCode]
		if !ok {
			continue
		}
		url.AccessCount += u.Delta
		url.LastModifiedAt = u.ModifiedAt
	}
	return nil
}

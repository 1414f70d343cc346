package repository

import (
	"context"

	"github.com/Kosench/shortlink/internal/model"
)

// URLRepository - долговременное хранилище записей URL.
// Отсутствующая запись возвращается как apperrors.ErrURLNotFound.
type URLRepository interface {
	Insert(ctx context.Context, url *model.URL) error
	FindByShortCode(ctx context.Context, shortCode string) (*model.URL, error)
	FindByOriginalURL(ctx context.Context, originalURL string) (*model.URL, error)
	ExistsByShortCode(ctx context.Context, shortCode string) (bool, error)

	// BatchUpdate прибавляет дельты к access_count одной транзакцией
	BatchUpdate(ctx context.Context, updates []model.AccessUpdate) error
}

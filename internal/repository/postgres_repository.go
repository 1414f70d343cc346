package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Kosench/shortlink/internal/errors"
	"github.com/Kosench/shortlink/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolationErrCode = "23505"

	constraintOriginalURL = "urls_original_url_key"
	constraintShortCode   = "urls_short_code_key"
)

const selectURLColumns = `id, original_url, short_code, access_count, created_at, updated_at`

type PostgresURLRepository struct {
	db *sql.DB
}

func NewPostgresURLRepository(db *sql.DB) *PostgresURLRepository {
	return &PostgresURLRepository{
		db: db,
	}
}

// Insert создает новую запись URL
func (r *PostgresURLRepository) Insert(ctx context.Context, url *model.URL) error {
	query := `
	INSERT INTO urls (original_url, short_code, access_count, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $4)
	RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		url.OriginalURL,
		url.ShortCode,
		url.AccessCount,
		url.CreatedAt,
	).Scan(&url.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationErrCode {
			if pgErr.ConstraintName == constraintOriginalURL {
				return fmt.Errorf("original URL '%s': %w", url.OriginalURL, apperrors.ErrURLAlreadyExists)
			}
			return fmt.Errorf("short code '%s': %w", url.ShortCode, apperrors.ErrShortCodeExists)
		}

		return apperrors.NewDatabaseError("failed to create URL", err)
	}

	url.LastModifiedAt = url.CreatedAt

	return nil
}

// FindByShortCode получает URL по короткому коду
func (r *PostgresURLRepository) FindByShortCode(ctx context.Context, shortCode string) (*model.URL, error) {
	query := `SELECT ` + selectURLColumns + ` FROM urls WHERE short_code = $1`

	url, err := scanURL(r.db.QueryRowContext(ctx, query, shortCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("URL with short code '%s': %w", shortCode, apperrors.ErrURLNotFound)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to get URL", err)
	}

	return url, nil
}

// FindByOriginalURL ищет существующую запись для URL (для предотвращения дубликатов)
func (r *PostgresURLRepository) FindByOriginalURL(ctx context.Context, originalURL string) (*model.URL, error) {
	query := `SELECT ` + selectURLColumns + ` FROM urls WHERE original_url = $1 ORDER BY id LIMIT 1`

	url, err := scanURL(r.db.QueryRowContext(ctx, query, originalURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrURLNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to get URL by original", err)
	}

	return url, nil
}

// ExistsByShortCode проверяет существование короткого кода
func (r *PostgresURLRepository) ExistsByShortCode(ctx context.Context, shortCode string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM urls WHERE short_code = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, shortCode).Scan(&exists); err != nil {
		return false, apperrors.NewDatabaseError("failed to check short code existence", err)
	}

	return exists, nil
}

// BatchUpdate для массового обновления счетчиков (из Redis в БД).
// Либо применяются все строки, либо ни одна.
func (r *PostgresURLRepository) BatchUpdate(ctx context.Context, updates []model.AccessUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE urls
		SET access_count = access_count + $1, updated_at = $2
		WHERE short_code = $3
	`)
	if err != nil {
		return apperrors.NewDatabaseError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.Delta, u.ModifiedAt, u.ShortCode); err != nil {
			return apperrors.NewDatabaseError(fmt.Sprintf("failed to update access count for %s", u.ShortCode), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewDatabaseError("failed to commit access counts", err)
	}

	return nil
}

func scanURL(row *sql.Row) (*model.URL, error) {
	url := &model.URL{}
	err := row.Scan(
		&url.ID,
		&url.OriginalURL,
		&url.ShortCode,
		&url.AccessCount,
		&url.CreatedAt,
		&url.LastModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return url, nil
}

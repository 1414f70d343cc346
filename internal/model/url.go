package model

import "time"

// URL - запись в таблице urls.
// AccessCount содержит только сброшенные в БД просмотры, остальные лежат в Redis.
type URL struct {
	ID             int64     `json:"id"`
	OriginalURL    string    `json:"original_url"`
	ShortCode      string    `json:"short_code"`
	AccessCount    int64     `json:"access_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// AccessUpdate - одна строка пакета синхронизации счетчиков
type AccessUpdate struct {
	ShortCode  string
	Delta      int64
	ModifiedAt time.Time
}

type CreateURLRequest struct {
	URL string `json:"url" binding:"required"`
}

type URLResponse struct {
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	ShortURL    string    `json:"short_url"`
	AccessCount int64     `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type StatsResponse struct {
	ShortCode   string `json:"short_code"`
	AccessCount int64  `json:"access_count"`
}

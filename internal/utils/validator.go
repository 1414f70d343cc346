package utils

import (
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/Kosench/shortlink/internal/errors"
)

const (
	maxURLLength       = 2048
	maxShortCodeLength = 32
)

func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return apperrors.NewValidationError("url", "URL cannot be empty")
	}

	if len(rawURL) > maxURLLength {
		return apperrors.NewValidationError("url", fmt.Sprintf("URL is too long (max %d characters)", maxURLLength))
	}

	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return apperrors.NewValidationError("url", fmt.Sprintf("invalid URL format: %v", err))
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return apperrors.NewValidationError("url", "URL must start with http:// or https://")
	}

	if parsedURL.Host == "" {
		return apperrors.NewValidationError("url", "URL must contain a valid host")
	}

	return nil
}

// ValidateShortCode проверяет короткий код из пути запроса
func ValidateShortCode(shortCode string) error {
	if shortCode == "" {
		return apperrors.NewValidationError("short_code", "short code cannot be empty")
	}

	if len(shortCode) > maxShortCodeLength {
		return apperrors.NewValidationError("short_code", "short code is too long")
	}

	// Двоеточие сломало бы схему ключей short:{code}:views
	for _, r := range shortCode {
		if !isASCIIAlnum(r) && r != '-' && r != '_' {
			return apperrors.NewValidationError("short_code", "short code contains invalid characters")
		}
	}

	return nil
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func SanitizeInput(input string) string {
	// Удаляем управляющие символы и обрезаем пробелы
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1 // удаляем символ
		}
		return r
	}, input)

	return strings.TrimSpace(result)
}

package errors

import (
	"errors"
	"fmt"
)

var (
	ErrURLNotFound      = errors.New("URL not found")
	ErrURLAlreadyExists = errors.New("URL already exists")
	ErrShortCodeExists  = errors.New("short code already exists")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrInvalidShortCode = errors.New("invalid short code")
)

// Business error codes.
const (
	CodeDatabase          = "DATABASE_ERROR"
	CodeCache             = "CACHE_ERROR"
	CodeShortCodeGenerate = "SHORT_CODE_GENERATION"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

type BusinessError struct {
	Code    string
	Message string
	Cause   error
}

func (e *BusinessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Cause
}

func NewBusinessError(code, message string, cause error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewDatabaseError оборачивает ошибку хранилища Postgres
func NewDatabaseError(message string, cause error) *BusinessError {
	return NewBusinessError(CodeDatabase, message, cause)
}

// NewCacheError оборачивает ошибку Redis на уровне сервиса
func NewCacheError(message string, cause error) *BusinessError {
	return NewBusinessError(CodeCache, message, cause)
}

// IsValidationError проверяет является ли ошибка ошибкой валидации
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsBusinessError проверяет является ли ошибка бизнес-ошибкой
func IsBusinessError(err error) bool {
	var businessErr *BusinessError
	return errors.As(err, &businessErr)
}

// IsStoreError сообщает, что кэш или БД недоступны (временная ошибка)
func IsStoreError(err error) bool {
	businessErr := GetBusinessError(err)
	if businessErr == nil {
		return false
	}
	return businessErr.Code == CodeDatabase || businessErr.Code == CodeCache
}

func GetValidationError(err error) *ValidationError {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}
	return nil
}

// GetBusinessError извлекает BusinessError из ошибки
func GetBusinessError(err error) *BusinessError {
	var businessErr *BusinessError
	if errors.As(err, &businessErr) {
		return businessErr
	}
	return nil
}

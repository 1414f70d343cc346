package cache

import (
	"fmt"
	"strings"
)

// KeyPrefix - префиксы для разных типов ключей
type KeyPrefix string

const (
	PrefixShort     KeyPrefix = "short" // short:shortCode -> originalURL
	PrefixRateLimit KeyPrefix = "rate"  // rate:clientIP

	// SuffixViews - суффикс счетчика просмотров: short:shortCode:views
	SuffixViews = "views"
)

// KeyBuilder - построитель ключей кэша.
// Связь между записью кэша и счетчиком просмотров держится только на схеме имен:
// short:{code} и short:{code}:views.
type KeyBuilder struct {
	namespace string // Опциональный namespace для multi-tenancy
}

// NewKeyBuilder создает новый построитель ключей
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: namespace}
}

// Build создает ключ с префиксом и опциональным namespace
func (k *KeyBuilder) Build(prefix KeyPrefix, parts ...string) string {
	key := string(prefix)

	if k.namespace != "" {
		key = k.namespace + ":" + key
	}

	for _, part := range parts {
		key += ":" + part
	}

	return key
}

// URL создает ключ записи кэша для короткого кода
func (k *KeyBuilder) URL(shortCode string) string {
	return k.Build(PrefixShort, shortCode)
}

// Views создает ключ счетчика просмотров
func (k *KeyBuilder) Views(shortCode string) string {
	return k.Build(PrefixShort, shortCode, SuffixViews)
}

// ViewsPattern возвращает паттерн SCAN для всех счетчиков просмотров
func (k *KeyBuilder) ViewsPattern() string {
	return k.Pattern(PrefixShort) + ":" + SuffixViews
}

// ParseViews извлекает короткий код из ключа счетчика.
// Возвращает false, если ключ не соответствует схеме.
func (k *KeyBuilder) ParseViews(key string) (string, bool) {
	prefix := k.Build(PrefixShort) + ":"
	suffix := ":" + SuffixViews

	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return "", false
	}

	shortCode := strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix)
	if shortCode == "" || strings.Contains(shortCode, ":") {
		return "", false
	}

	return shortCode, true
}

// RateLimit создает ключ для rate limiting
func (k *KeyBuilder) RateLimit(clientIP string) string {
	return k.Build(PrefixRateLimit, clientIP)
}

// Pattern возвращает паттерн для поиска ключей
func (k *KeyBuilder) Pattern(prefix KeyPrefix) string {
	if k.namespace != "" {
		return fmt.Sprintf("%s:%s:*", k.namespace, prefix)
	}
	return fmt.Sprintf("%s:*", prefix)
}

// DefaultKeyBuilder - построитель ключей по умолчанию
var DefaultKeyBuilder = NewKeyBuilder("")

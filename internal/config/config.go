package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	App       AppConfig       `mapstructure:"app"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type AppConfig struct {
	BaseURL         string   `mapstructure:"base_url"`
	ShortCodeLength int      `mapstructure:"short_code_length"`
	MaxRetries      int      `mapstructure:"max_retries"`
	Environment     string   `mapstructure:"environment"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retry"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	Namespace    string        `mapstructure:"namespace"`
}

// SyncConfig - настройки фоновой синхронизации счетчиков просмотров
type SyncConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	LowWaterMark time.Duration `mapstructure:"low_water_mark"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("URLSHORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.App.BaseURL == "" {
		scheme := "http"
		if config.IsProduction() {
			scheme = "https"
		}
		config.App.BaseURL = fmt.Sprintf("%s://%s:%s", scheme, config.Server.Host, config.Server.Port)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "urlshortener")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "urlshortener")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.auto_migrate", true)

	// App defaults
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.short_code_length", 8)
	v.SetDefault("app.max_retries", 5)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.allowed_origins", []string{"*"})

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.max_retry", 3)
	v.SetDefault("redis.cache_ttl", "1h")
	v.SetDefault("redis.namespace", "")

	// Sync defaults: low-water mark не меньше периода, иначе счетчик может истечь до сброса
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", "15m")
	v.SetDefault("sync.low_water_mark", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.Redis.CacheTTL <= 0 {
		return fmt.Errorf("redis.cache_ttl must be positive, got %s", c.Redis.CacheTTL)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Sync.LowWaterMark < c.Sync.Interval {
		return fmt.Errorf("sync.low_water_mark (%s) must not be shorter than sync.interval (%s)",
			c.Sync.LowWaterMark, c.Sync.Interval)
	}
	if c.Sync.LowWaterMark >= c.Redis.CacheTTL {
		return fmt.Errorf("sync.low_water_mark (%s) must be shorter than redis.cache_ttl (%s)",
			c.Sync.LowWaterMark, c.Redis.CacheTTL)
	}
	if c.App.ShortCodeLength <= 0 {
		return fmt.Errorf("app.short_code_length must be positive, got %d", c.App.ShortCodeLength)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit.requests and rate_limit.window must be positive")
	}
	return nil
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) GetBaseURL() string {
	return strings.TrimRight(c.App.BaseURL, "/")
}

// GetDatabaseDSN собирает строку подключения к Postgres
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.App.Environment) == "production"
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.App.Environment) == "development"
}

func (c *Config) GetAllowedOrigins() []string {
	if len(c.App.AllowedOrigins) == 0 {
		if c.IsProduction() {
			// В продакшене требуем явного указания origins
			return []string{c.App.BaseURL}
		}
		return []string{"*"}
	}
	return c.App.AllowedOrigins
}

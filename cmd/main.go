package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Kosench/shortlink/internal/cache"
	"github.com/Kosench/shortlink/internal/config"
	"github.com/Kosench/shortlink/internal/database"
	"github.com/Kosench/shortlink/internal/handler"
	"github.com/Kosench/shortlink/internal/logger"
	"github.com/Kosench/shortlink/internal/repository"
	"github.com/Kosench/shortlink/internal/service"
	"github.com/Kosench/shortlink/internal/viewsync"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.GetDatabaseDSN(), database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	log.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, log); err != nil {
			log.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// Redis обязателен: в нем живут кэш и несброшенные счетчики просмотров
	redisClient, err := cache.NewRedisClient(cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		Namespace:    cfg.Redis.Namespace,
	})
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	log.Info("connected to redis", "host", cfg.Redis.Host, "namespace", cfg.Redis.Namespace)

	keys := redisClient.GetKeyBuilder()
	urlRepo := repository.NewPostgresURLRepository(db)

	urlService := service.NewURLService(urlRepo, redisClient, service.Options{
		BaseURL:         cfg.GetBaseURL(),
		CacheTTL:        cfg.Redis.CacheTTL,
		ShortCodeLength: cfg.App.ShortCodeLength,
		MaxRetries:      cfg.App.MaxRetries,
		Keys:            keys,
		Logger:          log,
	})

	var workers sync.WaitGroup
	if cfg.Sync.Enabled {
		syncer := viewsync.New(redisClient, urlRepo, viewsync.Config{
			Interval:     cfg.Sync.Interval,
			LowWaterMark: cfg.Sync.LowWaterMark,
			CacheTTL:     cfg.Redis.CacheTTL,
			Keys:         keys,
			Logger:       log,
		})

		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := syncer.Run(ctx); err != nil {
				log.Error("view sync exited", "error", err)
			}
		}()
	} else {
		log.Warn("view sync is disabled, pending views stay in redis")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.GetAllowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	if cfg.RateLimit.Enabled {
		router.Use(handler.RateLimitMiddleware(redisClient, keys, cfg.RateLimit.Requests, cfg.RateLimit.Window, log))
	}

	handler.NewHealthHandler(database.NewStatus(db), redisClient, handler.ServiceInfo{
		Name:         "URL Shortener",
		Version:      serviceVersion,
		SyncEnabled:  cfg.Sync.Enabled,
		SyncInterval: cfg.Sync.Interval,
		CacheTTL:     cfg.Redis.CacheTTL,
	}).RegisterRoutes(router)

	handler.NewURLHandler(urlService, log).RegisterRoutes(router)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("server starting",
			"address", cfg.GetServerAddress(),
			"base_url", cfg.GetBaseURL(),
			"sync_interval", cfg.Sync.Interval)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// Дожидаемся текущей итерации синхронизации, иначе коммит может оборваться
	workers.Wait()

	log.Info("server gracefully stopped")
}

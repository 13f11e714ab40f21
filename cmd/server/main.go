package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tolerance-journey/internal/config"
	deliveryhttp "tolerance-journey/internal/delivery/http"
	"tolerance-journey/internal/delivery/websocket"
	"tolerance-journey/internal/logger"
	"tolerance-journey/internal/messaging"
	"tolerance-journey/internal/middleware"
	"tolerance-journey/internal/repository"
	"tolerance-journey/internal/scenario"
	"tolerance-journey/internal/session"
	"tolerance-journey/pkg/ai"
	"tolerance-journey/pkg/migration"
	"tolerance-journey/pkg/taskmanager"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

const (
	serviceName     = "tolerance-journey"
	shutdownTimeout = 10 * time.Second
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogEncoding,
		Service:     serviceName,
		Development: cfg.Env == "development",
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)
	zapLogger.Info("Starting tolerance journey server", cfg.LogFields()...)

	// --- PostgreSQL (журнал генераций) ---
	var (
		dbPool      *pgxpool.Pool
		recorder    scenario.ResultRecorder
		generations deliveryhttp.GenerationLister
	)
	if cfg.DatabaseEnabled() {
		dbPool, err = setupDatabase(cfg)
		if err != nil {
			zapLogger.Fatal("Failed to connect to database", zap.String("dsn", cfg.GetMaskedDSN()), zap.Error(err))
		}
		defer dbPool.Close()
		zapLogger.Info("Connected to PostgreSQL")

		if err := runMigrations(dbPool, zapLogger); err != nil {
			zapLogger.Fatal("Failed to apply migrations", zap.Error(err))
		}
		repo := repository.NewPgGenerationResultRepository(dbPool, zapLogger)
		recorder = repo
		generations = repo
	} else {
		zapLogger.Info("DB_HOST not set, generation audit log disabled")
	}

	// --- Redis (сессии и rate limit) ---
	var (
		redisClient  *redis.Client
		sessionStore session.Store
	)
	if cfg.RedisEnabled() {
		redisClient, err = connectRedis(cfg)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer redisClient.Close()
		zapLogger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
		sessionStore = session.NewRedisStore(redisClient, zapLogger)
	} else {
		zapLogger.Info("REDIS_ADDR not set, sessions are kept in memory")
		sessionStore = session.NewMemoryStore()
	}

	// --- RabbitMQ (события игры) ---
	var publisher messaging.GameEventPublisher
	if cfg.RabbitMQEnabled() {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()
		publisher, err = messaging.NewRabbitMQGameEventPublisher(rabbitConn, cfg.GameEventsQueue, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create game event publisher", zap.Error(err))
		}
	} else {
		zapLogger.Info("RABBITMQ_URL not set, game events are not published")
		publisher = messaging.NewNoopPublisher(zapLogger)
	}

	// --- Генерация сценариев ---
	aiClient, err := ai.NewAIClient(ai.Config{
		ClientType: cfg.AIClientType,
		BaseURL:    cfg.AIBaseURL,
		APIKey:     cfg.AIAPIKey,
		Model:      cfg.AIModel,
		Timeout:    cfg.AITimeout,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create AI client", zap.Error(err))
	}
	provider := scenario.NewProvider(aiClient, recorder, scenario.Config{
		Temperature: cfg.AITemperature,
		TopP:        cfg.AITopP,
		MaxTokens:   cfg.AIMaxTokens,
	}, zapLogger)

	tm := taskmanager.New(taskmanager.Config{
		MaxTasks: cfg.GenerationMaxConcurrent,
		Logger:   zapLogger,
	})

	registry := session.NewRegistry(session.Config{
		Fetcher:         provider,
		Tasks:           tm,
		Store:           sessionStore,
		Publisher:       publisher,
		TTL:             cfg.SessionTTL,
		CleanupInterval: cfg.SessionCleanupInterval,
		Logger:          zapLogger,
	})
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go registry.Run(cleanupCtx)

	hub := websocket.NewHub(cfg.AllowedOrigins(), zapLogger)

	// --- HTTP ---
	var internalAuth gin.HandlerFunc
	if cfg.InternalJWTSecret != "" {
		verifier, err := middleware.NewJWTVerifier(cfg.InternalJWTSecret, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create inter-service token verifier", zap.Error(err))
		}
		internalAuth = middleware.InterServiceAuth(verifier, zapLogger)
	} else {
		zapLogger.Info("INTERNAL_JWT_SECRET not set, /internal routes disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.ZapLoggingMiddlewareForGin(zapLogger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	origins := cfg.AllowedOrigins()
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", middleware.RequestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	limiter := deliveryhttp.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, zapLogger)
	handler := deliveryhttp.NewHandler(registry, generations, hub, zapLogger)
	handler.RegisterRoutes(router, limiter, internalAuth)

	// Prometheus middleware после регистрации маршрутов, /metrics добавляется им же
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zapLogger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	hub.Close()
	stopCleanup()
	registry.Close()
	if err := tm.Shutdown(ctx); err != nil {
		zapLogger.Warn("Task manager did not finish in time", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		zapLogger.Warn("Failed to close game event publisher", zap.Error(err))
	}

	zapLogger.Info("Server stopped")
}

// setupDatabase создает пул соединений и проверяет доступность БД.
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать пул соединений: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД (ping failed): %w", err)
	}
	return pool, nil
}

func runMigrations(pool *pgxpool.Pool, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	migrator := migration.NewMigrator(migration.Config{
		MigrationsFS:   repository.MigrationsFS,
		MigrationsPath: repository.MigrationsPath,
	}, pool, logger)
	if err := migrator.Up(ctx); err != nil {
		return err
	}
	version, dirty, err := migrator.Version(ctx)
	if err != nil {
		return err
	}
	logger.Info("Database schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func connectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ")
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}

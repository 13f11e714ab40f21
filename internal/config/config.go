package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

const (
	AIClientTypeOpenAI = "openai"
	AIClientTypeOllama = "ollama"
)

// Config содержит конфигурацию игрового сервера.
type Config struct {
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:""`

	// Настройки AI
	AIClientType  string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL     string        `envconfig:"AI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta/openai/"`
	AIModel       string        `envconfig:"AI_MODEL" default:"gemini-2.5-flash"`
	AITimeout     time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
	AITemperature float64       `envconfig:"AI_TEMPERATURE" default:"1.0"`
	AITopP        float64       `envconfig:"AI_TOP_P" default:"0.95"`
	AIMaxTokens   int           `envconfig:"AI_MAX_TOKENS" default:"2048"`
	// Секрет: AI_API_KEY или /run/secrets/ai_api_key
	AIAPIKey string `ignored:"true"`

	// Сессии и генерация
	GenerationMaxConcurrent int           `envconfig:"GENERATION_MAX_CONCURRENT" default:"10"`
	SessionTTL              time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	SessionCleanupInterval  time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"1m"`

	// Redis (пустой адрес - хранение сессий в памяти, rate limit в памяти)
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string `ignored:"true"`

	RateLimitPerMinute uint `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`

	// PostgreSQL (пустой DB_HOST - журнал генераций отключен)
	DBHost        string        `envconfig:"DB_HOST" default:""`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"tolerance_journey"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	DBPassword    string        `ignored:"true"`

	// RabbitMQ (пустой URL - события не публикуются)
	RabbitMQURL     string `envconfig:"RABBITMQ_URL" default:""`
	GameEventsQueue string `envconfig:"GAME_EVENTS_QUEUE" default:"game_events"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Токен для /internal маршрутов (пустой - маршруты не регистрируются)
	InternalJWTSecret string `ignored:"true"`
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config from env: %w", err)
	}

	cfg.AIAPIKey = secretOrEnv("AI_API_KEY", "ai_api_key")
	cfg.RedisPassword = secretOrEnv("REDIS_PASSWORD", "redis_password")
	cfg.DBPassword = secretOrEnv("DB_PASSWORD", "db_password")
	cfg.InternalJWTSecret = secretOrEnv("INTERNAL_JWT_SECRET", "internal_jwt_secret")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch strings.ToLower(c.AIClientType) {
	case AIClientTypeOpenAI:
		if c.AIAPIKey == "" {
			return fmt.Errorf("AI API key is required for client type %q (AI_API_KEY or secret ai_api_key)", c.AIClientType)
		}
	case AIClientTypeOllama:
	default:
		return fmt.Errorf("unknown AI_CLIENT_TYPE %q", c.AIClientType)
	}
	if c.AIModel == "" {
		return fmt.Errorf("AI_MODEL must not be empty")
	}
	if c.GenerationMaxConcurrent <= 0 {
		return fmt.Errorf("GENERATION_MAX_CONCURRENT must be positive, got %d", c.GenerationMaxConcurrent)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}

// GetDSN возвращает строку подключения к PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// GetMaskedDSN возвращает DSN с замаскированным паролем для логов.
func (c *Config) GetMaskedDSN() string {
	return fmt.Sprintf("postgres://%s:********@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func (c *Config) DatabaseEnabled() bool { return c.DBHost != "" }
func (c *Config) RedisEnabled() bool    { return c.RedisAddr != "" }
func (c *Config) RabbitMQEnabled() bool { return c.RabbitMQURL != "" }

// AllowedOrigins разбирает CORS_ALLOWED_ORIGINS.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// LogFields возвращает поля для логирования конфигурации без секретов.
func (c *Config) LogFields() []zap.Field {
	fields := []zap.Field{
		zap.String("port", c.Port),
		zap.String("env", c.Env),
		zap.String("aiClientType", c.AIClientType),
		zap.String("aiBaseURL", c.AIBaseURL),
		zap.String("aiModel", c.AIModel),
		zap.Duration("aiTimeout", c.AITimeout),
		zap.Float64("aiTemperature", c.AITemperature),
		zap.Float64("aiTopP", c.AITopP),
		zap.Int("generationMaxConcurrent", c.GenerationMaxConcurrent),
		zap.Duration("sessionTTL", c.SessionTTL),
		zap.Bool("aiAPIKeyLoaded", c.AIAPIKey != ""),
		zap.Bool("internalRoutesEnabled", c.InternalJWTSecret != ""),
	}
	if c.RedisEnabled() {
		fields = append(fields, zap.String("redisAddr", c.RedisAddr), zap.Int("redisDB", c.RedisDB))
	}
	if c.DatabaseEnabled() {
		fields = append(fields, zap.String("dbDSN", c.GetMaskedDSN()))
	}
	if c.RabbitMQEnabled() {
		fields = append(fields, zap.String("gameEventsQueue", c.GameEventsQueue))
	}
	return fields
}

// secretOrEnv берет значение из переменной окружения, иначе из Docker secret.
func secretOrEnv(envName, secretName string) string {
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v
	}
	v, err := ReadSecret(secretName)
	if err != nil {
		return ""
	}
	return v
}

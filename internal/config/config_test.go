package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecretsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := SecretsDir
	SecretsDir = dir
	t.Cleanup(func() { SecretsDir = prev })
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_API_KEY", "test-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, AIClientTypeOpenAI, cfg.AIClientType)
	assert.Equal(t, "gemini-2.5-flash", cfg.AIModel)
	assert.Equal(t, 1.0, cfg.AITemperature)
	assert.Equal(t, 0.95, cfg.AITopP)
	assert.Equal(t, 10, cfg.GenerationMaxConcurrent)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "test-key", cfg.AIAPIKey)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.DatabaseEnabled())
	assert.False(t, cfg.RabbitMQEnabled())
}

func TestLoadConfig_SecretFromFile(t *testing.T) {
	dir := withSecretsDir(t)
	t.Setenv("AI_API_KEY", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ai_api_key"), []byte("  from-file \n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db_password"), []byte("pg-secret"), 0o600))
	t.Setenv("DB_HOST", "db")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.AIAPIKey)
	assert.Equal(t, "postgres://postgres:pg-secret@db:5432/tolerance_journey?sslmode=disable", cfg.GetDSN())
	assert.NotContains(t, cfg.GetMaskedDSN(), "pg-secret")
}

func TestLoadConfig_OpenAIRequiresKey(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_API_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestLoadConfig_OllamaWithoutKey(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_API_KEY", "")
	t.Setenv("AI_CLIENT_TYPE", "ollama")
	t.Setenv("AI_BASE_URL", "http://localhost:11434")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, AIClientTypeOllama, cfg.AIClientType)
}

func TestLoadConfig_UnknownClientType(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_CLIENT_TYPE", "gemini-native")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: " http://a.test ,http://b.test,, "}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins())
}

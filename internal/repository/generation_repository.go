package repository

import (
	"context"
	"fmt"

	"tolerance-journey/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// GenerationResultRepository - журнал попыток генерации сценариев.
type GenerationResultRepository interface {
	Save(ctx context.Context, result *models.GenerationResult) error
	ListRecent(ctx context.Context, limit int) ([]models.GenerationResult, error)
}

// DBTX - общий интерфейс для pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	pgxscan.Querier
}

type pgGenerationResultRepository struct {
	db     DBTX
	logger *zap.Logger
}

var _ GenerationResultRepository = (*pgGenerationResultRepository)(nil)

// NewPgGenerationResultRepository создает репозиторий поверх пула pgx.
func NewPgGenerationResultRepository(db *pgxpool.Pool, logger *zap.Logger) GenerationResultRepository {
	return &pgGenerationResultRepository{db: db, logger: logger.Named("GenerationResultRepo")}
}

const saveGenerationResultQuery = `
INSERT INTO generation_results
    (id, session_id, model, status, error_kind, error, raw_response, latency_ms, prompt_tokens, completion_tokens, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    error_kind = EXCLUDED.error_kind,
    error = EXCLUDED.error,
    raw_response = EXCLUDED.raw_response,
    latency_ms = EXCLUDED.latency_ms,
    prompt_tokens = EXCLUDED.prompt_tokens,
    completion_tokens = EXCLUDED.completion_tokens`

// Save сохраняет результат. Повторное сохранение с тем же ID обновляет запись.
func (r *pgGenerationResultRepository) Save(ctx context.Context, result *models.GenerationResult) error {
	_, err := r.db.Exec(ctx, saveGenerationResultQuery,
		result.ID,
		result.SessionID,
		result.Model,
		result.Status,
		result.ErrorKind,
		result.Error,
		result.RawResponse,
		result.LatencyMS,
		result.PromptTokens,
		result.CompletionTokens,
		result.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save generation result", zap.String("id", result.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to save generation result %s: %w", result.ID, err)
	}
	r.logger.Debug("Generation result saved", zap.String("id", result.ID.String()), zap.String("status", string(result.Status)))
	return nil
}

const listRecentGenerationResultsQuery = `
SELECT id, session_id, model, status, error_kind, error, raw_response, latency_ms, prompt_tokens, completion_tokens, created_at
FROM generation_results
ORDER BY created_at DESC
LIMIT $1`

// ListRecent возвращает последние записи, новые первыми.
func (r *pgGenerationResultRepository) ListRecent(ctx context.Context, limit int) ([]models.GenerationResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	results := make([]models.GenerationResult, 0)
	if err := pgxscan.Select(ctx, r.db, &results, listRecentGenerationResultsQuery, limit); err != nil {
		r.logger.Error("Failed to list generation results", zap.Int("limit", limit), zap.Error(err))
		return nil, fmt.Errorf("failed to list generation results: %w", err)
	}
	return results, nil
}

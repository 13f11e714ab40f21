package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationStatus - итог одной попытки генерации сценария.
type GenerationStatus string

const (
	GenerationStatusSuccess GenerationStatus = "success"
	GenerationStatusFailed  GenerationStatus = "failed"
)

// GenerationResult - запись журнала генераций (одна попытка запроса к AI).
type GenerationResult struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	SessionID        string           `db:"session_id" json:"sessionId"`
	Model            string           `db:"model" json:"model"`
	Status           GenerationStatus `db:"status" json:"status"`
	ErrorKind        *string          `db:"error_kind" json:"errorKind,omitempty"`
	Error            *string          `db:"error" json:"error,omitempty"`
	RawResponse      *string          `db:"raw_response" json:"rawResponse,omitempty"`
	LatencyMS        int64            `db:"latency_ms" json:"latencyMs"`
	PromptTokens     int              `db:"prompt_tokens" json:"promptTokens"`
	CompletionTokens int              `db:"completion_tokens" json:"completionTokens"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
}

// GameEventType - тип события игры, публикуемого в очередь.
type GameEventType string

const (
	GameEventFinished         GameEventType = "game_finished"
	GameEventGenerationFailed GameEventType = "generation_failed"
)

// GameEvent - сообщение о значимом событии сессии.
type GameEvent struct {
	Type       GameEventType `json:"type"`
	SessionID  string        `json:"sessionId"`
	Score      int           `json:"score"`
	Level      int           `json:"level"`
	ErrorKind  string        `json:"errorKind,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

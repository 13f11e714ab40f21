package models

import "time"

// GameState - состояние игровой сессии.
type GameState string

const (
	StateStart    GameState = "start"
	StateLoading  GameState = "loading"
	StatePlaying  GameState = "playing"
	StateFeedback GameState = "feedback"
	StateEnd      GameState = "end"
	StateError    GameState = "error"
)

// IsValid проверяет, что значение относится к известным состояниям.
func (s GameState) IsValid() bool {
	switch s {
	case StateStart, StateLoading, StatePlaying, StateFeedback, StateEnd, StateError:
		return true
	}
	return false
}

// Snapshot - неизменяемый срез состояния сессии, который видят подписчики и клиенты.
type Snapshot struct {
	SessionID   string    `json:"sessionId"`
	State       GameState `json:"state"`
	Score       int       `json:"score"`
	Level       int       `json:"level"`
	TotalLevels int       `json:"totalLevels"`
	Scenario    *Scenario `json:"scenario,omitempty"`
	Feedback    *Feedback `json:"feedback,omitempty"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   string    `json:"errorKind,omitempty"`
	Verdict     string    `json:"verdict,omitempty"`
	Version     uint64    `json:"version"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

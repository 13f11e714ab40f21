package models

import (
	"errors"
	"fmt"
)

// Общие ошибки, используемые разными слоями приложения.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("action is not allowed in current state")
	ErrInvalidChoice     = errors.New("invalid choice index")
	ErrSessionClosed     = errors.New("session closed")
	ErrBadRequest        = errors.New("bad request")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Ошибки проверки токена. Все они оборачивают ErrUnauthorized.
var (
	ErrTokenInvalid   = fmt.Errorf("%w: token invalid", ErrUnauthorized)
	ErrTokenExpired   = fmt.Errorf("%w: token expired", ErrUnauthorized)
	ErrTokenMalformed = fmt.Errorf("%w: token malformed", ErrUnauthorized)
)

// APIError - тело ответа с ошибкой.
type APIError struct {
	Message string `json:"message"`
}

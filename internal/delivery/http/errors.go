package http

import (
	"errors"
	"net/http"

	"tolerance-journey/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleServiceError переводит ошибку сервиса в HTTP ответ.
// Внутренние подробности клиенту не отдаются.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var apiErr models.APIError

	switch {
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		apiErr = models.APIError{Message: "Session not found"}
	case errors.Is(err, models.ErrInvalidTransition):
		statusCode = http.StatusConflict
		apiErr = models.APIError{Message: "Action is not allowed in current state"}
	case errors.Is(err, models.ErrInvalidChoice), errors.Is(err, models.ErrBadRequest):
		statusCode = http.StatusBadRequest
		apiErr = models.APIError{Message: "Invalid choice"}
	case errors.Is(err, models.ErrSessionClosed):
		statusCode = http.StatusGone
		apiErr = models.APIError{Message: "Session closed"}
	case errors.Is(err, models.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		apiErr = models.APIError{Message: "Unauthorized"}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = models.APIError{Message: "Internal server error"}
		h.logger.Error("Unhandled service error",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(statusCode, apiErr)
}

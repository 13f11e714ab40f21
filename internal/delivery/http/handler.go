package http

import (
	"context"
	"net/http"
	"strconv"

	"tolerance-journey/internal/delivery/websocket"
	"tolerance-journey/internal/game"
	"tolerance-journey/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionRegistry - операции реестра, нужные HTTP слою.
type SessionRegistry interface {
	Create(ctx context.Context) (models.Snapshot, error)
	Get(ctx context.Context, sessionID string) (*game.Controller, error)
}

// GenerationLister читает журнал генераций.
type GenerationLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.GenerationResult, error)
}

// Handler - HTTP обработчики игровых сессий.
type Handler struct {
	sessions    SessionRegistry
	generations GenerationLister // может быть nil
	hub         *websocket.Hub   // может быть nil
	logger      *zap.Logger
}

// NewHandler создает обработчик.
func NewHandler(sessions SessionRegistry, generations GenerationLister, hub *websocket.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		sessions:    sessions,
		generations: generations,
		hub:         hub,
		logger:      logger.Named("HTTPHandler"),
	}
}

// RegisterRoutes регистрирует маршруты.
// limiter применяется к операциям, запускающим генерацию. internalAuth nil - /internal не регистрируется.
func (h *Handler) RegisterRoutes(router gin.IRouter, limiter gin.HandlerFunc, internalAuth gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.GET("/meta", h.getMeta)

	sessions := api.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.GET("/:id", h.getSession)
	sessions.POST("/:id/choice", h.selectChoice)
	if limiter != nil {
		sessions.POST("/:id/start", limiter, h.startGame)
		sessions.POST("/:id/next", limiter, h.advance)
	} else {
		sessions.POST("/:id/start", h.startGame)
		sessions.POST("/:id/next", h.advance)
	}
	if h.hub != nil {
		sessions.GET("/:id/ws", h.streamSession)
	}

	if internalAuth != nil && h.generations != nil {
		internal := router.Group("/internal", internalAuth)
		internal.GET("/generations", h.listGenerations)
	}
}

type metaResponse struct {
	TotalLevels int `json:"totalLevels"`
}

func (h *Handler) getMeta(c *gin.Context) {
	c.JSON(http.StatusOK, metaResponse{TotalLevels: models.TotalLevels})
}

func (h *Handler) createSession(c *gin.Context) {
	snap, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap.View())
}

func (h *Handler) getSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot().View())
}

func (h *Handler) startGame(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := ctrl.StartGame(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.View())
}

type selectChoiceRequest struct {
	ChoiceIndex *int `json:"choiceIndex" binding:"required,min=0"`
}

func (h *Handler) selectChoice(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req selectChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid choice request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.APIError{Message: "Invalid request body"})
		return
	}
	snap, err := ctrl.SelectChoice(*req.ChoiceIndex)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.View())
}

func (h *Handler) advance(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := ctrl.Advance(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.View())
}

func (h *Handler) streamSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, ctrl); err != nil {
		// Upgrader уже записал ответ клиенту.
		h.logger.Warn("WebSocket upgrade failed", zap.String("sessionID", ctrl.ID()), zap.Error(err))
	}
}

func (h *Handler) listGenerations(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, models.APIError{Message: "Invalid limit"})
			return
		}
		limit = parsed
	}
	results, err := h.generations.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": results})
}

// controller находит сессию по :id. При ошибке ответ уже записан.
func (h *Handler) controller(c *gin.Context) (*game.Controller, bool) {
	ctrl, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return nil, false
	}
	return ctrl, true
}

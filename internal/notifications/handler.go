package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"groupware/approval-portal/approval-portal-backend/internal/approval"
	"groupware/approval-portal/approval-portal-backend/internal/notifications/websocket"
)

// Handler handles HTTP and websocket endpoints for notifications
type Handler struct {
	service   *Service
	wsManager *websocket.Manager
	logger    *zap.Logger
}

func NewHandler(service *Service, wsManager *websocket.Manager, logger *zap.Logger) *Handler {
	return &Handler{service: service, wsManager: wsManager, logger: logger}
}

// RegisterRoutes registers notification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/notifications")
	{
		group.GET("", h.list)
		group.GET("/unread-count", h.unreadCount)
		group.POST("/:id/read", h.markRead)
		group.POST("/read-all", h.markAllRead)
		group.GET("/ws", h.connect)
	}
}

func (h *Handler) viewerID(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := c.Get("userID")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	id, ok := raw.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	return id, true
}

// list handles GET /api/v1/notifications
func (h *Handler) list(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	unreadOnly := c.Query("unread") == "true"

	rows, total, err := h.service.List(c.Request.Context(), viewerID, unreadOnly, page, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": rows,
		"total":         total,
		"page":          page,
		"limit":         limit,
	})
}

// unreadCount handles GET /api/v1/notifications/unread-count
func (h *Handler) unreadCount(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), viewerID)
	if err != nil {
		h.logger.Error("failed to count unread notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// markRead handles POST /api/v1/notifications/:id/read
func (h *Handler) markRead(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), viewerID, id); err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to mark notification read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// markAllRead handles POST /api/v1/notifications/read-all
func (h *Handler) markAllRead(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	if err := h.service.MarkAllRead(c.Request.Context(), viewerID); err != nil {
		h.logger.Error("failed to mark notifications read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// connect handles GET /api/v1/notifications/ws
func (h *Handler) connect(c *gin.Context) {
	viewerID, ok := h.viewerID(c)
	if !ok {
		return
	}
	if err := h.wsManager.HandleConnection(c.Writer, c.Request, viewerID); err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
	}
}

package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"groupware/approval-portal/approval-portal-backend/internal/directory"
)

// Handler handles login and session endpoints
type Handler struct {
	directory *directory.Service
	tokens    *TokenManager
	logger    *zap.Logger
}

func NewHandler(directorySvc *directory.Service, tokens *TokenManager, logger *zap.Logger) *Handler {
	return &Handler{directory: directorySvc, tokens: tokens, logger: logger}
}

// RegisterRoutes registers auth routes. The /me route expects the auth
// middleware to have run.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/auth/login", h.login)
	protected.GET("/auth/me", h.me)
}

type loginRequest struct {
	EmployeeNumber string `json:"employee_number" binding:"required"`
	Password       string `json:"password" binding:"required"`
}

// login handles POST /api/v1/auth/login
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	employee, err := h.directory.Authenticate(c.Request.Context(), req.EmployeeNumber, req.Password)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	token, err := h.tokens.Sign(employee.ID, employee.EmployeeNumber, employee.Name)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"employee": employee,
	})
}

// me handles GET /api/v1/auth/me
func (h *Handler) me(c *gin.Context) {
	raw, ok := c.Get("userID")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id := raw.(uuid.UUID)

	employee, err := h.directory.GetEmployee(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to load current employee", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, employee)
}

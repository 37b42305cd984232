package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/utils"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps successful responses that carry a message.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries the pieces every handler shares.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs the start of handling with request-scoped fields.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...interface{}) {
	utils.FromContext(c).Info(msg, args...)
}

// GetUserID returns the authenticated user's ID, writing a 401 when absent.
func (h *BaseHandler) GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}

	id, ok := userID.(string)
	if !ok || id == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}

	return id, true
}

// GetUserRole returns the authenticated user's role, defaulting to student.
func (h *BaseHandler) GetUserRole(c *gin.Context) models.UserRole {
	userRole, exists := c.Get("user_role")
	if !exists {
		return models.RoleStudent
	}
	if role, ok := userRole.(models.UserRole); ok {
		return role
	}
	return models.RoleStudent
}

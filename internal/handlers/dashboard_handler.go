package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quizdeck/quiz-service/internal/services"
	"github.com/quizdeck/quiz-service/internal/utils"
)

type DashboardHandler struct {
	BaseHandler
	dashboardService services.DashboardService
	rosterService    services.RosterService
}

func NewDashboardHandler(
	dashboardService services.DashboardService,
	rosterService services.RosterService,
	logger utils.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		BaseHandler:      NewBaseHandler(logger),
		dashboardService: dashboardService,
		rosterService:    rosterService,
	}
}

// GetOverview returns the teacher's headline numbers.
func (h *DashboardHandler) GetOverview(c *gin.Context) {
	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	overview, err := h.dashboardService.GetOverview(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// GetQuizResults returns per-student best results for a quiz.
func (h *DashboardHandler) GetQuizResults(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	results, err := h.dashboardService.GetQuizResults(c.Request.Context(), quizID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// ExportQuizResults downloads quiz results as an XLSX workbook.
func (h *DashboardHandler) ExportQuizResults(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	h.LogRequest(c, "Exporting quiz results", "quiz_id", quizID)

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	data, err := h.rosterService.ExportQuizResults(c.Request.Context(), quizID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=quiz_%d_results.xlsx", quizID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// GetActivityTrends returns daily attempt activity.
func (h *DashboardHandler) GetActivityTrends(c *gin.Context) {
	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	days := 30
	if daysStr := c.Query("days"); daysStr != "" {
		if parsed, err := strconv.Atoi(daysStr); err == nil {
			days = parsed
		}
	}

	trends, err := h.dashboardService.GetActivityTrends(c.Request.Context(), days, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trends": trends,
		"days":   days,
	})
}

// Helper methods

func (h *DashboardHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
		})
		return 0
	}
	return uint(id)
}

func (h *DashboardHandler) handleServiceError(c *gin.Context, err error) {
	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
			Details: err.Error(),
		})
	}
}

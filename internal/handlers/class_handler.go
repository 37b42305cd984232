package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/services"
	"github.com/quizdeck/quiz-service/internal/utils"
	"github.com/quizdeck/quiz-service/internal/validator"
)

type ClassHandler struct {
	BaseHandler
	classService  services.ClassService
	rosterService services.RosterService
	validator     *validator.Validator
}

func NewClassHandler(
	classService services.ClassService,
	rosterService services.RosterService,
	validator *validator.Validator,
	logger utils.Logger,
) *ClassHandler {
	return &ClassHandler{
		BaseHandler:   NewBaseHandler(logger),
		classService:  classService,
		rosterService: rosterService,
		validator:     validator,
	}
}

// CreateClass creates a new class owned by the caller.
func (h *ClassHandler) CreateClass(c *gin.Context) {
	h.LogRequest(c, "Creating class")

	var req services.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	class, err := h.classService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, class)
}

// GetClass returns a single class.
func (h *ClassHandler) GetClass(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	class, err := h.classService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, class)
}

// UpdateClass updates a class owned by the caller.
func (h *ClassHandler) UpdateClass(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating class", "class_id", id)

	var req services.UpdateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	class, err := h.classService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, class)
}

// DeleteClass removes a class.
func (h *ClassHandler) DeleteClass(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting class", "class_id", id)

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	if err := h.classService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Class deleted successfully",
	})
}

// ListClasses lists the caller's classes.
func (h *ClassHandler) ListClasses(c *gin.Context) {
	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	classes, err := h.classService.List(c.Request.Context(), h.parseClassFilters(c), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, classes)
}

// GetEnrolledClasses lists the classes the calling student is enrolled in.
func (h *ClassHandler) GetEnrolledClasses(c *gin.Context) {
	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	classes, err := h.classService.GetByStudent(c.Request.Context(), userID, h.parseClassFilters(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, classes)
}

// EnrollStudents adds students to the roster by ID or email.
func (h *ClassHandler) EnrollStudents(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Enrolling students", "class_id", id)

	var req services.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	result, err := h.classService.Enroll(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Roster updated",
		Data:    result,
	})
}

// UnenrollStudent removes one student from the roster.
func (h *ClassHandler) UnenrollStudent(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	studentID := strings.TrimSpace(c.Param("student_id"))
	if studentID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid student_id",
		})
		return
	}

	h.LogRequest(c, "Unenrolling student", "class_id", id, "student_id", studentID)

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	if err := h.classService.Unenroll(c.Request.Context(), id, studentID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Student unenrolled successfully",
	})
}

// GetRoster lists the class roster with resolved names and emails.
func (h *ClassHandler) GetRoster(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	roster, err := h.classService.GetRoster(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Roster retrieved successfully",
		Data:    roster,
	})
}

// ImportRoster enrolls students from an uploaded CSV or XLSX file.
func (h *ClassHandler) ImportRoster(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Missing file upload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Importing roster", "class_id", id, "filename", fileHeader.Filename)

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Cannot read uploaded file",
			Details: err.Error(),
		})
		return
	}
	defer file.Close()

	var result *services.RosterImportResult
	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".csv":
		result, err = h.rosterService.ImportCSV(c.Request.Context(), id, file, userID)
	case ".xlsx":
		result, err = h.rosterService.ImportXLSX(c.Request.Context(), id, file, userID)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Unsupported file type, use .csv or .xlsx",
		})
		return
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Roster imported",
		Data:    result,
	})
}

// ExportRoster downloads the roster as an XLSX workbook.
func (h *ClassHandler) ExportRoster(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	data, err := h.rosterService.ExportRoster(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=class_%d_roster.xlsx", id))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// GetClassStats returns aggregate statistics for a class.
func (h *ClassHandler) GetClassStats(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.GetUserID(c)
	if !ok {
		return
	}

	stats, err := h.classService.GetStats(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Class stats retrieved successfully",
		Data:    stats,
	})
}

// Helper methods

func (h *ClassHandler) parseIDParam(c *gin.Context, param string) uint {
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

func (h *ClassHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func (h *ClassHandler) parseClassFilters(c *gin.Context) repositories.ClassFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.ClassFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if subject := strings.TrimSpace(c.Query("subject")); subject != "" {
		filters.Subject = &subject
	}

	return filters
}

func (h *ClassHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

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
	case errors.Is(err, services.ErrClassNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Class not found",
		})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "User not found",
		})
	case errors.Is(err, services.ErrNotEnrolled):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Student is not enrolled in this class",
		})
	case errors.Is(err, services.ErrAlreadyEnrolled):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Student is already enrolled in this class",
		})
	case errors.Is(err, services.ErrClassAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access to this class is denied",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
			Details: err.Error(),
		})
	}
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

type classService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewClassService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) ClassService {
	return &classService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

func (s *classService) Create(ctx context.Context, req *CreateClassRequest, creatorID string) (*ClassResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	class := &models.Class{
		Title:       req.Title,
		Description: req.Description,
		Subject:     req.Subject,
		CreatedBy:   creatorID,
	}

	if err := s.repo.Class().Create(ctx, nil, class); err != nil {
		return nil, fmt.Errorf("failed to create class: %w", err)
	}

	s.logger.Info("class created",
		"class_id", class.ID,
		"title", class.Title,
		"created_by", creatorID)

	return s.buildResponse(class, creatorID), nil
}

func (s *classService) GetByID(ctx context.Context, id uint, userID string) (*ClassResponse, error) {
	class, err := s.repo.Class().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to load class %d: %w", id, err)
	}

	if err := s.checkReadAccess(ctx, class, userID); err != nil {
		return nil, err
	}

	return s.buildResponse(class, userID), nil
}

func (s *classService) Update(ctx context.Context, id uint, req *UpdateClassRequest, userID string) (*ClassResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	class, err := s.loadManaged(ctx, id, userID, "update")
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		class.Title = *req.Title
	}
	if req.Description != nil {
		class.Description = req.Description
	}
	if req.Subject != nil {
		class.Subject = req.Subject
	}

	if err := s.repo.Class().Update(ctx, nil, class); err != nil {
		return nil, fmt.Errorf("failed to update class %d: %w", id, err)
	}

	s.logger.Info("class updated", "class_id", id, "updated_by", userID)

	return s.buildResponse(class, userID), nil
}

func (s *classService) Delete(ctx context.Context, id uint, userID string) error {
	if _, err := s.loadManaged(ctx, id, userID, "delete"); err != nil {
		return err
	}

	if err := s.repo.Class().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete class %d: %w", id, err)
	}

	s.logger.Info("class deleted", "class_id", id, "deleted_by", userID)
	return nil
}

func (s *classService) List(ctx context.Context, filters repositories.ClassFilters, userID string) (*ClassListResponse, error) {
	// Non-admins only see their own classes in the unscoped listing.
	if isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); err != nil || !isAdmin {
		filters.CreatedBy = &userID
	}

	classes, total, err := s.repo.Class().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}

	return s.buildListResponse(classes, total, filters.Limit, filters.Offset, userID), nil
}

func (s *classService) GetByCreator(ctx context.Context, creatorID string, filters repositories.ClassFilters) (*ClassListResponse, error) {
	classes, total, err := s.repo.Class().GetByCreator(ctx, nil, creatorID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes for creator %s: %w", creatorID, err)
	}

	return s.buildListResponse(classes, total, filters.Limit, filters.Offset, creatorID), nil
}

func (s *classService) GetByStudent(ctx context.Context, studentID string, filters repositories.ClassFilters) (*ClassListResponse, error) {
	classes, total, err := s.repo.Class().GetByStudent(ctx, nil, studentID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes for student %s: %w", studentID, err)
	}

	return s.buildListResponse(classes, total, filters.Limit, filters.Offset, studentID), nil
}

// Enroll adds students to the roster by ID or email. Unknown users and
// duplicates are reported per entry instead of failing the whole request.
func (s *classService) Enroll(ctx context.Context, classID uint, req *EnrollRequest, userID string) (*RosterImportResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if len(req.StudentIDs) == 0 && len(req.Emails) == 0 {
		return nil, NewValidationError("student_ids", "at least one student ID or email is required", nil)
	}

	if _, err := s.loadManaged(ctx, classID, userID, "enroll"); err != nil {
		return nil, err
	}

	result := &RosterImportResult{}
	row := 0

	for _, studentID := range req.StudentIDs {
		row++
		user, err := s.repo.User().GetByID(ctx, studentID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				result.Errors = append(result.Errors, RosterRowError{Row: row, Value: studentID, Message: "user not found"})
				continue
			}
			return nil, fmt.Errorf("failed to look up user %s: %w", studentID, err)
		}
		s.enrollOne(ctx, classID, user, userID, row, result)
	}

	for _, email := range req.Emails {
		row++
		user, err := s.repo.User().GetByEmail(ctx, email)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				result.Errors = append(result.Errors, RosterRowError{Row: row, Value: email, Message: "no account with this email"})
				continue
			}
			return nil, fmt.Errorf("failed to look up user by email %s: %w", email, err)
		}
		s.enrollOne(ctx, classID, user, userID, row, result)
	}

	s.logger.Info("roster updated",
		"class_id", classID,
		"enrolled", result.Enrolled,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"enrolled_by", userID)

	return result, nil
}

func (s *classService) Unenroll(ctx context.Context, classID uint, studentID string, userID string) error {
	if _, err := s.loadManaged(ctx, classID, userID, "unenroll"); err != nil {
		return err
	}

	if err := s.repo.Enrollment().Delete(ctx, nil, classID, studentID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrNotEnrolled
		}
		return fmt.Errorf("failed to unenroll student %s from class %d: %w", studentID, classID, err)
	}

	s.logger.Info("student unenrolled",
		"class_id", classID,
		"student_id", studentID,
		"removed_by", userID)

	return nil
}

// GetRoster returns the class roster with names and emails resolved from the
// identity provider.
func (s *classService) GetRoster(ctx context.Context, classID uint, userID string) ([]RosterEntry, error) {
	class, err := s.repo.Class().GetByID(ctx, nil, classID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to load class %d: %w", classID, err)
	}

	if err := s.checkReadAccess(ctx, class, userID); err != nil {
		return nil, err
	}

	enrollments, err := s.repo.Enrollment().GetByClass(ctx, nil, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster for class %d: %w", classID, err)
	}

	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.StudentID)
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roster users: %w", err)
	}
	usersByID := make(map[string]*models.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	roster := make([]RosterEntry, 0, len(enrollments))
	for _, e := range enrollments {
		entry := RosterEntry{
			StudentID:  e.StudentID,
			EnrolledAt: e.EnrolledAt,
		}
		if u, ok := usersByID[e.StudentID]; ok {
			entry.FullName = u.FullName
			entry.Email = u.Email
		}
		roster = append(roster, entry)
	}

	return roster, nil
}

func (s *classService) GetStats(ctx context.Context, id uint, userID string) (*repositories.ClassStats, error) {
	if _, err := s.loadManaged(ctx, id, userID, "view_stats"); err != nil {
		return nil, err
	}

	stats, err := s.repo.Class().GetStats(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for class %d: %w", id, err)
	}

	return stats, nil
}

func (s *classService) CanAccess(ctx context.Context, classID uint, userID string) (bool, error) {
	class, err := s.repo.Class().GetByID(ctx, nil, classID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrClassNotFound
		}
		return false, err
	}

	return s.checkReadAccess(ctx, class, userID) == nil, nil
}

func (s *classService) IsMember(ctx context.Context, classID uint, studentID string) (bool, error) {
	return s.repo.Enrollment().IsEnrolled(ctx, nil, classID, studentID)
}

// ===== INTERNAL HELPERS =====

func (s *classService) enrollOne(ctx context.Context, classID uint, user *models.User, enrolledBy string, row int, result *RosterImportResult) {
	enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, nil, classID, user.ID)
	if err != nil {
		result.Errors = append(result.Errors, RosterRowError{Row: row, Value: user.ID, Message: "enrollment check failed"})
		return
	}
	if enrolled {
		result.Skipped++
		return
	}

	now := time.Now()
	enrollment := &models.Enrollment{
		ClassID:    classID,
		StudentID:  user.ID,
		EnrolledBy: enrolledBy,
		EnrolledAt: now,
	}
	if err := s.repo.Enrollment().Create(ctx, nil, enrollment); err != nil {
		result.Errors = append(result.Errors, RosterRowError{Row: row, Value: user.ID, Message: "failed to enroll"})
		return
	}

	result.Enrolled++

	if err := s.publisher.Publish(ctx, events.TopicStudentEnrolled, events.StudentEnrolledEvent{
		ClassID:    classID,
		StudentID:  user.ID,
		EnrolledBy: enrolledBy,
		EnrolledAt: now,
	}); err != nil {
		s.logger.Error("failed to publish student enrolled event",
			"class_id", classID,
			"student_id", user.ID,
			"error", err)
	}
}

func (s *classService) loadManaged(ctx context.Context, classID uint, userID, action string) (*models.Class, error) {
	class, err := s.repo.Class().GetByID(ctx, nil, classID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to load class %d: %w", classID, err)
	}

	if class.CreatedBy == userID {
		return class, nil
	}

	if isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); err == nil && isAdmin {
		return class, nil
	}

	return nil, NewPermissionError(userID, classID, "class", action, "only the class owner can manage it")
}

func (s *classService) checkReadAccess(ctx context.Context, class *models.Class, userID string) error {
	if class.CreatedBy == userID {
		return nil
	}

	if isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); err == nil && isAdmin {
		return nil
	}

	enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, nil, class.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to check enrollment: %w", err)
	}
	if enrolled {
		return nil
	}

	return ErrClassAccessDenied
}

func (s *classService) buildResponse(class *models.Class, userID string) *ClassResponse {
	isOwner := class.CreatedBy == userID
	return &ClassResponse{
		Class:     class,
		CanEdit:   isOwner,
		CanDelete: isOwner,
	}
}

func (s *classService) buildListResponse(classes []*models.Class, total int64, limit, offset int, userID string) *ClassListResponse {
	resp := &ClassListResponse{
		Classes: make([]*ClassResponse, 0, len(classes)),
		Total:   total,
		Size:    limit,
	}
	if limit > 0 {
		resp.Page = offset/limit + 1
	}
	for _, c := range classes {
		resp.Classes = append(resp.Classes, s.buildResponse(c, userID))
	}
	return resp
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

type quizService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewQuizService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) QuizService {
	return &quizService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// Create builds a draft quiz, optionally with its initial question set. Quiz
// and questions are written in one transaction so a rejected question never
// leaves a half-created quiz behind.
func (s *quizService) Create(ctx context.Context, req *CreateQuizRequest, creatorID string) (*QuizResponse, error) {
	if errs := s.validator.GetBusinessValidator().ValidateQuizCreate(req); len(errs) > 0 {
		return nil, errs
	}

	if req.ClassID != nil {
		if err := s.checkClassOwnership(ctx, *req.ClassID, creatorID); err != nil {
			return nil, err
		}
	}

	for i := range req.Questions {
		if errs := s.validator.GetBusinessValidator().ValidateQuestionCreate(&req.Questions[i]); len(errs) > 0 {
			return nil, errs
		}
	}

	quiz := &models.Quiz{
		Title:       req.Title,
		Description: req.Description,
		ClassID:     req.ClassID,
		Status:      models.QuizDraft,
		ShowScore:   true,
		MaxAttempts: req.MaxAttempts,
		Duration:    req.Duration,
		OpensAt:     req.OpensAt,
		ClosesAt:    req.ClosesAt,
		CreatedBy:   creatorID,
	}
	if req.ShowScore != nil {
		quiz.ShowScore = *req.ShowScore
	}
	if len(req.Tags) > 0 {
		tags, err := json.Marshal(req.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tags: %w", err)
		}
		quiz.Tags = datatypes.JSON(tags)
	}

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Quiz().Create(ctx, nil, quiz); err != nil {
			return fmt.Errorf("failed to create quiz: %w", err)
		}

		for i := range req.Questions {
			question := buildQuestion(quiz.ID, &req.Questions[i], i+1)
			if err := txRepo.Question().Create(ctx, nil, question); err != nil {
				return fmt.Errorf("failed to create question %d: %w", i+1, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("quiz created",
		"quiz_id", quiz.ID,
		"title", quiz.Title,
		"questions", len(req.Questions),
		"created_by", creatorID)

	created, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload quiz %d: %w", quiz.ID, err)
	}

	return s.buildResponse(ctx, created, creatorID), nil
}

func (s *quizService) GetByID(ctx context.Context, id uint, userID string) (*QuizResponse, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", id, err)
	}

	if err := s.checkReadAccess(ctx, quiz, userID); err != nil {
		return nil, err
	}

	return s.buildResponse(ctx, quiz, userID), nil
}

// GetByIDWithQuestions returns the quiz with its full question set. Students
// get the questions without correct flags only through the attempt flow, so
// this view is restricted to the owner and admins.
func (s *quizService) GetByIDWithQuestions(ctx context.Context, id uint, userID string) (*QuizResponse, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", id, err)
	}

	if err := s.checkManageAccess(ctx, quiz, userID, "view_questions"); err != nil {
		return nil, err
	}

	return s.buildResponse(ctx, quiz, userID), nil
}

func (s *quizService) Update(ctx context.Context, id uint, req *UpdateQuizRequest, userID string) (*QuizResponse, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", id, err)
	}

	if err := s.checkManageAccess(ctx, quiz, userID, "update"); err != nil {
		return nil, err
	}

	if errs := s.validator.GetBusinessValidator().ValidateQuizUpdate(req, quiz); len(errs) > 0 {
		return nil, errs
	}

	if req.ClassID != nil && (quiz.ClassID == nil || *req.ClassID != *quiz.ClassID) {
		if err := s.checkClassOwnership(ctx, *req.ClassID, userID); err != nil {
			return nil, err
		}
	}

	applyQuizUpdate(quiz, req)
	if len(req.Tags) > 0 {
		tags, err := json.Marshal(req.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tags: %w", err)
		}
		quiz.Tags = datatypes.JSON(tags)
	}

	if err := s.repo.Quiz().Update(ctx, nil, quiz); err != nil {
		return nil, fmt.Errorf("failed to update quiz %d: %w", id, err)
	}

	s.logger.Info("quiz updated", "quiz_id", id, "updated_by", userID)

	updated, err := s.repo.Quiz().GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload quiz %d: %w", id, err)
	}

	return s.buildResponse(ctx, updated, userID), nil
}

// Delete removes a draft quiz. Published quizzes and quizzes with attempts
// are kept for record integrity.
func (s *quizService) Delete(ctx context.Context, id uint, userID string) error {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to load quiz %d: %w", id, err)
	}

	if err := s.checkManageAccess(ctx, quiz, userID, "delete"); err != nil {
		return err
	}

	stats, err := s.repo.Quiz().GetStats(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("failed to load stats for quiz %d: %w", id, err)
	}
	hasAttempts := stats.TotalAttempts > 0

	if errs := s.validator.GetBusinessValidator().ValidateDeletePermission(hasAttempts, quiz.Status); len(errs) > 0 {
		if hasAttempts {
			return ErrQuizHasAttempts
		}
		return errs
	}

	if err := s.repo.Quiz().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete quiz %d: %w", id, err)
	}

	s.logger.Info("quiz deleted", "quiz_id", id, "deleted_by", userID)
	return nil
}

func (s *quizService) List(ctx context.Context, filters repositories.QuizFilters, userID string) (*QuizListResponse, error) {
	// Non-admins only see their own quizzes in the unscoped listing.
	if isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); err != nil || !isAdmin {
		filters.CreatedBy = &userID
	}

	quizzes, total, err := s.repo.Quiz().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}

	return s.buildListResponse(ctx, quizzes, total, filters.Limit, filters.Offset, userID), nil
}

func (s *quizService) GetByCreator(ctx context.Context, creatorID string, filters repositories.QuizFilters) (*QuizListResponse, error) {
	quizzes, total, err := s.repo.Quiz().GetByCreator(ctx, nil, creatorID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes for creator %s: %w", creatorID, err)
	}

	return s.buildListResponse(ctx, quizzes, total, filters.Limit, filters.Offset, creatorID), nil
}

// GetByClass lists the quizzes of a class. Students enrolled in the class
// only see published ones.
func (s *quizService) GetByClass(ctx context.Context, classID uint, filters repositories.QuizFilters, userID string) (*QuizListResponse, error) {
	isOwner, err := s.repo.Class().IsOwner(ctx, nil, classID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to check class ownership: %w", err)
	}

	if !isOwner {
		enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, nil, classID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check enrollment: %w", err)
		}
		if !enrolled {
			return nil, ErrClassAccessDenied
		}

		published := models.QuizPublished
		filters.Status = &published
	}

	quizzes, total, err := s.repo.Quiz().GetByClass(ctx, nil, classID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes for class %d: %w", classID, err)
	}

	return s.buildListResponse(ctx, quizzes, total, filters.Limit, filters.Offset, userID), nil
}

// Publish moves a quiz to published. Publishing requires at least one
// question; an empty quiz cannot be taken.
func (s *quizService) Publish(ctx context.Context, id uint, userID string) error {
	return s.transition(ctx, id, userID, models.QuizPublished)
}

// Close stops further attempts on a published quiz. Running attempts finish
// against their own deadlines.
func (s *quizService) Close(ctx context.Context, id uint, userID string) error {
	return s.transition(ctx, id, userID, models.QuizClosed)
}

// AddQuestion appends a question to a quiz. The position defaults to the end
// of the quiz.
func (s *quizService) AddQuestion(ctx context.Context, quizID uint, req *CreateQuestionRequest, userID string) (*models.Question, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", quizID, err)
	}

	if err := s.checkManageAccess(ctx, quiz, userID, "add_question"); err != nil {
		return nil, err
	}

	if errs := s.validator.GetBusinessValidator().ValidateQuestionCreate(req); len(errs) > 0 {
		return nil, errs
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		max, err := s.repo.Question().MaxPosition(ctx, nil, quizID)
		if err != nil {
			return nil, fmt.Errorf("failed to determine question position: %w", err)
		}
		position = max + 1
	}

	question := buildQuestion(quizID, req, position)
	if err := s.repo.Question().Create(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info("question added",
		"quiz_id", quizID,
		"question_id", question.ID,
		"kind", question.Kind,
		"added_by", userID)

	return question, nil
}

func (s *quizService) UpdateQuestion(ctx context.Context, quizID, questionID uint, req *UpdateQuestionRequest, userID string) (*models.Question, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", quizID, err)
	}

	if err := s.checkManageAccess(ctx, quiz, userID, "update_question"); err != nil {
		return nil, err
	}

	question, err := s.repo.Question().GetByIDWithOptions(ctx, nil, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to load question %d: %w", questionID, err)
	}
	if question.QuizID != quizID {
		return nil, ErrQuestionNotFound
	}

	if errs := s.validator.GetBusinessValidator().ValidateQuestionUpdate(req, question); len(errs) > 0 {
		return nil, errs
	}

	if req.Kind != nil {
		question.Kind = *req.Kind
	}
	if req.Text != nil {
		question.Text = *req.Text
	}
	if req.Points != nil {
		question.Points = *req.Points
	}
	if req.Position != nil {
		question.Position = *req.Position
	}
	if req.Options != nil {
		question.Options = buildOptions(question.ID, req.Options)
	}

	if err := s.repo.Question().Update(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to update question %d: %w", questionID, err)
	}

	s.logger.Info("question updated",
		"quiz_id", quizID,
		"question_id", questionID,
		"updated_by", userID)

	return question, nil
}

func (s *quizService) RemoveQuestion(ctx context.Context, quizID, questionID uint, userID string) error {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to load quiz %d: %w", quizID, err)
	}

	if err := s.checkManageAccess(ctx, quiz, userID, "remove_question"); err != nil {
		return err
	}

	question, err := s.repo.Question().GetByID(ctx, nil, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to load question %d: %w", questionID, err)
	}
	if question.QuizID != quizID {
		return ErrQuestionNotFound
	}

	if err := s.repo.Question().Delete(ctx, nil, questionID); err != nil {
		return fmt.Errorf("failed to delete question %d: %w", questionID, err)
	}

	s.logger.Info("question removed",
		"quiz_id", quizID,
		"question_id", questionID,
		"removed_by", userID)

	return nil
}

func (s *quizService) GetQuestions(ctx context.Context, quizID uint, userID string) ([]*models.Question, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", quizID, err)
	}

	if err := s.checkManageAccess(ctx, quiz, userID, "view_questions"); err != nil {
		return nil, err
	}

	questions, err := s.repo.Question().GetByQuiz(ctx, nil, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions for quiz %d: %w", quizID, err)
	}

	return questions, nil
}

func (s *quizService) GetStats(ctx context.Context, id uint, userID string) (*repositories.QuizStats, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", id, err)
	}

	if err := s.checkManageAccess(ctx, quiz, userID, "view_stats"); err != nil {
		return nil, err
	}

	stats, err := s.repo.Quiz().GetStats(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for quiz %d: %w", id, err)
	}

	return stats, nil
}

func (s *quizService) CanEdit(ctx context.Context, quizID uint, userID string) (bool, error) {
	return s.repo.Quiz().IsOwner(ctx, nil, quizID, userID)
}

func (s *quizService) CanDelete(ctx context.Context, quizID uint, userID string) (bool, error) {
	isOwner, err := s.repo.Quiz().IsOwner(ctx, nil, quizID, userID)
	if err != nil || !isOwner {
		return false, err
	}

	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		return false, err
	}
	if quiz.Status != models.QuizDraft {
		return false, nil
	}

	stats, err := s.repo.Quiz().GetStats(ctx, nil, quizID)
	if err != nil {
		return false, err
	}

	return stats.TotalAttempts == 0, nil
}

// CanTake reports whether the student could start an attempt right now,
// ignoring their personal attempt count.
func (s *quizService) CanTake(ctx context.Context, quizID uint, studentID string) (bool, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrQuizNotFound
		}
		return false, err
	}

	return s.canTakeNow(ctx, quiz, studentID), nil
}

// ===== INTERNAL HELPERS =====

func (s *quizService) transition(ctx context.Context, id uint, userID string, target models.QuizStatus) error {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to load quiz %d: %w", id, err)
	}

	if err := s.checkManageAccess(ctx, quiz, userID, string(target)); err != nil {
		return err
	}

	if errs := s.validator.GetBusinessValidator().ValidateStatusTransition(quiz.Status, target, len(quiz.Questions)); len(errs) > 0 {
		if target == models.QuizPublished && len(quiz.Questions) == 0 {
			return ErrQuizNoQuestions
		}
		return errs
	}

	if err := s.repo.Quiz().UpdateStatus(ctx, nil, id, target); err != nil {
		return fmt.Errorf("failed to set quiz %d status to %s: %w", id, target, err)
	}

	if target == models.QuizPublished {
		if err := s.publisher.Publish(ctx, events.TopicQuizPublished, events.QuizPublishedEvent{
			QuizID:      quiz.ID,
			ClassID:     quiz.ClassID,
			Title:       quiz.Title,
			PublishedBy: userID,
			OpensAt:     quiz.OpensAt,
			ClosesAt:    quiz.ClosesAt,
			PublishedAt: time.Now(),
		}); err != nil {
			s.logger.Error("failed to publish quiz published event",
				"quiz_id", quiz.ID,
				"error", err)
		}
	}

	s.logger.Info("quiz status changed",
		"quiz_id", id,
		"from", quiz.Status,
		"to", target,
		"changed_by", userID)

	return nil
}

func (s *quizService) checkClassOwnership(ctx context.Context, classID uint, userID string) error {
	exists, err := s.repo.Class().ExistsByID(ctx, nil, classID)
	if err != nil {
		return fmt.Errorf("failed to check class %d: %w", classID, err)
	}
	if !exists {
		return ErrClassNotFound
	}

	isOwner, err := s.repo.Class().IsOwner(ctx, nil, classID, userID)
	if err != nil {
		return fmt.Errorf("failed to check class ownership: %w", err)
	}
	if !isOwner {
		return NewPermissionError(userID, classID, "class", "attach_quiz", "only the class owner can attach quizzes to it")
	}

	return nil
}

func (s *quizService) checkManageAccess(ctx context.Context, quiz *models.Quiz, userID, action string) error {
	if quiz.CreatedBy == userID {
		return nil
	}

	if isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); err == nil && isAdmin {
		return nil
	}

	return NewPermissionError(userID, quiz.ID, "quiz", action, "only the quiz owner can manage it")
}

// checkReadAccess allows the owner, admins, and enrolled students of the
// quiz's class (published quizzes only).
func (s *quizService) checkReadAccess(ctx context.Context, quiz *models.Quiz, userID string) error {
	if quiz.CreatedBy == userID {
		return nil
	}

	if isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); err == nil && isAdmin {
		return nil
	}

	if quiz.Status != models.QuizDraft && quiz.ClassID != nil {
		enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, nil, *quiz.ClassID, userID)
		if err != nil {
			return fmt.Errorf("failed to check enrollment: %w", err)
		}
		if enrolled {
			return nil
		}
	}

	return NewPermissionError(userID, quiz.ID, "quiz", "read", "quiz is not visible to this user")
}

func (s *quizService) canTakeNow(ctx context.Context, quiz *models.Quiz, studentID string) bool {
	if quiz.Status != models.QuizPublished {
		return false
	}

	now := time.Now()
	if quiz.OpensAt != nil && now.Before(*quiz.OpensAt) {
		return false
	}
	if quiz.ClosesAt != nil && now.After(*quiz.ClosesAt) {
		return false
	}

	if quiz.ClassID != nil {
		enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, nil, *quiz.ClassID, studentID)
		if err != nil || !enrolled {
			return false
		}
	}

	return true
}

func (s *quizService) buildResponse(ctx context.Context, quiz *models.Quiz, userID string) *QuizResponse {
	isOwner := quiz.CreatedBy == userID
	return &QuizResponse{
		Quiz:      quiz,
		CanEdit:   isOwner,
		CanDelete: isOwner && quiz.Status == models.QuizDraft && quiz.AttemptCount == 0,
		CanTake:   !isOwner && s.canTakeNow(ctx, quiz, userID),
	}
}

func (s *quizService) buildListResponse(ctx context.Context, quizzes []*models.Quiz, total int64, limit, offset int, userID string) *QuizListResponse {
	resp := &QuizListResponse{
		Quizzes: make([]*QuizResponse, 0, len(quizzes)),
		Total:   total,
		Size:    limit,
	}
	if limit > 0 {
		resp.Page = offset/limit + 1
	}
	for _, q := range quizzes {
		resp.Quizzes = append(resp.Quizzes, s.buildResponse(ctx, q, userID))
	}
	return resp
}

func buildQuestion(quizID uint, req *CreateQuestionRequest, defaultPosition int) *models.Question {
	position := defaultPosition
	if req.Position != nil {
		position = *req.Position
	}

	question := &models.Question{
		QuizID:   quizID,
		Position: position,
		Kind:     req.Kind,
		Text:     req.Text,
		Points:   req.Points,
	}
	question.Options = buildOptions(0, req.Options)
	return question
}

func buildOptions(questionID uint, reqs []validator.OptionRequest) []models.AnswerOption {
	options := make([]models.AnswerOption, 0, len(reqs))
	for i, opt := range reqs {
		options = append(options, models.AnswerOption{
			QuestionID: questionID,
			Position:   i + 1,
			Text:       opt.Text,
			IsCorrect:  opt.IsCorrect,
		})
	}
	return options
}

func applyQuizUpdate(quiz *models.Quiz, req *UpdateQuizRequest) {
	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = req.Description
	}
	if req.ClassID != nil {
		quiz.ClassID = req.ClassID
	}
	if req.ShowScore != nil {
		quiz.ShowScore = *req.ShowScore
	}
	if req.MaxAttempts != nil {
		quiz.MaxAttempts = *req.MaxAttempts
	}
	if req.Duration != nil {
		quiz.Duration = *req.Duration
	}
	if req.OpensAt != nil {
		quiz.OpensAt = req.OpensAt
	}
	if req.ClosesAt != nil {
		quiz.ClosesAt = req.ClosesAt
	}
}

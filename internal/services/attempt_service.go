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

// attemptService owns the attempt lifecycle: start, answer saving, submit
// and timeout. The deadline written at start (started_at + quiz duration) is
// the authoritative cutoff; every mutating call re-checks it server-side, so
// a client with a frozen countdown cannot buy extra time.
type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	grading   GradingService
	publisher events.EventPublisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, grading GradingService, publisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		grading:   grading,
		publisher: publisher,
	}
}

// Start opens a new attempt for the student. The quiz must be published and
// inside its open window, the student must be enrolled when the quiz belongs
// to a class, and the attempt limit must not be reached. A still-active
// attempt blocks starting another one.
func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, req.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", req.QuizID, err)
	}

	if err := s.checkEligibility(ctx, quiz, studentID); err != nil {
		return nil, err
	}

	active, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, studentID, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if active != nil {
		return nil, ErrAttemptInProgress
	}

	count, err := s.repo.Attempt().GetAttemptCount(ctx, nil, studentID, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if quiz.MaxAttempts != models.UnlimitedAttempts && count >= quiz.MaxAttempts {
		return nil, ErrAttemptLimitExceeded
	}

	now := time.Now()
	deadline := now.Add(time.Duration(quiz.Duration) * time.Minute)
	if quiz.ClosesAt != nil && quiz.ClosesAt.Before(deadline) {
		// The quiz closing early trumps the per-attempt duration.
		deadline = *quiz.ClosesAt
	}

	totalPoints := 0
	for _, q := range quiz.Questions {
		totalPoints += q.Points
	}

	attempt := &models.QuizAttempt{
		QuizID:        quiz.ID,
		StudentID:     studentID,
		AttemptNumber: count + 1,
		Status:        models.AttemptInProgress,
		StartedAt:     &now,
		Deadline:      &deadline,
		TotalPoints:   totalPoints,
	}

	if err := s.repo.Attempt().Create(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.TopicAttemptStarted, events.AttemptStartedEvent{
		AttemptID:     attempt.ID,
		QuizID:        quiz.ID,
		StudentID:     studentID,
		AttemptNumber: attempt.AttemptNumber,
		Deadline:      deadline,
		StartedAt:     now,
	}); err != nil {
		s.logger.Error("failed to publish attempt started event",
			"attempt_id", attempt.ID,
			"error", err)
	}

	s.logger.Info("attempt started",
		"attempt_id", attempt.ID,
		"quiz_id", quiz.ID,
		"student_id", studentID,
		"attempt_number", attempt.AttemptNumber,
		"deadline", deadline)

	attempt.Quiz = *quiz
	return s.buildResponse(attempt, studentID, true), nil
}

// Resume returns an in-progress attempt with its questions and previously
// saved answers. A resume past the deadline finalizes the attempt instead.
func (s *attemptService) Resume(ctx context.Context, attemptID uint, studentID string) (*AttemptResponse, error) {
	attempt, err := s.loadOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptAlreadySubmitted
	}

	if s.pastDeadline(attempt) {
		if err := s.finalizeTimeout(ctx, attempt); err != nil {
			return nil, err
		}
		return nil, ErrAttemptDeadlinePassed
	}

	return s.buildResponse(attempt, studentID, true), nil
}

// SaveAnswer upserts one raw answer while the attempt is running. Saved
// answers survive disconnects and are what a timeout submission grades.
func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	attempt, err := s.loadOwned(ctx, attemptID, studentID)
	if err != nil {
		return err
	}

	if attempt.Status != models.AttemptInProgress {
		return ErrAttemptNotActive
	}

	if s.pastDeadline(attempt) {
		if err := s.finalizeTimeout(ctx, attempt); err != nil {
			return err
		}
		return ErrAttemptDeadlinePassed
	}

	question, err := s.repo.Question().GetByID(ctx, nil, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to load question %d: %w", req.QuestionID, err)
	}
	if question.QuizID != attempt.QuizID {
		return ErrQuestionNotFound
	}

	existing, err := s.repo.Answer().GetByAttemptAndQuestion(ctx, nil, attempt.ID, question.ID)
	if err != nil {
		return fmt.Errorf("failed to look up saved answer: %w", err)
	}

	if existing != nil {
		existing.RawAnswer = req.Answer
		existing.SelectedOptionID = nil
		existing.AnswerText = nil
		existing.IsGraded = false
		if err := s.repo.Answer().Update(ctx, nil, existing); err != nil {
			return fmt.Errorf("failed to update saved answer: %w", err)
		}
		return nil
	}

	answer := &models.StudentAnswer{
		AttemptID:  attempt.ID,
		QuestionID: question.ID,
		RawAnswer:  req.Answer,
		MaxPoints:  question.Points,
	}
	if err := s.repo.Answer().Create(ctx, nil, answer); err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}

	return nil
}

// Submit finalizes the attempt and grades it. Answers in the request replace
// saved answers for the same question. A submit arriving after the deadline
// is treated as a timeout: only previously saved answers count.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.loadOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptAlreadySubmitted
	}

	if s.pastDeadline(attempt) {
		if err := s.finalizeTimeout(ctx, attempt); err != nil {
			return nil, err
		}
		return nil, ErrAttemptDeadlinePassed
	}

	submissions := mergeSubmissions(attempt.Answers, req.Answers)
	if err := s.finalize(ctx, attempt, submissions, models.AttemptEndReasonSubmitted); err != nil {
		return nil, err
	}

	graded, err := s.repo.Attempt().GetByIDWithDetails(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload graded attempt %d: %w", attempt.ID, err)
	}

	return s.buildResponse(graded, studentID, false), nil
}

// HandleTimeout force-submits an overdue attempt with whatever answers were
// saved. Safe to call on attempts that already finished.
func (s *attemptService) HandleTimeout(ctx context.Context, attemptID uint) error {
	attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}

	if attempt.Status != models.AttemptInProgress {
		return nil
	}

	return s.finalizeTimeout(ctx, attempt)
}

func (s *attemptService) GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", id, err)
	}

	if err := s.checkReadAccess(ctx, attempt, userID); err != nil {
		return nil, err
	}

	return s.buildResponse(attempt, userID, false), nil
}

func (s *attemptService) GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", id, err)
	}

	if err := s.checkReadAccess(ctx, attempt, userID); err != nil {
		return nil, err
	}

	return s.buildResponse(attempt, userID, attempt.Status == models.AttemptInProgress), nil
}

func (s *attemptService) GetCurrentAttempt(ctx context.Context, quizID uint, studentID string) (*AttemptResponse, error) {
	active, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, studentID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active attempt: %w", err)
	}
	if active == nil {
		return nil, ErrAttemptNotFound
	}

	return s.Resume(ctx, active.ID, studentID)
}

func (s *attemptService) GetByStudent(ctx context.Context, studentID string, filters repositories.AttemptFilters) ([]*AttemptResponse, int64, error) {
	attempts, total, err := s.repo.Attempt().GetByStudent(ctx, nil, studentID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts for student %s: %w", studentID, err)
	}

	responses := make([]*AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		responses = append(responses, s.buildResponse(a, studentID, false))
	}
	return responses, total, nil
}

func (s *attemptService) GetByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, userID string) ([]*AttemptResponse, int64, error) {
	isOwner, err := s.repo.Quiz().IsOwner(ctx, nil, quizID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, 0, ErrQuizNotFound
		}
		return nil, 0, fmt.Errorf("failed to check quiz ownership: %w", err)
	}
	if !isOwner {
		if isAdmin, roleErr := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); roleErr != nil || !isAdmin {
			return nil, 0, NewPermissionError(userID, quizID, "quiz", "list_attempts", "only the quiz owner can list its attempts")
		}
	}

	attempts, total, err := s.repo.Attempt().GetByQuiz(ctx, nil, quizID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts for quiz %d: %w", quizID, err)
	}

	responses := make([]*AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		responses = append(responses, s.buildResponse(a, userID, false))
	}
	return responses, total, nil
}

// GetTimeRemaining returns whole seconds until the deadline, zero when the
// attempt is over or overdue.
func (s *attemptService) GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (int, error) {
	attempt, err := s.loadOwned(ctx, attemptID, studentID)
	if err != nil {
		return 0, err
	}

	if attempt.Status != models.AttemptInProgress {
		return 0, nil
	}

	return timeRemaining(attempt), nil
}

func (s *attemptService) CanStart(ctx context.Context, quizID uint, studentID string) (bool, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrQuizNotFound
		}
		return false, fmt.Errorf("failed to load quiz %d: %w", quizID, err)
	}

	count, err := s.repo.Attempt().GetAttemptCount(ctx, nil, studentID, quizID)
	if err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}

	if errs := s.validator.GetBusinessValidator().ValidateAttemptStart(quiz, count); len(errs) > 0 {
		return false, nil
	}

	active, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, studentID, quizID)
	if err != nil {
		return false, fmt.Errorf("failed to check active attempt: %w", err)
	}

	return active == nil, nil
}

func (s *attemptService) GetAttemptCount(ctx context.Context, quizID uint, studentID string) (int, error) {
	count, err := s.repo.Attempt().GetAttemptCount(ctx, nil, studentID, quizID)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

// ===== INTERNAL HELPERS =====

func (s *attemptService) checkEligibility(ctx context.Context, quiz *models.Quiz, studentID string) error {
	if quiz.Status != models.QuizPublished {
		return ErrQuizNotPublished
	}

	now := time.Now()
	if quiz.OpensAt != nil && now.Before(*quiz.OpensAt) {
		return ErrQuizNotOpen
	}
	if quiz.ClosesAt != nil && now.After(*quiz.ClosesAt) {
		return ErrQuizClosed
	}

	if quiz.ClassID != nil {
		enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, nil, *quiz.ClassID, studentID)
		if err != nil {
			return fmt.Errorf("failed to check enrollment: %w", err)
		}
		if !enrolled {
			return ErrNotEnrolled
		}
	}

	return nil
}

// loadOwned loads an attempt with full details and verifies the caller is
// its student.
func (s *attemptService) loadOwned(ctx context.Context, attemptID uint, studentID string) (*models.QuizAttempt, error) {
	attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}

	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, attemptID, "attempt", "access", "attempt belongs to another student")
	}

	return attempt, nil
}

func (s *attemptService) checkReadAccess(ctx context.Context, attempt *models.QuizAttempt, userID string) error {
	if attempt.StudentID == userID {
		return nil
	}

	isOwner, err := s.repo.Quiz().IsOwner(ctx, nil, attempt.QuizID, userID)
	if err != nil {
		return fmt.Errorf("failed to check quiz ownership: %w", err)
	}
	if isOwner {
		return nil
	}

	if isAdmin, roleErr := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); roleErr == nil && isAdmin {
		return nil
	}

	return NewPermissionError(userID, attempt.ID, "attempt", "access", "not the attempt's student or quiz owner")
}

func (s *attemptService) pastDeadline(attempt *models.QuizAttempt) bool {
	return attempt.Deadline != nil && time.Now().After(*attempt.Deadline)
}

// finalize stamps the end of the attempt and hands the submissions to the
// grader. Grading reloads and updates the attempt, so the stamp is persisted
// first.
func (s *attemptService) finalize(ctx context.Context, attempt *models.QuizAttempt, submissions []AnswerSubmission, endReason string) error {
	now := time.Now()
	attempt.SubmittedAt = &now
	attempt.EndReason = &endReason
	attempt.Status = models.AttemptSubmitted
	if attempt.StartedAt != nil {
		spent := now.Sub(*attempt.StartedAt)
		if endReason == models.AttemptEndReasonTimeout && attempt.Deadline != nil {
			spent = attempt.Deadline.Sub(*attempt.StartedAt)
		}
		attempt.TimeSpent = int(spent.Seconds())
	}

	if err := s.repo.Attempt().Update(ctx, nil, attempt); err != nil {
		return fmt.Errorf("failed to finalize attempt %d: %w", attempt.ID, err)
	}

	if _, err := s.grading.GradeAttempt(ctx, attempt.ID, submissions); err != nil {
		return fmt.Errorf("failed to grade attempt %d: %w", attempt.ID, err)
	}

	return nil
}

func (s *attemptService) finalizeTimeout(ctx context.Context, attempt *models.QuizAttempt) error {
	submissions := mergeSubmissions(attempt.Answers, nil)

	s.logger.Info("attempt timed out",
		"attempt_id", attempt.ID,
		"quiz_id", attempt.QuizID,
		"student_id", attempt.StudentID,
		"saved_answers", len(submissions))

	return s.finalize(ctx, attempt, submissions, models.AttemptEndReasonTimeout)
}

// mergeSubmissions combines saved answers with the final submission payload.
// The payload wins per question; saved answers fill the gaps.
func mergeSubmissions(saved []models.StudentAnswer, final []AnswerSubmission) []AnswerSubmission {
	merged := make([]AnswerSubmission, 0, len(saved)+len(final))
	inFinal := make(map[uint]bool, len(final))

	for _, sub := range final {
		merged = append(merged, sub)
		inFinal[sub.QuestionID] = true
	}
	for _, ans := range saved {
		if !inFinal[ans.QuestionID] {
			merged = append(merged, AnswerSubmission{QuestionID: ans.QuestionID, Answer: ans.RawAnswer})
		}
	}

	return merged
}

func timeRemaining(attempt *models.QuizAttempt) int {
	if attempt.Deadline == nil {
		return 0
	}
	remaining := time.Until(*attempt.Deadline)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds())
}

// buildResponse shapes an attempt for the API. Questions are included only
// for running attempts and never leak correct flags. Score is withheld from
// the student when the quiz hides it.
func (s *attemptService) buildResponse(attempt *models.QuizAttempt, viewerID string, includeQuestions bool) *AttemptResponse {
	resp := &AttemptResponse{
		QuizAttempt: attempt,
		CanSubmit:   attempt.Status == models.AttemptInProgress && !s.pastDeadline(attempt),
		CanResume:   attempt.Status == models.AttemptInProgress && !s.pastDeadline(attempt),
	}

	if attempt.Status == models.AttemptInProgress {
		resp.TimeRemaining = timeRemaining(attempt)
	}

	if viewerID == attempt.StudentID && attempt.Quiz.ID != 0 && !attempt.Quiz.ShowScore {
		shallow := *attempt
		shallow.Score = nil
		resp.QuizAttempt = &shallow
	}

	if includeQuestions && attempt.Quiz.ID != 0 {
		savedByQuestion := make(map[uint]string, len(attempt.Answers))
		for _, ans := range attempt.Answers {
			savedByQuestion[ans.QuestionID] = ans.RawAnswer
		}

		for _, q := range attempt.Quiz.Questions {
			qa := QuestionForAttempt{
				ID:       q.ID,
				Position: q.Position,
				Kind:     q.Kind,
				Text:     q.Text,
				Points:   q.Points,
			}
			for _, opt := range q.Options {
				qa.Options = append(qa.Options, OptionForAttempt{
					ID:       opt.ID,
					Position: opt.Position,
					Text:     opt.Text,
				})
			}
			if raw, ok := savedByQuestion[q.ID]; ok {
				saved := raw
				qa.Answer = &saved
			}
			resp.Questions = append(resp.Questions, qa)
		}
	}

	return resp
}

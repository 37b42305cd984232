package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

// gradingService turns raw submitted answers into scored attempts.
//
// Grading never trusts state derived at submission time: it always starts
// from the stored raw answer text and re-resolves it against the question's
// current options, which is what makes Recalculate safe to run repeatedly.
// Writing the results clears the attempt's answer rows and rewrites them
// inside a single transaction, so a failed grading pass leaves the previous
// state untouched.
type gradingService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewGradingService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) GradingService {
	return &gradingService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// GradeAttempt grades the given submissions against the attempt's quiz and
// persists the result. Selectable questions are resolved and scored
// immediately; essay answers are stored ungraded with zero points until a
// teacher grades them. The attempt score is always written, counting ungraded
// essays as zero.
func (s *gradingService) GradeAttempt(ctx context.Context, attemptID uint, submissions []AnswerSubmission) (*GradeSummary, error) {
	attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}

	summary, err := s.runGrading(ctx, attempt, submissions, nil)
	if err != nil {
		return nil, err
	}

	s.publishGraded(ctx, attempt, summary)

	s.logger.Info("attempt graded",
		"attempt_id", attempt.ID,
		"quiz_id", attempt.QuizID,
		"student_id", attempt.StudentID,
		"score", derefScore(summary.Score),
		"pending_manual", summary.PendingManual)

	return summary, nil
}

// Recalculate re-grades an attempt from its stored raw answers. Manual essay
// grades survive recalculation as long as the stored raw answer is unchanged.
func (s *gradingService) Recalculate(ctx context.Context, attemptID uint, userID string) (*GradeSummary, error) {
	attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}

	if err := s.canManageQuiz(ctx, attempt.QuizID, userID, "recalculate"); err != nil {
		return nil, err
	}

	if attempt.Status == models.AttemptInProgress {
		return nil, ErrAttemptNotGradable
	}

	summary, err := s.recalculateAttempt(ctx, attempt)
	if err != nil {
		return nil, err
	}

	s.publishGraded(ctx, attempt, summary)

	s.logger.Info("attempt recalculated",
		"attempt_id", attempt.ID,
		"quiz_id", attempt.QuizID,
		"requested_by", userID,
		"score", derefScore(summary.Score))

	return summary, nil
}

// RecalculateQuiz re-grades every finished attempt of a quiz. Used after a
// teacher fixes a wrong answer key on a published quiz.
func (s *gradingService) RecalculateQuiz(ctx context.Context, quizID uint, userID string) (map[uint]*GradeSummary, error) {
	if err := s.canManageQuiz(ctx, quizID, userID, "recalculate"); err != nil {
		return nil, err
	}

	attempts, _, err := s.repo.Attempt().GetByQuiz(ctx, nil, quizID, repositories.AttemptFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for quiz %d: %w", quizID, err)
	}

	summaries := make(map[uint]*GradeSummary, len(attempts))
	for _, a := range attempts {
		if a.Status == models.AttemptInProgress {
			continue
		}

		attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, nil, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load attempt %d: %w", a.ID, err)
		}

		summary, err := s.recalculateAttempt(ctx, attempt)
		if err != nil {
			return nil, fmt.Errorf("failed to recalculate attempt %d: %w", a.ID, err)
		}

		summaries[a.ID] = summary
		s.publishGraded(ctx, attempt, summary)
	}

	s.logger.Info("quiz recalculated",
		"quiz_id", quizID,
		"attempts", len(summaries),
		"requested_by", userID)

	return summaries, nil
}

// GradeEssayAnswer records a teacher's manual grade for one essay answer and
// refreshes the attempt's score. Once every answer of the attempt is graded
// the attempt leaves the pending-manual state.
func (s *gradingService) GradeEssayAnswer(ctx context.Context, answerID uint, req *GradeEssayRequest, graderID string) (*AnswerGradingResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	answer, err := s.repo.Answer().GetByIDWithDetails(ctx, nil, answerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("failed to load answer %d: %w", answerID, err)
	}

	if answer.Question.Kind != models.Essay {
		return nil, ErrAnswerNotEssay
	}

	if err := s.canManageQuiz(ctx, answer.Attempt.QuizID, graderID, "grade"); err != nil {
		return nil, err
	}

	if answer.Attempt.Status == models.AttemptInProgress {
		return nil, ErrAttemptNotGradable
	}

	if req.AwardedPoints > float64(answer.Question.Points) {
		return nil, NewBusinessRuleError("awarded_points_exceed_max",
			fmt.Sprintf("awarded points cannot exceed the question's %d points", answer.Question.Points),
			map[string]interface{}{
				"awarded_points": req.AwardedPoints,
				"max_points":     answer.Question.Points,
			})
	}

	now := time.Now()
	var attempt *models.QuizAttempt

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		answer.AwardedPoints = req.AwardedPoints
		answer.IsGraded = true
		answer.GradedBy = &graderID
		answer.GradedAt = &now
		answer.Feedback = req.Feedback

		if err := txRepo.Answer().Update(ctx, nil, answer); err != nil {
			return fmt.Errorf("failed to update answer %d: %w", answer.ID, err)
		}

		var err error
		attempt, err = s.refreshAttemptScore(ctx, txRepo, answer.AttemptID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.TopicAttemptGraded, events.AttemptGradedEvent{
		AttemptID:     attempt.ID,
		QuizID:        attempt.QuizID,
		StudentID:     attempt.StudentID,
		Score:         attempt.Score,
		TotalPoints:   float64(attempt.TotalPoints),
		PendingManual: attempt.PendingManual,
		GradedAt:      now,
		SubmittedAt:   attempt.SubmittedAt,
	}); err != nil {
		s.logger.Error("failed to publish attempt graded event",
			"attempt_id", attempt.ID,
			"error", err)
	}

	s.logger.Info("essay answer graded",
		"answer_id", answer.ID,
		"attempt_id", answer.AttemptID,
		"graded_by", graderID,
		"awarded_points", req.AwardedPoints,
		"pending_manual", attempt.PendingManual)

	return &AnswerGradingResult{
		AnswerID:      answer.ID,
		QuestionID:    answer.QuestionID,
		Kind:          answer.Question.Kind,
		AwardedPoints: answer.AwardedPoints,
		MaxPoints:     answer.MaxPoints,
		IsCorrect:     answer.IsCorrect,
		IsGraded:      true,
	}, nil
}

// GetPendingManual lists the ungraded essay answers of a quiz.
func (s *gradingService) GetPendingManual(ctx context.Context, quizID uint, filters repositories.AnswerFilters, userID string) ([]*models.StudentAnswer, int64, error) {
	if err := s.canManageQuiz(ctx, quizID, userID, "grade"); err != nil {
		return nil, 0, err
	}

	answers, total, err := s.repo.Answer().GetPendingManual(ctx, nil, quizID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending manual answers for quiz %d: %w", quizID, err)
	}

	return answers, total, nil
}

func (s *gradingService) GetGradingOverview(ctx context.Context, quizID uint, userID string) (*repositories.GradingStats, error) {
	if err := s.canManageQuiz(ctx, quizID, userID, "view_grading"); err != nil {
		return nil, err
	}

	stats, err := s.repo.Answer().GetGradingStats(ctx, nil, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grading stats for quiz %d: %w", quizID, err)
	}

	return stats, nil
}

// ===== GRADING CORE =====

// recalculateAttempt rebuilds submissions from the attempt's stored answers
// and carries over manual essay grades keyed by question.
func (s *gradingService) recalculateAttempt(ctx context.Context, attempt *models.QuizAttempt) (*GradeSummary, error) {
	submissions := make([]AnswerSubmission, 0, len(attempt.Answers))
	manual := make(map[uint]*models.StudentAnswer)

	for i := range attempt.Answers {
		ans := &attempt.Answers[i]
		submissions = append(submissions, AnswerSubmission{
			QuestionID: ans.QuestionID,
			Answer:     ans.RawAnswer,
		})
		if ans.IsGraded && ans.GradedBy != nil {
			manual[ans.QuestionID] = ans
		}
	}

	return s.runGrading(ctx, attempt, submissions, manual)
}

// runGrading resolves the submissions against the quiz's questions and
// atomically replaces the attempt's answers with the graded set. manual maps
// question ID to a previously hand-graded answer whose grade should carry
// over; pass nil on first grading.
func (s *gradingService) runGrading(ctx context.Context, attempt *models.QuizAttempt, submissions []AnswerSubmission, manual map[uint]*models.StudentAnswer) (*GradeSummary, error) {
	questions := attempt.Quiz.Questions
	questionsByID := make(map[uint]*models.Question, len(questions))
	totalPoints := 0
	essayCount := 0
	for i := range questions {
		questionsByID[questions[i].ID] = &questions[i]
		totalPoints += questions[i].Points
		if questions[i].Kind == models.Essay {
			essayCount++
		}
	}

	// Last submission per question wins; unknown question IDs are dropped.
	byQuestion := make(map[uint]string, len(submissions))
	order := make([]uint, 0, len(submissions))
	for _, sub := range submissions {
		if _, ok := questionsByID[sub.QuestionID]; !ok {
			s.logger.Warn("dropping answer for unknown question",
				"attempt_id", attempt.ID,
				"question_id", sub.QuestionID)
			continue
		}
		if _, seen := byQuestion[sub.QuestionID]; !seen {
			order = append(order, sub.QuestionID)
		}
		byQuestion[sub.QuestionID] = sub.Answer
	}

	now := time.Now()
	answers := make([]*models.StudentAnswer, 0, len(order))
	awarded := 0.0
	pendingManual := false

	for _, qid := range order {
		q := questionsByID[qid]
		ans := s.resolveAnswer(attempt.ID, q, byQuestion[qid], manual[qid], now)
		if ans == nil {
			// Text that resolves to no option counts as unanswered.
			continue
		}
		answers = append(answers, ans)
		awarded += ans.AwardedPoints
		if !ans.IsGraded {
			pendingManual = true
		}
	}

	score := computeScore(awarded, totalPoints)

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Answer().DeleteByAttempt(ctx, nil, attempt.ID); err != nil {
			return fmt.Errorf("failed to clear answers for attempt %d: %w", attempt.ID, err)
		}

		if len(answers) > 0 {
			if err := txRepo.Answer().CreateBatch(ctx, nil, answers); err != nil {
				return fmt.Errorf("failed to write graded answers for attempt %d: %w", attempt.ID, err)
			}
		}

		attempt.Score = &score
		attempt.TotalPoints = totalPoints
		attempt.PendingManual = pendingManual
		if pendingManual {
			attempt.Status = models.AttemptSubmitted
		} else {
			attempt.Status = models.AttemptGraded
		}

		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to update attempt %d: %w", attempt.ID, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	summary := &GradeSummary{
		AttemptID:     attempt.ID,
		QuizID:        attempt.QuizID,
		Score:         &score,
		AwardedPoints: awarded,
		TotalPoints:   totalPoints,
		AnsweredCount: len(answers),
		QuestionCount: len(questions),
		EssayCount:    essayCount,
		PendingManual: pendingManual,
		GradedAt:      now,
	}
	for _, ans := range answers {
		summary.Answers = append(summary.Answers, AnswerGradingResult{
			AnswerID:      ans.ID,
			QuestionID:    ans.QuestionID,
			Kind:          questionsByID[ans.QuestionID].Kind,
			AwardedPoints: ans.AwardedPoints,
			MaxPoints:     ans.MaxPoints,
			IsCorrect:     ans.IsCorrect,
			IsGraded:      ans.IsGraded,
		})
	}

	return summary, nil
}

// resolveAnswer builds the graded answer row for one question. The raw text
// is kept verbatim alongside whatever it resolved to. Selectable answers that
// match no option return nil: the question is unanswered, not wrong.
func (s *gradingService) resolveAnswer(attemptID uint, q *models.Question, raw string, previous *models.StudentAnswer, now time.Time) *models.StudentAnswer {
	ans := &models.StudentAnswer{
		AttemptID:  attemptID,
		QuestionID: q.ID,
		RawAnswer:  raw,
		MaxPoints:  q.Points,
	}

	if q.Kind == models.Essay {
		text := raw
		ans.AnswerText = &text

		// Carry a manual grade across recalculation when the essay text is
		// unchanged; edits invalidate the old grade.
		if previous != nil && previous.RawAnswer == raw {
			ans.AwardedPoints = previous.AwardedPoints
			ans.IsGraded = true
			ans.GradedBy = previous.GradedBy
			ans.GradedAt = previous.GradedAt
			ans.Feedback = previous.Feedback
			ans.IsCorrect = previous.IsCorrect
		}
		return ans
	}

	opt := matchOption(q, raw)
	if opt == nil {
		return nil
	}

	correct := opt.IsCorrect
	ans.SelectedOptionID = &opt.ID
	ans.IsCorrect = &correct
	ans.IsGraded = true
	ans.GradedAt = &now
	if correct {
		ans.AwardedPoints = float64(q.Points)
	}

	return ans
}

// refreshAttemptScore recomputes an attempt's score from its stored answers.
// Called after a manual grade lands; must run inside the same transaction.
func (s *gradingService) refreshAttemptScore(ctx context.Context, txRepo repositories.Repository, attemptID uint) (*models.QuizAttempt, error) {
	attempt, err := txRepo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}

	answers, err := txRepo.Answer().GetByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers for attempt %d: %w", attemptID, err)
	}

	awarded := 0.0
	allGraded := true
	for _, ans := range answers {
		awarded += ans.AwardedPoints
		if !ans.IsGraded {
			allGraded = false
		}
	}

	score := computeScore(awarded, attempt.TotalPoints)
	attempt.Score = &score
	attempt.PendingManual = !allGraded
	if allGraded {
		attempt.Status = models.AttemptGraded
	}

	if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to update attempt %d: %w", attemptID, err)
	}

	return attempt, nil
}

// matchOption resolves raw answer text to an option of a selectable question.
// Single-select matches the exact option text after trimming whitespace;
// true/false additionally ignores case. No match means the question is
// treated as unanswered.
func matchOption(q *models.Question, raw string) *models.AnswerOption {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	for i := range q.Options {
		opt := &q.Options[i]
		optText := strings.TrimSpace(opt.Text)

		if q.Kind == models.TrueFalse {
			if strings.EqualFold(optText, trimmed) {
				return opt
			}
			continue
		}

		if optText == trimmed {
			return opt
		}
	}

	return nil
}

// computeScore converts awarded points to a whole percentage, rounding half
// up. A quiz with no points scores zero.
func computeScore(awarded float64, totalPoints int) float64 {
	if totalPoints <= 0 {
		return 0
	}
	return math.Floor(awarded/float64(totalPoints)*100 + 0.5)
}

func (s *gradingService) canManageQuiz(ctx context.Context, quizID uint, userID string, action string) error {
	isOwner, err := s.repo.Quiz().IsOwner(ctx, nil, quizID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to check quiz ownership: %w", err)
	}
	if isOwner {
		return nil
	}

	isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin)
	if err == nil && isAdmin {
		return nil
	}

	return NewPermissionError(userID, quizID, "quiz", action, "only the quiz owner can grade its attempts")
}

func (s *gradingService) publishGraded(ctx context.Context, attempt *models.QuizAttempt, summary *GradeSummary) {
	err := s.publisher.Publish(ctx, events.TopicAttemptGraded, events.AttemptGradedEvent{
		AttemptID:     summary.AttemptID,
		QuizID:        summary.QuizID,
		StudentID:     attempt.StudentID,
		Score:         summary.Score,
		TotalPoints:   float64(summary.TotalPoints),
		PendingManual: summary.PendingManual,
		GradedAt:      summary.GradedAt,
		SubmittedAt:   attempt.SubmittedAt,
	})
	if err != nil {
		// Event delivery must not fail grading; the write already committed.
		s.logger.Error("failed to publish attempt graded event",
			"attempt_id", summary.AttemptID,
			"error", err)
	}
}

func derefScore(score *float64) float64 {
	if score == nil {
		return 0
	}
	return *score
}

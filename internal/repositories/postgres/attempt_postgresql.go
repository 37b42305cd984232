package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/cache"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Create starts a new attempt row
func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	if err := a.getDB(tx).WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}

	cache.SafeInvalidatePattern(ctx, a.cacheManager.Stats, fmt.Sprintf("quiz:%d:*", attempt.QuizID))

	return nil
}

// GetByID retrieves an attempt by ID
func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	err := a.getDB(tx).WithContext(ctx).First(&attempt, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	return &attempt, nil
}

// GetByIDWithDetails retrieves an attempt with quiz, questions and answers
func (a *AttemptPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	err := a.getDB(tx).WithContext(ctx).
		Preload("Quiz").
		Preload("Quiz.Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.position ASC")
		}).
		Preload("Quiz.Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_options.position ASC")
		}).
		Preload("Answers").
		First(&attempt, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt details: %w", err)
	}

	return &attempt, nil
}

// Update writes attempt state changes
func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	if err := a.getDB(tx).WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("id = ?", attempt.ID).
		Updates(map[string]interface{}{
			"status":         attempt.Status,
			"submitted_at":   attempt.SubmittedAt,
			"time_spent":     attempt.TimeSpent,
			"score":          attempt.Score,
			"total_points":   attempt.TotalPoints,
			"pending_manual": attempt.PendingManual,
			"end_reason":     attempt.EndReason,
			"session_data":   attempt.SessionData,
			"updated_at":     time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}

	a.cacheManager.InvalidateAttempt(ctx, attempt.ID)
	cache.SafeInvalidatePattern(ctx, a.cacheManager.Stats, fmt.Sprintf("quiz:%d:*", attempt.QuizID))

	return nil
}

// Delete hard deletes an attempt and its answers
func (a *AttemptPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := a.getDB(tx)

	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).Select("id, quiz_id").First(&attempt, id).Error; err != nil {
		return fmt.Errorf("failed to get attempt before delete: %w", err)
	}

	if err := db.WithContext(ctx).
		Where("attempt_id = ?", id).
		Delete(&models.StudentAnswer{}).Error; err != nil {
		return fmt.Errorf("failed to delete attempt answers: %w", err)
	}

	if err := db.WithContext(ctx).Delete(&models.QuizAttempt{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete attempt: %w", err)
	}

	a.cacheManager.InvalidateAttempt(ctx, id)
	cache.SafeInvalidatePattern(ctx, a.cacheManager.Stats, fmt.Sprintf("quiz:%d:*", attempt.QuizID))

	return nil
}

// List retrieves attempts with filters and pagination
func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	query := a.getDB(tx).WithContext(ctx).Model(&models.QuizAttempt{})

	query = a.helpers.ApplyAttemptFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var attempts []*models.QuizAttempt
	if err := query.Preload("Quiz").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

// GetByStudent retrieves a student's attempts
func (a *AttemptPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	filters.StudentID = &studentID
	return a.List(ctx, tx, filters)
}

// GetByQuiz retrieves attempts for one quiz
func (a *AttemptPostgreSQL) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	query := a.getDB(tx).WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ?", quizID)

	query = a.helpers.ApplyAttemptFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var attempts []*models.QuizAttempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

// GetActiveAttempt returns the student's in-progress attempt for a quiz,
// nil when there is none
func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	err := a.getDB(tx).WithContext(ctx).
		Where("student_id = ? AND quiz_id = ? AND status = ?", studentID, quizID, models.AttemptInProgress).
		Order("started_at DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}

	return &attempt, nil
}

// GetAttemptCount counts a student's attempts for a quiz
func (a *AttemptPostgreSQL) GetAttemptCount(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int, error) {
	count, err := a.helpers.CountAttemptsByStudent(ctx, quizID, studentID)
	return int(count), err
}

// GetQuizAttemptStats retrieves attempt statistics for a quiz with caching
func (a *AttemptPostgreSQL) GetQuizAttemptStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.QuizStats, error) {
	cacheKey := fmt.Sprintf("quiz:%d:attempts", quizID)
	var stats repositories.QuizStats

	err := a.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		return NewQuizPostgreSQL(a.getDB(tx), nil).GetStats(ctx, tx, quizID)
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// AnswerPostgreSQL implements AnswerRepository

type AnswerPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAnswerPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AnswerRepository {
	return &AnswerPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Create stores one answer row
func (a *AnswerPostgreSQL) Create(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	if err := a.getDB(tx).WithContext(ctx).Create(answer).Error; err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}

	a.cacheManager.InvalidateAttempt(ctx, answer.AttemptID)

	return nil
}

// GetByID retrieves an answer by ID
func (a *AnswerPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentAnswer, error) {
	var answer models.StudentAnswer
	err := a.getDB(tx).WithContext(ctx).First(&answer, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	return &answer, nil
}

// GetByIDWithDetails retrieves an answer with its question and options
func (a *AnswerPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentAnswer, error) {
	var answer models.StudentAnswer
	err := a.getDB(tx).WithContext(ctx).
		Preload("Question").
		Preload("Question.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_options.position ASC")
		}).
		Preload("Attempt").
		First(&answer, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get answer details: %w", err)
	}

	return &answer, nil
}

// Update writes grading results to an answer
func (a *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	if err := a.getDB(tx).WithContext(ctx).
		Model(&models.StudentAnswer{}).
		Where("id = ?", answer.ID).
		Updates(map[string]interface{}{
			"raw_answer":         answer.RawAnswer,
			"selected_option_id": answer.SelectedOptionID,
			"answer_text":        answer.AnswerText,
			"awarded_points":     answer.AwardedPoints,
			"max_points":         answer.MaxPoints,
			"is_correct":         answer.IsCorrect,
			"is_graded":          answer.IsGraded,
			"graded_by":          answer.GradedBy,
			"graded_at":          answer.GradedAt,
			"feedback":           answer.Feedback,
			"updated_at":         time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}

	a.cacheManager.InvalidateAttempt(ctx, answer.AttemptID)

	return nil
}

// GetByAttempt retrieves all answers of an attempt
func (a *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StudentAnswer, error) {
	var answers []*models.StudentAnswer
	err := a.getDB(tx).WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_id ASC").
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt answers: %w", err)
	}

	return answers, nil
}

// GetByAttemptAndQuestion retrieves the answer for one question in one
// attempt, nil when the question is unanswered
func (a *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.StudentAnswer, error) {
	var answer models.StudentAnswer
	err := a.getDB(tx).WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	return &answer, nil
}

// DeleteByAttempt removes every answer of an attempt. Grading uses this to
// clear before rewriting inside one transaction.
func (a *AnswerPostgreSQL) DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error {
	if err := a.getDB(tx).WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Delete(&models.StudentAnswer{}).Error; err != nil {
		return fmt.Errorf("failed to delete attempt answers: %w", err)
	}

	a.cacheManager.InvalidateAttempt(ctx, attemptID)

	return nil
}

// CreateBatch writes many answer rows at once
func (a *AnswerPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error {
	if len(answers) == 0 {
		return nil
	}

	if err := a.getDB(tx).WithContext(ctx).CreateInBatches(answers, 100).Error; err != nil {
		return fmt.Errorf("failed to create answers: %w", err)
	}

	a.cacheManager.InvalidateAttempt(ctx, answers[0].AttemptID)

	return nil
}

// GetPendingManual retrieves ungraded essay answers for a quiz
func (a *AnswerPostgreSQL) GetPendingManual(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AnswerFilters) ([]*models.StudentAnswer, int64, error) {
	query := a.getDB(tx).WithContext(ctx).
		Model(&models.StudentAnswer{}).
		Joins("JOIN quiz_attempts ON quiz_attempts.id = student_answers.attempt_id").
		Joins("JOIN questions ON questions.id = student_answers.question_id").
		Where("quiz_attempts.quiz_id = ?", quizID).
		Where("questions.kind = ?", models.Essay).
		Where("student_answers.is_graded = ?", false)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var answers []*models.StudentAnswer
	err := query.
		Preload("Question").
		Preload("Attempt").
		Order("student_answers.created_at ASC").
		Find(&answers).Error
	if err != nil {
		return nil, 0, err
	}

	return answers, total, nil
}

// AreAllAnswersGraded reports whether no answer of the attempt awaits grading
func (a *AnswerPostgreSQL) AreAllAnswersGraded(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error) {
	var pending int64
	err := a.getDB(tx).WithContext(ctx).
		Model(&models.StudentAnswer{}).
		Where("attempt_id = ? AND is_graded = ?", attemptID, false).
		Count(&pending).Error

	return pending == 0, err
}

// GetGradingStats retrieves grading statistics for a quiz
func (a *AnswerPostgreSQL) GetGradingStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.GradingStats, error) {
	db := a.getDB(tx)
	stats := &repositories.GradingStats{}

	base := func() *gorm.DB {
		return db.WithContext(ctx).
			Model(&models.StudentAnswer{}).
			Joins("JOIN quiz_attempts ON quiz_attempts.id = student_answers.attempt_id").
			Where("quiz_attempts.quiz_id = ?", quizID)
	}

	var total, graded, manual int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("student_answers.is_graded = ?", true).Count(&graded).Error; err != nil {
		return nil, err
	}
	if err := base().Where("student_answers.graded_by IS NOT NULL").Count(&manual).Error; err != nil {
		return nil, err
	}

	var avgScore float64
	base().
		Select("COALESCE(AVG(student_answers.awarded_points), 0)").
		Where("student_answers.is_graded = ?", true).
		Row().
		Scan(&avgScore)

	stats.TotalAnswers = int(total)
	stats.GradedAnswers = int(graded)
	stats.PendingAnswers = int(total - graded)
	stats.ManualGraded = int(manual)
	stats.AutoGraded = int(graded - manual)
	stats.AverageScore = avgScore

	return stats, nil
}

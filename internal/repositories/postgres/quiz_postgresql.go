package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/cache"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
)

type QuizPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// Create creates a new quiz and invalidates list caches
func (q *QuizPostgreSQL) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	if err := q.getDB(tx).WithContext(ctx).Create(quiz).Error; err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}

	cache.SafeInvalidatePattern(ctx, q.cacheManager.Quiz, fmt.Sprintf("creator:%s:*", quiz.CreatedBy))
	cache.SafeInvalidatePattern(ctx, q.cacheManager.Quiz, "list:*")

	return nil
}

// GetByID retrieves a quiz by ID with caching
func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var quiz models.Quiz

	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		err := q.getDB(tx).WithContext(ctx).
			Preload("Class").
			First(&dbQuiz, id).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get quiz: %w", err)
		}
		return &dbQuiz, nil
	})

	if err != nil {
		return nil, err
	}

	return &quiz, nil
}

// GetByIDWithQuestions retrieves a quiz with questions and options ordered
// by position
func (q *QuizPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	cacheKey := fmt.Sprintf("details:%d", id)
	var quiz models.Quiz

	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		err := q.getDB(tx).WithContext(ctx).
			Preload("Class").
			Preload("Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("questions.position ASC")
			}).
			Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
				return db.Order("answer_options.position ASC")
			}).
			First(&dbQuiz, id).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get quiz details: %w", err)
		}

		q.calculateComputedFields(&dbQuiz)
		return &dbQuiz, nil
	})

	return &quiz, err
}

// Update updates quiz fields and invalidates cache
func (q *QuizPostgreSQL) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	if err := q.getDB(tx).WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ?", quiz.ID).
		Updates(map[string]interface{}{
			"title":        quiz.Title,
			"description":  quiz.Description,
			"class_id":     quiz.ClassID,
			"show_score":   quiz.ShowScore,
			"max_attempts": quiz.MaxAttempts,
			"duration":     quiz.Duration,
			"opens_at":     quiz.OpensAt,
			"closes_at":    quiz.ClosesAt,
			"tags":         quiz.Tags,
			"updated_at":   time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("failed to update quiz: %w", err)
	}

	q.invalidateQuizCache(ctx, quiz.ID, quiz.CreatedBy)

	return nil
}

// Delete hard deletes a quiz. Callers must refuse the delete when attempts
// exist; this is also enforced here.
func (q *QuizPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)

	var quiz models.Quiz
	if err := db.WithContext(ctx).Select("id, created_by").First(&quiz, id).Error; err != nil {
		return fmt.Errorf("failed to get quiz before delete: %w", err)
	}

	attemptCount, err := q.helpers.CountAttempts(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check attempts: %w", err)
	}
	if attemptCount > 0 {
		return fmt.Errorf("cannot delete quiz with existing attempts")
	}

	if err := db.WithContext(ctx).Unscoped().Delete(&models.Quiz{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}

	q.invalidateQuizCache(ctx, id, quiz.CreatedBy)

	return nil
}

// List retrieves quizzes with filters and pagination
func (q *QuizPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	query := q.getDB(tx).WithContext(ctx).Model(&models.Quiz{})

	query = q.helpers.ApplyQuizFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = q.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var quizzes []*models.Quiz
	err := query.Preload("Class").Find(&quizzes).Error
	if err != nil {
		return nil, 0, err
	}

	for _, quiz := range quizzes {
		q.calculateComputedFields(quiz)
	}

	return quizzes, total, nil
}

// GetByCreator retrieves quizzes created by a specific user
func (q *QuizPostgreSQL) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	filters.CreatedBy = &creatorID
	return q.List(ctx, tx, filters)
}

// GetByClass retrieves quizzes assigned to a class
func (q *QuizPostgreSQL) GetByClass(ctx context.Context, tx *gorm.DB, classID uint, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	filters.ClassID = &classID
	return q.List(ctx, tx, filters)
}

// UpdateStatus updates the status of a quiz
func (q *QuizPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.QuizStatus) error {
	db := q.getDB(tx)

	var quiz models.Quiz
	if err := db.WithContext(ctx).Select("id, created_by").First(&quiz, id).Error; err != nil {
		return fmt.Errorf("failed to get quiz: %w", err)
	}

	if err := db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error; err != nil {
		return err
	}

	q.invalidateQuizCache(ctx, id, quiz.CreatedBy)

	return nil
}

// ExistsByID checks if a quiz exists
func (q *QuizPostgreSQL) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	var count int64
	err := q.getDB(tx).WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ?", id).
		Count(&count).Error

	return count > 0, err
}

// IsOwner checks if a user is the owner of a quiz
func (q *QuizPostgreSQL) IsOwner(ctx context.Context, tx *gorm.DB, id uint, userID string) (bool, error) {
	var count int64
	err := q.getDB(tx).WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ? AND created_by = ?", id, userID).
		Count(&count).Error

	return count > 0, err
}

// GetTotalPoints sums point values over a quiz's questions
func (q *QuizPostgreSQL) GetTotalPoints(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	var totalPoints int64
	err := q.getDB(tx).WithContext(ctx).
		Model(&models.Question{}).
		Select("COALESCE(SUM(points), 0)").
		Where("quiz_id = ?", id).
		Row().
		Scan(&totalPoints)

	return int(totalPoints), err
}

// GetStats retrieves statistics for a quiz
func (q *QuizPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.QuizStats, error) {
	db := q.getDB(tx)
	stats := &repositories.QuizStats{}

	totalAttempts, err := q.helpers.CountAttempts(ctx, id)
	if err != nil {
		return nil, err
	}

	submittedAttempts, err := q.helpers.CountAttemptsByStatus(ctx, id, models.AttemptSubmitted)
	if err != nil {
		return nil, err
	}

	gradedAttempts, err := q.helpers.CountAttemptsByStatus(ctx, id, models.AttemptGraded)
	if err != nil {
		return nil, err
	}

	var pendingManual int64
	db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND pending_manual = ?", id, true).
		Count(&pendingManual)

	var avgScore, avgTimeSpent float64
	if gradedAttempts > 0 {
		db.WithContext(ctx).
			Model(&models.QuizAttempt{}).
			Select("COALESCE(AVG(score), 0), COALESCE(AVG(time_spent), 0)").
			Where("quiz_id = ? AND status = ?", id, models.AttemptGraded).
			Row().
			Scan(&avgScore, &avgTimeSpent)
	}

	var questionCount, totalPoints int64
	db.WithContext(ctx).
		Model(&models.Question{}).
		Select("COUNT(*), COALESCE(SUM(points), 0)").
		Where("quiz_id = ?", id).
		Row().
		Scan(&questionCount, &totalPoints)

	stats.TotalAttempts = int(totalAttempts)
	stats.SubmittedAttempts = int(submittedAttempts)
	stats.GradedAttempts = int(gradedAttempts)
	stats.PendingManual = int(pendingManual)
	stats.AverageScore = avgScore
	stats.AverageTimeSpent = int(avgTimeSpent)
	stats.QuestionCount = int(questionCount)
	stats.TotalPoints = int(totalPoints)

	return stats, nil
}

// Helper methods

func (q *QuizPostgreSQL) invalidateQuizCache(ctx context.Context, quizID uint, creatorID string) {
	q.cacheManager.InvalidateQuiz(ctx, quizID)
	cache.SafeDelete(ctx, q.cacheManager.Quiz, fmt.Sprintf("details:%d", quizID))
	cache.SafeInvalidatePattern(ctx, q.cacheManager.Quiz, fmt.Sprintf("creator:%s:*", creatorID))
}

// calculateComputedFields fills the quiz fields not stored in the table
func (q *QuizPostgreSQL) calculateComputedFields(quiz *models.Quiz) {
	quiz.QuestionCount = len(quiz.Questions)

	totalPoints := 0
	for _, question := range quiz.Questions {
		totalPoints += question.Points
	}
	quiz.TotalPoints = totalPoints

	quiz.AttemptCount = len(quiz.Attempts)

	if len(quiz.Attempts) > 0 {
		totalScore := 0.0
		gradedCount := 0
		for _, attempt := range quiz.Attempts {
			if attempt.Status == models.AttemptGraded && attempt.Score != nil {
				totalScore += *attempt.Score
				gradedCount++
			}
		}
		if gradedCount > 0 {
			quiz.AvgScore = totalScore / float64(gradedCount)
		}
	}
}

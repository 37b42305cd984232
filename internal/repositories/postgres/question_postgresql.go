package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/cache"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// Create persists a question together with its answer options
func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := q.getDB(tx).WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}

	q.invalidateQuizQuestions(ctx, question.QuizID)

	return nil
}

// GetByID retrieves a question without options
func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	var question models.Question
	err := q.getDB(tx).WithContext(ctx).First(&question, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	return &question, nil
}

// GetByIDWithOptions retrieves a question with its options ordered by position
func (q *QuestionPostgreSQL) GetByIDWithOptions(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	var question models.Question
	err := q.getDB(tx).WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_options.position ASC")
		}).
		First(&question, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get question with options: %w", err)
	}

	return &question, nil
}

// Update updates a question's own fields. Options are replaced separately
// through ReplaceOptions so partial option edits never leave stale rows.
func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := q.getDB(tx).WithContext(ctx).
		Model(&models.Question{}).
		Where("id = ?", question.ID).
		Updates(map[string]interface{}{
			"kind":     question.Kind,
			"text":     question.Text,
			"points":   question.Points,
			"position": question.Position,
		}).Error; err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}

	q.invalidateQuizQuestions(ctx, question.QuizID)

	return nil
}

// Delete removes a question and its options
func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)

	var question models.Question
	if err := db.WithContext(ctx).Select("id, quiz_id").First(&question, id).Error; err != nil {
		return fmt.Errorf("failed to get question before delete: %w", err)
	}

	if err := db.WithContext(ctx).
		Where("question_id = ?", id).
		Delete(&models.AnswerOption{}).Error; err != nil {
		return fmt.Errorf("failed to delete answer options: %w", err)
	}

	if err := db.WithContext(ctx).Delete(&models.Question{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}

	q.invalidateQuizQuestions(ctx, question.QuizID)

	return nil
}

// GetByQuiz retrieves a quiz's questions with options, ordered by position
func (q *QuestionPostgreSQL) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.Question, error) {
	var questions []*models.Question
	err := q.getDB(tx).WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_options.position ASC")
		}).
		Order("position ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz questions: %w", err)
	}

	return questions, nil
}

// CountByQuiz counts questions in a quiz
func (q *QuestionPostgreSQL) CountByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int64, error) {
	var count int64
	err := q.getDB(tx).WithContext(ctx).
		Model(&models.Question{}).
		Where("quiz_id = ?", quizID).
		Count(&count).Error

	return count, err
}

// MaxPosition returns the highest question position in a quiz, 0 when empty
func (q *QuestionPostgreSQL) MaxPosition(ctx context.Context, tx *gorm.DB, quizID uint) (int, error) {
	var maxPosition int64
	err := q.getDB(tx).WithContext(ctx).
		Model(&models.Question{}).
		Select("COALESCE(MAX(position), 0)").
		Where("quiz_id = ?", quizID).
		Row().
		Scan(&maxPosition)

	return int(maxPosition), err
}

// ReplaceOptions deletes a question's options and writes the new set
func (q *QuestionPostgreSQL) ReplaceOptions(ctx context.Context, tx *gorm.DB, questionID uint, options []models.AnswerOption) error {
	db := q.getDB(tx)

	if err := db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Delete(&models.AnswerOption{}).Error; err != nil {
		return fmt.Errorf("failed to clear answer options: %w", err)
	}

	for i := range options {
		options[i].ID = 0
		options[i].QuestionID = questionID
	}

	if len(options) > 0 {
		if err := db.WithContext(ctx).Create(&options).Error; err != nil {
			return fmt.Errorf("failed to create answer options: %w", err)
		}
	}

	var question models.Question
	if err := db.WithContext(ctx).Select("id, quiz_id").First(&question, questionID).Error; err == nil {
		q.invalidateQuizQuestions(ctx, question.QuizID)
	}

	return nil
}

func (q *QuestionPostgreSQL) invalidateQuizQuestions(ctx context.Context, quizID uint) {
	cache.SafeDelete(ctx, q.cacheManager.Quiz,
		fmt.Sprintf("details:%d", quizID),
		fmt.Sprintf("questions:%d", quizID))
}

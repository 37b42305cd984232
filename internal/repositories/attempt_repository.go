package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
)

type AttemptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// List operations
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
	GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)

	// Attempt lifecycle queries
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.QuizAttempt, error)
	GetAttemptCount(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int, error)

	// Statistics
	GetQuizAttemptStats(ctx context.Context, tx *gorm.DB, quizID uint) (*QuizStats, error)
}

type AnswerRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentAnswer, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentAnswer, error)
	Update(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error

	// Attempt scoped operations
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StudentAnswer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.StudentAnswer, error)
	DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error
	CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error

	// Grading queries
	GetPendingManual(ctx context.Context, tx *gorm.DB, quizID uint, filters AnswerFilters) ([]*models.StudentAnswer, int64, error)
	AreAllAnswersGraded(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error)
	GetGradingStats(ctx context.Context, tx *gorm.DB, quizID uint) (*GradingStats, error)
}

package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
)

type QuizRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// List and search operations
	List(ctx context.Context, tx *gorm.DB, filters QuizFilters) ([]*models.Quiz, int64, error)
	GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters QuizFilters) ([]*models.Quiz, int64, error)
	GetByClass(ctx context.Context, tx *gorm.DB, classID uint, filters QuizFilters) ([]*models.Quiz, int64, error)

	// Status management
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.QuizStatus) error

	// Validation and checks
	ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
	IsOwner(ctx context.Context, tx *gorm.DB, id uint, userID string) (bool, error)

	// Statistics
	GetTotalPoints(ctx context.Context, tx *gorm.DB, id uint) (int, error)
	GetStats(ctx context.Context, tx *gorm.DB, id uint) (*QuizStats, error)
}

type QuestionRepository interface {
	// Basic CRUD operations. Create and Update persist the question together
	// with its answer options.
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByIDWithOptions(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Quiz scoped operations, ordered by position
	GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.Question, error)
	CountByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int64, error)
	MaxPosition(ctx context.Context, tx *gorm.DB, quizID uint) (int, error)
	ReplaceOptions(ctx context.Context, tx *gorm.DB, questionID uint, options []models.AnswerOption) error
}

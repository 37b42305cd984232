package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
)

type ClassRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, class *models.Class) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Class, error)
	GetByIDWithRoster(ctx context.Context, tx *gorm.DB, id uint) (*models.Class, error)
	Update(ctx context.Context, tx *gorm.DB, class *models.Class) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// List operations
	List(ctx context.Context, tx *gorm.DB, filters ClassFilters) ([]*models.Class, int64, error)
	GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters ClassFilters) ([]*models.Class, int64, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters ClassFilters) ([]*models.Class, int64, error)

	// Validation and checks
	ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
	IsOwner(ctx context.Context, tx *gorm.DB, id uint, userID string) (bool, error)

	// Statistics
	GetStats(ctx context.Context, tx *gorm.DB, id uint) (*ClassStats, error)
}

type EnrollmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error
	CreateBatch(ctx context.Context, tx *gorm.DB, enrollments []*models.Enrollment) error
	Delete(ctx context.Context, tx *gorm.DB, classID uint, studentID string) error

	GetByClass(ctx context.Context, tx *gorm.DB, classID uint) ([]*models.Enrollment, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.Enrollment, error)
	IsEnrolled(ctx context.Context, tx *gorm.DB, classID uint, studentID string) (bool, error)
	CountByClass(ctx context.Context, tx *gorm.DB, classID uint) (int64, error)
}

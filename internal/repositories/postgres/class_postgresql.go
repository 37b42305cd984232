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

type ClassPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewClassPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ClassRepository {
	return &ClassPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (c *ClassPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

// Create creates a new class and invalidates list caches
func (c *ClassPostgreSQL) Create(ctx context.Context, tx *gorm.DB, class *models.Class) error {
	if err := c.getDB(tx).WithContext(ctx).Create(class).Error; err != nil {
		return fmt.Errorf("failed to create class: %w", err)
	}

	cache.SafeInvalidatePattern(ctx, c.cacheManager.Class, fmt.Sprintf("creator:%s:*", class.CreatedBy))
	cache.SafeInvalidatePattern(ctx, c.cacheManager.Class, "list:*")

	return nil
}

// GetByID retrieves a class by ID with caching
func (c *ClassPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Class, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var class models.Class

	err := c.cacheManager.Class.CacheOrExecute(ctx, cacheKey, &class, cache.ClassCacheConfig.TTL, func() (interface{}, error) {
		var dbClass models.Class
		err := c.getDB(tx).WithContext(ctx).First(&dbClass, id).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get class: %w", err)
		}
		return &dbClass, nil
	})

	if err != nil {
		return nil, err
	}

	return &class, nil
}

// GetByIDWithRoster retrieves a class with its enrollments preloaded
func (c *ClassPostgreSQL) GetByIDWithRoster(ctx context.Context, tx *gorm.DB, id uint) (*models.Class, error) {
	var class models.Class
	err := c.getDB(tx).WithContext(ctx).
		Preload("Enrollments").
		First(&class, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get class roster: %w", err)
	}

	class.StudentCount = len(class.Enrollments)

	return &class, nil
}

// Update updates class fields and invalidates cache
func (c *ClassPostgreSQL) Update(ctx context.Context, tx *gorm.DB, class *models.Class) error {
	if err := c.getDB(tx).WithContext(ctx).
		Model(&models.Class{}).
		Where("id = ?", class.ID).
		Updates(map[string]interface{}{
			"title":       class.Title,
			"description": class.Description,
			"subject":     class.Subject,
			"updated_at":  time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("failed to update class: %w", err)
	}

	c.invalidateClassCache(ctx, class.ID, class.CreatedBy)

	return nil
}

// Delete soft deletes a class
func (c *ClassPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := c.getDB(tx)

	var class models.Class
	if err := db.WithContext(ctx).Select("id, created_by").First(&class, id).Error; err != nil {
		return fmt.Errorf("failed to get class before delete: %w", err)
	}

	if err := db.WithContext(ctx).Delete(&models.Class{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete class: %w", err)
	}

	c.invalidateClassCache(ctx, id, class.CreatedBy)

	return nil
}

// List retrieves classes with filters and pagination
func (c *ClassPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.ClassFilters) ([]*models.Class, int64, error) {
	query := c.getDB(tx).WithContext(ctx).Model(&models.Class{})

	query = c.helpers.ApplyClassFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = c.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var classes []*models.Class
	if err := query.Find(&classes).Error; err != nil {
		return nil, 0, err
	}

	return classes, total, nil
}

// GetByCreator retrieves classes created by a specific teacher
func (c *ClassPostgreSQL) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.ClassFilters) ([]*models.Class, int64, error) {
	filters.CreatedBy = &creatorID
	return c.List(ctx, tx, filters)
}

// GetByStudent retrieves classes the student is enrolled in
func (c *ClassPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.ClassFilters) ([]*models.Class, int64, error) {
	query := c.getDB(tx).WithContext(ctx).
		Model(&models.Class{}).
		Joins("JOIN enrollments ON enrollments.class_id = classes.id").
		Where("enrollments.student_id = ?", studentID)

	query = c.helpers.ApplyClassFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = c.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var classes []*models.Class
	if err := query.Find(&classes).Error; err != nil {
		return nil, 0, err
	}

	return classes, total, nil
}

// ExistsByID checks if a class exists
func (c *ClassPostgreSQL) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	var count int64
	err := c.getDB(tx).WithContext(ctx).
		Model(&models.Class{}).
		Where("id = ?", id).
		Count(&count).Error

	return count > 0, err
}

// IsOwner checks if a user is the owner of a class
func (c *ClassPostgreSQL) IsOwner(ctx context.Context, tx *gorm.DB, id uint, userID string) (bool, error) {
	var count int64
	err := c.getDB(tx).WithContext(ctx).
		Model(&models.Class{}).
		Where("id = ? AND created_by = ?", id, userID).
		Count(&count).Error

	return count > 0, err
}

// GetStats retrieves statistics for a class
func (c *ClassPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.ClassStats, error) {
	db := c.getDB(tx)
	stats := &repositories.ClassStats{}

	var studentCount int64
	db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("class_id = ?", id).
		Count(&studentCount)

	var quizCount int64
	db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("class_id = ?", id).
		Count(&quizCount)

	var attemptCount int64
	db.WithContext(ctx).
		Table("quiz_attempts").
		Joins("JOIN quizzes ON quizzes.id = quiz_attempts.quiz_id").
		Where("quizzes.class_id = ?", id).
		Count(&attemptCount)

	var avgScore float64
	db.WithContext(ctx).
		Table("quiz_attempts").
		Select("COALESCE(AVG(quiz_attempts.score), 0)").
		Joins("JOIN quizzes ON quizzes.id = quiz_attempts.quiz_id").
		Where("quizzes.class_id = ? AND quiz_attempts.status = ?", id, models.AttemptGraded).
		Row().
		Scan(&avgScore)

	// Completion rate: graded attempts over all attempts
	var gradedCount int64
	db.WithContext(ctx).
		Table("quiz_attempts").
		Joins("JOIN quizzes ON quizzes.id = quiz_attempts.quiz_id").
		Where("quizzes.class_id = ? AND quiz_attempts.status = ?", id, models.AttemptGraded).
		Count(&gradedCount)

	completionRate := float64(0)
	if attemptCount > 0 {
		completionRate = float64(gradedCount) / float64(attemptCount) * 100
	}

	stats.StudentCount = int(studentCount)
	stats.QuizCount = int(quizCount)
	stats.AttemptCount = int(attemptCount)
	stats.AverageScore = avgScore
	stats.CompletionRate = completionRate

	return stats, nil
}

func (c *ClassPostgreSQL) invalidateClassCache(ctx context.Context, classID uint, creatorID string) {
	cache.SafeDelete(ctx, c.cacheManager.Class,
		fmt.Sprintf("id:%d", classID),
		fmt.Sprintf("roster:%d", classID))
	cache.SafeInvalidatePattern(ctx, c.cacheManager.Class, fmt.Sprintf("creator:%s:*", creatorID))
	cache.SafeInvalidatePattern(ctx, c.cacheManager.Class, "list:*")
}

// EnrollmentPostgreSQL implements EnrollmentRepository

type EnrollmentPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewEnrollmentPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (e *EnrollmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

// Create enrolls one student
func (e *EnrollmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	if err := e.getDB(tx).WithContext(ctx).Create(enrollment).Error; err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	e.invalidateRoster(ctx, enrollment.ClassID)

	return nil
}

// CreateBatch enrolls many students in one insert. Used by roster import.
func (e *EnrollmentPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, enrollments []*models.Enrollment) error {
	if len(enrollments) == 0 {
		return nil
	}

	if err := e.getDB(tx).WithContext(ctx).CreateInBatches(enrollments, 100).Error; err != nil {
		return fmt.Errorf("failed to create enrollments: %w", err)
	}

	e.invalidateRoster(ctx, enrollments[0].ClassID)

	return nil
}

// Delete removes a student from a class roster
func (e *EnrollmentPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, classID uint, studentID string) error {
	result := e.getDB(tx).WithContext(ctx).
		Where("class_id = ? AND student_id = ?", classID, studentID).
		Delete(&models.Enrollment{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete enrollment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	e.invalidateRoster(ctx, classID)

	return nil
}

// GetByClass retrieves all enrollments for a class
func (e *EnrollmentPostgreSQL) GetByClass(ctx context.Context, tx *gorm.DB, classID uint) ([]*models.Enrollment, error) {
	var enrollments []*models.Enrollment
	err := e.getDB(tx).WithContext(ctx).
		Where("class_id = ?", classID).
		Order("enrolled_at ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get class enrollments: %w", err)
	}

	return enrollments, nil
}

// GetByStudent retrieves all enrollments for a student
func (e *EnrollmentPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.Enrollment, error) {
	var enrollments []*models.Enrollment
	err := e.getDB(tx).WithContext(ctx).
		Where("student_id = ?", studentID).
		Find(&enrollments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get student enrollments: %w", err)
	}

	return enrollments, nil
}

// IsEnrolled checks membership of a student in a class
func (e *EnrollmentPostgreSQL) IsEnrolled(ctx context.Context, tx *gorm.DB, classID uint, studentID string) (bool, error) {
	var count int64
	err := e.getDB(tx).WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("class_id = ? AND student_id = ?", classID, studentID).
		Count(&count).Error

	return count > 0, err
}

// CountByClass counts students in a class
func (e *EnrollmentPostgreSQL) CountByClass(ctx context.Context, tx *gorm.DB, classID uint) (int64, error) {
	var count int64
	err := e.getDB(tx).WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("class_id = ?", classID).
		Count(&count).Error

	return count, err
}

func (e *EnrollmentPostgreSQL) invalidateRoster(ctx context.Context, classID uint) {
	cache.SafeDelete(ctx, e.cacheManager.Class,
		fmt.Sprintf("id:%d", classID),
		fmt.Sprintf("roster:%d", classID))
	cache.SafeInvalidatePattern(ctx, e.cacheManager.Stats, fmt.Sprintf("class:%d:*", classID))
}

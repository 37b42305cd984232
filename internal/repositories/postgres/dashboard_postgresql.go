package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
)

type DashboardPostgreSQL struct {
	db *gorm.DB
}

func NewDashboardPostgreSQL(db *gorm.DB) repositories.DashboardRepository {
	return &DashboardPostgreSQL{db: db}
}

func (d *DashboardPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return d.db
}

func (d *DashboardPostgreSQL) GetTotalQuizzes(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	err := d.getDB(tx).WithContext(ctx).Model(&models.Quiz{}).Count(&count).Error
	return count, err
}

func (d *DashboardPostgreSQL) GetTotalClasses(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	err := d.getDB(tx).WithContext(ctx).Model(&models.Class{}).Count(&count).Error
	return count, err
}

func (d *DashboardPostgreSQL) GetTotalAttempts(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	err := d.getDB(tx).WithContext(ctx).Model(&models.QuizAttempt{}).Count(&count).Error
	return count, err
}

// GetActiveStudents counts distinct students with attempts in the last N days
func (d *DashboardPostgreSQL) GetActiveStudents(ctx context.Context, tx *gorm.DB, days int) (int64, error) {
	since := time.Now().AddDate(0, 0, -days)

	var count int64
	err := d.getDB(tx).WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("created_at >= ?", since).
		Distinct("student_id").
		Count(&count).Error

	return count, err
}

func (d *DashboardPostgreSQL) GetAverageScore(ctx context.Context, tx *gorm.DB) (float64, error) {
	var avg float64
	err := d.getDB(tx).WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Select("COALESCE(AVG(score), 0)").
		Where("status = ? AND score IS NOT NULL", models.AttemptGraded).
		Row().
		Scan(&avg)

	return avg, err
}

// GetCompletionRate returns graded attempts over started attempts, percent
func (d *DashboardPostgreSQL) GetCompletionRate(ctx context.Context, tx *gorm.DB) (float64, error) {
	db := d.getDB(tx)

	var total int64
	if err := db.WithContext(ctx).Model(&models.QuizAttempt{}).Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	var graded int64
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("status = ?", models.AttemptGraded).
		Count(&graded).Error; err != nil {
		return 0, err
	}

	return float64(graded) / float64(total) * 100, nil
}

// GetQuizResults returns one row per student who attempted the quiz, with
// best score and latest submission
func (d *DashboardPostgreSQL) GetQuizResults(ctx context.Context, tx *gorm.DB, quizID uint) ([]repositories.StudentResult, error) {
	var results []repositories.StudentResult

	err := d.getDB(tx).WithContext(ctx).
		Table("quiz_attempts").
		Select(`quiz_attempts.student_id,
			COUNT(*) as attempt_count,
			MAX(quiz_attempts.score) as best_score,
			MAX(quiz_attempts.submitted_at) as last_submitted,
			BOOL_OR(quiz_attempts.pending_manual) as pending_manual`).
		Where("quiz_attempts.quiz_id = ?", quizID).
		Group("quiz_attempts.student_id").
		Order("best_score DESC NULLS LAST").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz results: %w", err)
	}

	return results, nil
}

// GetPendingGradingCount counts ungraded essay answers across a teacher's
// quizzes
func (d *DashboardPostgreSQL) GetPendingGradingCount(ctx context.Context, tx *gorm.DB, creatorID string) (int64, error) {
	var count int64
	err := d.getDB(tx).WithContext(ctx).
		Model(&models.StudentAnswer{}).
		Joins("JOIN quiz_attempts ON quiz_attempts.id = student_answers.attempt_id").
		Joins("JOIN quizzes ON quizzes.id = quiz_attempts.quiz_id").
		Joins("JOIN questions ON questions.id = student_answers.question_id").
		Where("quizzes.created_by = ?", creatorID).
		Where("questions.kind = ?", models.Essay).
		Where("student_answers.is_graded = ?", false).
		Count(&count).Error

	return count, err
}

// GetActivityTrends returns per-day attempt activity for the last N days
func (d *DashboardPostgreSQL) GetActivityTrends(ctx context.Context, tx *gorm.DB, days int) ([]repositories.ActivityTrendData, error) {
	since := time.Now().AddDate(0, 0, -days)

	var trends []repositories.ActivityTrendData
	err := d.getDB(tx).WithContext(ctx).
		Table("quiz_attempts").
		Select(`TO_CHAR(created_at, 'YYYY-MM-DD') as period,
			COUNT(*) as attempts,
			COUNT(DISTINCT student_id) as students,
			COALESCE(AVG(score), 0) as average_score`).
		Where("created_at >= ?", since).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("period ASC").
		Scan(&trends).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get activity trends: %w", err)
	}

	return trends, nil
}

package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DashboardRepository interface for results dashboard queries
type DashboardRepository interface {
	// Totals
	GetTotalQuizzes(ctx context.Context, tx *gorm.DB) (int64, error)
	GetTotalClasses(ctx context.Context, tx *gorm.DB) (int64, error)
	GetTotalAttempts(ctx context.Context, tx *gorm.DB) (int64, error)
	GetActiveStudents(ctx context.Context, tx *gorm.DB, days int) (int64, error)

	// Metrics
	GetAverageScore(ctx context.Context, tx *gorm.DB) (float64, error)
	GetCompletionRate(ctx context.Context, tx *gorm.DB) (float64, error)

	// Per-quiz results
	GetQuizResults(ctx context.Context, tx *gorm.DB, quizID uint) ([]StudentResult, error)
	GetPendingGradingCount(ctx context.Context, tx *gorm.DB, creatorID string) (int64, error)

	// Activity trends
	GetActivityTrends(ctx context.Context, tx *gorm.DB, days int) ([]ActivityTrendData, error)
}

type ActivityTrendData struct {
	Period       string    `json:"period"`
	Attempts     int64     `json:"attempts"`
	Students     int64     `json:"students"`
	AverageScore float64   `json:"average_score"`
	Date         time.Time `json:"-"`
}

package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

// activeStudentWindowDays is the lookback for the "active students" metric.
const activeStudentWindowDays = 30

type dashboardService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewDashboardService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator) DashboardService {
	return &dashboardService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
	}
}

// GetOverview aggregates the headline numbers for a teacher's dashboard.
func (s *dashboardService) GetOverview(ctx context.Context, userID string) (*DashboardOverview, error) {
	if err := s.requireTeacher(ctx, userID); err != nil {
		return nil, err
	}

	dash := s.repo.Dashboard()
	overview := &DashboardOverview{}
	var err error

	if overview.TotalQuizzes, err = dash.GetTotalQuizzes(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to count quizzes: %w", err)
	}
	if overview.TotalClasses, err = dash.GetTotalClasses(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to count classes: %w", err)
	}
	if overview.TotalAttempts, err = dash.GetTotalAttempts(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if overview.ActiveStudents, err = dash.GetActiveStudents(ctx, nil, activeStudentWindowDays); err != nil {
		return nil, fmt.Errorf("failed to count active students: %w", err)
	}
	if overview.AverageScore, err = dash.GetAverageScore(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to compute average score: %w", err)
	}
	if overview.CompletionRate, err = dash.GetCompletionRate(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to compute completion rate: %w", err)
	}
	if overview.PendingGrading, err = dash.GetPendingGradingCount(ctx, nil, userID); err != nil {
		return nil, fmt.Errorf("failed to count pending grading: %w", err)
	}

	return overview, nil
}

// GetQuizResults returns per-student best results for a quiz with names and
// emails resolved from the identity provider.
func (s *dashboardService) GetQuizResults(ctx context.Context, quizID uint, userID string) (*QuizResultsResponse, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load quiz %d: %w", quizID, err)
	}

	if quiz.CreatedBy != userID {
		if isAdmin, roleErr := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); roleErr != nil || !isAdmin {
			return nil, NewPermissionError(userID, quizID, "quiz", "view_results", "only the quiz owner can view its results")
		}
	}

	results, err := s.repo.Dashboard().GetQuizResults(ctx, nil, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for quiz %d: %w", quizID, err)
	}

	s.hydrateStudents(ctx, results)

	stats, err := s.repo.Quiz().GetStats(ctx, nil, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for quiz %d: %w", quizID, err)
	}

	return &QuizResultsResponse{
		QuizID:  quizID,
		Title:   quiz.Title,
		Results: results,
		Stats:   stats,
	}, nil
}

func (s *dashboardService) GetActivityTrends(ctx context.Context, days int, userID string) ([]repositories.ActivityTrendData, error) {
	if err := s.requireTeacher(ctx, userID); err != nil {
		return nil, err
	}

	if days <= 0 || days > 365 {
		days = activeStudentWindowDays
	}

	trends, err := s.repo.Dashboard().GetActivityTrends(ctx, nil, days)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity trends: %w", err)
	}

	return trends, nil
}

// hydrateStudents fills names and emails on result rows. The results table
// only stores IDs; user profiles live in the identity provider. A failed
// lookup degrades to rows with IDs only rather than failing the dashboard.
func (s *dashboardService) hydrateStudents(ctx context.Context, results []repositories.StudentResult) {
	if len(results) == 0 {
		return
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.StudentID)
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve students for dashboard", "error", err)
		return
	}

	byID := make(map[string]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for i := range results {
		if u, ok := byID[results[i].StudentID]; ok {
			results[i].FullName = u.FullName
			results[i].Email = u.Email
		}
	}
}

func (s *dashboardService) requireTeacher(ctx context.Context, userID string) error {
	if isTeacher, err := s.repo.User().HasRole(ctx, userID, models.RoleTeacher); err == nil && isTeacher {
		return nil
	}
	if isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); err == nil && isAdmin {
		return nil
	}

	return NewPermissionError(userID, 0, "dashboard", "view", "dashboard is restricted to teachers")
}

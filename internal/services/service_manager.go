package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

// serviceManager wires the service layer together and owns its lifecycle.
type serviceManager struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	publisher events.EventPublisher

	class     ClassService
	quiz      QuizService
	attempt   AttemptService
	grading   GradingService
	roster    RosterService
	dashboard DashboardService
}

// ServiceManagerConfig holds the dependencies shared by every service.
type ServiceManagerConfig struct {
	Repository repositories.Repository
	DB         *gorm.DB
	Logger     *slog.Logger
	Validator  *validator.Validator
	Publisher  events.EventPublisher
}

func NewServiceManager(cfg ServiceManagerConfig) ServiceManager {
	if cfg.Validator == nil {
		cfg.Validator = validator.NewValidator()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}

	m := &serviceManager{
		repo:      cfg.Repository,
		db:        cfg.DB,
		logger:    cfg.Logger,
		publisher: cfg.Publisher,
	}

	m.grading = NewGradingService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator, cfg.Publisher)
	m.class = NewClassService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator, cfg.Publisher)
	m.quiz = NewQuizService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator, cfg.Publisher)
	m.attempt = NewAttemptService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator, m.grading, cfg.Publisher)
	m.dashboard = NewDashboardService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator)
	m.roster = NewRosterService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator, m.class, m.dashboard)

	return m
}

func (m *serviceManager) Class() ClassService         { return m.class }
func (m *serviceManager) Quiz() QuizService           { return m.quiz }
func (m *serviceManager) Attempt() AttemptService     { return m.attempt }
func (m *serviceManager) Grading() GradingService     { return m.grading }
func (m *serviceManager) Roster() RosterService       { return m.roster }
func (m *serviceManager) Dashboard() DashboardService { return m.dashboard }

func (m *serviceManager) Initialize(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository not reachable: %w", err)
	}

	m.logger.Info("service manager initialized")
	return nil
}

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

func (m *serviceManager) Shutdown(ctx context.Context) error {
	if err := m.publisher.Close(); err != nil {
		m.logger.Error("failed to close event publisher", "error", err)
	}

	if err := m.repo.Close(); err != nil {
		return fmt.Errorf("failed to close repository: %w", err)
	}

	m.logger.Info("service manager shut down")
	return nil
}

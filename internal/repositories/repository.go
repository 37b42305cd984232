package repositories

import "context"

// Repository aggregates all entity repositories behind one handle so services
// receive a single injected dependency instead of a module-level client.
type Repository interface {
	// Class domain
	Class() ClassRepository
	Enrollment() EnrollmentRepository

	// Quiz domain
	Quiz() QuizRepository
	Question() QuestionRepository

	// Attempt domain
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// User domain (read-only, owned by the identity provider)
	User() UserRepository

	// Dashboard domain
	Dashboard() DashboardRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

package services

import (
	"context"
	"io"
	"time"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator request types
type CreateClassRequest = validator.ClassCreateRequest
type UpdateClassRequest = validator.ClassUpdateRequest
type EnrollRequest = validator.EnrollRequest
type CreateQuizRequest = validator.QuizCreateRequest
type UpdateQuizRequest = validator.QuizUpdateRequest
type CreateQuestionRequest = validator.QuestionCreateRequest
type UpdateQuestionRequest = validator.QuestionUpdateRequest
type StartAttemptRequest = validator.AttemptStartRequest
type SaveAnswerRequest = validator.SaveAnswerRequest
type SubmitAttemptRequest = validator.SubmitAttemptRequest
type AnswerSubmission = validator.AnswerSubmission
type GradeEssayRequest = validator.GradeEssayRequest

type ClassResponse struct {
	*models.Class
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

type ClassListResponse struct {
	Classes []*ClassResponse `json:"classes"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	Size    int              `json:"size"`
}

type RosterEntry struct {
	StudentID  string    `json:"student_id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

type QuizResponse struct {
	*models.Quiz
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
	CanTake   bool `json:"can_take"`
}

type QuizListResponse struct {
	Quizzes []*QuizResponse `json:"quizzes"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	Size    int             `json:"size"`
}

type UpdateStatusRequest struct {
	Status models.QuizStatus `json:"status" validate:"required,oneof=draft published closed"`
	Reason *string           `json:"reason" validate:"omitempty,max=500"`
}

// ===== ATTEMPT RELATED DTOs =====

type AttemptResponse struct {
	*models.QuizAttempt
	CanSubmit     bool                 `json:"can_submit"`
	CanResume     bool                 `json:"can_resume"`
	TimeRemaining int                  `json:"time_remaining"` // seconds
	Questions     []QuestionForAttempt `json:"questions,omitempty"`
}

// QuestionForAttempt is the student-facing question view. Correct flags are
// stripped before it leaves the service.
type QuestionForAttempt struct {
	ID       uint                `json:"id"`
	Position int                 `json:"position"`
	Kind     models.QuestionKind `json:"kind"`
	Text     string              `json:"text"`
	Points   int                 `json:"points"`
	Options  []OptionForAttempt  `json:"options,omitempty"`
	Answer   *string             `json:"answer,omitempty"` // saved raw answer, resume only
}

type OptionForAttempt struct {
	ID       uint   `json:"id"`
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// ===== GRADING RELATED DTOs =====

// AnswerGradingResult is the per-question outcome of grading one attempt.
type AnswerGradingResult struct {
	AnswerID      uint                `json:"answer_id"`
	QuestionID    uint                `json:"question_id"`
	Kind          models.QuestionKind `json:"kind"`
	AwardedPoints float64             `json:"awarded_points"`
	MaxPoints     int                 `json:"max_points"`
	IsCorrect     *bool               `json:"is_correct"`
	IsGraded      bool                `json:"is_graded"`
}

// GradeSummary is the attempt-level outcome of a grading pass.
type GradeSummary struct {
	AttemptID     uint                  `json:"attempt_id"`
	QuizID        uint                  `json:"quiz_id"`
	Score         *float64              `json:"score"` // percentage 0..100
	AwardedPoints float64               `json:"awarded_points"`
	TotalPoints   int                   `json:"total_points"`
	AnsweredCount int                   `json:"answered_count"`
	QuestionCount int                   `json:"question_count"`
	EssayCount    int                   `json:"essay_count"`
	PendingManual bool                  `json:"pending_manual"`
	Answers       []AnswerGradingResult `json:"answers"`
	GradedAt      time.Time             `json:"graded_at"`
}

// ===== ROSTER IMPORT/EXPORT DTOs =====

type RosterRowError struct {
	Row     int    `json:"row"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

type RosterImportResult struct {
	Enrolled int              `json:"enrolled"`
	Skipped  int              `json:"skipped"`
	Errors   []RosterRowError `json:"errors,omitempty"`
}

// ===== DASHBOARD DTOs =====

// DashboardOverview carries the headline numbers for the teacher dashboard.
// The totals and rates are platform-wide; PendingGrading alone is scoped to
// the requesting teacher's quizzes, since that count drives their work queue.
type DashboardOverview struct {
	TotalQuizzes   int64   `json:"total_quizzes"`
	TotalClasses   int64   `json:"total_classes"`
	TotalAttempts  int64   `json:"total_attempts"`
	ActiveStudents int64   `json:"active_students"`
	AverageScore   float64 `json:"average_score"`
	CompletionRate float64 `json:"completion_rate"`
	PendingGrading int64   `json:"pending_grading"`
}

type QuizResultsResponse struct {
	QuizID  uint                             `json:"quiz_id"`
	Title   string                           `json:"title"`
	Results []repositories.StudentResult     `json:"results"`
	Stats   *repositories.QuizStats          `json:"stats"`
	Trends  []repositories.ActivityTrendData `json:"trends,omitempty"`
}

// ===== SERVICE INTERFACES =====

type ClassService interface {
	// Core CRUD operations
	Create(ctx context.Context, req *CreateClassRequest, creatorID string) (*ClassResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*ClassResponse, error)
	Update(ctx context.Context, id uint, req *UpdateClassRequest, userID string) (*ClassResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	// List operations
	List(ctx context.Context, filters repositories.ClassFilters, userID string) (*ClassListResponse, error)
	GetByCreator(ctx context.Context, creatorID string, filters repositories.ClassFilters) (*ClassListResponse, error)
	GetByStudent(ctx context.Context, studentID string, filters repositories.ClassFilters) (*ClassListResponse, error)

	// Roster management
	Enroll(ctx context.Context, classID uint, req *EnrollRequest, userID string) (*RosterImportResult, error)
	Unenroll(ctx context.Context, classID uint, studentID string, userID string) error
	GetRoster(ctx context.Context, classID uint, userID string) ([]RosterEntry, error)

	// Statistics
	GetStats(ctx context.Context, id uint, userID string) (*repositories.ClassStats, error)

	// Permission checks
	CanAccess(ctx context.Context, classID uint, userID string) (bool, error)
	IsMember(ctx context.Context, classID uint, studentID string) (bool, error)
}

type RosterService interface {
	// Import enrolls students listed in an uploaded file. CSV and XLSX
	// are supported; format is chosen by filename extension.
	ImportCSV(ctx context.Context, classID uint, r io.Reader, userID string) (*RosterImportResult, error)
	ImportXLSX(ctx context.Context, classID uint, r io.Reader, userID string) (*RosterImportResult, error)

	// Exports produce XLSX workbooks
	ExportRoster(ctx context.Context, classID uint, userID string) ([]byte, error)
	ExportQuizResults(ctx context.Context, quizID uint, userID string) ([]byte, error)
}

type QuizService interface {
	// Core CRUD operations
	Create(ctx context.Context, req *CreateQuizRequest, creatorID string) (*QuizResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*QuizResponse, error)
	GetByIDWithQuestions(ctx context.Context, id uint, userID string) (*QuizResponse, error)
	Update(ctx context.Context, id uint, req *UpdateQuizRequest, userID string) (*QuizResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	// List operations
	List(ctx context.Context, filters repositories.QuizFilters, userID string) (*QuizListResponse, error)
	GetByCreator(ctx context.Context, creatorID string, filters repositories.QuizFilters) (*QuizListResponse, error)
	GetByClass(ctx context.Context, classID uint, filters repositories.QuizFilters, userID string) (*QuizListResponse, error)

	// Status management
	Publish(ctx context.Context, id uint, userID string) error
	Close(ctx context.Context, id uint, userID string) error

	// Question management
	AddQuestion(ctx context.Context, quizID uint, req *CreateQuestionRequest, userID string) (*models.Question, error)
	UpdateQuestion(ctx context.Context, quizID, questionID uint, req *UpdateQuestionRequest, userID string) (*models.Question, error)
	RemoveQuestion(ctx context.Context, quizID, questionID uint, userID string) error
	GetQuestions(ctx context.Context, quizID uint, userID string) ([]*models.Question, error)

	// Statistics
	GetStats(ctx context.Context, id uint, userID string) (*repositories.QuizStats, error)

	// Permission checks
	CanEdit(ctx context.Context, quizID uint, userID string) (bool, error)
	CanDelete(ctx context.Context, quizID uint, userID string) (bool, error)
	CanTake(ctx context.Context, quizID uint, studentID string) (bool, error)
}

type AttemptService interface {
	// Core attempt operations
	Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error)
	Resume(ctx context.Context, attemptID uint, studentID string) (*AttemptResponse, error)
	SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, studentID string) error
	Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error)

	// Get operations
	GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetCurrentAttempt(ctx context.Context, quizID uint, studentID string) (*AttemptResponse, error)

	// List operations
	GetByStudent(ctx context.Context, studentID string, filters repositories.AttemptFilters) ([]*AttemptResponse, int64, error)
	GetByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, userID string) ([]*AttemptResponse, int64, error)

	// Time management. The stored deadline decides; clients only display.
	GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (int, error) // seconds
	HandleTimeout(ctx context.Context, attemptID uint) error

	// Validation
	CanStart(ctx context.Context, quizID uint, studentID string) (bool, error)
	GetAttemptCount(ctx context.Context, quizID uint, studentID string) (int, error)
}

type GradingService interface {
	// Auto grading. GradeAttempt clears and rewrites the attempt's answers
	// inside one transaction, then computes the attempt score.
	GradeAttempt(ctx context.Context, attemptID uint, submissions []AnswerSubmission) (*GradeSummary, error)

	// Recalculation re-grades from the stored raw answers. Safe to run any
	// number of times.
	Recalculate(ctx context.Context, attemptID uint, userID string) (*GradeSummary, error)
	RecalculateQuiz(ctx context.Context, quizID uint, userID string) (map[uint]*GradeSummary, error)

	// Manual grading for essay answers
	GradeEssayAnswer(ctx context.Context, answerID uint, req *GradeEssayRequest, graderID string) (*AnswerGradingResult, error)
	GetPendingManual(ctx context.Context, quizID uint, filters repositories.AnswerFilters, userID string) ([]*models.StudentAnswer, int64, error)

	// Statistics
	GetGradingOverview(ctx context.Context, quizID uint, userID string) (*repositories.GradingStats, error)
}

type DashboardService interface {
	GetOverview(ctx context.Context, userID string) (*DashboardOverview, error)
	GetQuizResults(ctx context.Context, quizID uint, userID string) (*QuizResultsResponse, error)
	GetActivityTrends(ctx context.Context, days int, userID string) ([]repositories.ActivityTrendData, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Class() ClassService
	Quiz() QuizService
	Attempt() AttemptService
	Grading() GradingService
	Roster() RosterService
	Dashboard() DashboardService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

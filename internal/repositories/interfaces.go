package repositories

import (
	"time"

	"github.com/quizdeck/quiz-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type ClassFilters struct {
	CreatedBy *string    `json:"created_by"`
	Subject   *string    `json:"subject"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`
	SortOrder string     `json:"sort_order"`
}

type QuizFilters struct {
	Status    *models.QuizStatus `json:"status"`
	ClassID   *uint              `json:"class_id"`
	CreatedBy *string            `json:"created_by"`
	DateFrom  *time.Time         `json:"date_from"`
	DateTo    *time.Time         `json:"date_to"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`    // "created_at", "title", "opens_at"
	SortOrder string             `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	StudentID *string               `json:"student_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type AnswerFilters struct {
	IsGraded *bool   `json:"is_graded"`
	GradedBy *string `json:"graded_by"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
}

// ===== SHARED STATISTICS STRUCTS =====

type QuizStats struct {
	TotalAttempts     int     `json:"total_attempts"`
	SubmittedAttempts int     `json:"submitted_attempts"`
	GradedAttempts    int     `json:"graded_attempts"`
	PendingManual     int     `json:"pending_manual"`
	AverageScore      float64 `json:"average_score"`
	AverageTimeSpent  int     `json:"average_time_spent"`
	QuestionCount     int     `json:"question_count"`
	TotalPoints       int     `json:"total_points"`
}

type ClassStats struct {
	StudentCount   int     `json:"student_count"`
	QuizCount      int     `json:"quiz_count"`
	AttemptCount   int     `json:"attempt_count"`
	AverageScore   float64 `json:"average_score"`
	CompletionRate float64 `json:"completion_rate"`
}

type GradingStats struct {
	TotalAnswers   int     `json:"total_answers"`
	GradedAnswers  int     `json:"graded_answers"`
	PendingAnswers int     `json:"pending_answers"`
	AutoGraded     int     `json:"auto_graded"`
	ManualGraded   int     `json:"manual_graded"`
	AverageScore   float64 `json:"average_score"`
}

// StudentResult is one dashboard row: a student's best outcome for a quiz.
type StudentResult struct {
	StudentID     string     `json:"student_id"`
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
	AttemptCount  int        `json:"attempt_count"`
	BestScore     *float64   `json:"best_score"`
	LastSubmitted *time.Time `json:"last_submitted"`
	PendingManual bool       `json:"pending_manual"`
}

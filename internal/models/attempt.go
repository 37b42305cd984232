package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
)

const (
	AttemptEndReasonSubmitted = "submitted"
	AttemptEndReasonTimeout   = "time_out"
)

type QuizAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	QuizID        uint          `json:"quiz_id" gorm:"not null;index;uniqueIndex:idx_quiz_student_attempt"`
	StudentID     string        `json:"student_id" gorm:"not null;index;size:255;uniqueIndex:idx_quiz_student_attempt"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_quiz_student_attempt"`
	Status        AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing. Deadline is set server-side at start (StartedAt + quiz duration)
	// and is the authoritative cutoff; the client countdown is advisory.
	StartedAt   *time.Time `json:"started_at"`
	Deadline    *time.Time `json:"deadline"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TimeSpent   int        `json:"time_spent"` // seconds

	// Scoring. Score stays nil until grading has run.
	Score         *float64 `json:"score"` // percentage 0..100
	TotalPoints   int      `json:"total_points"`
	PendingManual bool     `json:"pending_manual"` // essay answers awaiting a human grade

	// Metadata
	EndReason   *string        `json:"end_reason" gorm:"size:50"`
	SessionData datatypes.JSON `json:"session_data" gorm:"type:jsonb"` // client info captured at start

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Quiz    Quiz            `json:"quiz" gorm:"foreignKey:QuizID"`
	Student User            `json:"student" gorm:"foreignKey:StudentID"`
	Answers []StudentAnswer `json:"answers" gorm:"foreignKey:AttemptID"`
}

// StudentAnswer is one learner's response to one question within one attempt.
// RawAnswer keeps the text exactly as submitted; grading re-resolves it
// against the question's current options, so re-grading is always possible
// from stored state alone.
type StudentAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`

	// Answer content
	RawAnswer        string  `json:"raw_answer" gorm:"type:text"`
	SelectedOptionID *uint   `json:"selected_option_id" gorm:"index"` // nil for essays and unresolved answers
	AnswerText       *string `json:"answer_text" gorm:"type:text"`    // essay responses only

	// Grading
	AwardedPoints float64    `json:"awarded_points"`
	MaxPoints     int        `json:"max_points"`
	IsCorrect     *bool      `json:"is_correct"` // nil while an essay awaits manual review
	IsGraded      bool       `json:"is_graded"`
	GradedBy      *string    `json:"graded_by" gorm:"size:255"` // teacher ID for manual grading, nil when auto-graded
	GradedAt      *time.Time `json:"graded_at"`
	Feedback      *string    `json:"feedback" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Attempt        QuizAttempt   `json:"attempt" gorm:"foreignKey:AttemptID"`
	Question       Question      `json:"question" gorm:"foreignKey:QuestionID"`
	SelectedOption *AnswerOption `json:"selected_option" gorm:"foreignKey:SelectedOptionID"`
	Grader         *User         `json:"grader" gorm:"foreignKey:GradedBy"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}

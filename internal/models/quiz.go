package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
	QuizClosed    QuizStatus = "closed"
)

// MaxAttempts sentinel: a quiz with MaxAttempts == 0 allows unlimited attempts.
const UnlimitedAttempts = 0

type Quiz struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	ClassID     *uint      `json:"class_id" gorm:"index"`
	Title       string     `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string    `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Status      QuizStatus `json:"status" gorm:"default:draft;index" validate:"omitempty,oneof=draft published closed"`

	// Delivery settings
	ShowScore   bool       `json:"show_score" gorm:"default:true"` // reveal score to the student after grading
	MaxAttempts int        `json:"max_attempts" gorm:"default:1" validate:"min=0,max=10"`
	Duration    int        `json:"duration" gorm:"not null" validate:"required,min=1,max=300"` // minutes
	OpensAt     *time.Time `json:"opens_at"`
	ClosesAt    *time.Time `json:"closes_at"`

	Tags datatypes.JSON `json:"tags" gorm:"type:jsonb"` // []string

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Class     *Class        `json:"class" gorm:"foreignKey:ClassID"`
	Questions []Question    `json:"questions" gorm:"foreignKey:QuizID"`
	Attempts  []QuizAttempt `json:"attempts" gorm:"foreignKey:QuizID"`
	Creator   User          `json:"creator" gorm:"foreignKey:CreatedBy"`

	// Computed fields (not stored)
	QuestionCount int     `json:"question_count" gorm:"-"`
	TotalPoints   int     `json:"total_points" gorm:"-"`
	AttemptCount  int     `json:"attempt_count" gorm:"-"`
	AvgScore      float64 `json:"avg_score" gorm:"-"`
}

type QuestionKind string

const (
	SingleSelect QuestionKind = "single_select"
	TrueFalse    QuestionKind = "true_false"
	Essay        QuestionKind = "essay"
)

// Selectable reports whether the kind carries answer options and is
// auto-gradable. Essay questions have no options and are always graded
// by a human reviewer.
func (k QuestionKind) Selectable() bool {
	return k == SingleSelect || k == TrueFalse
}

type Question struct {
	ID       uint         `json:"id" gorm:"primaryKey"`
	QuizID   uint         `json:"quiz_id" gorm:"not null;index;uniqueIndex:idx_quiz_position"`
	Position int          `json:"position" gorm:"not null;uniqueIndex:idx_quiz_position"`
	Kind     QuestionKind `json:"kind" gorm:"not null;index" validate:"required,oneof=single_select true_false essay"`
	Text     string       `json:"text" gorm:"type:text;not null" validate:"required,max=2000"`
	Points   int          `json:"points" gorm:"default:1" validate:"min=1,max=100"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Quiz    Quiz           `json:"quiz" gorm:"foreignKey:QuizID"`
	Options []AnswerOption `json:"options" gorm:"foreignKey:QuestionID"`
}

// AnswerOption is one selectable choice of a single-select or true/false
// question. Exactly one option per selectable question is flagged correct.
type AnswerOption struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index;uniqueIndex:idx_question_option_position"`
	Position   int    `json:"position" gorm:"not null;uniqueIndex:idx_question_option_position"`
	Text       string `json:"text" gorm:"type:text;not null" validate:"required,max=1000"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

func (Question) TableName() string {
	return "questions"
}

func (AnswerOption) TableName() string {
	return "answer_options"
}

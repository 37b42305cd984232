package validator

import (
	"time"

	"github.com/quizdeck/quiz-service/internal/models"
)

// ===== CLASS REQUESTS =====

// ClassCreateRequest represents the request structure for creating classes
type ClassCreateRequest struct {
	Title       string  `json:"title" validate:"required,quiz_title"`
	Description *string `json:"description" validate:"omitempty,quiz_description"`
	Subject     *string `json:"subject" validate:"omitempty,max=100"`
}

// ClassUpdateRequest represents the request structure for updating classes
type ClassUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,quiz_title"`
	Description *string `json:"description" validate:"omitempty,quiz_description"`
	Subject     *string `json:"subject" validate:"omitempty,max=100"`
}

// EnrollRequest enrolls students into a class by ID or email
type EnrollRequest struct {
	StudentIDs []string `json:"student_ids" validate:"omitempty,dive,required"`
	Emails     []string `json:"emails" validate:"omitempty,dive,email"`
}

// ===== QUIZ REQUESTS =====

// QuizCreateRequest represents the request structure for creating quizzes
type QuizCreateRequest struct {
	Title       string     `json:"title" validate:"required,quiz_title"`
	Description *string    `json:"description" validate:"omitempty,quiz_description"`
	ClassID     *uint      `json:"class_id"`
	ShowScore   *bool      `json:"show_score"`
	MaxAttempts int        `json:"max_attempts" validate:"max_attempts"`
	Duration    int        `json:"duration" validate:"required,quiz_duration"`
	OpensAt     *time.Time `json:"opens_at"`
	ClosesAt    *time.Time `json:"closes_at" validate:"omitempty,future_date"`
	Tags        []string   `json:"tags" validate:"omitempty,max=10,dive,max=50"`

	Questions []QuestionCreateRequest `json:"questions" validate:"omitempty,dive"`
}

// QuizUpdateRequest represents the request structure for updating quizzes
type QuizUpdateRequest struct {
	Title       *string    `json:"title" validate:"omitempty,quiz_title"`
	Description *string    `json:"description" validate:"omitempty,quiz_description"`
	ClassID     *uint      `json:"class_id"`
	ShowScore   *bool      `json:"show_score"`
	MaxAttempts *int       `json:"max_attempts" validate:"omitempty,max_attempts"`
	Duration    *int       `json:"duration" validate:"omitempty,quiz_duration"`
	OpensAt     *time.Time `json:"opens_at"`
	ClosesAt    *time.Time `json:"closes_at"`
	Tags        []string   `json:"tags" validate:"omitempty,max=10,dive,max=50"`
}

// ===== QUESTION REQUESTS =====

// QuestionCreateRequest represents the request structure for creating questions
type QuestionCreateRequest struct {
	Kind     models.QuestionKind `json:"kind" validate:"required,question_kind"`
	Text     string              `json:"text" validate:"required,min=1,max=2000"`
	Points   int                 `json:"points" validate:"required,points_range"`
	Position *int                `json:"position" validate:"omitempty,min=1"`
	Options  []OptionRequest     `json:"options" validate:"omitempty,dive"`
}

// QuestionUpdateRequest represents the request structure for updating questions
type QuestionUpdateRequest struct {
	Kind     *models.QuestionKind `json:"kind" validate:"omitempty,question_kind"`
	Text     *string              `json:"text" validate:"omitempty,min=1,max=2000"`
	Points   *int                 `json:"points" validate:"omitempty,points_range"`
	Position *int                 `json:"position" validate:"omitempty,min=1"`
	Options  []OptionRequest      `json:"options" validate:"omitempty,dive"`
}

// OptionRequest is one answer option of a selectable question
type OptionRequest struct {
	Text      string `json:"text" validate:"required,max=1000"`
	IsCorrect bool   `json:"is_correct"`
}

// ===== ATTEMPT REQUESTS =====

// AttemptStartRequest starts a new attempt on a quiz
type AttemptStartRequest struct {
	QuizID uint `json:"quiz_id" validate:"required"`
}

// AnswerSubmission is one raw answer keyed by question. Answer carries the
// submitted text verbatim; the grader resolves it against options.
type AnswerSubmission struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	Answer     string `json:"answer"`
}

// SaveAnswerRequest saves a single in-progress answer
type SaveAnswerRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	Answer     string `json:"answer"`
}

// SubmitAttemptRequest submits an attempt with its final answer set
type SubmitAttemptRequest struct {
	Answers []AnswerSubmission `json:"answers" validate:"omitempty,dive"`
}

// ===== GRADING REQUESTS =====

// GradeEssayRequest records a manual grade for one essay answer
type GradeEssayRequest struct {
	AwardedPoints float64 `json:"awarded_points" validate:"min=0"`
	Feedback      *string `json:"feedback" validate:"omitempty,max=2000"`
}

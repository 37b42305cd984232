package events

import "time"

// Topic names published to the message broker.
const (
	TopicAttemptGraded   = "quiz.attempt.graded"
	TopicAttemptStarted  = "quiz.attempt.started"
	TopicQuizPublished   = "quiz.quiz.published"
	TopicStudentEnrolled = "quiz.student.enrolled"
)

// AttemptGradedEvent is emitted after grading writes an attempt's results.
// Recalculations emit it again with the fresh score.
type AttemptGradedEvent struct {
	AttemptID     uint       `json:"attempt_id"`
	QuizID        uint       `json:"quiz_id"`
	StudentID     string     `json:"student_id"`
	Score         *float64   `json:"score"`
	TotalPoints   float64    `json:"total_points"`
	PendingManual bool       `json:"pending_manual"`
	GradedAt      time.Time  `json:"graded_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
}

// AttemptStartedEvent is emitted when a student begins an attempt.
type AttemptStartedEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	QuizID        uint      `json:"quiz_id"`
	StudentID     string    `json:"student_id"`
	AttemptNumber int       `json:"attempt_number"`
	Deadline      time.Time `json:"deadline"`
	StartedAt     time.Time `json:"started_at"`
}

// QuizPublishedEvent is emitted when a quiz transitions to published.
type QuizPublishedEvent struct {
	QuizID      uint       `json:"quiz_id"`
	ClassID     *uint      `json:"class_id,omitempty"`
	Title       string     `json:"title"`
	PublishedBy string     `json:"published_by"`
	OpensAt     *time.Time `json:"opens_at,omitempty"`
	ClosesAt    *time.Time `json:"closes_at,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
}

// StudentEnrolledEvent is emitted for each student added to a class roster.
type StudentEnrolledEvent struct {
	ClassID    uint      `json:"class_id"`
	StudentID  string    `json:"student_id"`
	EnrolledBy string    `json:"enrolled_by"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

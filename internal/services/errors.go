package services

import (
	"errors"
	"fmt"

	"github.com/quizdeck/quiz-service/internal/validator"
)

// Sentinel errors returned by services. Handlers map these to HTTP status
// codes in handleServiceError.
var (
	// Generic
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidationFailed = errors.New("validation failed")

	// Class
	ErrClassNotFound     = errors.New("class not found")
	ErrNotEnrolled       = errors.New("student is not enrolled in this class")
	ErrAlreadyEnrolled   = errors.New("student is already enrolled in this class")
	ErrClassAccessDenied = errors.New("access denied to class")

	// Quiz
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizNotPublished = errors.New("quiz is not published")
	ErrQuizClosed       = errors.New("quiz is closed")
	ErrQuizNotOpen      = errors.New("quiz has not opened yet")
	ErrQuizHasAttempts  = errors.New("quiz has existing attempts")
	ErrQuizNoQuestions  = errors.New("quiz has no questions")

	// Question
	ErrQuestionNotFound = errors.New("question not found")

	// Attempt
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAccessDenied     = errors.New("access denied to attempt")
	ErrAttemptNotActive        = errors.New("attempt is not active")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptLimitExceeded    = errors.New("maximum attempts exceeded")
	ErrAttemptDeadlinePassed   = errors.New("attempt deadline has passed")
	ErrAttemptCannotStart      = errors.New("cannot start new attempt")
	ErrAttemptInProgress       = errors.New("an attempt is already in progress")

	// Grading
	ErrAnswerNotFound     = errors.New("answer not found")
	ErrAnswerNotEssay     = errors.New("answer is not an essay answer")
	ErrAttemptNotGradable = errors.New("attempt is not in a gradable state")

	// User
	ErrUserNotFound = errors.New("user not found")
)

// ValidationErrors re-exports the validator type so handlers can match it
// with errors.As against service return values.
type ValidationErrors = validator.ValidationErrors
type ValidationError = validator.ValidationError

// NewValidationError builds a single-field ValidationErrors value.
func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{{
		Field:   field,
		Message: message,
		Value:   value,
	}}
}

// BusinessRuleError marks a request that is well-formed but breaks a domain
// rule. Handlers answer 422.
type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// PermissionError marks an action forbidden for the acting user. Handlers
// answer 403.
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d (%s)",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/quizdeck/quiz-service/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates business rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateQuizCreate validates quiz creation business rules
func (bv *BusinessValidator) ValidateQuizCreate(req *QuizCreateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)
	errors = append(errors, bv.validateQuizWindow(req.OpensAt, req.ClosesAt)...)

	return errors
}

// ValidateQuizUpdate validates quiz update business rules
func (bv *BusinessValidator) ValidateQuizUpdate(req *QuizUpdateRequest, existing *models.Quiz) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	opensAt := existing.OpensAt
	closesAt := existing.ClosesAt
	if req.OpensAt != nil {
		opensAt = req.OpensAt
	}
	if req.ClosesAt != nil {
		closesAt = req.ClosesAt
	}
	errors = append(errors, bv.validateQuizWindow(opensAt, closesAt)...)

	// Published quizzes keep their timing intact for students already inside
	if existing.Status == models.QuizPublished {
		if req.Duration != nil && *req.Duration != existing.Duration {
			errors = append(errors, ValidationError{
				Field:   "duration",
				Message: "cannot be changed for published quizzes",
				Value:   *req.Duration,
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

// ValidateQuestionCreate validates question creation business rules
func (bv *BusinessValidator) ValidateQuestionCreate(req *QuestionCreateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)
	errors = append(errors, bv.validateQuestionOptions(req.Kind, req.Options)...)

	return errors
}

// ValidateQuestionUpdate validates question update business rules
func (bv *BusinessValidator) ValidateQuestionUpdate(req *QuestionUpdateRequest, existing *models.Question) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	kind := existing.Kind
	if req.Kind != nil {
		kind = *req.Kind
	}
	if req.Options != nil {
		errors = append(errors, bv.validateQuestionOptions(kind, req.Options)...)
	}

	return errors
}

// ValidateAttemptStart validates attempt start conditions
func (bv *BusinessValidator) ValidateAttemptStart(quiz *models.Quiz, attemptCount int) ValidationErrors {
	var errors ValidationErrors
	now := time.Now()

	if quiz.Status != models.QuizPublished {
		errors = append(errors, ValidationError{
			Field:   "quiz_status",
			Message: "quiz is not published",
			Value:   quiz.Status,
			Rule:    "business_logic",
		})
	}

	if quiz.OpensAt != nil && now.Before(*quiz.OpensAt) {
		errors = append(errors, ValidationError{
			Field:   "opens_at",
			Message: "quiz has not opened yet",
			Value:   quiz.OpensAt,
			Rule:    "business_logic",
		})
	}

	if quiz.ClosesAt != nil && now.After(*quiz.ClosesAt) {
		errors = append(errors, ValidationError{
			Field:   "closes_at",
			Message: "quiz has closed",
			Value:   quiz.ClosesAt,
			Rule:    "business_logic",
		})
	}

	// MaxAttempts of 0 means unlimited
	if quiz.MaxAttempts != models.UnlimitedAttempts && attemptCount >= quiz.MaxAttempts {
		errors = append(errors, ValidationError{
			Field:   "attempts",
			Message: "maximum attempts exceeded",
			Value:   attemptCount,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateStatusTransition validates quiz status transitions
func (bv *BusinessValidator) ValidateStatusTransition(currentStatus, newStatus models.QuizStatus, questionCount int) ValidationErrors {
	var errors ValidationErrors

	allowedTransitions := map[models.QuizStatus][]models.QuizStatus{
		models.QuizDraft:     {models.QuizPublished},
		models.QuizPublished: {models.QuizClosed},
		models.QuizClosed:    {models.QuizPublished},
	}

	allowed := false
	for _, allowedStatus := range allowedTransitions[currentStatus] {
		if newStatus == allowedStatus {
			allowed = true
			break
		}
	}

	if !allowed {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot transition from %s to %s", currentStatus, newStatus),
			Value:   newStatus,
			Rule:    "status_transition",
		})
	}

	if newStatus == models.QuizPublished && questionCount == 0 {
		errors = append(errors, ValidationError{
			Field:   "questions",
			Message: "quiz must have at least one question before publishing",
			Value:   questionCount,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateDeletePermission validates if a quiz can be deleted
func (bv *BusinessValidator) ValidateDeletePermission(hasAttempts bool, status models.QuizStatus) ValidationErrors {
	var errors ValidationErrors

	if hasAttempts {
		errors = append(errors, ValidationError{
			Field:   "attempts",
			Message: "cannot delete quiz with existing attempts",
			Value:   hasAttempts,
			Rule:    "business_logic",
		})
	}

	if status == models.QuizPublished {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: "cannot delete published quiz",
			Value:   status,
			Rule:    "business_logic",
		})
	}

	return errors
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	// Duration in minutes
	bv.validate.RegisterValidation("quiz_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Int()
		return duration >= 1 && duration <= 300
	})

	// 0 allows unlimited attempts
	bv.validate.RegisterValidation("max_attempts", func(fl validator.FieldLevel) bool {
		attempts := fl.Field().Int()
		return attempts >= 0 && attempts <= 10
	})

	bv.validate.RegisterValidation("quiz_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	bv.validate.RegisterValidation("quiz_description", func(fl validator.FieldLevel) bool {
		desc := fl.Field().String()
		return len(desc) <= 1000
	})

	bv.validate.RegisterValidation("future_date", func(fl validator.FieldLevel) bool {
		field := fl.Field()

		if field.Kind() == reflect.Ptr && field.IsNil() {
			return true // Optional field
		}

		var t time.Time
		if field.Kind() == reflect.Ptr {
			t = field.Elem().Interface().(time.Time)
		} else {
			t = field.Interface().(time.Time)
		}

		return t.After(time.Now())
	})

	bv.validate.RegisterValidation("points_range", func(fl validator.FieldLevel) bool {
		points := fl.Field().Int()
		return points >= 1 && points <= 100
	})

	bv.validate.RegisterValidation("question_kind", func(fl validator.FieldLevel) bool {
		kind := models.QuestionKind(fl.Field().String())
		return kind == models.SingleSelect || kind == models.TrueFalse || kind == models.Essay
	})
}

// validateQuizWindow checks the open/close window ordering
func (bv *BusinessValidator) validateQuizWindow(opensAt, closesAt *time.Time) ValidationErrors {
	var errors ValidationErrors

	if opensAt != nil && closesAt != nil && !closesAt.After(*opensAt) {
		errors = append(errors, ValidationError{
			Field:   "closes_at",
			Message: "must be after opens_at",
			Value:   closesAt,
			Rule:    "business_logic",
		})
	}

	return errors
}

// validateQuestionOptions enforces the option shape per question kind:
// selectable kinds need options with exactly one flagged correct, essays
// carry none.
func (bv *BusinessValidator) validateQuestionOptions(kind models.QuestionKind, options []OptionRequest) ValidationErrors {
	var errors ValidationErrors

	if !kind.Selectable() {
		if len(options) > 0 {
			errors = append(errors, ValidationError{
				Field:   "options",
				Message: "essay questions cannot have answer options",
				Value:   len(options),
				Rule:    "business_logic",
			})
		}
		return errors
	}

	minOptions := 2
	if kind == models.TrueFalse {
		if len(options) != 2 {
			errors = append(errors, ValidationError{
				Field:   "options",
				Message: "true/false questions must have exactly 2 options",
				Value:   len(options),
				Rule:    "business_logic",
			})
			return errors
		}
	} else if len(options) < minOptions {
		errors = append(errors, ValidationError{
			Field:   "options",
			Message: "single select questions must have at least 2 options",
			Value:   len(options),
			Rule:    "business_logic",
		})
		return errors
	}

	correctCount := 0
	seen := make(map[string]bool)
	for i, opt := range options {
		if opt.IsCorrect {
			correctCount++
		}

		normalized := strings.ToLower(strings.TrimSpace(opt.Text))
		if normalized == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("options[%d].text", i),
				Message: "option text cannot be empty",
				Rule:    "business_logic",
			})
		} else if seen[normalized] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("options[%d].text", i),
				Message: "option text must be unique within a question",
				Value:   opt.Text,
				Rule:    "business_logic",
			})
		}
		seen[normalized] = true
	}

	if correctCount != 1 {
		errors = append(errors, ValidationError{
			Field:   "options",
			Message: "exactly one option must be marked correct",
			Value:   correctCount,
			Rule:    "business_logic",
		})
	}

	return errors
}

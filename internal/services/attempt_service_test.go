package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/validator"
)

// newAttemptFixture seeds a published quiz in a class the student is
// enrolled in.
func newAttemptFixture() (*fakeRepository, AttemptService, *events.MockEventPublisher) {
	repo := newFakeRepository()
	repo.addUser(&models.User{ID: "teacher-1", FullName: "Pat Teacher", Email: "pat@school.test", Role: models.RoleTeacher})
	repo.addUser(&models.User{ID: "student-1", FullName: "Sam Student", Email: "sam@school.test", Role: models.RoleStudent})

	classID := uint(5)
	repo.classes[classID] = &models.Class{ID: classID, Title: "Biology 101", CreatedBy: "teacher-1"}
	repo.enroll(classID, "student-1")

	repo.addQuiz(&models.Quiz{
		ID:          20,
		ClassID:     &classID,
		Title:       "Cell structure",
		Status:      models.QuizPublished,
		Duration:    30,
		MaxAttempts: 2,
		ShowScore:   true,
		CreatedBy:   "teacher-1",
		Questions: []models.Question{
			{
				ID: 201, QuizID: 20, Position: 1, Kind: models.SingleSelect, Text: "Powerhouse of the cell?", Points: 2,
				Options: []models.AnswerOption{
					{ID: 2001, QuestionID: 201, Position: 1, Text: "Mitochondria", IsCorrect: true},
					{ID: 2002, QuestionID: 201, Position: 2, Text: "Nucleus"},
				},
			},
			{
				ID: 202, QuizID: 20, Position: 2, Kind: models.TrueFalse, Text: "Plant cells have walls.", Points: 1,
				Options: []models.AnswerOption{
					{ID: 2003, QuestionID: 202, Position: 1, Text: "True", IsCorrect: true},
					{ID: 2004, QuestionID: 202, Position: 2, Text: "False"},
				},
			},
		},
	})

	publisher := events.NewMockEventPublisher()
	logger := testLogger()
	v := validator.NewValidator()
	grading := NewGradingService(repo, nil, logger, v, publisher)
	svc := NewAttemptService(repo, nil, logger, v, grading, publisher)
	return repo, svc, publisher
}

func TestStartAttempt(t *testing.T) {
	repo, svc, publisher := newAttemptFixture()

	resp, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if resp.Status != models.AttemptInProgress {
		t.Errorf("expected in_progress, got %s", resp.Status)
	}
	if resp.AttemptNumber != 1 {
		t.Errorf("expected attempt number 1, got %d", resp.AttemptNumber)
	}
	if resp.TotalPoints != 3 {
		t.Errorf("expected total points 3, got %d", resp.TotalPoints)
	}
	if resp.Deadline == nil || resp.StartedAt == nil {
		t.Fatal("expected started_at and deadline to be set")
	}
	wantDeadline := resp.StartedAt.Add(30 * time.Minute)
	if !resp.Deadline.Equal(wantDeadline) {
		t.Errorf("expected deadline %v, got %v", wantDeadline, resp.Deadline)
	}
	if len(resp.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(resp.Questions))
	}
	for _, q := range resp.Questions {
		if q.Kind != models.Essay && len(q.Options) == 0 {
			t.Errorf("question %d has no options", q.ID)
		}
	}
	if len(publisher.EventsForTopic(events.TopicAttemptStarted)) != 1 {
		t.Error("expected an attempt started event")
	}
	if len(repo.attempts) != 1 {
		t.Errorf("expected 1 persisted attempt, got %d", len(repo.attempts))
	}
}

func TestStartAttempt_DeadlineClampedToClose(t *testing.T) {
	repo, svc, _ := newAttemptFixture()
	closesAt := time.Now().Add(10 * time.Minute)
	repo.quizzes[20].ClosesAt = &closesAt

	resp, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if resp.Deadline == nil || !resp.Deadline.Equal(closesAt) {
		t.Errorf("expected deadline clamped to closes_at %v, got %v", closesAt, resp.Deadline)
	}
}

func TestStartAttempt_Eligibility(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name    string
		mutate  func(*fakeRepository)
		student string
		wantErr error
	}{
		{
			name:    "draft quiz",
			mutate:  func(f *fakeRepository) { f.quizzes[20].Status = models.QuizDraft },
			student: "student-1",
			wantErr: ErrQuizNotPublished,
		},
		{
			name:    "not yet open",
			mutate:  func(f *fakeRepository) { f.quizzes[20].OpensAt = &future },
			student: "student-1",
			wantErr: ErrQuizNotOpen,
		},
		{
			name:    "already closed",
			mutate:  func(f *fakeRepository) { f.quizzes[20].ClosesAt = &past },
			student: "student-1",
			wantErr: ErrQuizClosed,
		},
		{
			name:    "not enrolled",
			mutate:  func(f *fakeRepository) {},
			student: "student-2",
			wantErr: ErrNotEnrolled,
		},
		{
			name: "unknown quiz",
			mutate: func(f *fakeRepository) {
				delete(f.quizzes, 20)
			},
			student: "student-1",
			wantErr: ErrQuizNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, svc, _ := newAttemptFixture()
			tt.mutate(repo)

			_, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, tt.student)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStartAttempt_ActiveAttemptBlocks(t *testing.T) {
	_, svc, _ := newAttemptFixture()

	if _, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1"); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	_, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
	if !errors.Is(err, ErrAttemptInProgress) {
		t.Errorf("expected ErrAttemptInProgress, got %v", err)
	}
}

func TestStartAttempt_LimitEnforced(t *testing.T) {
	repo, svc, _ := newAttemptFixture()
	now := time.Now()
	for i := 1; i <= 2; i++ {
		repo.addAttempt(&models.QuizAttempt{
			QuizID:        20,
			StudentID:     "student-1",
			AttemptNumber: i,
			Status:        models.AttemptGraded,
			StartedAt:     &now,
		})
	}

	_, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Errorf("expected ErrAttemptLimitExceeded, got %v", err)
	}

	t.Run("unlimited attempts", func(t *testing.T) {
		repo.quizzes[20].MaxAttempts = models.UnlimitedAttempts
		resp, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
		if err != nil {
			t.Fatalf("Start failed with unlimited attempts: %v", err)
		}
		if resp.AttemptNumber != 3 {
			t.Errorf("expected attempt number 3, got %d", resp.AttemptNumber)
		}
	})
}

func TestSaveAnswerAndSubmit(t *testing.T) {
	repo, svc, _ := newAttemptFixture()

	started, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	attemptID := started.ID

	if err := svc.SaveAnswer(context.Background(), attemptID, &SaveAnswerRequest{QuestionID: 201, Answer: "Nucleus"}, "student-1"); err != nil {
		t.Fatalf("SaveAnswer failed: %v", err)
	}
	// Saving again replaces the earlier answer.
	if err := svc.SaveAnswer(context.Background(), attemptID, &SaveAnswerRequest{QuestionID: 201, Answer: "Mitochondria"}, "student-1"); err != nil {
		t.Fatalf("SaveAnswer update failed: %v", err)
	}
	if len(repo.answersForAttempt(attemptID)) != 1 {
		t.Fatalf("expected 1 saved answer, got %d", len(repo.answersForAttempt(attemptID)))
	}

	t.Run("question of another quiz rejected", func(t *testing.T) {
		err := svc.SaveAnswer(context.Background(), attemptID, &SaveAnswerRequest{QuestionID: 999, Answer: "x"}, "student-1")
		if !errors.Is(err, ErrQuestionNotFound) {
			t.Errorf("expected ErrQuestionNotFound, got %v", err)
		}
	})

	t.Run("other student rejected", func(t *testing.T) {
		err := svc.SaveAnswer(context.Background(), attemptID, &SaveAnswerRequest{QuestionID: 201, Answer: "x"}, "student-2")
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("expected PermissionError, got %v", err)
		}
	})

	// Submit supplies the second answer; the saved one fills the gap.
	resp, err := svc.Submit(context.Background(), attemptID, &SubmitAttemptRequest{
		Answers: []AnswerSubmission{{QuestionID: 202, Answer: "True"}},
	}, "student-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if resp.Score == nil || *resp.Score != 100 {
		t.Errorf("expected score 100, got %v", resp.Score)
	}
	if resp.EndReason == nil || *resp.EndReason != models.AttemptEndReasonSubmitted {
		t.Errorf("expected end reason submitted, got %v", resp.EndReason)
	}

	t.Run("double submit rejected", func(t *testing.T) {
		_, err := svc.Submit(context.Background(), attemptID, &SubmitAttemptRequest{}, "student-1")
		if !errors.Is(err, ErrAttemptAlreadySubmitted) {
			t.Errorf("expected ErrAttemptAlreadySubmitted, got %v", err)
		}
	})
}

func TestSubmit_PayloadWinsOverSaved(t *testing.T) {
	repo, svc, _ := newAttemptFixture()

	started, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := svc.SaveAnswer(context.Background(), started.ID, &SaveAnswerRequest{QuestionID: 201, Answer: "Nucleus"}, "student-1"); err != nil {
		t.Fatalf("SaveAnswer failed: %v", err)
	}

	if _, err := svc.Submit(context.Background(), started.ID, &SubmitAttemptRequest{
		Answers: []AnswerSubmission{{QuestionID: 201, Answer: "Mitochondria"}},
	}, "student-1"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	answers := repo.answersForAttempt(started.ID)
	if len(answers) != 1 {
		t.Fatalf("expected 1 graded answer, got %d", len(answers))
	}
	if answers[0].RawAnswer != "Mitochondria" {
		t.Errorf("expected the submitted payload to win, got %q", answers[0].RawAnswer)
	}
}

func TestDeadlineEnforcement(t *testing.T) {
	newOverdue := func() (*fakeRepository, AttemptService, uint) {
		repo, svc, _ := newAttemptFixture()
		started := time.Now().Add(-time.Hour)
		deadline := started.Add(30 * time.Minute)
		attempt := &models.QuizAttempt{
			QuizID:        20,
			StudentID:     "student-1",
			AttemptNumber: 1,
			Status:        models.AttemptInProgress,
			StartedAt:     &started,
			Deadline:      &deadline,
			TotalPoints:   3,
		}
		repo.addAttempt(attempt)
		repo.addAnswer(&models.StudentAnswer{AttemptID: attempt.ID, QuestionID: 201, RawAnswer: "Mitochondria", MaxPoints: 2})
		return repo, svc, attempt.ID
	}

	t.Run("submit past deadline grades saved answers only", func(t *testing.T) {
		repo, svc, attemptID := newOverdue()

		_, err := svc.Submit(context.Background(), attemptID, &SubmitAttemptRequest{
			Answers: []AnswerSubmission{
				{QuestionID: 201, Answer: "Nucleus"},
				{QuestionID: 202, Answer: "True"},
			},
		}, "student-1")
		if !errors.Is(err, ErrAttemptDeadlinePassed) {
			t.Fatalf("expected ErrAttemptDeadlinePassed, got %v", err)
		}

		attempt := repo.attempts[attemptID]
		if attempt.Status == models.AttemptInProgress {
			t.Error("expected the overdue attempt to be finalized")
		}
		if attempt.EndReason == nil || *attempt.EndReason != models.AttemptEndReasonTimeout {
			t.Errorf("expected end reason time_out, got %v", attempt.EndReason)
		}
		// Only the previously saved answer counts: 2 of 3 points.
		if attempt.Score == nil || *attempt.Score != 67 {
			t.Errorf("expected score 67 from saved answers, got %v", attempt.Score)
		}
		// Time spent is measured to the deadline, not to the late call.
		if attempt.TimeSpent != int((30 * time.Minute).Seconds()) {
			t.Errorf("expected 1800s time spent, got %d", attempt.TimeSpent)
		}
	})

	t.Run("save answer past deadline finalizes", func(t *testing.T) {
		repo, svc, attemptID := newOverdue()

		err := svc.SaveAnswer(context.Background(), attemptID, &SaveAnswerRequest{QuestionID: 202, Answer: "True"}, "student-1")
		if !errors.Is(err, ErrAttemptDeadlinePassed) {
			t.Fatalf("expected ErrAttemptDeadlinePassed, got %v", err)
		}
		if repo.attempts[attemptID].Status == models.AttemptInProgress {
			t.Error("expected the overdue attempt to be finalized")
		}
	})

	t.Run("resume past deadline finalizes", func(t *testing.T) {
		repo, svc, attemptID := newOverdue()

		_, err := svc.Resume(context.Background(), attemptID, "student-1")
		if !errors.Is(err, ErrAttemptDeadlinePassed) {
			t.Fatalf("expected ErrAttemptDeadlinePassed, got %v", err)
		}
		if repo.attempts[attemptID].Status == models.AttemptInProgress {
			t.Error("expected the overdue attempt to be finalized")
		}
	})

	t.Run("handle timeout is idempotent", func(t *testing.T) {
		repo, svc, attemptID := newOverdue()

		if err := svc.HandleTimeout(context.Background(), attemptID); err != nil {
			t.Fatalf("HandleTimeout failed: %v", err)
		}
		statusAfterFirst := repo.attempts[attemptID].Status

		if err := svc.HandleTimeout(context.Background(), attemptID); err != nil {
			t.Fatalf("second HandleTimeout failed: %v", err)
		}
		if repo.attempts[attemptID].Status != statusAfterFirst {
			t.Error("second HandleTimeout changed the attempt")
		}
	})
}

func TestResume(t *testing.T) {
	_, svc, _ := newAttemptFixture()

	started, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := svc.SaveAnswer(context.Background(), started.ID, &SaveAnswerRequest{QuestionID: 201, Answer: "Mitochondria"}, "student-1"); err != nil {
		t.Fatalf("SaveAnswer failed: %v", err)
	}

	resp, err := svc.Resume(context.Background(), started.ID, "student-1")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if !resp.CanSubmit || !resp.CanResume {
		t.Error("expected a running attempt to be submittable and resumable")
	}
	if resp.TimeRemaining <= 0 {
		t.Errorf("expected positive time remaining, got %d", resp.TimeRemaining)
	}

	var found bool
	for _, q := range resp.Questions {
		if q.ID == 201 {
			found = true
			if q.Answer == nil || *q.Answer != "Mitochondria" {
				t.Errorf("expected saved answer on resume, got %v", q.Answer)
			}
		}
	}
	if !found {
		t.Fatal("question 201 missing from resume payload")
	}
}

func TestGetTimeRemaining(t *testing.T) {
	_, svc, _ := newAttemptFixture()

	started, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	remaining, err := svc.GetTimeRemaining(context.Background(), started.ID, "student-1")
	if err != nil {
		t.Fatalf("GetTimeRemaining failed: %v", err)
	}
	if remaining <= 0 || remaining > 30*60 {
		t.Errorf("expected remaining within (0, 1800], got %d", remaining)
	}
}

func TestHiddenScore(t *testing.T) {
	repo, svc, _ := newAttemptFixture()
	repo.quizzes[20].ShowScore = false

	started, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 20}, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := svc.Submit(context.Background(), started.ID, &SubmitAttemptRequest{
		Answers: []AnswerSubmission{{QuestionID: 201, Answer: "Mitochondria"}},
	}, "student-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp.Score != nil {
		t.Errorf("expected score hidden from the student, got %v", resp.Score)
	}

	// The quiz owner still sees it.
	owner, err := svc.GetByIDWithDetails(context.Background(), started.ID, "teacher-1")
	if err != nil {
		t.Fatalf("GetByIDWithDetails failed: %v", err)
	}
	if owner.Score == nil {
		t.Error("expected the owner to see the score")
	}
}

func TestCanStart(t *testing.T) {
	repo, svc, _ := newAttemptFixture()

	ok, err := svc.CanStart(context.Background(), 20, "student-1")
	if err != nil {
		t.Fatalf("CanStart failed: %v", err)
	}
	if !ok {
		t.Error("expected student to be able to start")
	}

	repo.quizzes[20].Status = models.QuizClosed
	ok, err = svc.CanStart(context.Background(), 20, "student-1")
	if err != nil {
		t.Fatalf("CanStart failed: %v", err)
	}
	if ok {
		t.Error("expected closed quiz to block starting")
	}
}

func TestMergeSubmissions(t *testing.T) {
	saved := []models.StudentAnswer{
		{QuestionID: 1, RawAnswer: "saved one"},
		{QuestionID: 2, RawAnswer: "saved two"},
	}
	final := []AnswerSubmission{
		{QuestionID: 2, Answer: "final two"},
		{QuestionID: 3, Answer: "final three"},
	}

	merged := mergeSubmissions(saved, final)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged submissions, got %d", len(merged))
	}

	byQuestion := make(map[uint]string, len(merged))
	for _, sub := range merged {
		byQuestion[sub.QuestionID] = sub.Answer
	}
	if byQuestion[1] != "saved one" {
		t.Errorf("saved answer lost: %q", byQuestion[1])
	}
	if byQuestion[2] != "final two" {
		t.Errorf("payload must win per question: %q", byQuestion[2])
	}
	if byQuestion[3] != "final three" {
		t.Errorf("payload answer lost: %q", byQuestion[3])
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

func newQuizFixture() (*fakeRepository, QuizService, *events.MockEventPublisher) {
	repo := newFakeRepository()
	repo.addUser(&models.User{ID: "teacher-1", FullName: "Pat Teacher", Email: "pat@school.test", Role: models.RoleTeacher})
	repo.addUser(&models.User{ID: "teacher-2", FullName: "Lee Teacher", Email: "lee@school.test", Role: models.RoleTeacher})
	repo.addUser(&models.User{ID: "admin-1", FullName: "Alex Admin", Email: "alex@school.test", Role: models.RoleAdmin})
	repo.addUser(&models.User{ID: "student-1", FullName: "Sam Student", Email: "sam@school.test", Role: models.RoleStudent})

	repo.classes[5] = &models.Class{ID: 5, Title: "Biology 101", CreatedBy: "teacher-1"}
	repo.enroll(5, "student-1")

	publisher := events.NewMockEventPublisher()
	svc := NewQuizService(repo, nil, testLogger(), validator.NewValidator(), publisher)
	return repo, svc, publisher
}

func selectQuestion() CreateQuestionRequest {
	return CreateQuestionRequest{
		Kind:   models.SingleSelect,
		Text:   "Powerhouse of the cell?",
		Points: 2,
		Options: []validator.OptionRequest{
			{Text: "Mitochondria", IsCorrect: true},
			{Text: "Nucleus"},
		},
	}
}

func TestQuizCreate(t *testing.T) {
	repo, svc, _ := newQuizFixture()

	classID := uint(5)
	resp, err := svc.Create(context.Background(), &CreateQuizRequest{
		Title:     "Cell structure",
		ClassID:   &classID,
		Duration:  30,
		Questions: []CreateQuestionRequest{selectQuestion()},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if resp.Status != models.QuizDraft {
		t.Errorf("expected new quiz to be a draft, got %s", resp.Status)
	}
	if !resp.ShowScore {
		t.Error("expected show_score to default to true")
	}
	if len(resp.Questions) != 1 {
		t.Errorf("expected 1 question, got %d", len(resp.Questions))
	}
	if !resp.CanEdit || !resp.CanDelete {
		t.Error("expected the creator to be able to edit and delete a draft")
	}
	if len(repo.questions) != 1 {
		t.Errorf("expected 1 persisted question, got %d", len(repo.questions))
	}

	t.Run("invalid duration rejected", func(t *testing.T) {
		_, err := svc.Create(context.Background(), &CreateQuizRequest{Title: "Too long", Duration: 500}, "teacher-1")
		var valErrs ValidationErrors
		if !errors.As(err, &valErrs) {
			t.Errorf("expected ValidationErrors, got %v", err)
		}
	})

	t.Run("attaching to someone else's class rejected", func(t *testing.T) {
		_, err := svc.Create(context.Background(), &CreateQuizRequest{Title: "Hijack", ClassID: &classID, Duration: 10}, "teacher-2")
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("expected PermissionError, got %v", err)
		}
	})

	t.Run("bad question options rejected", func(t *testing.T) {
		q := selectQuestion()
		q.Options = q.Options[:1]
		_, err := svc.Create(context.Background(), &CreateQuizRequest{
			Title:     "Broken",
			Duration:  10,
			Questions: []CreateQuestionRequest{q},
		}, "teacher-1")
		var valErrs ValidationErrors
		if !errors.As(err, &valErrs) {
			t.Errorf("expected ValidationErrors, got %v", err)
		}
	})
}

func TestQuizPublishAndClose(t *testing.T) {
	repo, svc, publisher := newQuizFixture()

	created, err := svc.Create(context.Background(), &CreateQuizRequest{Title: "Empty quiz", Duration: 10}, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("publishing an empty quiz rejected", func(t *testing.T) {
		if err := svc.Publish(context.Background(), created.ID, "teacher-1"); !errors.Is(err, ErrQuizNoQuestions) {
			t.Errorf("expected ErrQuizNoQuestions, got %v", err)
		}
	})

	q := selectQuestion()
	if _, err := svc.AddQuestion(context.Background(), created.ID, &q, "teacher-1"); err != nil {
		t.Fatalf("AddQuestion failed: %v", err)
	}

	if err := svc.Publish(context.Background(), created.ID, "teacher-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if repo.quizzes[created.ID].Status != models.QuizPublished {
		t.Errorf("expected published, got %s", repo.quizzes[created.ID].Status)
	}
	if len(publisher.EventsForTopic(events.TopicQuizPublished)) != 1 {
		t.Error("expected a quiz published event")
	}

	t.Run("publish is not repeatable", func(t *testing.T) {
		err := svc.Publish(context.Background(), created.ID, "teacher-1")
		var valErrs ValidationErrors
		if !errors.As(err, &valErrs) {
			t.Errorf("expected ValidationErrors for published->published, got %v", err)
		}
	})

	if err := svc.Close(context.Background(), created.ID, "teacher-1"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if repo.quizzes[created.ID].Status != models.QuizClosed {
		t.Errorf("expected closed, got %s", repo.quizzes[created.ID].Status)
	}

	t.Run("closed quiz can be reopened", func(t *testing.T) {
		if err := svc.Publish(context.Background(), created.ID, "teacher-1"); err != nil {
			t.Errorf("expected closed->published allowed, got %v", err)
		}
	})
}

func TestQuizDelete(t *testing.T) {
	repo, svc, _ := newQuizFixture()

	created, err := svc.Create(context.Background(), &CreateQuizRequest{
		Title:     "Disposable",
		Duration:  10,
		Questions: []CreateQuestionRequest{selectQuestion()},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("draft with attempts kept", func(t *testing.T) {
		now := time.Now()
		repo.addAttempt(&models.QuizAttempt{QuizID: created.ID, StudentID: "student-1", Status: models.AttemptGraded, StartedAt: &now})
		if err := svc.Delete(context.Background(), created.ID, "teacher-1"); !errors.Is(err, ErrQuizHasAttempts) {
			t.Errorf("expected ErrQuizHasAttempts, got %v", err)
		}
		for id := range repo.attempts {
			delete(repo.attempts, id)
		}
	})

	t.Run("published quiz kept", func(t *testing.T) {
		repo.quizzes[created.ID].Status = models.QuizPublished
		err := svc.Delete(context.Background(), created.ID, "teacher-1")
		var valErrs ValidationErrors
		if !errors.As(err, &valErrs) {
			t.Errorf("expected ValidationErrors, got %v", err)
		}
		repo.quizzes[created.ID].Status = models.QuizDraft
	})

	t.Run("clean draft deleted", func(t *testing.T) {
		if err := svc.Delete(context.Background(), created.ID, "teacher-1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, ok := repo.quizzes[created.ID]; ok {
			t.Error("expected quiz removed")
		}
	})
}

func TestQuizQuestionManagement(t *testing.T) {
	repo, svc, _ := newQuizFixture()

	created, err := svc.Create(context.Background(), &CreateQuizRequest{
		Title:     "Editable",
		Duration:  10,
		Questions: []CreateQuestionRequest{selectQuestion()},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	questions, err := svc.GetQuestions(context.Background(), created.ID, "teacher-1")
	if err != nil {
		t.Fatalf("GetQuestions failed: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	first := questions[0]

	t.Run("appended question lands at the next position", func(t *testing.T) {
		added, err := svc.AddQuestion(context.Background(), created.ID, &CreateQuestionRequest{
			Kind:   models.Essay,
			Text:   "Explain osmosis.",
			Points: 3,
		}, "teacher-1")
		if err != nil {
			t.Fatalf("AddQuestion failed: %v", err)
		}
		if added.Position != first.Position+1 {
			t.Errorf("expected position %d, got %d", first.Position+1, added.Position)
		}
	})

	t.Run("update question text and points", func(t *testing.T) {
		text := "Which organelle produces ATP?"
		points := 5
		updated, err := svc.UpdateQuestion(context.Background(), created.ID, first.ID, &UpdateQuestionRequest{
			Text:   &text,
			Points: &points,
		}, "teacher-1")
		if err != nil {
			t.Fatalf("UpdateQuestion failed: %v", err)
		}
		if updated.Text != text || updated.Points != points {
			t.Errorf("update not applied: %+v", updated)
		}
	})

	t.Run("question of another quiz not reachable", func(t *testing.T) {
		other, err := svc.Create(context.Background(), &CreateQuizRequest{
			Title:     "Other",
			Duration:  10,
			Questions: []CreateQuestionRequest{selectQuestion()},
		}, "teacher-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := svc.RemoveQuestion(context.Background(), other.ID, first.ID, "teacher-1"); !errors.Is(err, ErrQuestionNotFound) {
			t.Errorf("expected ErrQuestionNotFound, got %v", err)
		}
	})

	t.Run("remove question", func(t *testing.T) {
		if err := svc.RemoveQuestion(context.Background(), created.ID, first.ID, "teacher-1"); err != nil {
			t.Fatalf("RemoveQuestion failed: %v", err)
		}
		if _, ok := repo.questions[first.ID]; ok {
			t.Error("expected question removed")
		}
	})

	t.Run("student cannot manage questions", func(t *testing.T) {
		q := selectQuestion()
		_, err := svc.AddQuestion(context.Background(), created.ID, &q, "student-1")
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("expected PermissionError, got %v", err)
		}
	})
}

func TestQuizGetByClass(t *testing.T) {
	repo, svc, _ := newQuizFixture()

	classID := uint(5)
	repo.addQuiz(&models.Quiz{ID: 30, ClassID: &classID, Title: "Draft quiz", Status: models.QuizDraft, Duration: 10, CreatedBy: "teacher-1"})
	repo.addQuiz(&models.Quiz{ID: 31, ClassID: &classID, Title: "Live quiz", Status: models.QuizPublished, Duration: 10, CreatedBy: "teacher-1"})

	t.Run("owner sees every status", func(t *testing.T) {
		resp, err := svc.GetByClass(context.Background(), classID, repositories.QuizFilters{}, "teacher-1")
		if err != nil {
			t.Fatalf("GetByClass failed: %v", err)
		}
		if len(resp.Quizzes) != 2 {
			t.Errorf("expected 2 quizzes, got %d", len(resp.Quizzes))
		}
	})

	t.Run("enrolled student sees published only", func(t *testing.T) {
		resp, err := svc.GetByClass(context.Background(), classID, repositories.QuizFilters{}, "student-1")
		if err != nil {
			t.Fatalf("GetByClass failed: %v", err)
		}
		if len(resp.Quizzes) != 1 {
			t.Fatalf("expected 1 quiz, got %d", len(resp.Quizzes))
		}
		if resp.Quizzes[0].ID != 31 {
			t.Errorf("expected the published quiz, got %d", resp.Quizzes[0].ID)
		}
	})

	t.Run("outsider denied", func(t *testing.T) {
		_, err := svc.GetByClass(context.Background(), classID, repositories.QuizFilters{}, "teacher-2")
		if !errors.Is(err, ErrClassAccessDenied) {
			t.Errorf("expected ErrClassAccessDenied, got %v", err)
		}
	})
}

func TestQuizUpdate_PublishedDurationLocked(t *testing.T) {
	repo, svc, _ := newQuizFixture()

	repo.addQuiz(&models.Quiz{ID: 40, Title: "Live", Status: models.QuizPublished, Duration: 30, CreatedBy: "teacher-1"})

	duration := 60
	_, err := svc.Update(context.Background(), 40, &UpdateQuizRequest{Duration: &duration}, "teacher-1")
	var valErrs ValidationErrors
	if !errors.As(err, &valErrs) {
		t.Fatalf("expected ValidationErrors for duration change on a published quiz, got %v", err)
	}

	title := "Live (renamed)"
	resp, err := svc.Update(context.Background(), 40, &UpdateQuizRequest{Title: &title}, "teacher-1")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if resp.Title != title {
		t.Errorf("expected title updated, got %q", resp.Title)
	}
}

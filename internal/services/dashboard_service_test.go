package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/validator"
)

func newDashboardFixture() (*fakeRepository, DashboardService) {
	repo := newFakeRepository()
	repo.addUser(&models.User{ID: "teacher-1", FullName: "Pat Teacher", Email: "pat@school.test", Role: models.RoleTeacher})
	repo.addUser(&models.User{ID: "teacher-2", FullName: "Lee Teacher", Email: "lee@school.test", Role: models.RoleTeacher})
	repo.addUser(&models.User{ID: "admin-1", FullName: "Alex Admin", Email: "alex@school.test", Role: models.RoleAdmin})
	repo.addUser(&models.User{ID: "student-1", FullName: "Sam Student", Email: "sam@school.test", Role: models.RoleStudent})
	repo.addUser(&models.User{ID: "student-2", FullName: "Kim Student", Email: "kim@school.test", Role: models.RoleStudent})

	repo.classes[5] = &models.Class{ID: 5, Title: "Biology 101", CreatedBy: "teacher-1"}
	repo.addQuiz(&models.Quiz{ID: 10, Title: "Cells", Status: models.QuizPublished, Duration: 30, CreatedBy: "teacher-1"})

	started := time.Now().Add(-time.Hour)
	score60, score90, score40 := 60.0, 90.0, 40.0
	repo.addAttempt(&models.QuizAttempt{QuizID: 10, StudentID: "student-1", AttemptNumber: 1, Status: models.AttemptGraded, StartedAt: &started, Score: &score60})
	repo.addAttempt(&models.QuizAttempt{QuizID: 10, StudentID: "student-1", AttemptNumber: 2, Status: models.AttemptGraded, StartedAt: &started, Score: &score90})
	repo.addAttempt(&models.QuizAttempt{QuizID: 10, StudentID: "student-2", AttemptNumber: 1, Status: models.AttemptGraded, StartedAt: &started, Score: &score40})
	repo.addAttempt(&models.QuizAttempt{QuizID: 10, StudentID: "student-2", AttemptNumber: 2, Status: models.AttemptInProgress, StartedAt: &started})

	svc := NewDashboardService(repo, nil, testLogger(), validator.NewValidator())
	return repo, svc
}

func TestDashboardOverview(t *testing.T) {
	_, svc := newDashboardFixture()

	overview, err := svc.GetOverview(context.Background(), "teacher-1")
	if err != nil {
		t.Fatalf("GetOverview failed: %v", err)
	}

	if overview.TotalQuizzes != 1 {
		t.Errorf("expected 1 quiz, got %d", overview.TotalQuizzes)
	}
	if overview.TotalClasses != 1 {
		t.Errorf("expected 1 class, got %d", overview.TotalClasses)
	}
	if overview.TotalAttempts != 4 {
		t.Errorf("expected 4 attempts, got %d", overview.TotalAttempts)
	}
	if overview.ActiveStudents != 2 {
		t.Errorf("expected 2 active students, got %d", overview.ActiveStudents)
	}
	// (60+90+40)/3
	if overview.AverageScore < 63.3 || overview.AverageScore > 63.4 {
		t.Errorf("expected average score ~63.33, got %f", overview.AverageScore)
	}
	if overview.CompletionRate != 75 {
		t.Errorf("expected completion rate 75, got %f", overview.CompletionRate)
	}

	t.Run("students have no dashboard", func(t *testing.T) {
		_, err := svc.GetOverview(context.Background(), "student-1")
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("expected PermissionError, got %v", err)
		}
	})
}

func TestDashboardQuizResults(t *testing.T) {
	_, svc := newDashboardFixture()

	resp, err := svc.GetQuizResults(context.Background(), 10, "teacher-1")
	if err != nil {
		t.Fatalf("GetQuizResults failed: %v", err)
	}
	if resp.Title != "Cells" {
		t.Errorf("expected quiz title on the response, got %q", resp.Title)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 result rows, got %d", len(resp.Results))
	}

	byStudent := make(map[string]int)
	for i, r := range resp.Results {
		byStudent[r.StudentID] = i
	}
	first := resp.Results[byStudent["student-1"]]
	if first.BestScore == nil || *first.BestScore != 90 {
		t.Errorf("expected best score 90 for student-1, got %v", first.BestScore)
	}
	if first.AttemptCount != 2 {
		t.Errorf("expected 2 counted attempts, got %d", first.AttemptCount)
	}
	if first.FullName != "Sam Student" || first.Email != "sam@school.test" {
		t.Errorf("expected hydrated profile, got %q / %q", first.FullName, first.Email)
	}

	second := resp.Results[byStudent["student-2"]]
	if second.AttemptCount != 1 {
		t.Errorf("expected the running attempt excluded, got %d attempts", second.AttemptCount)
	}

	t.Run("other teacher denied", func(t *testing.T) {
		_, err := svc.GetQuizResults(context.Background(), 10, "teacher-2")
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("expected PermissionError, got %v", err)
		}
	})

	t.Run("admin allowed", func(t *testing.T) {
		if _, err := svc.GetQuizResults(context.Background(), 10, "admin-1"); err != nil {
			t.Errorf("expected admin access, got %v", err)
		}
	})

	t.Run("unknown quiz", func(t *testing.T) {
		_, err := svc.GetQuizResults(context.Background(), 999, "teacher-1")
		if !errors.Is(err, ErrQuizNotFound) {
			t.Errorf("expected ErrQuizNotFound, got %v", err)
		}
	})
}

func TestDashboardActivityTrends(t *testing.T) {
	_, svc := newDashboardFixture()

	if _, err := svc.GetActivityTrends(context.Background(), 7, "teacher-1"); err != nil {
		t.Fatalf("GetActivityTrends failed: %v", err)
	}

	_, err := svc.GetActivityTrends(context.Background(), 7, "student-1")
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Errorf("expected PermissionError, got %v", err)
	}
}

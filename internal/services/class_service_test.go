package services

import (
	"context"
	"errors"
	"testing"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/validator"
)

func newClassFixture() (*fakeRepository, ClassService, *events.MockEventPublisher) {
	repo := newFakeRepository()
	repo.addUser(&models.User{ID: "teacher-1", FullName: "Pat Teacher", Email: "pat@school.test", Role: models.RoleTeacher})
	repo.addUser(&models.User{ID: "teacher-2", FullName: "Lee Teacher", Email: "lee@school.test", Role: models.RoleTeacher})
	repo.addUser(&models.User{ID: "admin-1", FullName: "Alex Admin", Email: "alex@school.test", Role: models.RoleAdmin})
	repo.addUser(&models.User{ID: "student-1", FullName: "Sam Student", Email: "sam@school.test", Role: models.RoleStudent})
	repo.addUser(&models.User{ID: "student-2", FullName: "Kim Student", Email: "kim@school.test", Role: models.RoleStudent})

	publisher := events.NewMockEventPublisher()
	svc := NewClassService(repo, nil, testLogger(), validator.NewValidator(), publisher)
	return repo, svc, publisher
}

func TestClassCreate(t *testing.T) {
	repo, svc, _ := newClassFixture()

	subject := "Biology"
	resp, err := svc.Create(context.Background(), &CreateClassRequest{
		Title:   "Biology 101",
		Subject: &subject,
	}, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if resp.ID == 0 {
		t.Error("expected class ID to be assigned")
	}
	if resp.CreatedBy != "teacher-1" {
		t.Errorf("expected creator teacher-1, got %s", resp.CreatedBy)
	}
	if !resp.CanEdit || !resp.CanDelete {
		t.Error("expected creator to be able to edit and delete")
	}
	if len(repo.classes) != 1 {
		t.Errorf("expected 1 persisted class, got %d", len(repo.classes))
	}

	t.Run("missing title rejected", func(t *testing.T) {
		_, err := svc.Create(context.Background(), &CreateClassRequest{}, "teacher-1")
		var valErrs ValidationErrors
		if !errors.As(err, &valErrs) {
			t.Errorf("expected ValidationErrors, got %v", err)
		}
	})
}

func TestClassUpdateAndDelete_Permissions(t *testing.T) {
	_, svc, _ := newClassFixture()

	created, err := svc.Create(context.Background(), &CreateClassRequest{Title: "Biology 101"}, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	newTitle := "Biology 102"

	t.Run("other teacher cannot update", func(t *testing.T) {
		_, err := svc.Update(context.Background(), created.ID, &UpdateClassRequest{Title: &newTitle}, "teacher-2")
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("expected PermissionError, got %v", err)
		}
	})

	t.Run("admin can update", func(t *testing.T) {
		resp, err := svc.Update(context.Background(), created.ID, &UpdateClassRequest{Title: &newTitle}, "admin-1")
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if resp.Title != newTitle {
			t.Errorf("expected title %q, got %q", newTitle, resp.Title)
		}
	})

	t.Run("owner can delete", func(t *testing.T) {
		if err := svc.Delete(context.Background(), created.ID, "teacher-1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := svc.GetByID(context.Background(), created.ID, "teacher-1"); !errors.Is(err, ErrClassNotFound) {
			t.Errorf("expected ErrClassNotFound after delete, got %v", err)
		}
	})
}

func TestClassEnroll(t *testing.T) {
	repo, svc, publisher := newClassFixture()
	repo.classes[5] = &models.Class{ID: 5, Title: "Biology 101", CreatedBy: "teacher-1"}

	result, err := svc.Enroll(context.Background(), 5, &EnrollRequest{
		StudentIDs: []string{"student-1", "ghost"},
		Emails:     []string{"kim@school.test"},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	if result.Enrolled != 2 {
		t.Errorf("expected 2 enrolled, got %d", result.Enrolled)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 row error, got %d", len(result.Errors))
	}
	if result.Errors[0].Value != "ghost" {
		t.Errorf("expected the unknown ID reported, got %q", result.Errors[0].Value)
	}
	if len(publisher.EventsForTopic(events.TopicStudentEnrolled)) != 2 {
		t.Error("expected 2 student enrolled events")
	}

	t.Run("duplicate enrollment skipped", func(t *testing.T) {
		result, err := svc.Enroll(context.Background(), 5, &EnrollRequest{StudentIDs: []string{"student-1"}}, "teacher-1")
		if err != nil {
			t.Fatalf("Enroll failed: %v", err)
		}
		if result.Enrolled != 0 || result.Skipped != 1 {
			t.Errorf("expected 0 enrolled / 1 skipped, got %d / %d", result.Enrolled, result.Skipped)
		}
	})

	t.Run("empty request rejected", func(t *testing.T) {
		_, err := svc.Enroll(context.Background(), 5, &EnrollRequest{}, "teacher-1")
		var valErrs ValidationErrors
		if !errors.As(err, &valErrs) {
			t.Errorf("expected ValidationErrors, got %v", err)
		}
	})

	t.Run("student cannot enroll others", func(t *testing.T) {
		_, err := svc.Enroll(context.Background(), 5, &EnrollRequest{StudentIDs: []string{"student-2"}}, "student-1")
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("expected PermissionError, got %v", err)
		}
	})
}

func TestClassUnenroll(t *testing.T) {
	repo, svc, _ := newClassFixture()
	repo.classes[5] = &models.Class{ID: 5, Title: "Biology 101", CreatedBy: "teacher-1"}
	repo.enroll(5, "student-1")

	if err := svc.Unenroll(context.Background(), 5, "student-1", "teacher-1"); err != nil {
		t.Fatalf("Unenroll failed: %v", err)
	}
	if _, ok := repo.enrollments[5]["student-1"]; ok {
		t.Error("expected enrollment removed")
	}

	if err := svc.Unenroll(context.Background(), 5, "student-1", "teacher-1"); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("expected ErrNotEnrolled, got %v", err)
	}
}

func TestClassGetRoster(t *testing.T) {
	repo, svc, _ := newClassFixture()
	repo.classes[5] = &models.Class{ID: 5, Title: "Biology 101", CreatedBy: "teacher-1"}
	repo.enroll(5, "student-1")
	repo.enroll(5, "student-2")

	roster, err := svc.GetRoster(context.Background(), 5, "teacher-1")
	if err != nil {
		t.Fatalf("GetRoster failed: %v", err)
	}

	if len(roster) != 2 {
		t.Fatalf("expected 2 roster entries, got %d", len(roster))
	}
	for _, entry := range roster {
		if entry.FullName == "" || entry.Email == "" {
			t.Errorf("expected roster entry hydrated, got %+v", entry)
		}
	}

	t.Run("enrolled student can view", func(t *testing.T) {
		if _, err := svc.GetRoster(context.Background(), 5, "student-1"); err != nil {
			t.Errorf("expected enrolled student to read the roster, got %v", err)
		}
	})

	t.Run("outsider denied", func(t *testing.T) {
		_, err := svc.GetRoster(context.Background(), 5, "teacher-2")
		if !errors.Is(err, ErrClassAccessDenied) {
			t.Errorf("expected ErrClassAccessDenied, got %v", err)
		}
	})
}

func TestClassReadAccess(t *testing.T) {
	repo, svc, _ := newClassFixture()
	repo.classes[5] = &models.Class{ID: 5, Title: "Biology 101", CreatedBy: "teacher-1"}
	repo.enroll(5, "student-1")

	tests := []struct {
		name   string
		userID string
		want   bool
	}{
		{"owner", "teacher-1", true},
		{"admin", "admin-1", true},
		{"enrolled student", "student-1", true},
		{"other student", "student-2", false},
		{"other teacher", "teacher-2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.CanAccess(context.Background(), 5, tt.userID)
			if err != nil {
				t.Fatalf("CanAccess failed: %v", err)
			}
			if ok != tt.want {
				t.Errorf("CanAccess(%s) = %v, want %v", tt.userID, ok, tt.want)
			}
		})
	}
}

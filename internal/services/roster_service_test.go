package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/validator"
)

func newRosterFixture() (*fakeRepository, RosterService) {
	repo := newFakeRepository()
	repo.addUser(&models.User{ID: "teacher-1", FullName: "Pat Teacher", Email: "pat@school.test", Role: models.RoleTeacher})
	repo.addUser(&models.User{ID: "student-1", FullName: "Sam Student", Email: "sam@school.test", Role: models.RoleStudent})
	repo.addUser(&models.User{ID: "student-2", FullName: "Kim Student", Email: "kim@school.test", Role: models.RoleStudent})

	repo.classes[5] = &models.Class{ID: 5, Title: "Biology 101", CreatedBy: "teacher-1"}

	logger := testLogger()
	v := validator.NewValidator()
	publisher := events.NewMockEventPublisher()
	classes := NewClassService(repo, nil, logger, v, publisher)
	dashboard := NewDashboardService(repo, nil, logger, v)
	return repo, NewRosterService(repo, nil, logger, v, classes, dashboard)
}

func TestImportCSV(t *testing.T) {
	repo, svc := newRosterFixture()

	csvFile := strings.Join([]string{
		"Email,Name",
		"sam@school.test,Sam",
		"kim@school.test ,Kim",
		"not-an-email,Oops",
		"ghost@school.test,Ghost",
		"",
	}, "\n")

	result, err := svc.ImportCSV(context.Background(), 5, strings.NewReader(csvFile), "teacher-1")
	if err != nil {
		t.Fatalf("ImportCSV failed: %v", err)
	}

	if result.Enrolled != 2 {
		t.Errorf("expected 2 enrolled, got %d", result.Enrolled)
	}
	// One malformed row plus one unknown email.
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 row errors, got %d: %+v", len(result.Errors), result.Errors)
	}

	for _, studentID := range []string{"student-1", "student-2"} {
		if _, ok := repo.enrollments[5][studentID]; !ok {
			t.Errorf("expected %s enrolled", studentID)
		}
	}

	t.Run("re-import skips existing enrollments", func(t *testing.T) {
		result, err := svc.ImportCSV(context.Background(), 5, strings.NewReader("sam@school.test\n"), "teacher-1")
		if err != nil {
			t.Fatalf("ImportCSV failed: %v", err)
		}
		if result.Enrolled != 0 || result.Skipped != 1 {
			t.Errorf("expected 0 enrolled / 1 skipped, got %d / %d", result.Enrolled, result.Skipped)
		}
	})
}

func TestImportCSV_Permissions(t *testing.T) {
	_, svc := newRosterFixture()

	_, err := svc.ImportCSV(context.Background(), 5, strings.NewReader("sam@school.test\n"), "student-1")
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}

	_, err = svc.ImportCSV(context.Background(), 404, strings.NewReader("sam@school.test\n"), "teacher-1")
	if !errors.Is(err, ErrClassNotFound) {
		t.Errorf("expected ErrClassNotFound, got %v", err)
	}
}

func TestImportCSV_EmptyFile(t *testing.T) {
	_, svc := newRosterFixture()

	_, err := svc.ImportCSV(context.Background(), 5, strings.NewReader(""), "teacher-1")
	var valErrs ValidationErrors
	if !errors.As(err, &valErrs) {
		t.Fatalf("expected ValidationErrors for an empty file, got %v", err)
	}
}

func TestImportXLSX(t *testing.T) {
	repo, svc := newRosterFixture()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "email")
	f.SetCellValue(sheet, "A2", "sam@school.test")
	f.SetCellValue(sheet, "A3", "kim@school.test")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("failed to build workbook: %v", err)
	}
	f.Close()

	result, err := svc.ImportXLSX(context.Background(), 5, bytes.NewReader(buf.Bytes()), "teacher-1")
	if err != nil {
		t.Fatalf("ImportXLSX failed: %v", err)
	}

	if result.Enrolled != 2 {
		t.Errorf("expected 2 enrolled, got %d", result.Enrolled)
	}
	if len(repo.enrollments[5]) != 2 {
		t.Errorf("expected 2 enrollments, got %d", len(repo.enrollments[5]))
	}
}

func TestImportXLSX_NotAWorkbook(t *testing.T) {
	_, svc := newRosterFixture()

	_, err := svc.ImportXLSX(context.Background(), 5, strings.NewReader("plain text"), "teacher-1")
	var valErrs ValidationErrors
	if !errors.As(err, &valErrs) {
		t.Fatalf("expected ValidationErrors for a non-XLSX file, got %v", err)
	}
}

func TestExportRoster(t *testing.T) {
	repo, svc := newRosterFixture()
	repo.enroll(5, "student-1")
	repo.enroll(5, "student-2")

	data, err := svc.ExportRoster(context.Background(), 5, "teacher-1")
	if err != nil {
		t.Fatalf("ExportRoster failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("export is not a readable workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Roster")
	if err != nil {
		t.Fatalf("failed to read Roster sheet: %v", err)
	}
	// Header plus two students.
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Student ID" {
		t.Errorf("unexpected header row: %v", rows[0])
	}

	var emails []string
	for _, row := range rows[1:] {
		if len(row) > 2 {
			emails = append(emails, row[2])
		}
	}
	for _, want := range []string{"sam@school.test", "kim@school.test"} {
		found := false
		for _, got := range emails {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("email %s missing from export", want)
		}
	}
}

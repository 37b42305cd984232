package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

// rosterService handles bulk roster import from uploaded files and XLSX
// exports of rosters and quiz results. Row-level failures (unknown email,
// already enrolled) are collected per row so one bad line never rejects the
// whole upload.
type rosterService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	classes   ClassService
	dashboard DashboardService
}

func NewRosterService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, classes ClassService, dashboard DashboardService) RosterService {
	return &rosterService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		classes:   classes,
		dashboard: dashboard,
	}
}

// maxImportRows caps an upload; anything bigger is almost certainly the
// wrong file.
const maxImportRows = 5000

// ImportCSV enrolls students from a CSV file. The first column holds the
// email address; a header row containing "email" is skipped.
func (s *rosterService) ImportCSV(ctx context.Context, classID uint, r io.Reader, userID string) (*RosterImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate trailing columns
	reader.TrimLeadingSpace = true

	var emails []string
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, NewValidationError("file", fmt.Sprintf("invalid CSV at row %d", row+1), nil)
		}
		row++
		if row > maxImportRows {
			return nil, NewValidationError("file", fmt.Sprintf("file exceeds %d rows", maxImportRows), nil)
		}
		if len(record) == 0 {
			continue
		}
		emails = append(emails, record[0])
	}

	return s.importEmails(ctx, classID, emails, userID, "csv")
}

// ImportXLSX enrolls students from the first sheet of an XLSX workbook. The
// first column holds the email address; a header row is skipped.
func (s *rosterService) ImportXLSX(ctx context.Context, classID uint, r io.Reader, userID string) (*RosterImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, NewValidationError("file", "not a readable XLSX workbook", nil)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewValidationError("file", "workbook has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) > maxImportRows {
		return nil, NewValidationError("file", fmt.Sprintf("file exceeds %d rows", maxImportRows), nil)
	}

	var emails []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		emails = append(emails, row[0])
	}

	return s.importEmails(ctx, classID, emails, userID, "xlsx")
}

// ExportRoster writes the class roster to an XLSX workbook.
func (s *rosterService) ExportRoster(ctx context.Context, classID uint, userID string) ([]byte, error) {
	roster, err := s.classes.GetRoster(ctx, classID, userID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Roster"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := []string{"Student ID", "Full Name", "Email", "Enrolled At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, entry := range roster {
		rowNum := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", rowNum), entry.StudentID)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", rowNum), entry.FullName)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", rowNum), entry.Email)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", rowNum), entry.EnrolledAt.Format("2006-01-02 15:04"))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write roster workbook: %w", err)
	}

	s.logger.Info("roster exported",
		"class_id", classID,
		"students", len(roster),
		"exported_by", userID)

	return buf.Bytes(), nil
}

// ExportQuizResults writes the per-student results of a quiz to an XLSX
// workbook, one row per student with their best score.
func (s *rosterService) ExportQuizResults(ctx context.Context, quizID uint, userID string) ([]byte, error) {
	results, err := s.dashboard.GetQuizResults(ctx, quizID, userID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Results"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := []string{"Student ID", "Full Name", "Email", "Attempts", "Best Score", "Last Submitted", "Pending Manual"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, res := range results.Results {
		rowNum := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", rowNum), res.StudentID)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", rowNum), res.FullName)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", rowNum), res.Email)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", rowNum), res.AttemptCount)
		if res.BestScore != nil {
			f.SetCellValue(sheet, fmt.Sprintf("E%d", rowNum), *res.BestScore)
		}
		if res.LastSubmitted != nil {
			f.SetCellValue(sheet, fmt.Sprintf("F%d", rowNum), res.LastSubmitted.Format("2006-01-02 15:04"))
		}
		if res.PendingManual {
			f.SetCellValue(sheet, fmt.Sprintf("G%d", rowNum), "yes")
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write results workbook: %w", err)
	}

	s.logger.Info("quiz results exported",
		"quiz_id", quizID,
		"students", len(results.Results),
		"exported_by", userID)

	return buf.Bytes(), nil
}

// importEmails funnels the extracted column through the class enrollment
// flow, which validates users, skips duplicates and emits events.
func (s *rosterService) importEmails(ctx context.Context, classID uint, raw []string, userID, format string) (*RosterImportResult, error) {
	if err := s.checkManage(ctx, classID, userID); err != nil {
		return nil, err
	}

	emails := make([]string, 0, len(raw))
	var rowErrors []RosterRowError
	for i, value := range raw {
		email := strings.TrimSpace(value)
		if email == "" {
			continue
		}
		// Skip a header row
		if i == 0 && strings.EqualFold(email, "email") {
			continue
		}
		// Malformed rows become row errors, not request failures.
		if !strings.Contains(email, "@") {
			rowErrors = append(rowErrors, RosterRowError{Row: i + 1, Value: email, Message: "not an email address"})
			continue
		}
		emails = append(emails, email)
	}

	if len(emails) == 0 && len(rowErrors) == 0 {
		return nil, NewValidationError("file", "no email addresses found in the first column", nil)
	}

	result := &RosterImportResult{Errors: rowErrors}
	if len(emails) > 0 {
		enrolled, err := s.classes.Enroll(ctx, classID, &EnrollRequest{Emails: emails}, userID)
		if err != nil {
			return nil, err
		}
		result.Enrolled = enrolled.Enrolled
		result.Skipped = enrolled.Skipped
		result.Errors = append(result.Errors, enrolled.Errors...)
	}

	s.logger.Info("roster imported",
		"class_id", classID,
		"format", format,
		"rows", len(emails),
		"enrolled", result.Enrolled,
		"imported_by", userID)

	return result, nil
}

func (s *rosterService) checkManage(ctx context.Context, classID uint, userID string) error {
	isOwner, err := s.repo.Class().IsOwner(ctx, nil, classID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrClassNotFound
		}
		return fmt.Errorf("failed to check class ownership: %w", err)
	}
	if isOwner {
		return nil
	}

	if isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin); err == nil && isAdmin {
		return nil
	}

	return NewPermissionError(userID, classID, "class", "import_roster", "only the class owner can import its roster")
}

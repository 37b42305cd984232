package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
)

// fakeRepository is an in-memory repositories.Repository for service tests.
// Relations are resolved on read the way the postgres preloads do, so the
// services see fully hydrated models.
type fakeRepository struct {
	classes     map[uint]*models.Class
	enrollments map[uint]map[string]*models.Enrollment
	quizzes     map[uint]*models.Quiz
	questions   map[uint]*models.Question
	attempts    map[uint]*models.QuizAttempt
	answers     map[uint]*models.StudentAnswer
	users       map[string]*models.User

	nextClassID    uint
	nextQuizID     uint
	nextQuestionID uint
	nextAttemptID  uint
	nextAnswerID   uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		classes:     make(map[uint]*models.Class),
		enrollments: make(map[uint]map[string]*models.Enrollment),
		quizzes:     make(map[uint]*models.Quiz),
		questions:   make(map[uint]*models.Question),
		attempts:    make(map[uint]*models.QuizAttempt),
		answers:     make(map[uint]*models.StudentAnswer),
		users:       make(map[string]*models.User),
	}
}

func (f *fakeRepository) addQuiz(quiz *models.Quiz) {
	if quiz.ID > f.nextQuizID {
		f.nextQuizID = quiz.ID
	}
	f.quizzes[quiz.ID] = quiz
	for i := range quiz.Questions {
		q := quiz.Questions[i]
		q.QuizID = quiz.ID
		if q.ID > f.nextQuestionID {
			f.nextQuestionID = q.ID
		}
		f.questions[q.ID] = &q
	}
}

func (f *fakeRepository) addUser(user *models.User) {
	f.users[user.ID] = user
}

func (f *fakeRepository) addAttempt(attempt *models.QuizAttempt) {
	if attempt.ID == 0 {
		f.nextAttemptID++
		attempt.ID = f.nextAttemptID
	} else if attempt.ID > f.nextAttemptID {
		f.nextAttemptID = attempt.ID
	}
	f.attempts[attempt.ID] = attempt
}

func (f *fakeRepository) addAnswer(answer *models.StudentAnswer) {
	if answer.ID == 0 {
		f.nextAnswerID++
		answer.ID = f.nextAnswerID
	} else if answer.ID > f.nextAnswerID {
		f.nextAnswerID = answer.ID
	}
	f.answers[answer.ID] = answer
}

func (f *fakeRepository) enroll(classID uint, studentID string) {
	if f.enrollments[classID] == nil {
		f.enrollments[classID] = make(map[string]*models.Enrollment)
	}
	now := time.Now()
	f.enrollments[classID][studentID] = &models.Enrollment{
		ClassID:    classID,
		StudentID:  studentID,
		EnrolledAt: now,
	}
}

func (f *fakeRepository) answersForAttempt(attemptID uint) []*models.StudentAnswer {
	var out []*models.StudentAnswer
	for _, a := range f.answers {
		if a.AttemptID == attemptID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ===== Repository =====

func (f *fakeRepository) Class() repositories.ClassRepository           { return &fakeClassRepo{f} }
func (f *fakeRepository) Enrollment() repositories.EnrollmentRepository { return &fakeEnrollmentRepo{f} }
func (f *fakeRepository) Quiz() repositories.QuizRepository             { return &fakeQuizRepo{f} }
func (f *fakeRepository) Question() repositories.QuestionRepository     { return &fakeQuestionRepo{f} }
func (f *fakeRepository) Attempt() repositories.AttemptRepository       { return &fakeAttemptRepo{f} }
func (f *fakeRepository) Answer() repositories.AnswerRepository         { return &fakeAnswerRepo{f} }
func (f *fakeRepository) User() repositories.UserRepository             { return &fakeUserRepo{f} }
func (f *fakeRepository) Dashboard() repositories.DashboardRepository   { return &fakeDashboardRepo{f} }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

// ===== Class =====

type fakeClassRepo struct{ f *fakeRepository }

func (r *fakeClassRepo) Create(ctx context.Context, tx *gorm.DB, class *models.Class) error {
	if class.ID == 0 {
		r.f.nextClassID++
		class.ID = r.f.nextClassID
	}
	r.f.classes[class.ID] = class
	return nil
}

func (r *fakeClassRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Class, error) {
	class, ok := r.f.classes[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return class, nil
}

func (r *fakeClassRepo) GetByIDWithRoster(ctx context.Context, tx *gorm.DB, id uint) (*models.Class, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *fakeClassRepo) Update(ctx context.Context, tx *gorm.DB, class *models.Class) error {
	r.f.classes[class.ID] = class
	return nil
}

func (r *fakeClassRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.classes, id)
	return nil
}

func (r *fakeClassRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.ClassFilters) ([]*models.Class, int64, error) {
	var out []*models.Class
	for _, c := range r.f.classes {
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

func (r *fakeClassRepo) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.ClassFilters) ([]*models.Class, int64, error) {
	var out []*models.Class
	for _, c := range r.f.classes {
		if c.CreatedBy == creatorID {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeClassRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.ClassFilters) ([]*models.Class, int64, error) {
	var out []*models.Class
	for classID, students := range r.f.enrollments {
		if _, ok := students[studentID]; ok {
			if c, found := r.f.classes[classID]; found {
				out = append(out, c)
			}
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeClassRepo) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	_, ok := r.f.classes[id]
	return ok, nil
}

func (r *fakeClassRepo) IsOwner(ctx context.Context, tx *gorm.DB, id uint, userID string) (bool, error) {
	class, ok := r.f.classes[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	return class.CreatedBy == userID, nil
}

func (r *fakeClassRepo) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.ClassStats, error) {
	return &repositories.ClassStats{StudentCount: len(r.f.enrollments[id])}, nil
}

// ===== Enrollment =====

type fakeEnrollmentRepo struct{ f *fakeRepository }

func (r *fakeEnrollmentRepo) Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	if r.f.enrollments[enrollment.ClassID] == nil {
		r.f.enrollments[enrollment.ClassID] = make(map[string]*models.Enrollment)
	}
	r.f.enrollments[enrollment.ClassID][enrollment.StudentID] = enrollment
	return nil
}

func (r *fakeEnrollmentRepo) CreateBatch(ctx context.Context, tx *gorm.DB, enrollments []*models.Enrollment) error {
	for _, e := range enrollments {
		if err := r.Create(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeEnrollmentRepo) Delete(ctx context.Context, tx *gorm.DB, classID uint, studentID string) error {
	students := r.f.enrollments[classID]
	if _, ok := students[studentID]; !ok {
		return repositories.ErrNotFound
	}
	delete(students, studentID)
	return nil
}

func (r *fakeEnrollmentRepo) GetByClass(ctx context.Context, tx *gorm.DB, classID uint) ([]*models.Enrollment, error) {
	var out []*models.Enrollment
	for _, e := range r.f.enrollments[classID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (r *fakeEnrollmentRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.Enrollment, error) {
	var out []*models.Enrollment
	for _, students := range r.f.enrollments {
		if e, ok := students[studentID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) IsEnrolled(ctx context.Context, tx *gorm.DB, classID uint, studentID string) (bool, error) {
	_, ok := r.f.enrollments[classID][studentID]
	return ok, nil
}

func (r *fakeEnrollmentRepo) CountByClass(ctx context.Context, tx *gorm.DB, classID uint) (int64, error) {
	return int64(len(r.f.enrollments[classID])), nil
}

// ===== Quiz =====

type fakeQuizRepo struct{ f *fakeRepository }

func (r *fakeQuizRepo) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	if quiz.ID == 0 {
		r.f.nextQuizID++
		quiz.ID = r.f.nextQuizID
	}
	r.f.quizzes[quiz.ID] = quiz
	return nil
}

func (r *fakeQuizRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	quiz, ok := r.f.quizzes[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return quiz, nil
}

func (r *fakeQuizRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *fakeQuizRepo) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	r.f.quizzes[quiz.ID] = quiz
	return nil
}

func (r *fakeQuizRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.quizzes, id)
	return nil
}

func (r *fakeQuizRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	var out []*models.Quiz
	for _, q := range r.f.quizzes {
		out = append(out, q)
	}
	return out, int64(len(out)), nil
}

func (r *fakeQuizRepo) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	var out []*models.Quiz
	for _, q := range r.f.quizzes {
		if q.CreatedBy == creatorID {
			out = append(out, q)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeQuizRepo) GetByClass(ctx context.Context, tx *gorm.DB, classID uint, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	var out []*models.Quiz
	for _, q := range r.f.quizzes {
		if q.ClassID != nil && *q.ClassID == classID {
			if filters.Status != nil && q.Status != *filters.Status {
				continue
			}
			out = append(out, q)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeQuizRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.QuizStatus) error {
	quiz, ok := r.f.quizzes[id]
	if !ok {
		return repositories.ErrNotFound
	}
	quiz.Status = status
	return nil
}

func (r *fakeQuizRepo) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	_, ok := r.f.quizzes[id]
	return ok, nil
}

func (r *fakeQuizRepo) IsOwner(ctx context.Context, tx *gorm.DB, id uint, userID string) (bool, error) {
	quiz, ok := r.f.quizzes[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	return quiz.CreatedBy == userID, nil
}

func (r *fakeQuizRepo) GetTotalPoints(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	quiz, ok := r.f.quizzes[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	total := 0
	for _, q := range quiz.Questions {
		total += q.Points
	}
	return total, nil
}

func (r *fakeQuizRepo) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.QuizStats, error) {
	stats := &repositories.QuizStats{}
	for _, a := range r.f.attempts {
		if a.QuizID == id {
			stats.TotalAttempts++
		}
	}
	return stats, nil
}

// ===== Question =====

type fakeQuestionRepo struct{ f *fakeRepository }

func (r *fakeQuestionRepo) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if question.ID == 0 {
		r.f.nextQuestionID++
		question.ID = r.f.nextQuestionID
	}
	r.f.questions[question.ID] = question
	if quiz, ok := r.f.quizzes[question.QuizID]; ok {
		quiz.Questions = append(quiz.Questions, *question)
	}
	return nil
}

func (r *fakeQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	q, ok := r.f.questions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return q, nil
}

func (r *fakeQuestionRepo) GetByIDWithOptions(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *fakeQuestionRepo) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r.f.questions[question.ID] = question
	return nil
}

func (r *fakeQuestionRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.questions, id)
	return nil
}

func (r *fakeQuestionRepo) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.Question, error) {
	var out []*models.Question
	for _, q := range r.f.questions {
		if q.QuizID == quizID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeQuestionRepo) CountByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int64, error) {
	questions, _ := r.GetByQuiz(ctx, tx, quizID)
	return int64(len(questions)), nil
}

func (r *fakeQuestionRepo) MaxPosition(ctx context.Context, tx *gorm.DB, quizID uint) (int, error) {
	max := 0
	for _, q := range r.f.questions {
		if q.QuizID == quizID && q.Position > max {
			max = q.Position
		}
	}
	return max, nil
}

func (r *fakeQuestionRepo) ReplaceOptions(ctx context.Context, tx *gorm.DB, questionID uint, options []models.AnswerOption) error {
	q, ok := r.f.questions[questionID]
	if !ok {
		return repositories.ErrNotFound
	}
	q.Options = options
	return nil
}

// ===== Attempt =====

type fakeAttemptRepo struct{ f *fakeRepository }

func (r *fakeAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	r.f.addAttempt(attempt)
	return nil
}

func (r *fakeAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	attempt, ok := r.f.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *attempt
	return &copied, nil
}

func (r *fakeAttemptRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	attempt, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if quiz, ok := r.f.quizzes[attempt.QuizID]; ok {
		attempt.Quiz = *quiz
	}
	attempt.Answers = nil
	for _, ans := range r.f.answersForAttempt(id) {
		attempt.Answers = append(attempt.Answers, *ans)
	}
	return attempt, nil
}

func (r *fakeAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	if _, ok := r.f.attempts[attempt.ID]; !ok {
		return repositories.ErrNotFound
	}
	copied := *attempt
	copied.Quiz = models.Quiz{}
	copied.Answers = nil
	r.f.attempts[attempt.ID] = &copied
	return nil
}

func (r *fakeAttemptRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.attempts, id)
	return nil
}

func (r *fakeAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	var out []*models.QuizAttempt
	for _, a := range r.f.attempts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeAttemptRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	var out []*models.QuizAttempt
	for _, a := range r.f.attempts {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeAttemptRepo) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	var out []*models.QuizAttempt
	for _, a := range r.f.attempts {
		if a.QuizID == quizID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeAttemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.QuizAttempt, error) {
	for _, a := range r.f.attempts {
		if a.StudentID == studentID && a.QuizID == quizID && a.Status == models.AttemptInProgress {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeAttemptRepo) GetAttemptCount(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int, error) {
	count := 0
	for _, a := range r.f.attempts {
		if a.StudentID == studentID && a.QuizID == quizID {
			count++
		}
	}
	return count, nil
}

func (r *fakeAttemptRepo) GetQuizAttemptStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.QuizStats, error) {
	return &repositories.QuizStats{}, nil
}

// ===== Answer =====

type fakeAnswerRepo struct{ f *fakeRepository }

func (r *fakeAnswerRepo) Create(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	r.f.addAnswer(answer)
	return nil
}

func (r *fakeAnswerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentAnswer, error) {
	ans, ok := r.f.answers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *ans
	return &copied, nil
}

func (r *fakeAnswerRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentAnswer, error) {
	ans, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if q, ok := r.f.questions[ans.QuestionID]; ok {
		ans.Question = *q
	}
	if a, ok := r.f.attempts[ans.AttemptID]; ok {
		ans.Attempt = *a
	}
	return ans, nil
}

func (r *fakeAnswerRepo) Update(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	if _, ok := r.f.answers[answer.ID]; !ok {
		return repositories.ErrNotFound
	}
	copied := *answer
	copied.Question = models.Question{}
	copied.Attempt = models.QuizAttempt{}
	r.f.answers[answer.ID] = &copied
	return nil
}

func (r *fakeAnswerRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StudentAnswer, error) {
	return r.f.answersForAttempt(attemptID), nil
}

func (r *fakeAnswerRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.StudentAnswer, error) {
	for _, a := range r.f.answers {
		if a.AttemptID == attemptID && a.QuestionID == questionID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeAnswerRepo) DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error {
	for id, a := range r.f.answers {
		if a.AttemptID == attemptID {
			delete(r.f.answers, id)
		}
	}
	return nil
}

func (r *fakeAnswerRepo) CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error {
	for _, a := range answers {
		r.f.addAnswer(a)
	}
	return nil
}

func (r *fakeAnswerRepo) GetPendingManual(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AnswerFilters) ([]*models.StudentAnswer, int64, error) {
	var out []*models.StudentAnswer
	for _, a := range r.f.answers {
		attempt, ok := r.f.attempts[a.AttemptID]
		if !ok || attempt.QuizID != quizID {
			continue
		}
		if !a.IsGraded {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeAnswerRepo) AreAllAnswersGraded(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error) {
	for _, a := range r.f.answers {
		if a.AttemptID == attemptID && !a.IsGraded {
			return false, nil
		}
	}
	return true, nil
}

func (r *fakeAnswerRepo) GetGradingStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.GradingStats, error) {
	return &repositories.GradingStats{}, nil
}

// ===== User =====

type fakeUserRepo struct{ f *fakeRepository }

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := r.f.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if u, ok := r.f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	var out []*models.User
	for _, u := range r.f.users {
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

func (r *fakeUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := r.f.users[id]
	return ok, nil
}

func (r *fakeUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *fakeUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, ok := r.f.users[id]
	if !ok {
		return false, nil
	}
	return user.Role == role, nil
}

// ===== Dashboard =====

type fakeDashboardRepo struct{ f *fakeRepository }

func (r *fakeDashboardRepo) GetTotalQuizzes(ctx context.Context, tx *gorm.DB) (int64, error) {
	return int64(len(r.f.quizzes)), nil
}

func (r *fakeDashboardRepo) GetTotalClasses(ctx context.Context, tx *gorm.DB) (int64, error) {
	return int64(len(r.f.classes)), nil
}

func (r *fakeDashboardRepo) GetTotalAttempts(ctx context.Context, tx *gorm.DB) (int64, error) {
	return int64(len(r.f.attempts)), nil
}

func (r *fakeDashboardRepo) GetActiveStudents(ctx context.Context, tx *gorm.DB, days int) (int64, error) {
	seen := make(map[string]bool)
	for _, a := range r.f.attempts {
		seen[a.StudentID] = true
	}
	return int64(len(seen)), nil
}

func (r *fakeDashboardRepo) GetAverageScore(ctx context.Context, tx *gorm.DB) (float64, error) {
	sum, n := 0.0, 0
	for _, a := range r.f.attempts {
		if a.Score != nil {
			sum += *a.Score
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func (r *fakeDashboardRepo) GetCompletionRate(ctx context.Context, tx *gorm.DB) (float64, error) {
	total, done := 0, 0
	for _, a := range r.f.attempts {
		total++
		if a.Status != models.AttemptInProgress {
			done++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(done) / float64(total) * 100, nil
}

func (r *fakeDashboardRepo) GetQuizResults(ctx context.Context, tx *gorm.DB, quizID uint) ([]repositories.StudentResult, error) {
	byStudent := make(map[string]*repositories.StudentResult)
	var order []string
	for _, a := range r.f.attempts {
		if a.QuizID != quizID || a.Status == models.AttemptInProgress {
			continue
		}
		res, ok := byStudent[a.StudentID]
		if !ok {
			res = &repositories.StudentResult{StudentID: a.StudentID}
			byStudent[a.StudentID] = res
			order = append(order, a.StudentID)
		}
		res.AttemptCount++
		if a.Score != nil && (res.BestScore == nil || *a.Score > *res.BestScore) {
			score := *a.Score
			res.BestScore = &score
		}
		if a.PendingManual {
			res.PendingManual = true
		}
	}
	sort.Strings(order)
	out := make([]repositories.StudentResult, 0, len(order))
	for _, id := range order {
		out = append(out, *byStudent[id])
	}
	return out, nil
}

func (r *fakeDashboardRepo) GetPendingGradingCount(ctx context.Context, tx *gorm.DB, creatorID string) (int64, error) {
	var count int64
	for _, a := range r.f.answers {
		if !a.IsGraded {
			count++
		}
	}
	return count, nil
}

func (r *fakeDashboardRepo) GetActivityTrends(ctx context.Context, tx *gorm.DB, days int) ([]repositories.ActivityTrendData, error) {
	return nil, nil
}

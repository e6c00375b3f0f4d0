package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/skillpath/backend/internal/authz"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/notifications"
	"github.com/skillpath/backend/internal/pagination"
	"github.com/skillpath/backend/internal/storage"
	"github.com/skillpath/backend/libs/auth/middleware"
	"github.com/skillpath/backend/libs/retry"
	"go.uber.org/zap/zaptest"
)

// memDB is an in-memory store with the same guarded-update semantics as the MySQL repositories
type memDB struct {
	mu          sync.Mutex
	nextID      int
	users       map[int]*models.User
	courses     map[int]*models.Course
	lessons     map[int]*models.Lesson
	enrollments map[int]*models.Enrollment
	apps        map[int]*models.CreatorApplication

	// updateProgressCalls counts enrollment CAS attempts
	updateProgressCalls int
	// conflictsToInject makes the next UpdateProgress calls fail with a version conflict
	conflictsToInject int
}

func newMemDB() *memDB {
	return &memDB{
		users:       map[int]*models.User{},
		courses:     map[int]*models.Course{},
		lessons:     map[int]*models.Lesson{},
		enrollments: map[int]*models.Enrollment{},
		apps:        map[int]*models.CreatorApplication{},
	}
}

func (db *memDB) id() int {
	db.nextID++
	return db.nextID
}

type memUsers struct{ db *memDB }

func (m memUsers) Create(ctx context.Context, user *models.User) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, u := range m.db.users {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	user.ID = m.db.id()
	cp := *user
	m.db.users[user.ID] = &cp
	return nil
}

func (m memUsers) GetByID(ctx context.Context, id int) (*models.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, u := range m.db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m memUsers) GetRole(ctx context.Context, id int) (models.Role, error) {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

func (m memUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

type memCourses struct{ db *memDB }

func (m memCourses) Create(ctx context.Context, course *models.Course) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	course.ID = m.db.id()
	cp := *course
	cp.Lessons = nil
	m.db.courses[course.ID] = &cp
	return nil
}

func (m memCourses) get(id int) (*models.Course, error) {
	c, ok := m.db.courses[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	cp.LessonCount = 0
	for _, l := range m.db.lessons {
		if l.CourseID == id {
			cp.LessonCount++
		}
	}
	return &cp, nil
}

func (m memCourses) GetByID(ctx context.Context, id int) (*models.Course, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.get(id)
}

func (m memCourses) List(ctx context.Context, statuses []models.CourseStatus, after *pagination.Cursor, limit int) ([]models.Course, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.Course{}
	for id, c := range m.db.courses {
		if !slices.Contains(statuses, c.Status) {
			continue
		}
		if after != nil && (c.CreatedAt.Before(after.CreatedAt) || (c.CreatedAt.Equal(after.CreatedAt) && c.ID <= after.ID)) {
			continue
		}
		cp, _ := m.get(id)
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memCourses) MarkSubmitted(ctx context.Context, id int, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.courses[id]
	if !ok || c.Status != models.CourseStatusDraft || c.SubmittedAt != nil {
		return storage.ErrStateChanged
	}
	c.SubmittedAt = &at
	return nil
}

func (m memCourses) Review(ctx context.Context, id int, to models.CourseStatus, reviewerID int, note *string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.courses[id]
	if !ok || c.Status != models.CourseStatusDraft || c.SubmittedAt == nil {
		return storage.ErrStateChanged
	}
	c.Status = to
	c.ReviewedAt = &at
	c.ReviewedBy = &reviewerID
	c.ReviewNote = note
	return nil
}

func (m memCourses) CreateRevision(ctx context.Context, course *models.Course, lessons []models.Lesson) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	course.ID = m.db.id()
	cp := *course
	m.db.courses[course.ID] = &cp
	for _, l := range lessons {
		l.ID = m.db.id()
		l.CourseID = course.ID
		lc := l
		m.db.lessons[l.ID] = &lc
	}
	return nil
}

type memLessons struct{ db *memDB }

func (m memLessons) Append(ctx context.Context, lesson *models.Lesson) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.courses[lesson.CourseID]
	if !ok {
		return storage.ErrNotFound
	}
	if c.Status != models.CourseStatusDraft {
		return storage.ErrStateChanged
	}
	maxIndex := 0
	for _, l := range m.db.lessons {
		if l.CourseID == lesson.CourseID && l.OrderIndex > maxIndex {
			maxIndex = l.OrderIndex
		}
	}
	if lesson.OrderIndex == 0 {
		lesson.OrderIndex = maxIndex + 1
	}
	if lesson.OrderIndex != maxIndex+1 {
		return fmt.Errorf("%w: expected %d", storage.ErrOutOfOrder, maxIndex+1)
	}
	lesson.ID = m.db.id()
	cp := *lesson
	m.db.lessons[lesson.ID] = &cp
	c.SubmittedAt = nil
	return nil
}

func (m memLessons) GetByID(ctx context.Context, id int) (*models.Lesson, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	l, ok := m.db.lessons[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m memLessons) ListByCourse(ctx context.Context, courseID int) ([]models.Lesson, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.Lesson{}
	for _, l := range m.db.lessons {
		if l.CourseID == courseID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m memLessons) ListIDsByCourses(ctx context.Context, courseIDs []int) (map[int][]int, error) {
	out := map[int][]int{}
	for _, id := range courseIDs {
		lessons, _ := m.ListByCourse(ctx, id)
		for _, l := range lessons {
			out[id] = append(out[id], l.ID)
		}
	}
	return out, nil
}

type memEnrollments struct{ db *memDB }

func cloneEnrollment(e *models.Enrollment) *models.Enrollment {
	cp := *e
	cp.CompletedLessonIDs = slices.Clone(e.CompletedLessonIDs)
	return &cp
}

func (m memEnrollments) Create(ctx context.Context, enrollment *models.Enrollment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, e := range m.db.enrollments {
		if e.LearnerID == enrollment.LearnerID && e.CourseID == enrollment.CourseID {
			return storage.ErrDuplicate
		}
	}
	enrollment.ID = m.db.id()
	m.db.enrollments[enrollment.ID] = cloneEnrollment(enrollment)
	return nil
}

func (m memEnrollments) GetByID(ctx context.Context, id int) (*models.Enrollment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	e, ok := m.db.enrollments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEnrollment(e), nil
}

func (m memEnrollments) GetByLearnerAndCourse(ctx context.Context, learnerID, courseID int) (*models.Enrollment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, e := range m.db.enrollments {
		if e.LearnerID == learnerID && e.CourseID == courseID {
			return cloneEnrollment(e), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m memEnrollments) UpdateProgress(ctx context.Context, enrollment *models.Enrollment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.updateProgressCalls++
	if m.db.conflictsToInject > 0 {
		m.db.conflictsToInject--
		return storage.ErrVersionConflict
	}
	stored, ok := m.db.enrollments[enrollment.ID]
	if !ok || stored.Version != enrollment.Version {
		return storage.ErrVersionConflict
	}
	enrollment.Version++
	m.db.enrollments[enrollment.ID] = cloneEnrollment(enrollment)
	return nil
}

func (m memEnrollments) ListProgressByLearner(ctx context.Context, learnerID int) ([]models.ProgressItem, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	items := []models.ProgressItem{}
	for _, e := range m.db.enrollments {
		if e.LearnerID != learnerID {
			continue
		}
		c := m.db.courses[e.CourseID]
		items = append(items, models.ProgressItem{
			ID:                    e.ID,
			CourseID:              e.CourseID,
			Course:                models.CourseSummary{ID: c.ID, Title: c.Title, Description: c.Description},
			Status:                e.Status,
			CompletedLessonIDs:    slices.Clone(e.CompletedLessonIDs),
			CertificateSerialHash: e.CertificateSerialHash,
			CertificateIssuedAt:   e.CertificateIssuedAt,
			EnrolledAt:            e.EnrolledAt,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

type memApps struct{ db *memDB }

func (m memApps) Submit(ctx context.Context, app *models.CreatorApplication) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[app.UserID]
	if !ok || u.Role != models.RoleLearner ||
		(u.CreatorApplicationStatus != models.CreatorStatusNone && u.CreatorApplicationStatus != models.CreatorStatusRejected) {
		return storage.ErrStateChanged
	}
	u.CreatorApplicationStatus = models.CreatorStatusPending
	app.ID = m.db.id()
	app.Status = models.CreatorStatusPending
	cp := *app
	m.db.apps[app.ID] = &cp
	return nil
}

func (m memApps) Review(ctx context.Context, userID int, decision models.CreatorApplicationStatus, reviewerID int, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[userID]
	if !ok || u.CreatorApplicationStatus != models.CreatorStatusPending {
		return storage.ErrStateChanged
	}
	u.CreatorApplicationStatus = decision
	if decision == models.CreatorStatusApproved {
		u.Role = models.RoleCreator
	}
	for _, a := range m.db.apps {
		if a.UserID == userID && a.Status == models.CreatorStatusPending {
			a.Status = decision
			a.ReviewedAt = &at
			a.ReviewedBy = &reviewerID
		}
	}
	return nil
}

func (m memApps) ListByStatus(ctx context.Context, status models.CreatorApplicationStatus, after *pagination.Cursor, limit int) ([]models.CreatorApplication, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.CreatorApplication{}
	for _, a := range m.db.apps {
		if a.Status != status {
			continue
		}
		if after != nil && (a.SubmittedAt.Before(after.CreatedAt) || (a.SubmittedAt.Equal(after.CreatedAt) && a.ID <= after.ID)) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockNotifier records published notifications
type mockNotifier struct {
	mu           sync.Mutex
	certificates []notifications.CertificateIssuedPayload
	courses      []notifications.CourseReviewedPayload
	creators     []notifications.CreatorReviewedPayload
	err          error
}

func (m *mockNotifier) CertificateIssued(ctx context.Context, p notifications.CertificateIssuedPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certificates = append(m.certificates, p)
	return m.err
}

func (m *mockNotifier) CourseReviewed(ctx context.Context, p notifications.CourseReviewedPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses = append(m.courses, p)
	return m.err
}

func (m *mockNotifier) CreatorReviewed(ctx context.Context, p notifications.CreatorReviewedPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creators = append(m.creators, p)
	return m.err
}

func testPolicy() retry.Policy {
	return retry.Policy{Attempts: 10, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

// testEnv wires all services over one in-memory store
type testEnv struct {
	db          *memDB
	notifier    *mockNotifier
	catalog     *catalogService
	enrollments *enrollmentService
	creators    *creatorService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db := newMemDB()
	gate := authz.NewGate(logger)
	notifier := &mockNotifier{}
	return &testEnv{
		db:          db,
		notifier:    notifier,
		catalog:     NewCatalogService(memCourses{db}, memLessons{db}, gate, notifier, testPolicy(), logger),
		enrollments: NewEnrollmentService(memEnrollments{db}, memCourses{db}, memLessons{db}, gate, notifier, testPolicy(), logger),
		creators:    NewCreatorService(memApps{db}, memUsers{db}, gate, notifier, testPolicy(), logger),
	}
}

// addUser stores a user and returns its identity
func (e *testEnv) addUser(t *testing.T, name string, role models.Role) *middleware.Identity {
	t.Helper()
	u := &models.User{
		Name:                     name,
		Email:                    name + "@example.com",
		Role:                     role,
		CreatorApplicationStatus: models.CreatorStatusNone,
		CreatedAt:                time.Now().UTC(),
	}
	if err := (memUsers{e.db}).Create(context.Background(), u); err != nil {
		t.Fatalf("failed to add user: %v", err)
	}
	return &middleware.Identity{UserID: u.ID, Role: string(role)}
}

// publishCourse creates a course with n lessons and takes it through review
func (e *testEnv) publishCourse(t *testing.T, creator, admin *middleware.Identity, title string, n int) (*models.Course, []models.Lesson) {
	t.Helper()
	ctx := context.Background()
	course, err := e.catalog.CreateCourse(ctx, creator, &models.CreateCourseRequest{Title: title, Description: "about " + title})
	if err != nil {
		t.Fatalf("failed to create course: %v", err)
	}
	lessons := make([]models.Lesson, 0, n)
	for i := 1; i <= n; i++ {
		l, err := e.catalog.AddLesson(ctx, creator, &models.CreateLessonRequest{
			CourseID:   course.ID,
			Title:      fmt.Sprintf("%s lesson %d", title, i),
			ContentURL: fmt.Sprintf("https://videos.example.com/%d/%d", course.ID, i),
		})
		if err != nil {
			t.Fatalf("failed to add lesson: %v", err)
		}
		lessons = append(lessons, *l)
	}
	if _, err := e.catalog.SubmitForReview(ctx, creator, course.ID); err != nil {
		t.Fatalf("failed to submit course: %v", err)
	}
	published, err := e.catalog.ApproveCourse(ctx, admin, course.ID, "")
	if err != nil {
		t.Fatalf("failed to approve course: %v", err)
	}
	return published, lessons
}

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skillpath/backend/internal/authz"
	"github.com/skillpath/backend/internal/idempotency"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/storage"
	"github.com/skillpath/backend/libs/auth/middleware"
	"go.uber.org/zap/zaptest"
)

// actorHeader carries "<userID>:<ROLE>" in tests in place of a bearer token
const actorHeader = "X-Test-Actor"

func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(actorHeader)
		if id, role, ok := strings.Cut(raw, ":"); ok {
			userID, _ := strconv.Atoi(id)
			r = r.WithContext(middleware.WithIdentity(r.Context(), middleware.Identity{UserID: userID, Role: role}))
		}
		next.ServeHTTP(w, r)
	})
}

// ledgerStore is an in-memory idempotency store
type ledgerStore struct {
	mu      sync.Mutex
	records map[string]models.IdempotencyRecord
}

func newLedgerStore() *ledgerStore {
	return &ledgerStore{records: map[string]models.IdempotencyRecord{}}
}

func ledgerKey(actorID int, key string) string { return fmt.Sprintf("%d/%s", actorID, key) }

func (s *ledgerStore) Reserve(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ledgerKey(rec.ActorID, rec.Key)
	if _, ok := s.records[k]; ok {
		return false, nil
	}
	s.records[k] = *rec
	return true, nil
}

func (s *ledgerStore) Get(ctx context.Context, actorID int, key string) (*models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[ledgerKey(actorID, key)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *ledgerStore) Complete(ctx context.Context, rec *models.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ledgerKey(rec.ActorID, rec.Key)
	cur, ok := s.records[k]
	if !ok || cur.Fingerprint != rec.Fingerprint || !cur.Pending() {
		return storage.ErrStateChanged
	}
	s.records[k] = *rec
	return nil
}

func (s *ledgerStore) Release(ctx context.Context, actorID int, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ledgerKey(actorID, key)
	if cur, ok := s.records[k]; ok && cur.Fingerprint == fingerprint && cur.Pending() {
		delete(s.records, k)
	}
	return nil
}

func (s *ledgerStore) Evict(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ledgerKey(rec.ActorID, rec.Key)
	if cur, ok := s.records[k]; ok && cur.Fingerprint == rec.Fingerprint && cur.CreatedAt.Equal(rec.CreatedAt) {
		delete(s.records, k)
		return true, nil
	}
	return false, nil
}

func (s *ledgerStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type testServices struct {
	auth       *mockAuthService
	creator    *mockCreatorService
	catalog    *mockCatalogService
	enrollment *mockEnrollmentService
	ledger     *ledgerStore
}

// newTestRouter mounts every handler under /api the way the API binary does,
// with fakeAuth standing in for token validation
func newTestRouter(t *testing.T) (chi.Router, *testServices) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	svc := &testServices{
		auth:       &mockAuthService{},
		creator:    &mockCreatorService{},
		catalog:    &mockCatalogService{},
		enrollment: &mockEnrollmentService{},
		ledger:     newLedgerStore(),
	}

	ledger := idempotency.NewLedger(svc.ledger, idempotency.Options{
		TTL:            time.Hour,
		PendingTimeout: time.Second,
		PollInterval:   5 * time.Millisecond,
	}, logger)
	guards := NewGuards(authz.NewGate(logger), ledger, logger)

	authHandler := NewAuthHandler(svc.auth, svc.creator, guards, logger)
	courseHandler := NewCourseHandler(svc.catalog, guards, logger)
	enrollmentHandler := NewEnrollmentHandler(svc.enrollment, guards, logger)
	adminHandler := NewAdminHandler(svc.catalog, svc.creator, guards, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		authHandler.RegisterPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(fakeAuth)
			authHandler.RegisterRoutes(r)
			courseHandler.RegisterRoutes(r)
			enrollmentHandler.RegisterRoutes(r)
			adminHandler.RegisterRoutes(r)
		})
	})
	return r, svc
}

type request struct {
	method string
	path   string
	body   string
	actor  string
	key    string
}

func serve(r http.Handler, req request) *httptest.ResponseRecorder {
	httpReq := httptest.NewRequest(req.method, req.path, strings.NewReader(req.body))
	httpReq.Header.Set("Content-Type", "application/json")
	if req.actor != "" {
		httpReq.Header.Set(actorHeader, req.actor)
	}
	if req.key != "" {
		httpReq.Header.Set(idempotency.HeaderKey, req.key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)
	return w
}

const (
	learner = "2:LEARNER"
	creator = "3:CREATOR"
	admin   = "1:ADMIN"
)

// Mock implementations

type mockAuthService struct {
	resp  *models.AuthResponse
	user  *models.User
	err   error
	calls int
}

func (m *mockAuthService) Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error) {
	m.calls++
	return m.resp, m.err
}

func (m *mockAuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	m.calls++
	return m.resp, m.err
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, actor *middleware.Identity) (*models.User, error) {
	m.calls++
	return m.user, m.err
}

type mockCreatorService struct {
	app        *models.CreatorApplication
	user       *models.User
	page       *models.Page[models.CreatorApplication]
	err        error
	calls      int
	lastUserID int
	lastStatus string
	lastLimit  int
	lastOffset string
}

func (m *mockCreatorService) Apply(ctx context.Context, actor *middleware.Identity, req *models.ApplyCreatorRequest) (*models.CreatorApplication, error) {
	m.calls++
	return m.app, m.err
}

func (m *mockCreatorService) ApproveCreator(ctx context.Context, actor *middleware.Identity, userID int) (*models.User, error) {
	m.calls++
	m.lastUserID = userID
	return m.user, m.err
}

func (m *mockCreatorService) RejectCreator(ctx context.Context, actor *middleware.Identity, userID int) (*models.User, error) {
	m.calls++
	m.lastUserID = userID
	return m.user, m.err
}

func (m *mockCreatorService) ListApplications(ctx context.Context, actor *middleware.Identity, status string, limit int, offset string) (*models.Page[models.CreatorApplication], error) {
	m.calls++
	m.lastStatus, m.lastLimit, m.lastOffset = status, limit, offset
	return m.page, m.err
}

type mockCatalogService struct {
	course       *models.Course
	lesson       *models.Lesson
	lessons      []models.Lesson
	page         *models.Page[models.Course]
	err          error
	calls        int
	lastID       int
	lastNote     string
	lastStatuses []string
	lastLimit    int
	lastOffset   string
	lastLesson   *models.CreateLessonRequest
}

func (m *mockCatalogService) CreateCourse(ctx context.Context, actor *middleware.Identity, req *models.CreateCourseRequest) (*models.Course, error) {
	m.calls++
	return m.course, m.err
}

func (m *mockCatalogService) AddLesson(ctx context.Context, actor *middleware.Identity, req *models.CreateLessonRequest) (*models.Lesson, error) {
	m.calls++
	m.lastLesson = req
	return m.lesson, m.err
}

func (m *mockCatalogService) SubmitForReview(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error) {
	m.calls++
	m.lastID = courseID
	return m.course, m.err
}

func (m *mockCatalogService) ReviseCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error) {
	m.calls++
	m.lastID = courseID
	return m.course, m.err
}

func (m *mockCatalogService) ApproveCourse(ctx context.Context, actor *middleware.Identity, courseID int, note string) (*models.Course, error) {
	m.calls++
	m.lastID, m.lastNote = courseID, note
	return m.course, m.err
}

func (m *mockCatalogService) RejectCourse(ctx context.Context, actor *middleware.Identity, courseID int, note string) (*models.Course, error) {
	m.calls++
	m.lastID, m.lastNote = courseID, note
	return m.course, m.err
}

func (m *mockCatalogService) ListCourses(ctx context.Context, actor *middleware.Identity, limit int, offset string) (*models.Page[models.Course], error) {
	m.calls++
	m.lastLimit, m.lastOffset = limit, offset
	return m.page, m.err
}

func (m *mockCatalogService) ListReviewCourses(ctx context.Context, actor *middleware.Identity, statuses []string, limit int, offset string) (*models.Page[models.Course], error) {
	m.calls++
	m.lastStatuses, m.lastLimit, m.lastOffset = statuses, limit, offset
	return m.page, m.err
}

func (m *mockCatalogService) GetCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error) {
	m.calls++
	m.lastID = courseID
	return m.course, m.err
}

func (m *mockCatalogService) ListLessons(ctx context.Context, actor *middleware.Identity, courseID int) ([]models.Lesson, error) {
	m.calls++
	m.lastID = courseID
	return m.lessons, m.err
}

func (m *mockCatalogService) GetLesson(ctx context.Context, actor *middleware.Identity, lessonID int) (*models.Lesson, error) {
	m.calls++
	m.lastID = lessonID
	return m.lesson, m.err
}

type mockEnrollmentService struct {
	mu           sync.Mutex
	enrollResp   *models.EnrollResult
	completeResp *models.CompleteLessonResponse
	enrollment   *models.Enrollment
	progress     []models.ProgressItem
	err          error
	calls        int
	lastActor    *middleware.Identity
	lastID       int
	lastLessonID int
}

func (m *mockEnrollmentService) record(actor *middleware.Identity, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastActor = actor
	m.lastID = id
}

func (m *mockEnrollmentService) Enroll(ctx context.Context, actor *middleware.Identity, courseID int) (*models.EnrollResult, error) {
	m.record(actor, courseID)
	return m.enrollResp, m.err
}

func (m *mockEnrollmentService) CompleteLesson(ctx context.Context, actor *middleware.Identity, enrollmentID, lessonID int) (*models.CompleteLessonResponse, error) {
	m.record(actor, enrollmentID)
	m.lastLessonID = lessonID
	return m.completeResp, m.err
}

func (m *mockEnrollmentService) GetProgress(ctx context.Context, actor *middleware.Identity) ([]models.ProgressItem, error) {
	m.record(actor, 0)
	return m.progress, m.err
}

func (m *mockEnrollmentService) GetEnrollment(ctx context.Context, actor *middleware.Identity, id int) (*models.Enrollment, error) {
	m.record(actor, id)
	return m.enrollment, m.err
}

func (m *mockEnrollmentService) GetEnrollmentForCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Enrollment, error) {
	m.record(actor, courseID)
	return m.enrollment, m.err
}

package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/libs/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentService_IntroToMLWalkthrough(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.addUser(t, "carol", models.RoleCreator)
	admin := env.addUser(t, "ada", models.RoleAdmin)
	learner := env.addUser(t, "lena", models.RoleLearner)

	course, lessons := env.publishCourse(t, creator, admin, "Intro to ML", 3)

	enrolled, err := env.enrollments.Enroll(ctx, learner, course.ID)
	require.NoError(t, err)
	assert.True(t, enrolled.Created)
	enrollmentID := enrolled.Enrollment.ID

	progressOf := func() int {
		items, err := env.enrollments.GetProgress(ctx, learner)
		require.NoError(t, err)
		require.Len(t, items, 1)
		return items[0].Progress
	}
	assert.Equal(t, 0, progressOf())

	res, err := env.enrollments.CompleteLesson(ctx, learner, enrollmentID, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeLessonCompleted, res.Outcome)
	assert.Equal(t, 33, res.Progress)
	assert.Equal(t, 33, progressOf())

	_, err = env.enrollments.CompleteLesson(ctx, learner, enrollmentID, lessons[2].ID)
	require.Error(t, err)
	assert.Equal(t, apperr.LessonLocked, apperr.KindOf(err))
	assert.Equal(t, 33, progressOf())

	res, err = env.enrollments.CompleteLesson(ctx, learner, enrollmentID, lessons[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 67, res.Progress)

	res, err = env.enrollments.CompleteLesson(ctx, learner, enrollmentID, lessons[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCourseCompleted, res.Outcome)
	assert.Equal(t, 100, res.Progress)
	assert.Equal(t, models.EnrollmentStatusCompleted, res.Enrollment.Status)
	require.NotNil(t, res.Enrollment.CertificateSerialHash)
	assert.True(t, strings.HasPrefix(*res.Enrollment.CertificateSerialHash, "CERT-"))
	assert.Len(t, *res.Enrollment.CertificateSerialHash, len("CERT-")+64)
	assert.NotNil(t, res.Enrollment.CertificateIssuedAt)
	assert.Equal(t, 100, progressOf())

	require.Len(t, env.notifier.certificates, 1)
	assert.Equal(t, "Intro to ML", env.notifier.certificates[0].CourseTitle)
	assert.Equal(t, learner.UserID, env.notifier.certificates[0].UserID)
}

func TestEnrollmentService_CompleteLessonOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.addUser(t, "carol", models.RoleCreator)
	admin := env.addUser(t, "ada", models.RoleAdmin)
	learner := env.addUser(t, "lena", models.RoleLearner)
	other := env.addUser(t, "otto", models.RoleLearner)

	course, lessons := env.publishCourse(t, creator, admin, "Go basics", 2)
	_, foreignLessons := env.publishCourse(t, creator, admin, "Rust basics", 1)

	enrolled, err := env.enrollments.Enroll(ctx, learner, course.ID)
	require.NoError(t, err)
	id := enrolled.Enrollment.ID

	t.Run("already done", func(t *testing.T) {
		_, err := env.enrollments.CompleteLesson(ctx, learner, id, lessons[0].ID)
		require.NoError(t, err)

		res, err := env.enrollments.CompleteLesson(ctx, learner, id, lessons[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeAlreadyDone, res.Outcome)
		assert.Equal(t, []int{lessons[0].ID}, res.Enrollment.CompletedLessonIDs)
	})

	t.Run("lesson of another course", func(t *testing.T) {
		_, err := env.enrollments.CompleteLesson(ctx, learner, id, foreignLessons[0].ID)
		require.Error(t, err)
		assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	})

	t.Run("enrollment of another learner", func(t *testing.T) {
		_, err := env.enrollments.CompleteLesson(ctx, other, id, lessons[1].ID)
		require.Error(t, err)
		assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	})

	t.Run("missing enrollment", func(t *testing.T) {
		_, err := env.enrollments.CompleteLesson(ctx, learner, 9999, lessons[1].ID)
		require.Error(t, err)
		assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	})

	t.Run("admin cannot complete lessons", func(t *testing.T) {
		_, err := env.enrollments.CompleteLesson(ctx, admin, id, lessons[1].ID)
		require.Error(t, err)
		assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	})

	t.Run("already completed", func(t *testing.T) {
		res, err := env.enrollments.CompleteLesson(ctx, learner, id, lessons[1].ID)
		require.NoError(t, err)
		require.Equal(t, models.OutcomeCourseCompleted, res.Outcome)
		serial := *res.Enrollment.CertificateSerialHash

		res, err = env.enrollments.CompleteLesson(ctx, learner, id, lessons[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeAlreadyCompleted, res.Outcome)
		assert.Equal(t, serial, *res.Enrollment.CertificateSerialHash)
	})
}

func TestEnrollmentService_Enroll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.addUser(t, "carol", models.RoleCreator)
	admin := env.addUser(t, "ada", models.RoleAdmin)
	learner := env.addUser(t, "lena", models.RoleLearner)

	course, _ := env.publishCourse(t, creator, admin, "Go basics", 1)
	draft, err := env.catalog.CreateCourse(ctx, creator, &models.CreateCourseRequest{Title: "Unreleased"})
	require.NoError(t, err)

	tests := []struct {
		name         string
		actor        string
		courseID     int
		expectedKind apperr.Kind
	}{
		{name: "draft course", actor: "learner", courseID: draft.ID, expectedKind: apperr.CourseNotAvailable},
		{name: "missing course", actor: "learner", courseID: 4242, expectedKind: apperr.NotFound},
		{name: "invalid id", actor: "learner", courseID: 0, expectedKind: apperr.ValidationFailed},
		{name: "admin", actor: "admin", courseID: course.ID, expectedKind: apperr.Forbidden},
		{name: "anonymous", actor: "", courseID: course.ID, expectedKind: apperr.Unauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := learner
			switch tt.actor {
			case "admin":
				actor = admin
			case "":
				actor = nil
			}
			_, err := env.enrollments.Enroll(ctx, actor, tt.courseID)
			require.Error(t, err)
			assert.Equal(t, tt.expectedKind, apperr.KindOf(err))
		})
	}

	t.Run("double enroll returns the same enrollment", func(t *testing.T) {
		first, err := env.enrollments.Enroll(ctx, learner, course.ID)
		require.NoError(t, err)
		second, err := env.enrollments.Enroll(ctx, learner, course.ID)
		require.NoError(t, err)

		assert.True(t, first.Created)
		assert.False(t, second.Created)
		assert.Equal(t, first.Enrollment.ID, second.Enrollment.ID)
		assert.Len(t, env.db.enrollments, 1)
	})

	t.Run("creator keeps access to enrollments", func(t *testing.T) {
		res, err := env.enrollments.Enroll(ctx, creator, course.ID)
		require.NoError(t, err)
		assert.True(t, res.Created)
	})
}

func TestEnrollmentService_ConcurrentEnroll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.addUser(t, "carol", models.RoleCreator)
	admin := env.addUser(t, "ada", models.RoleAdmin)
	learner := env.addUser(t, "lena", models.RoleLearner)
	course, _ := env.publishCourse(t, creator, admin, "Go basics", 1)

	const n = 8
	var wg sync.WaitGroup
	ids := make([]int, n)
	created := make([]bool, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.enrollments.Enroll(ctx, learner, course.ID)
			errs[i] = err
			if err == nil {
				ids[i] = res.Enrollment.ID
				created[i] = res.Created
			}
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)
	assert.Len(t, env.db.enrollments, 1)
}

func TestEnrollmentService_ConcurrentFinalCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.addUser(t, "carol", models.RoleCreator)
	admin := env.addUser(t, "ada", models.RoleAdmin)
	learner := env.addUser(t, "lena", models.RoleLearner)
	course, lessons := env.publishCourse(t, creator, admin, "Go basics", 2)

	enrolled, err := env.enrollments.Enroll(ctx, learner, course.ID)
	require.NoError(t, err)
	id := enrolled.Enrollment.ID
	_, err = env.enrollments.CompleteLesson(ctx, learner, id, lessons[0].ID)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]models.CompletionOutcome, n)
	serials := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.enrollments.CompleteLesson(ctx, learner, id, lessons[1].ID)
			errs[i] = err
			if err == nil {
				outcomes[i] = res.Outcome
				serials[i] = *res.Enrollment.CertificateSerialHash
			}
		}(i)
	}
	wg.Wait()

	issued := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, serials[0], serials[i])
		if outcomes[i] == models.OutcomeCourseCompleted {
			issued++
		} else {
			assert.Contains(t, []models.CompletionOutcome{models.OutcomeAlreadyCompleted, models.OutcomeAlreadyDone}, outcomes[i])
		}
	}
	assert.Equal(t, 1, issued)
	assert.Len(t, env.notifier.certificates, 1)
}

func TestEnrollmentService_VersionConflictRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.addUser(t, "carol", models.RoleCreator)
	admin := env.addUser(t, "ada", models.RoleAdmin)
	learner := env.addUser(t, "lena", models.RoleLearner)
	course, lessons := env.publishCourse(t, creator, admin, "Go basics", 2)

	enrolled, err := env.enrollments.Enroll(ctx, learner, course.ID)
	require.NoError(t, err)

	t.Run("retried until the swap succeeds", func(t *testing.T) {
		env.db.conflictsToInject = 2
		env.db.updateProgressCalls = 0

		res, err := env.enrollments.CompleteLesson(ctx, learner, enrolled.Enrollment.ID, lessons[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeLessonCompleted, res.Outcome)
		assert.Equal(t, 3, env.db.updateProgressCalls)
	})

	t.Run("exhausted retries surface unavailable", func(t *testing.T) {
		env.db.conflictsToInject = 100
		_, err := env.enrollments.CompleteLesson(ctx, learner, enrolled.Enrollment.ID, lessons[1].ID)
		require.Error(t, err)
		assert.Equal(t, apperr.Unavailable, apperr.KindOf(err))

		stored, err := env.enrollments.GetEnrollment(ctx, learner, enrolled.Enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, []int{lessons[0].ID}, stored.CompletedLessonIDs)
		env.db.conflictsToInject = 0
	})
}

func TestEnrollmentService_NotificationFailureKeepsCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.addUser(t, "carol", models.RoleCreator)
	admin := env.addUser(t, "ada", models.RoleAdmin)
	learner := env.addUser(t, "lena", models.RoleLearner)
	course, lessons := env.publishCourse(t, creator, admin, "Go basics", 1)

	env.notifier.err = errors.New("queue down")
	enrolled, err := env.enrollments.Enroll(ctx, learner, course.ID)
	require.NoError(t, err)

	res, err := env.enrollments.CompleteLesson(ctx, learner, enrolled.Enrollment.ID, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, res.Enrollment.Status)
}

func TestEnrollmentService_GetEnrollment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.addUser(t, "carol", models.RoleCreator)
	admin := env.addUser(t, "ada", models.RoleAdmin)
	learner := env.addUser(t, "lena", models.RoleLearner)
	other := env.addUser(t, "otto", models.RoleLearner)
	course, _ := env.publishCourse(t, creator, admin, "Go basics", 1)

	enrolled, err := env.enrollments.Enroll(ctx, learner, course.ID)
	require.NoError(t, err)

	got, err := env.enrollments.GetEnrollment(ctx, learner, enrolled.Enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, course.ID, got.CourseID)

	_, err = env.enrollments.GetEnrollment(ctx, other, enrolled.Enrollment.ID)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	got, err = env.enrollments.GetEnrollmentForCourse(ctx, learner, course.ID)
	require.NoError(t, err)
	assert.Equal(t, enrolled.Enrollment.ID, got.ID)

	_, err = env.enrollments.GetEnrollmentForCourse(ctx, other, course.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestProgress(t *testing.T) {
	tests := []struct {
		done, total, expected int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{1, 8, 13},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, progress(tt.done, tt.total))
	}
}

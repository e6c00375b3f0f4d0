package models

import "time"

// EnrollmentStatus represents the progression state of an enrollment
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// CompletionOutcome describes what a completeLesson call did
type CompletionOutcome string

const (
	OutcomeLessonCompleted  CompletionOutcome = "LESSON_COMPLETED"
	OutcomeCourseCompleted  CompletionOutcome = "COURSE_COMPLETED"
	OutcomeAlreadyDone      CompletionOutcome = "ALREADY_DONE"
	OutcomeAlreadyCompleted CompletionOutcome = "ALREADY_COMPLETED"
)

// Enrollment represents a learner's enrollment in a course
type Enrollment struct {
	ID                    int              `json:"id"`
	LearnerID             int              `json:"learnerId"`
	CourseID              int              `json:"courseId"`
	Status                EnrollmentStatus `json:"status"`
	CompletedLessonIDs    []int            `json:"completedLessonIds"`
	CertificateSerialHash *string          `json:"certificateSerialHash"`
	CertificateIssuedAt   *time.Time       `json:"certificateIssuedAt"`
	EnrolledAt            time.Time        `json:"enrolledAt"`
	Version               int              `json:"-"`
}

// HasCompleted reports whether lessonID is in the completed set
func (e *Enrollment) HasCompleted(lessonID int) bool {
	for _, id := range e.CompletedLessonIDs {
		if id == lessonID {
			return true
		}
	}
	return false
}

// EnrollRequest represents a request to enroll in a course
type EnrollRequest struct {
	CourseID int `json:"courseId" validate:"required,gt=0"`
}

// CompleteLessonRequest represents a request to mark a lesson as completed
type CompleteLessonRequest struct {
	LessonID int `json:"lessonId" validate:"required,gt=0"`
}

// EnrollResult is returned by the enroll service call.
// Only the enrollment is sent to the client; Created selects 201 over 200.
type EnrollResult struct {
	Enrollment *Enrollment
	Created    bool
}

// CompleteLessonResponse is returned by completeLesson
type CompleteLessonResponse struct {
	Enrollment *Enrollment       `json:"enrollment"`
	Outcome    CompletionOutcome `json:"outcome"`
	Progress   int               `json:"progress"`
}

// CourseSummary is the course projection embedded in progress items
type CourseSummary struct {
	ID          int          `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Creator     *UserSummary `json:"creator,omitempty"`
}

// ProgressItem is one enrollment in the caller's progress report
type ProgressItem struct {
	ID                    int              `json:"id"`
	CourseID              int              `json:"courseId"`
	Course                CourseSummary    `json:"course"`
	Status                EnrollmentStatus `json:"status"`
	CompletedLessonIDs    []int            `json:"completedLessonIds"`
	CertificateSerialHash *string          `json:"certificateSerialHash"`
	CertificateIssuedAt   *time.Time       `json:"certificateIssuedAt"`
	EnrolledAt            time.Time        `json:"enrolledAt"`
	TotalLessons          int              `json:"totalLessons"`
	CompletedCount        int              `json:"completedCount"`
	Progress              int              `json:"progress"`
}

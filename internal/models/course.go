package models

import "time"

// CourseStatus represents the publication state of a course
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "DRAFT"
	CourseStatusPublished CourseStatus = "PUBLISHED"
	CourseStatusRejected  CourseStatus = "REJECTED"
)

// ParseCourseStatus validates a raw status value
func ParseCourseStatus(raw string) (CourseStatus, bool) {
	switch s := CourseStatus(raw); s {
	case CourseStatusDraft, CourseStatusPublished, CourseStatusRejected:
		return s, true
	}
	return "", false
}

// Course represents a course in the catalog
type Course struct {
	ID          int          `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	CreatorID   int          `json:"creatorId"`
	Creator     *UserSummary `json:"creator,omitempty"`
	Status      CourseStatus `json:"status"`
	SubmittedAt *time.Time   `json:"submittedAt"`
	ReviewedAt  *time.Time   `json:"reviewedAt"`
	ReviewedBy  *int         `json:"reviewedBy"`
	ReviewNote  *string      `json:"reviewNote"`
	RevisionOf  *int         `json:"revisionOf"`
	CreatedAt   time.Time    `json:"createdAt"`
	LessonCount int          `json:"lessonCount"`
	Lessons     []Lesson     `json:"lessons,omitempty"`
}

// CreateCourseRequest represents a request to create a course
type CreateCourseRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

// CourseReviewRequest carries the optional reviewer note of an approve or reject action
type CourseReviewRequest struct {
	Note string `json:"note,omitempty" validate:"max=1000"`
}

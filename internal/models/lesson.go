package models

import "time"

// Lesson represents a lesson of a course
type Lesson struct {
	ID         int       `json:"id"`
	CourseID   int       `json:"courseId"`
	Title      string    `json:"title"`
	OrderIndex int       `json:"orderIndex"`
	ContentURL string    `json:"contentUrl"`
	Transcript *string   `json:"transcript"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateLessonRequest represents a request to append a lesson to a draft course.
// OrderIndex defaults to the next index when omitted.
type CreateLessonRequest struct {
	CourseID   int     `json:"courseId" validate:"required,gt=0"`
	Title      string  `json:"title" validate:"required,min=1,max=200"`
	ContentURL string  `json:"contentUrl" validate:"required,url,max=2048"`
	Transcript *string `json:"transcript,omitempty" validate:"omitempty,max=100000"`
	OrderIndex *int    `json:"orderIndex,omitempty" validate:"omitempty,gt=0"`
}

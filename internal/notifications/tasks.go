// Package notifications defines the asynq tasks published after committed state transitions
package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// QueueName is the asynq queue notification tasks are enqueued to
const QueueName = "notifications"

// Task types
const (
	TypeCertificateIssued = "certificate:issued"
	TypeCourseReviewed    = "course:reviewed"
	TypeCreatorReviewed   = "creator:reviewed"
)

// CertificateIssuedPayload is published when an enrollment reaches COMPLETED
type CertificateIssuedPayload struct {
	UserID       int       `json:"userId"`
	EnrollmentID int       `json:"enrollmentId"`
	CourseID     int       `json:"courseId"`
	CourseTitle  string    `json:"courseTitle"`
	SerialHash   string    `json:"serialHash"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// CourseReviewedPayload is published when an admin approves or rejects a course
type CourseReviewedPayload struct {
	CourseID    int     `json:"courseId"`
	CreatorID   int     `json:"creatorId"`
	CourseTitle string  `json:"courseTitle"`
	Status      string  `json:"status"`
	Note        *string `json:"note,omitempty"`
}

// CreatorReviewedPayload is published when an admin decides a creator application
type CreatorReviewedPayload struct {
	UserID int    `json:"userId"`
	Status string `json:"status"`
}

func newTask(typeName string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typeName, err)
	}
	return asynq.NewTask(typeName, data, asynq.Queue(QueueName), asynq.MaxRetry(5)), nil
}

// NewCertificateIssuedTask builds a certificate:issued task
func NewCertificateIssuedTask(p CertificateIssuedPayload) (*asynq.Task, error) {
	return newTask(TypeCertificateIssued, p)
}

// NewCourseReviewedTask builds a course:reviewed task
func NewCourseReviewedTask(p CourseReviewedPayload) (*asynq.Task, error) {
	return newTask(TypeCourseReviewed, p)
}

// NewCreatorReviewedTask builds a creator:reviewed task
func NewCreatorReviewedTask(p CreatorReviewedPayload) (*asynq.Task, error) {
	return newTask(TypeCreatorReviewed, p)
}

package services

import (
	"context"

	"github.com/skillpath/backend/internal/notifications"
)

// Notifier publishes notifications after committed state transitions.
// Publishing failures are logged by the caller and never undo the transition.
type Notifier interface {
	// Method CertificateIssued announces a completed course.
	//
	// "payload" parameter carries the enrollment and certificate serial.
	//
	// If the task cannot be enqueued, the error will be returned.
	CertificateIssued(ctx context.Context, payload notifications.CertificateIssuedPayload) error
	// Method CourseReviewed announces an approve or reject decision on a course.
	//
	// "payload" parameter carries the course and its new status.
	//
	// If the task cannot be enqueued, the error will be returned.
	CourseReviewed(ctx context.Context, payload notifications.CourseReviewedPayload) error
	// Method CreatorReviewed announces a decision on a creator application.
	//
	// "payload" parameter carries the applicant and the decision.
	//
	// If the task cannot be enqueued, the error will be returned.
	CreatorReviewed(ctx context.Context, payload notifications.CreatorReviewedPayload) error
}

package notifications

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the subset of *asynq.Client the publisher uses
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher enqueues notification tasks on the notifications queue
type Publisher struct {
	client Enqueuer
	logger *zap.Logger
}

// NewPublisher creates a new asynq backed publisher
func NewPublisher(client Enqueuer, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// CertificateIssued enqueues a certificate:issued task
func (p *Publisher) CertificateIssued(ctx context.Context, payload CertificateIssuedPayload) error {
	task, err := NewCertificateIssuedTask(payload)
	if err != nil {
		return err
	}
	return p.enqueue(ctx, task)
}

// CourseReviewed enqueues a course:reviewed task
func (p *Publisher) CourseReviewed(ctx context.Context, payload CourseReviewedPayload) error {
	task, err := NewCourseReviewedTask(payload)
	if err != nil {
		return err
	}
	return p.enqueue(ctx, task)
}

// CreatorReviewed enqueues a creator:reviewed task
func (p *Publisher) CreatorReviewed(ctx context.Context, payload CreatorReviewedPayload) error {
	task, err := NewCreatorReviewedTask(payload)
	if err != nil {
		return err
	}
	return p.enqueue(ctx, task)
}

func (p *Publisher) enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", task.Type(), err)
	}
	p.logger.Debug("notification enqueued",
		zap.String("type", task.Type()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// Noop drops every notification. It is used when notifications are disabled.
type Noop struct{}

func (Noop) CertificateIssued(context.Context, CertificateIssuedPayload) error { return nil }
func (Noop) CourseReviewed(context.Context, CourseReviewedPayload) error       { return nil }
func (Noop) CreatorReviewed(context.Context, CreatorReviewedPayload) error     { return nil }

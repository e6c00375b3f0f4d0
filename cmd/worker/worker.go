package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/notifications"
	"github.com/skillpath/backend/internal/storage"
	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

// UserRepository defines the interface for loading notification recipients
type UserRepository interface {
	// GetByID retrieves a user by its ID
	//
	// "id" parameter is used to retrieve a user by its ID.
	//
	// If the user does not exist, storage.ErrNotFound will be returned together with "nil" value.
	GetByID(ctx context.Context, id int) (*models.User, error)
}

// Sender delivers a single email
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// smtpSender sends email using gopkg.in/mail.v2
type smtpSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPSender creates a sender for the given SMTP server
func NewSMTPSender(host string, port int, username, password, from string) *smtpSender {
	return &smtpSender{host: host, port: port, username: username, password: password, from: from}
}

func (s *smtpSender) Send(ctx context.Context, to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := mail.NewDialer(s.host, s.port, s.username, s.password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Worker turns notification tasks into emails
type Worker struct {
	logger   *zap.Logger
	userRepo UserRepository
	sender   Sender
}

// NewWorker creates a new worker instance
func NewWorker(logger *zap.Logger, userRepo UserRepository, sender Sender) *Worker {
	return &Worker{
		logger:   logger,
		userRepo: userRepo,
		sender:   sender,
	}
}

// Register binds the task handlers to mux
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(notifications.TypeCertificateIssued, w.HandleCertificateIssued)
	mux.HandleFunc(notifications.TypeCourseReviewed, w.HandleCourseReviewed)
	mux.HandleFunc(notifications.TypeCreatorReviewed, w.HandleCreatorReviewed)
}

// HandleCertificateIssued emails the learner their certificate serial
func (w *Worker) HandleCertificateIssued(ctx context.Context, t *asynq.Task) error {
	var p notifications.CertificateIssuedPayload
	if err := decode(t, &p); err != nil {
		return err
	}

	subject := fmt.Sprintf("Your certificate for %s", p.CourseTitle)
	body := fmt.Sprintf(
		"<p>Congratulations, you completed <b>%s</b>.</p><p>Certificate serial: <code>%s</code><br>Issued at: %s</p>",
		html.EscapeString(p.CourseTitle),
		html.EscapeString(p.SerialHash),
		p.IssuedAt.UTC().Format("2006-01-02 15:04 MST"),
	)
	return w.notify(ctx, t.Type(), p.UserID, subject, body)
}

// HandleCourseReviewed emails the creator the review decision
func (w *Worker) HandleCourseReviewed(ctx context.Context, t *asynq.Task) error {
	var p notifications.CourseReviewedPayload
	if err := decode(t, &p); err != nil {
		return err
	}

	verdict := "approved and published"
	if p.Status == string(models.CourseStatusRejected) {
		verdict = "rejected"
	}
	subject := fmt.Sprintf("Your course %s was %s", p.CourseTitle, verdict)

	var sb strings.Builder
	fmt.Fprintf(&sb, "<p>Your course <b>%s</b> was %s.</p>", html.EscapeString(p.CourseTitle), verdict)
	if p.Note != nil && *p.Note != "" {
		fmt.Fprintf(&sb, "<p>Reviewer note: %s</p>", html.EscapeString(*p.Note))
	}
	if p.Status == string(models.CourseStatusRejected) {
		sb.WriteString("<p>You can start a revision from the rejected course.</p>")
	}
	return w.notify(ctx, t.Type(), p.CreatorID, subject, sb.String())
}

// HandleCreatorReviewed emails the applicant the decision on their creator application
func (w *Worker) HandleCreatorReviewed(ctx context.Context, t *asynq.Task) error {
	var p notifications.CreatorReviewedPayload
	if err := decode(t, &p); err != nil {
		return err
	}

	subject := "Your creator application was rejected"
	body := "<p>Your creator application was rejected. You can apply again at any time.</p>"
	if p.Status == string(models.CreatorStatusApproved) {
		subject = "Your creator application was approved"
		body = "<p>Your creator application was approved. You can now create courses.</p>"
	}
	return w.notify(ctx, t.Type(), p.UserID, subject, body)
}

func (w *Worker) notify(ctx context.Context, taskType string, userID int, subject, body string) error {
	user, err := w.userRepo.GetByID(ctx, userID)
	if err != nil {
		// Recipient was deleted after the task was queued
		if errors.Is(err, storage.ErrNotFound) {
			w.logger.Warn("notification recipient not found", zap.String("type", taskType), zap.Int("user_id", userID))
			return nil
		}
		return fmt.Errorf("failed to load recipient: %w", err)
	}

	if err := w.sender.Send(ctx, user.Email, subject, body); err != nil {
		w.logger.Error("failed to send notification",
			zap.String("type", taskType),
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return err
	}

	w.logger.Info("notification sent", zap.String("type", taskType), zap.Int("user_id", userID))
	return nil
}

// decode unmarshals a task payload. Malformed payloads are never retried.
func decode(t *asynq.Task, dst any) error {
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return fmt.Errorf("invalid %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

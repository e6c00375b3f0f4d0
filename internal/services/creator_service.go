package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/skillpath/backend/internal/authz"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/notifications"
	"github.com/skillpath/backend/internal/pagination"
	"github.com/skillpath/backend/internal/storage"
	"github.com/skillpath/backend/libs/apperr"
	"github.com/skillpath/backend/libs/auth/middleware"
	"github.com/skillpath/backend/libs/retry"
	"go.uber.org/zap"
)

// CreatorApplicationRepository is the interface that wraps methods for creator application data access
type CreatorApplicationRepository interface {
	// Method Submit marks the user PENDING and stores the application atomically.
	//
	// "app" parameter is the application to store. Its ID is set on success.
	//
	// If the user is not a LEARNER with status NONE or REJECTED, storage.ErrStateChanged will be returned.
	Submit(ctx context.Context, app *models.CreatorApplication) error
	// Method Review decides the pending application of a user.
	//
	// "userID" parameter is the applicant.
	// "decision" parameter is APPROVED or REJECTED. Approval also promotes the user to CREATOR.
	// "reviewerID" parameter is the admin deciding the application.
	// "at" parameter is the review time.
	//
	// If the user is no longer PENDING, storage.ErrStateChanged will be returned.
	Review(ctx context.Context, userID int, decision models.CreatorApplicationStatus, reviewerID int, at time.Time) error
	// Method ListByStatus retrieves applications in a status ordered by submission time and ID.
	//
	// "status" parameter is used to filter applications.
	// "after" parameter is the keyset cursor of the previous page, nil for the first page.
	// "limit" parameter is the maximum number of rows returned.
	//
	// If some error occurs during data retrieve, the error will be returned together with "nil" value.
	ListByStatus(ctx context.Context, status models.CreatorApplicationStatus, after *pagination.Cursor, limit int) ([]models.CreatorApplication, error)
}

// creatorService implements the creator application workflow
type creatorService struct {
	appRepo  CreatorApplicationRepository
	userRepo UserRepository
	gate     *authz.Gate
	notifier Notifier
	policy   retry.Policy
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewCreatorService creates a new creator service
func NewCreatorService(
	appRepo CreatorApplicationRepository,
	userRepo UserRepository,
	gate *authz.Gate,
	notifier Notifier,
	policy retry.Policy,
	logger *zap.Logger,
) *creatorService {
	return &creatorService{
		appRepo:  appRepo,
		userRepo: userRepo,
		gate:     gate,
		notifier: notifier,
		policy:   policy,
		validate: newValidator(),
		logger:   logger,
		now:      storeNow,
	}
}

// Apply submits a creator application for the calling learner
func (s *creatorService) Apply(ctx context.Context, actor *middleware.Identity, req *models.ApplyCreatorRequest) (*models.CreatorApplication, error) {
	if err := s.gate.Authorize(ctx, actor, []models.Role{models.RoleLearner}, nil); err != nil {
		return nil, err
	}

	trimmed := models.ApplyCreatorRequest{
		Bio:          strings.TrimSpace(req.Bio),
		PortfolioURL: strings.TrimSpace(req.PortfolioURL),
	}
	if err := validateStruct(s.validate, &trimmed); err != nil {
		return nil, err
	}

	user, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (*models.User, error) {
		return s.userRepo.GetByID(ctx, actor.UserID)
	})
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	if user.CreatorApplicationStatus != models.CreatorStatusNone && user.CreatorApplicationStatus != models.CreatorStatusRejected {
		return nil, apperr.New(apperr.StateConflict, "an application is already %s", strings.ToLower(string(user.CreatorApplicationStatus)))
	}

	app := &models.CreatorApplication{
		UserID:       actor.UserID,
		Bio:          trimmed.Bio,
		PortfolioURL: trimmed.PortfolioURL,
		Status:       models.CreatorStatusPending,
		SubmittedAt:  s.now(),
	}
	if err := s.appRepo.Submit(ctx, app); err != nil {
		if errors.Is(err, storage.ErrStateChanged) || errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Wrap(apperr.StateConflict, err, "an application is already pending")
		}
		return nil, storeError(err, "user not found")
	}

	s.logger.Info("creator application submitted", zap.Int("user_id", actor.UserID), zap.Int("application_id", app.ID))
	return app, nil
}

// ApproveCreator approves a pending application and promotes the applicant to CREATOR
func (s *creatorService) ApproveCreator(ctx context.Context, actor *middleware.Identity, userID int) (*models.User, error) {
	return s.review(ctx, actor, userID, models.CreatorStatusApproved)
}

// RejectCreator rejects a pending application
func (s *creatorService) RejectCreator(ctx context.Context, actor *middleware.Identity, userID int) (*models.User, error) {
	return s.review(ctx, actor, userID, models.CreatorStatusRejected)
}

func (s *creatorService) review(ctx context.Context, actor *middleware.Identity, userID int, decision models.CreatorApplicationStatus) (*models.User, error) {
	if err := s.gate.Authorize(ctx, actor, []models.Role{models.RoleAdmin}, nil); err != nil {
		return nil, err
	}

	user, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (*models.User, error) {
		return s.userRepo.GetByID(ctx, userID)
	})
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	if user.CreatorApplicationStatus != models.CreatorStatusPending {
		return nil, apperr.New(apperr.StateConflict, "user has no pending creator application")
	}

	if err := s.appRepo.Review(ctx, userID, decision, actor.UserID, s.now()); err != nil {
		if errors.Is(err, storage.ErrStateChanged) {
			return nil, apperr.Wrap(apperr.StateConflict, err, "user has no pending creator application")
		}
		return nil, storeError(err, "user not found")
	}

	user.CreatorApplicationStatus = decision
	if decision == models.CreatorStatusApproved {
		user.Role = models.RoleCreator
	}

	s.logger.Info("creator application reviewed",
		zap.Int("user_id", userID),
		zap.String("decision", string(decision)),
		zap.Int("reviewer_id", actor.UserID),
	)
	if err := s.notifier.CreatorReviewed(ctx, notifications.CreatorReviewedPayload{UserID: userID, Status: string(decision)}); err != nil {
		s.logger.Warn("failed to publish creator review", zap.Int("user_id", userID), zap.Error(err))
	}
	return user, nil
}

// ListApplications returns a page of creator applications, PENDING by default
func (s *creatorService) ListApplications(ctx context.Context, actor *middleware.Identity, status string, limit int, offset string) (*models.Page[models.CreatorApplication], error) {
	if err := s.gate.Authorize(ctx, actor, []models.Role{models.RoleAdmin}, nil); err != nil {
		return nil, err
	}

	filter := models.CreatorStatusPending
	if status = strings.ToUpper(strings.TrimSpace(status)); status != "" {
		switch st := models.CreatorApplicationStatus(status); st {
		case models.CreatorStatusPending, models.CreatorStatusApproved, models.CreatorStatusRejected:
			filter = st
		default:
			return nil, apperr.New(apperr.ValidationFailed, "unknown application status %q", status)
		}
	}

	page, err := pagination.Parse(limit, offset)
	if err != nil {
		return nil, err
	}

	apps, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) ([]models.CreatorApplication, error) {
		return s.appRepo.ListByStatus(ctx, filter, page.After, page.Limit+1)
	})
	if err != nil {
		return nil, storeError(err, "application not found")
	}

	items, next := pagination.Next(apps, page.Limit, func(a models.CreatorApplication) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.SubmittedAt, ID: a.ID}
	})
	return &models.Page[models.CreatorApplication]{Items: items, NextOffset: next}, nil
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/storage"
	"github.com/skillpath/backend/libs/apperr"
	"github.com/skillpath/backend/libs/auth/middleware"
	"github.com/skillpath/backend/libs/retry"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository is the interface that wraps methods for User table data access
type UserRepository interface {
	// Method Create inserts a new user into the database.
	//
	// "user" parameter is used to create a new user. Its ID is set on success.
	//
	// If a user with the same email exists, storage.ErrDuplicate will be returned.
	Create(ctx context.Context, user *models.User) error
	// Method GetByID retrieves a user by ID.
	//
	// "id" parameter is used to retrieve a user by ID.
	//
	// If user with such ID does not exist, storage.ErrNotFound will be returned together with "nil" value.
	GetByID(ctx context.Context, id int) (*models.User, error)
	// Method GetByEmail retrieves a user by normalized email.
	//
	// "email" parameter is used to retrieve a user by email.
	//
	// If user with such email does not exist, storage.ErrNotFound will be returned together with "nil" value.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Method GetRole retrieves the current role of a user.
	//
	// "id" parameter is used to retrieve the role of a user by ID.
	//
	// If user with such ID does not exist, storage.ErrNotFound will be returned together with an empty value.
	GetRole(ctx context.Context, id int) (models.Role, error)
	// Method ExistsByEmail checks if a user with such email exists.
	//
	// "email" parameter is used to check if a user with such email exists.
	//
	// If some error occurs during check, the error will be returned together with "false" value.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// TokenIssuer issues access tokens for authenticated users
type TokenIssuer interface {
	// Method GenerateAccessToken issues an access token for a user.
	//
	// "userID" parameter is the only claim carried by the token besides its metadata.
	//
	// If signing fails, the error will be returned together with empty values.
	GenerateAccessToken(userID int) (string, time.Time, error)
}

// authService implements registration, login and identity resolution
type authService struct {
	userRepo UserRepository
	tokens   TokenIssuer
	validate *validator.Validate
	policy   retry.Policy
	logger   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo UserRepository, tokens TokenIssuer, policy retry.Policy, logger *zap.Logger) *authService {
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		validate: newValidator(),
		policy:   policy,
		logger:   logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new LEARNER account and returns an access token for it
func (s *authService) Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	if exists {
		return nil, apperr.New(apperr.StateConflict, "email already exists")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to hash password")
	}

	user := &models.User{
		Name:                     req.Name,
		Email:                    req.Email,
		PasswordHash:             string(passwordHash),
		Role:                     models.RoleLearner,
		CreatorApplicationStatus: models.CreatorStatusNone,
		CreatedAt:                storeNow(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.New(apperr.StateConflict, "email already exists")
		}
		return nil, storeError(err, "user not found")
	}

	s.logger.Info("user registered", zap.Int("user_id", user.ID))
	return s.issue(user)
}

// Login authenticates a user by email and password
func (s *authService) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperr.New(apperr.ValidationFailed, "email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.Unauthenticated, "invalid credentials")
		}
		return nil, storeError(err, "user not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.New(apperr.Unauthenticated, "invalid credentials")
	}

	return s.issue(user)
}

// GetCurrentUser returns the user record of the caller
func (s *authService) GetCurrentUser(ctx context.Context, actor *middleware.Identity) (*models.User, error) {
	if actor == nil || actor.UserID <= 0 {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	user, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (*models.User, error) {
		return s.userRepo.GetByID(ctx, actor.UserID)
	})
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	return user, nil
}

// ResolveRole returns the stored role of a user. It backs the authentication middleware,
// so a role change applies to the next request without reissuing tokens.
func (s *authService) ResolveRole(ctx context.Context, userID int) (string, error) {
	role, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (models.Role, error) {
		return s.userRepo.GetRole(ctx, userID)
	})
	if err != nil {
		return "", storeError(err, "user not found")
	}
	return string(role), nil
}

// EnsureAdmin creates an ADMIN account with the given credentials unless the email is taken
func (s *authService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)
	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return storeError(err, "user not found")
	}
	if exists {
		return nil
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to hash password")
	}

	admin := &models.User{
		Name:                     name,
		Email:                    email,
		PasswordHash:             string(passwordHash),
		Role:                     models.RoleAdmin,
		CreatorApplicationStatus: models.CreatorStatusNone,
		CreatedAt:                storeNow(),
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil
		}
		return storeError(err, "user not found")
	}

	s.logger.Info("admin account created", zap.Int("user_id", admin.ID))
	return nil
}

func (s *authService) issue(user *models.User) (*models.AuthResponse, error) {
	token, expiresAt, err := s.tokens.GenerateAccessToken(user.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to generate token")
	}
	return &models.AuthResponse{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}

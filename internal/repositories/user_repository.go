package repositories

import (
	"context"
	"database/sql"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/storage"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) *userRepository {
	return &userRepository{
		db: db,
	}
}

const userColumns = `id, name, email, password_hash, role, creator_application_status, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CreatorApplicationStatus,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user and sets its ID.
// A taken email is reported as storage.ErrDuplicate.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, role, creator_application_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.CreatorApplicationStatus,
		user.CreatedAt,
	)
	if err != nil {
		return storage.Classify("failed to create user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storage.Classify("failed to get last insert id", err)
	}
	user.ID = int(id)

	return nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storage.Classify("failed to get user by id", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, storage.Classify("failed to get user by email", err)
	}
	return user, nil
}

// GetRole retrieves the current role of a user
func (r *userRepository) GetRole(ctx context.Context, id int) (models.Role, error) {
	query := `SELECT role FROM users WHERE id = ? LIMIT 1`

	var role models.Role
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&role); err != nil {
		return "", storage.Classify("failed to get user role", err)
	}
	return role, nil
}

// ExistsByEmail checks whether an account with the email exists
func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, storage.Classify("failed to check email existence", err)
	}
	return exists, nil
}

package models

import "time"

// Role is the authorization role of a user
type Role string

const (
	RoleLearner Role = "LEARNER"
	RoleCreator Role = "CREATOR"
	RoleAdmin   Role = "ADMIN"
)

// CreatorApplicationStatus mirrors the state of the user's latest creator application
type CreatorApplicationStatus string

const (
	CreatorStatusNone     CreatorApplicationStatus = "NONE"
	CreatorStatusPending  CreatorApplicationStatus = "PENDING"
	CreatorStatusApproved CreatorApplicationStatus = "APPROVED"
	CreatorStatusRejected CreatorApplicationStatus = "REJECTED"
)

// User represents a user in the system
type User struct {
	ID                       int                      `json:"id"`
	Name                     string                   `json:"name"`
	Email                    string                   `json:"email"`
	PasswordHash             string                   `json:"-"` // Never serialize password hash
	Role                     Role                     `json:"role"`
	CreatorApplicationStatus CreatorApplicationStatus `json:"creatorApplicationStatus"`
	CreatedAt                time.Time                `json:"createdAt"`
}

// UserSummary is the public projection of a user embedded in other resources
type UserSummary struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72,password"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        *User     `json:"user"`
}

package models

import "time"

// CreatorApplication represents a learner's request to become a creator
type CreatorApplication struct {
	ID           int                      `json:"id"`
	UserID       int                      `json:"userId"`
	User         *UserSummary             `json:"user,omitempty"`
	Bio          string                   `json:"bio"`
	PortfolioURL string                   `json:"portfolioUrl"`
	Status       CreatorApplicationStatus `json:"status"`
	SubmittedAt  time.Time                `json:"submittedAt"`
	ReviewedAt   *time.Time               `json:"reviewedAt"`
	ReviewedBy   *int                     `json:"reviewedBy"`
}

// ApplyCreatorRequest represents a creator application submission
type ApplyCreatorRequest struct {
	Bio          string `json:"bio" validate:"min=100,max=5000"`
	PortfolioURL string `json:"portfolioUrl" validate:"required,httpurl"`
}

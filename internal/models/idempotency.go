package models

import "time"

// IdempotencyRecord stores the response of a mutating request keyed by (actor, key).
// CompletedAt is nil while the original request is still in flight.
type IdempotencyRecord struct {
	ActorID     int        `json:"actorId"`
	Key         string     `json:"key"`
	Fingerprint string     `json:"fingerprint"`
	StatusCode  int        `json:"statusCode"`
	ContentType string     `json:"contentType"`
	Body        []byte     `json:"body"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

// Pending reports whether the original request has not yet committed a response
func (r *IdempotencyRecord) Pending() bool {
	return r.CompletedAt == nil
}

// Expired reports whether the record is past its expiry at now
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

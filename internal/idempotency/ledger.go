// Package idempotency deduplicates retransmitted mutating requests.
// A request is keyed by (actor, Idempotency-Key); the first one reserves the key,
// executes and commits its response, and later ones replay that response byte for byte.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/storage"
	"github.com/skillpath/backend/libs/apperr"
	"go.uber.org/zap"
)

// Store persists idempotency records with insert-if-absent semantics
type Store interface {
	// Reserve inserts a pending record and reports false if (actor, key) is taken
	Reserve(ctx context.Context, rec *models.IdempotencyRecord) (bool, error)
	// Get returns the record for (actor, key), or nil when there is none
	Get(ctx context.Context, actorID int, key string) (*models.IdempotencyRecord, error)
	// Complete stores the response of a pending record.
	// Returns storage.ErrStateChanged when the reservation no longer exists.
	Complete(ctx context.Context, rec *models.IdempotencyRecord) error
	// Release deletes a pending record so the key can be reused
	Release(ctx context.Context, actorID int, key, fingerprint string) error
	// Evict deletes exactly the given record if it is still stored
	Evict(ctx context.Context, rec *models.IdempotencyRecord) (bool, error)
}

// Outcome is the result of beginning a keyed request
type Outcome int

const (
	// Fresh means the caller holds the reservation and must execute, then Commit or Release
	Fresh Outcome = iota
	// Replay means a committed response exists and must be returned as is
	Replay
)

func (o Outcome) String() string {
	if o == Replay {
		return "replay"
	}
	return "fresh"
}

// Decision is returned by Begin
type Decision struct {
	Outcome Outcome
	Record  *models.IdempotencyRecord
}

// Options configures a Ledger
type Options struct {
	TTL            time.Duration
	PendingTimeout time.Duration
	PollInterval   time.Duration
}

// DefaultOptions keeps records for 24h and treats reservations older than 30s as abandoned
func DefaultOptions() Options {
	return Options{TTL: 24 * time.Hour, PendingTimeout: 30 * time.Second, PollInterval: 50 * time.Millisecond}
}

// Ledger maps (actor, key) to the response of the first request that used it
type Ledger struct {
	store  Store
	opts   Options
	now    func() time.Time
	logger *zap.Logger
}

// NewLedger creates a ledger over store. Zero option values take the defaults.
func NewLedger(store Store, opts Options, logger *zap.Logger) *Ledger {
	def := DefaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.PendingTimeout <= 0 {
		opts.PendingTimeout = def.PendingTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	return &Ledger{store: store, opts: opts, now: time.Now, logger: logger}
}

// ExecutionTimeout bounds the run time of a Fresh request. It is half the pending timeout, so a
// reservation whose owner is still executing is never treated as abandoned by a duplicate.
func (l *Ledger) ExecutionTimeout() time.Duration {
	return l.opts.PendingTimeout / 2
}

// Fingerprint identifies the request a key was first used with
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin reserves (actor, key) or finds its prior response.
// A reservation held by an in-flight request with the same fingerprint is waited on until it is
// committed or released, bounded by ctx. A record with another fingerprint yields
// IdempotencyKeyConflict. Expired records and abandoned reservations are evicted on access.
func (l *Ledger) Begin(ctx context.Context, actorID int, key, fingerprint string) (Decision, error) {
	for {
		now := l.now()
		rec := &models.IdempotencyRecord{
			ActorID:     actorID,
			Key:         key,
			Fingerprint: fingerprint,
			CreatedAt:   now,
			ExpiresAt:   now.Add(l.opts.TTL),
		}

		reserved, err := l.store.Reserve(ctx, rec)
		if err != nil {
			return Decision{}, unavailable(err, "failed to reserve idempotency key")
		}
		if reserved {
			return Decision{Outcome: Fresh, Record: rec}, nil
		}

		existing, err := l.store.Get(ctx, actorID, key)
		if err != nil {
			return Decision{}, unavailable(err, "failed to read idempotency record")
		}
		if existing == nil {
			// released or evicted between the two calls
			continue
		}

		if existing.Expired(now) || (existing.Pending() && !existing.CreatedAt.After(now.Add(-l.opts.PendingTimeout))) {
			if _, err := l.store.Evict(ctx, existing); err != nil {
				return Decision{}, unavailable(err, "failed to evict idempotency record")
			}
			l.logger.Info("idempotency record evicted",
				zap.Int("actor_id", actorID),
				zap.String("key", key),
				zap.Bool("pending", existing.Pending()),
			)
			continue
		}

		if existing.Fingerprint != fingerprint {
			l.logger.Warn("idempotency key reused with a different request",
				zap.Int("actor_id", actorID),
				zap.String("key", key),
			)
			return Decision{}, apperr.New(apperr.IdempotencyKeyConflict, "idempotency key was already used for a different request")
		}

		if !existing.Pending() {
			l.logger.Info("idempotent replay",
				zap.Int("actor_id", actorID),
				zap.String("key", key),
				zap.Int("status", existing.StatusCode),
			)
			return Decision{Outcome: Replay, Record: existing}, nil
		}

		if err := l.wait(ctx); err != nil {
			return Decision{}, apperr.Wrap(apperr.Unavailable, err, "a request with this idempotency key is still in progress")
		}
	}
}

func (l *Ledger) wait(ctx context.Context) error {
	t := time.NewTimer(l.opts.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Commit stores the response of a Fresh reservation.
// It runs detached from ctx cancellation so a disconnecting client cannot lose a committed response.
func (l *Ledger) Commit(ctx context.Context, rec *models.IdempotencyRecord, status int, contentType string, body []byte) error {
	ctx = context.WithoutCancel(ctx)

	now := l.now()
	done := *rec
	done.StatusCode = status
	done.ContentType = contentType
	done.Body = body
	done.CompletedAt = &now
	done.ExpiresAt = now.Add(l.opts.TTL)

	if err := l.store.Complete(ctx, &done); err != nil {
		if errors.Is(err, storage.ErrStateChanged) {
			l.logger.Warn("idempotency reservation lost before commit",
				zap.Int("actor_id", rec.ActorID),
				zap.String("key", rec.Key),
			)
			return nil
		}
		return err
	}
	return nil
}

// Release gives up a Fresh reservation so that a retry re-executes
func (l *Ledger) Release(ctx context.Context, rec *models.IdempotencyRecord) error {
	ctx = context.WithoutCancel(ctx)
	if err := l.store.Release(ctx, rec.ActorID, rec.Key, rec.Fingerprint); err != nil {
		return err
	}
	l.logger.Info("idempotency reservation released",
		zap.Int("actor_id", rec.ActorID),
		zap.String("key", rec.Key),
	)
	return nil
}

// ShouldCommit reports whether a response status is stored for replay.
// Successes and deterministic client errors are stored; authentication, authorization,
// rate limiting, timeouts and server errors are not, so a retry re-executes.
func ShouldCommit(status int) bool {
	switch {
	case status >= 200 && status < 300:
		return true
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests:
		return false
	case status >= 400 && status < 500:
		return true
	}
	return false
}

func unavailable(err error, message string) error {
	if storage.IsRetryable(err) {
		return apperr.Wrap(apperr.Unavailable, err, "idempotency store unavailable, please retry")
	}
	return apperr.Wrap(apperr.Internal, err, message)
}

package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/storage"
)

// The scripts compare the stored record before writing so a response is never
// committed over a reservation that was evicted and taken by another request.
var (
	completeScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local rec = cjson.decode(cur)
if rec.fingerprint ~= ARGV[1] or rec.completedAt ~= cjson.null then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

	releaseScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local rec = cjson.decode(cur)
if rec.fingerprint == ARGV[1] and rec.completedAt == cjson.null then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

	evictScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local rec = cjson.decode(cur)
if rec.fingerprint == ARGV[1] and rec.createdAt == ARGV[2] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
)

type idempotencyRedisRepository struct {
	client         redis.Cmdable
	pendingTimeout time.Duration
	now            func() time.Time
}

// NewIdempotencyRedisRepository creates a Redis backed idempotency record store.
// Reservations live for pendingTimeout; committed records live until their expiry.
func NewIdempotencyRedisRepository(client redis.Cmdable, pendingTimeout time.Duration) *idempotencyRedisRepository {
	return &idempotencyRedisRepository{
		client:         client,
		pendingTimeout: pendingTimeout,
		now:            time.Now,
	}
}

func idempotencyRedisKey(actorID int, key string) string {
	return fmt.Sprintf("idempotency:%d:%s", actorID, key)
}

// Reserve stores a pending record with SETNX
func (r *idempotencyRedisRepository) Reserve(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ok, err := r.client.SetNX(ctx, idempotencyRedisKey(rec.ActorID, rec.Key), payload, r.pendingTimeout).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w: %w", storage.ErrTransient, err)
	}
	return ok, nil
}

// Get retrieves the record for (actor, key), or nil when there is none
func (r *idempotencyRedisRepository) Get(ctx context.Context, actorID int, key string) (*models.IdempotencyRecord, error) {
	payload, err := r.client.Get(ctx, idempotencyRedisKey(actorID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w: %w", storage.ErrTransient, err)
	}

	var rec models.IdempotencyRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &rec, nil
}

// Complete replaces the pending record with the committed one, kept until its expiry
func (r *idempotencyRedisRepository) Complete(ctx context.Context, rec *models.IdempotencyRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ttl := rec.ExpiresAt.Sub(r.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	n, err := completeScript.Run(ctx, r.client,
		[]string{idempotencyRedisKey(rec.ActorID, rec.Key)},
		rec.Fingerprint, string(payload), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w: %w", storage.ErrTransient, err)
	}
	if n == 0 {
		return storage.ErrStateChanged
	}
	return nil
}

// Release deletes a pending reservation so the key can be reused
func (r *idempotencyRedisRepository) Release(ctx context.Context, actorID int, key, fingerprint string) error {
	err := releaseScript.Run(ctx, r.client, []string{idempotencyRedisKey(actorID, key)}, fingerprint).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release idempotency key: %w: %w", storage.ErrTransient, err)
	}
	return nil
}

// Evict deletes the record previously observed as expired or abandoned.
// Key TTLs normally remove such records first; this covers clock drift between hosts.
func (r *idempotencyRedisRepository) Evict(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	createdAt, err := rec.CreatedAt.MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("failed to encode record time: %w", err)
	}
	// MarshalJSON quotes the value; the decoded Lua string carries no quotes
	createdAt = createdAt[1 : len(createdAt)-1]

	n, err := evictScript.Run(ctx, r.client,
		[]string{idempotencyRedisKey(rec.ActorID, rec.Key)},
		rec.Fingerprint, string(createdAt),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evict idempotency record: %w: %w", storage.ErrTransient, err)
	}
	return n > 0, nil
}

package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/storage"
)

// memoryStore is an in-memory Store with the same insert-if-absent semantics as the real stores
type memoryStore struct {
	mu       sync.Mutex
	records  map[string]models.IdempotencyRecord
	reserves int
	err      error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]models.IdempotencyRecord{}}
}

func memKey(actorID int, key string) string { return fmt.Sprintf("%d/%s", actorID, key) }

func (s *memoryStore) Reserve(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	s.reserves++
	k := memKey(rec.ActorID, rec.Key)
	if _, ok := s.records[k]; ok {
		return false, nil
	}
	s.records[k] = *rec
	return true, nil
}

func (s *memoryStore) Get(ctx context.Context, actorID int, key string) (*models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[memKey(actorID, key)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memoryStore) Complete(ctx context.Context, rec *models.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(rec.ActorID, rec.Key)
	cur, ok := s.records[k]
	if !ok || cur.Fingerprint != rec.Fingerprint || !cur.Pending() {
		return storage.ErrStateChanged
	}
	s.records[k] = *rec
	return nil
}

func (s *memoryStore) Release(ctx context.Context, actorID int, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(actorID, key)
	if cur, ok := s.records[k]; ok && cur.Fingerprint == fingerprint && cur.Pending() {
		delete(s.records, k)
	}
	return nil
}

func (s *memoryStore) Evict(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(rec.ActorID, rec.Key)
	if cur, ok := s.records[k]; ok && cur.Fingerprint == rec.Fingerprint && cur.CreatedAt.Equal(rec.CreatedAt) {
		delete(s.records, k)
		return true, nil
	}
	return false, nil
}

func (s *memoryStore) put(rec models.IdempotencyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[memKey(rec.ActorID, rec.Key)] = rec
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func testOptions() Options {
	return Options{TTL: time.Hour, PendingTimeout: 2 * time.Second, PollInterval: 5 * time.Millisecond}
}

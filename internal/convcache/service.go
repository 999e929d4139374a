package convcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hikarilab/mentorchat/internal/docstore"
)

// Collection is the document store collection holding conversation caches.
const Collection = "conversation-cache"

// expiresField is the queryable expiry field inside cache documents.
const expiresField = "expires_at"

// Key derives the composite document key for an (agent, session) pair.
func Key(agentID, sessionID string) string {
	return agentID + "_" + sessionID
}

// Service provides the conversation cache operations over a document store.
// Appends for the same key are serialized; reads fail closed on expiry.
type Service struct {
	store  docstore.Store
	policy Policy
	logger *slog.Logger
	locks  *keyedLocks
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a cache service with the given policy.
func NewService(store docstore.Store, policy Policy, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		policy: policy,
		logger: logger,
		locks:  newKeyedLocks(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active cache policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// Get retrieves the cache for (agentID, sessionID). Absent, expired, and
// backend-failed reads all surface as a miss (nil cache, nil error): the
// chat turn must never fail because history is unavailable. Expired records
// are deleted asynchronously.
func (s *Service) Get(ctx context.Context, agentID, sessionID string) (*Cache, error) {
	key := Key(agentID, sessionID)
	cache, err := s.load(ctx, key)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			s.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		}
		return nil, nil
	}
	if cache.Expired(s.now()) {
		go s.deleteStale(key, cache.ExpiresAt)
		return nil, nil
	}
	return cache, nil
}

// Append adds a message to the cache, creating it when absent or expired.
// Totals and expiry are refreshed on every call and the size cap enforced.
// Concurrent appends for the same key are serialized.
func (s *Service) Append(ctx context.Context, agentID, sessionID string, msg Message) error {
	key := Key(agentID, sessionID)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	now := s.now()
	cache, err := s.load(ctx, key)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		cache = &Cache{AgentID: agentID, SessionID: sessionID}
	case err != nil:
		return fmt.Errorf("convcache: load %s: %w", key, err)
	case cache.Expired(now):
		// A restarted session overwrites the stale record rather than
		// resurrecting its messages.
		cache = &Cache{AgentID: agentID, SessionID: sessionID}
	}

	cache.Messages = append(cache.Messages, msg)
	cache.Messages = prune(cache.Messages, s.policy.MaxMessages, s.policy.PruneTo)
	cache.TotalTokens = sumTokens(cache.Messages)
	cache.LastUpdated = At(now)
	cache.ExpiresAt = At(now.Add(s.policy.TTL))

	doc, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("convcache: marshal %s: %w", key, err)
	}
	if err := s.store.Put(ctx, Collection, key, doc); err != nil {
		return fmt.Errorf("convcache: store %s: %w", key, err)
	}
	return nil
}

// SweepExpired deletes every cache whose expiry has passed and reports how
// many were removed. The expiry predicate is re-evaluated inside the store's
// delete, so an append racing the sweep keeps its refreshed entry.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := At(s.now()).String()
	n, err := s.store.DeleteMatching(ctx, Collection, expiresField, docstore.OpLess, cutoff)
	if err != nil {
		return 0, fmt.Errorf("convcache: sweep: %w", err)
	}
	return n, nil
}

// load reads and decodes a cache document without expiry handling.
func (s *Service) load(ctx context.Context, key string) (*Cache, error) {
	doc, err := s.store.Get(ctx, Collection, key)
	if err != nil {
		return nil, err
	}
	var cache Cache
	if err := json.Unmarshal(doc, &cache); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return &cache, nil
}

// deleteStale removes an expired record found during a read. Best effort:
// the record would be swept by the janitor anyway. The conditional delete
// re-checks expiry so a concurrent refresh is not lost.
func (s *Service) deleteStale(key string, seenExpiry Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.locks.lock(key)
	defer s.locks.unlock(key)

	cache, err := s.load(ctx, key)
	if err != nil || !cache.Expired(s.now()) {
		return
	}
	if !cache.ExpiresAt.After(seenExpiry.Time) {
		if err := s.store.Delete(ctx, Collection, key); err != nil {
			s.logger.Warn("stale cache delete failed", "key", key, "error", err)
		}
	}
}

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// KeyStatus tracks the lifecycle of one API key in the pool.
type KeyStatus string

const (
	KeyActive        KeyStatus = "active"
	KeyQuotaExceeded KeyStatus = "quota_exceeded"
	KeyError         KeyStatus = "error"
	KeyDisabled      KeyStatus = "disabled"
)

// keyState is the pool's bookkeeping for one API key. Keys are ordered by
// priority; the first available one serves requests.
type keyState struct {
	name      string
	client    Client
	status    KeyStatus
	requests  int64
	daily     int64
	maxDaily  int64
	lastUsed  time.Time
	resetDate string
}

// KeyPool is a Client that rotates across multiple API keys. A key that
// hits its provider quota, or its configured daily ceiling, is benched
// until the next calendar day; the pool then retries the request on the
// next key. Only quota failures rotate; other errors propagate.
type KeyPool struct {
	mu     sync.Mutex
	keys   []*keyState
	logger *slog.Logger
	now    func() time.Time
}

// KeyPoolOption configures a KeyPool.
type KeyPoolOption func(*KeyPool)

// WithKeyPoolClock overrides the time source, for tests.
func WithKeyPoolClock(now func() time.Time) KeyPoolOption {
	return func(p *KeyPool) { p.now = now }
}

// NewKeyPool builds a pool from API keys in priority order. factory turns
// an API key into a Client; maxDaily caps requests per key per day
// (0 means uncapped).
func NewKeyPool(apiKeys []string, maxDaily int, factory func(apiKey string) Client, logger *slog.Logger, opts ...KeyPoolOption) *KeyPool {
	p := &KeyPool{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	today := p.today()
	for i, key := range apiKeys {
		p.keys = append(p.keys, &keyState{
			name:      fmt.Sprintf("key_%d", i+1),
			client:    factory(key),
			status:    KeyActive,
			maxDaily:  int64(maxDaily),
			resetDate: today,
		})
	}
	return p
}

// NewKeyPoolFromClients builds a pool from pre-constructed clients, for tests.
func NewKeyPoolFromClients(clients []Client, maxDaily int, logger *slog.Logger, opts ...KeyPoolOption) *KeyPool {
	p := &KeyPool{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	today := p.today()
	for i, c := range clients {
		p.keys = append(p.keys, &keyState{
			name:      fmt.Sprintf("key_%d", i+1),
			client:    c,
			status:    KeyActive,
			maxDaily:  int64(maxDaily),
			resetDate: today,
		})
	}
	return p
}

// Complete tries keys in priority order until one succeeds or every key is
// benched.
func (p *KeyPool) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	for {
		key := p.nextAvailable()
		if key == nil {
			return "", fmt.Errorf("%w: no API keys available", ErrQuotaExceeded)
		}

		text, err := key.client.Complete(ctx, systemPrompt, userPrompt)
		if err == nil {
			p.recordUse(key)
			return text, nil
		}
		if isQuotaError(err) {
			p.bench(key, KeyQuotaExceeded)
			p.logger.Warn("completion key hit quota, rotating", "key", key.name)
			continue
		}
		return "", err
	}
}

// Stats summarizes pool usage for the service status endpoint.
type PoolStats struct {
	TotalRequests int64
	ActiveKeys    int
	TodayRequests int64
}

// Stats reports current pool usage.
func (p *KeyPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetIfNewDay()

	var s PoolStats
	for _, k := range p.keys {
		s.TotalRequests += k.requests
		s.TodayRequests += k.daily
		if k.status == KeyActive {
			s.ActiveKeys++
		}
	}
	return s
}

// nextAvailable picks the highest-priority usable key, resetting daily
// counters when the calendar day has rolled over.
func (p *KeyPool) nextAvailable() *keyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetIfNewDay()

	for _, k := range p.keys {
		if k.status != KeyActive {
			continue
		}
		if k.maxDaily > 0 && k.daily >= k.maxDaily {
			continue
		}
		return k
	}
	return nil
}

func (p *KeyPool) recordUse(key *keyState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key.requests++
	key.daily++
	key.lastUsed = p.now()
}

func (p *KeyPool) bench(key *keyState, status KeyStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key.status = status
}

// resetIfNewDay clears daily counters and un-benches quota-exceeded keys
// once the date changes. Callers must hold mu.
func (p *KeyPool) resetIfNewDay() {
	today := p.today()
	for _, k := range p.keys {
		if k.resetDate != today {
			k.daily = 0
			k.resetDate = today
			if k.status == KeyQuotaExceeded {
				k.status = KeyActive
			}
		}
	}
}

func (p *KeyPool) today() string {
	return p.now().UTC().Format("2006-01-02")
}

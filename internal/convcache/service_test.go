package convcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hikarilab/mentorchat/internal/docstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable time source for driving TTL expiry.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T) (*Service, *docstore.Memory, *fakeClock) {
	t.Helper()
	store := docstore.NewMemory()
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(store, DefaultPolicy(), testLogger(), WithClock(clock.Now))
	return svc, store, clock
}

func userMsg(clock *fakeClock, text string, imp Importance, tokens int) Message {
	return Message{
		ID:            "user_" + clock.Now().Format("150405.000") + text,
		Text:          text,
		Sender:        SenderUser,
		Timestamp:     At(clock.Now()),
		Importance:    imp,
		TokenEstimate: tokens,
	}
}

func TestGetMissingIsAMiss(t *testing.T) {
	svc, _, _ := newTestService(t)
	cache, err := svc.Get(context.Background(), "tanaka", "sess1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cache != nil {
		t.Errorf("Get on empty store = %+v, want nil", cache)
	}
}

func TestAppendCreatesCache(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	msg := userMsg(clock, "進路について相談したいです", ImportanceHigh, 18)
	if err := svc.Append(ctx, "tanaka", "sess1", msg); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cache, err := svc.Get(ctx, "tanaka", "sess1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cache == nil {
		t.Fatal("Get returned nil after Append")
	}
	if cache.AgentID != "tanaka" || cache.SessionID != "sess1" {
		t.Errorf("cache identity = (%q, %q)", cache.AgentID, cache.SessionID)
	}
	if len(cache.Messages) != 1 || cache.Messages[0].Text != msg.Text {
		t.Errorf("cache messages = %+v", cache.Messages)
	}
	if cache.TotalTokens != 18 {
		t.Errorf("TotalTokens = %d, want 18", cache.TotalTokens)
	}
	wantExpiry := At(clock.Now().Add(30 * time.Minute))
	if !cache.ExpiresAt.Equal(wantExpiry.Time) {
		t.Errorf("ExpiresAt = %v, want %v", cache.ExpiresAt, wantExpiry)
	}
}

func TestAppendKeepsTokenTotalConsistent(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	want := 0
	for i := 0; i < 10; i++ {
		tokens := 5 + i
		want += tokens
		msg := userMsg(clock, "メッセージ", ImportanceMedium, tokens)
		clock.Advance(time.Second)
		if err := svc.Append(ctx, "tanaka", "sess1", msg); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	cache, _ := svc.Get(ctx, "tanaka", "sess1")
	if cache == nil {
		t.Fatal("Get returned nil")
	}
	sum := 0
	for _, m := range cache.Messages {
		sum += m.TokenEstimate
	}
	if cache.TotalTokens != sum || cache.TotalTokens != want {
		t.Errorf("TotalTokens = %d, sum = %d, want %d", cache.TotalTokens, sum, want)
	}
}

func TestAppendEnforcesSizeCap(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	// Fill to the cap of 25: the first message low importance, the rest
	// medium. The 26th append triggers a prune down to 20.
	for i := 0; i < 26; i++ {
		imp := ImportanceMedium
		if i == 0 {
			imp = ImportanceLow
		}
		msg := userMsg(clock, "m", imp, 2)
		clock.Advance(time.Second)
		if err := svc.Append(ctx, "tanaka", "sess1", msg); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		cache, _ := svc.Get(ctx, "tanaka", "sess1")
		if len(cache.Messages) > 25 {
			t.Fatalf("cache grew past cap: %d messages after append %d", len(cache.Messages), i)
		}
	}

	cache, _ := svc.Get(ctx, "tanaka", "sess1")
	if len(cache.Messages) != 20 {
		t.Fatalf("after overflow append got %d messages, want 20", len(cache.Messages))
	}
	for _, m := range cache.Messages {
		if m.Importance == ImportanceLow {
			t.Errorf("low-importance message survived pruning: %q", m.ID)
		}
	}
	if cache.TotalTokens != 20*2 {
		t.Errorf("TotalTokens = %d, want %d", cache.TotalTokens, 20*2)
	}
}

func TestGetFailsClosedOnExpiry(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	msg := userMsg(clock, "hello", ImportanceMedium, 8)
	if err := svc.Append(ctx, "tanaka", "sess1", msg); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// One second past the TTL: the entry is gone from the reader's view.
	clock.Advance(30*time.Minute + time.Second)
	cache, err := svc.Get(ctx, "tanaka", "sess1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cache != nil {
		t.Errorf("expired cache still served: %+v", cache)
	}
}

func TestGetServesAtExactExpiry(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	if err := svc.Append(ctx, "tanaka", "sess1", userMsg(clock, "hello", ImportanceMedium, 8)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Expiry is strict: exactly at the deadline the entry is still valid.
	clock.Advance(30 * time.Minute)
	cache, err := svc.Get(ctx, "tanaka", "sess1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cache == nil {
		t.Error("cache expired exactly at its deadline")
	}
}

func TestAppendRefreshesExpiry(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	if err := svc.Append(ctx, "tanaka", "sess1", userMsg(clock, "one", ImportanceMedium, 5)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	clock.Advance(20 * time.Minute)
	if err := svc.Append(ctx, "tanaka", "sess1", userMsg(clock, "two", ImportanceMedium, 5)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// 25 minutes after the second append: past the original expiry but
	// inside the refreshed one.
	clock.Advance(25 * time.Minute)
	cache, _ := svc.Get(ctx, "tanaka", "sess1")
	if cache == nil {
		t.Fatal("refreshed cache expired early")
	}
	if len(cache.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(cache.Messages))
	}
}

func TestAppendAfterExpiryStartsFresh(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	if err := svc.Append(ctx, "tanaka", "sess1", userMsg(clock, "old", ImportanceHigh, 5)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	clock.Advance(31 * time.Minute)
	if err := svc.Append(ctx, "tanaka", "sess1", userMsg(clock, "new", ImportanceMedium, 5)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cache, _ := svc.Get(ctx, "tanaka", "sess1")
	if cache == nil {
		t.Fatal("Get returned nil")
	}
	if len(cache.Messages) != 1 || cache.Messages[0].Text != "new" {
		t.Errorf("stale messages resurrected: %+v", cache.Messages)
	}
}

// failingStore simulates a backend outage.
type failingStore struct{}

func (failingStore) Get(context.Context, string, string) ([]byte, error) {
	return nil, docstore.ErrUnavailable
}
func (failingStore) Put(context.Context, string, string, []byte) error {
	return docstore.ErrUnavailable
}
func (failingStore) Query(context.Context, string, string, docstore.Op, string) ([]docstore.Entry, error) {
	return nil, docstore.ErrUnavailable
}
func (failingStore) Delete(context.Context, string, string) error {
	return docstore.ErrUnavailable
}
func (failingStore) DeleteMatching(context.Context, string, string, docstore.Op, string) (int64, error) {
	return 0, docstore.ErrUnavailable
}
func (failingStore) Watch(context.Context, string, func(docstore.Event)) (func(), error) {
	return nil, docstore.ErrUnavailable
}

func TestGetFailsClosedOnBackendError(t *testing.T) {
	svc := NewService(failingStore{}, DefaultPolicy(), testLogger())
	cache, err := svc.Get(context.Background(), "tanaka", "sess1")
	if err != nil {
		t.Fatalf("Get should swallow backend errors, got %v", err)
	}
	if cache != nil {
		t.Errorf("cache = %+v, want nil", cache)
	}
}

func TestAppendSurfacesBackendError(t *testing.T) {
	svc := NewService(failingStore{}, DefaultPolicy(), testLogger())
	err := svc.Append(context.Background(), "tanaka", "sess1", Message{ID: "user_1", Text: "x"})
	if !errors.Is(err, docstore.ErrUnavailable) {
		t.Errorf("Append error = %v, want ErrUnavailable", err)
	}
}

func TestSweepExpiredDeletesOnlyStaleCaches(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	if err := svc.Append(ctx, "tanaka", "old", userMsg(clock, "a", ImportanceMedium, 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	clock.Advance(25 * time.Minute)
	if err := svc.Append(ctx, "tanaka", "fresh", userMsg(clock, "b", ImportanceMedium, 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Ten more minutes: "old" is 35 minutes idle, "fresh" only ten.
	clock.Advance(10 * time.Minute)
	deleted, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d caches, want 1", deleted)
	}
	if _, err := store.Get(ctx, Collection, Key("tanaka", "old")); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("stale cache still stored: %v", err)
	}
	if cache, _ := svc.Get(ctx, "tanaka", "fresh"); cache == nil {
		t.Error("fresh cache swept")
	}
}

func TestConcurrentAppendsStayConsistent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := NewMessage(SenderUser, "並行メッセージ", ImportanceMedium, 10)
			if err := svc.Append(ctx, "tanaka", "sess1", msg); err != nil {
				t.Errorf("Append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	cache, _ := svc.Get(ctx, "tanaka", "sess1")
	if cache == nil {
		t.Fatal("Get returned nil")
	}
	// Serialized appends: every append lands, the cap bounds the count, and
	// the token total matches the surviving messages exactly.
	if len(cache.Messages) > 25 {
		t.Errorf("cache holds %d messages, cap is 25", len(cache.Messages))
	}
	if got, want := cache.TotalTokens, len(cache.Messages)*10; got != want {
		t.Errorf("TotalTokens = %d, want %d", got, want)
	}
	seen := make(map[string]bool)
	for _, m := range cache.Messages {
		if seen[m.ID] {
			t.Errorf("duplicate message %q", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestKeyIsolation(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	if err := svc.Append(ctx, "tanaka", "sess1", userMsg(clock, "a", ImportanceMedium, 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := svc.Append(ctx, "sato", "sess1", userMsg(clock, "b", ImportanceMedium, 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	a, _ := svc.Get(ctx, "tanaka", "sess1")
	b, _ := svc.Get(ctx, "sato", "sess1")
	if a == nil || b == nil {
		t.Fatal("expected both caches present")
	}
	if len(a.Messages) != 1 || len(b.Messages) != 1 {
		t.Errorf("caches bled into each other: %d / %d messages", len(a.Messages), len(b.Messages))
	}
	if a.Messages[0].Text == b.Messages[0].Text {
		t.Error("caches share messages")
	}
}

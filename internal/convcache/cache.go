// Package convcache implements the bounded conversation-context cache that
// feeds recent history into completion prompts. Entries are keyed by
// (agent, session), capped by message count, ranked by importance, and
// expire after an idle TTL.
package convcache

import (
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Sender identifies who authored a cached message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Importance is the coarse priority used to decide which messages survive
// pruning.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// rank orders importance for pruning; higher survives longer.
func (i Importance) rank() int {
	switch i {
	case ImportanceHigh:
		return 3
	case ImportanceMedium:
		return 2
	default:
		return 1
	}
}

// timeLayout is a fixed-width UTC instant. Fixed width keeps lexicographic
// and chronological order aligned, which the document store's string
// comparisons depend on.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Time is an ISO-8601 UTC instant with millisecond precision.
type Time struct {
	time.Time
}

// Now returns the current instant truncated to the stored precision.
func Now() Time {
	return At(time.Now())
}

// At converts a time.Time to the stored precision.
func At(t time.Time) Time {
	return Time{t.UTC().Truncate(time.Millisecond)}
}

// MarshalJSON renders the fixed-width UTC layout.
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(timeLayout) + `"`), nil
}

// UnmarshalJSON parses the fixed-width UTC layout, falling back to RFC 3339
// for documents written by earlier clients.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.Parse(timeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
	}
	*t = At(parsed)
	return nil
}

// String renders the stored wire form.
func (t Time) String() string {
	return t.UTC().Format(timeLayout)
}

// Message is a single cached conversation message.
type Message struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	Sender        Sender     `json:"sender"`
	Timestamp     Time       `json:"timestamp"`
	Importance    Importance `json:"importance"`
	TokenEstimate int        `json:"token_estimate"`
}

// Cache is the bounded recent-history record for one (agent, session) pair.
type Cache struct {
	AgentID     string    `json:"agent_id"`
	SessionID   string    `json:"session_id"`
	Messages    []Message `json:"messages"`
	TotalTokens int       `json:"total_tokens"`
	LastUpdated Time      `json:"last_updated"`
	ExpiresAt   Time      `json:"expires_at"`
}

// Expired reports whether the cache has passed its expiry at the given instant.
func (c *Cache) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt.Time)
}

// Policy carries the tuned cache constants. The defaults reproduce observed
// product behavior; treat them as configuration, not invariants.
type Policy struct {
	TTL           time.Duration `yaml:"ttl"`
	MaxMessages   int           `yaml:"max_messages"`
	PruneTo       int           `yaml:"prune_to"`
	TokenRatio    float64       `yaml:"token_ratio"`
	HistoryWindow int           `yaml:"history_window"`
}

// DefaultPolicy returns the product-tuned defaults.
func DefaultPolicy() Policy {
	return Policy{
		TTL:           30 * time.Minute,
		MaxMessages:   25,
		PruneTo:       20,
		TokenRatio:    1.5,
		HistoryWindow: 10,
	}
}

// TokenEstimate approximates the token cost of text as
// ceil(rune count * ratio). A heuristic stand-in for a real tokenizer.
func (p Policy) TokenEstimate(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) * p.TokenRatio))
}

// NewMessage builds a cached message with a fresh ID and timestamp. The ID
// prefix distinguishes user and agent messages at a glance.
func NewMessage(sender Sender, text string, importance Importance, tokens int) Message {
	prefix := "user_"
	if sender == SenderAgent {
		prefix = "agent_"
	}
	return Message{
		ID:            prefix + ulid.Make().String(),
		Text:          text,
		Sender:        sender,
		Timestamp:     Now(),
		Importance:    importance,
		TokenEstimate: tokens,
	}
}

// sumTokens recomputes the token total from scratch.
func sumTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += m.TokenEstimate
	}
	return total
}

// prune enforces the size cap: when the message count exceeds max, messages
// are ranked by importance then recency and only the top keep entries
// survive. Returns the (possibly reordered) slice.
func prune(messages []Message, max, keep int) []Message {
	if len(messages) <= max {
		return messages
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Importance != messages[j].Importance {
			return messages[i].Importance.rank() > messages[j].Importance.rank()
		}
		return messages[i].Timestamp.After(messages[j].Timestamp.Time)
	})
	return messages[:keep]
}

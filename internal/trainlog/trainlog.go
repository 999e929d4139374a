// Package trainlog records completed exchanges per agent for later reply
// tuning, and computes the aggregate statistics the admin tools read. Only
// the most recent conversations are retained per agent.
package trainlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"

	"github.com/hikarilab/mentorchat/internal/convcache"
	"github.com/hikarilab/mentorchat/internal/docstore"
)

// Collection is the document store collection holding training records.
const Collection = "agent-training-data"

// maxConversations caps the retained history per agent.
const maxConversations = 1000

// qualityTrendWindow bounds the trend series returned by Analytics.
const qualityTrendWindow = 100

// Conversation is one recorded exchange with a quality rating.
type Conversation struct {
	ID          string         `json:"id"`
	Context     string         `json:"context"`
	UserMessage string         `json:"user_message"`
	Reply       string         `json:"reply"`
	Quality     int            `json:"quality"` // 1-10
	ReplyLength int            `json:"reply_length"`
	Topic       string         `json:"topic"`
	Timestamp   convcache.Time `json:"timestamp"`
}

// Record is the per-agent training document.
type Record struct {
	AgentID        string         `json:"agent_id"`
	Conversations  []Conversation `json:"conversations"`
	LastUpdate     convcache.Time `json:"last_update"`
	Total          int            `json:"total"`
	AverageQuality float64        `json:"average_quality"`
}

// Pattern aggregates reply behavior for one length bucket.
type Pattern struct {
	Pattern        string   `json:"pattern"`
	Frequency      int      `json:"frequency"`
	SuccessRate    float64  `json:"success_rate"`
	AvgReplyLength float64  `json:"avg_reply_length"`
	Contexts       []string `json:"contexts"`
}

// Analytics summarizes an agent's recorded exchanges.
type Analytics struct {
	TotalConversations int       `json:"total_conversations"`
	AverageReplyLength float64   `json:"average_reply_length"`
	AverageQuality     float64   `json:"average_quality"`
	TopTopics          []string  `json:"top_topics"`
	QualityTrend       []int     `json:"quality_trend"`
	Patterns           []Pattern `json:"patterns"`
}

// Service stores and aggregates training records.
type Service struct {
	store docstore.Store
}

// NewService creates a training log over a document store.
func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

// NewConversation builds a conversation entry with a fresh ID and timestamp.
func NewConversation(contextText, userMessage, reply string, quality int, topic string) Conversation {
	return Conversation{
		ID:          "conv_" + ulid.Make().String(),
		Context:     contextText,
		UserMessage: userMessage,
		Reply:       reply,
		Quality:     quality,
		ReplyLength: len([]rune(reply)),
		Topic:       topic,
		Timestamp:   convcache.Now(),
	}
}

// Add appends a conversation to the agent's record, creating the record on
// first use and trimming to the newest entries when over the cap.
func (s *Service) Add(ctx context.Context, agentID string, conv Conversation) error {
	rec, err := s.Get(ctx, agentID)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		rec = &Record{AgentID: agentID}
	}

	rec.Conversations = append(rec.Conversations, conv)
	if len(rec.Conversations) > maxConversations {
		sort.SliceStable(rec.Conversations, func(i, j int) bool {
			return rec.Conversations[i].Timestamp.After(rec.Conversations[j].Timestamp.Time)
		})
		rec.Conversations = rec.Conversations[:maxConversations]
	}

	rec.Total = len(rec.Conversations)
	rec.LastUpdate = convcache.Now()
	total := 0
	for _, c := range rec.Conversations {
		total += c.Quality
	}
	rec.AverageQuality = float64(total) / float64(len(rec.Conversations))

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("trainlog: marshal %s: %w", agentID, err)
	}
	if err := s.store.Put(ctx, Collection, agentID, doc); err != nil {
		return fmt.Errorf("trainlog: store %s: %w", agentID, err)
	}
	return nil
}

// Get retrieves the agent's training record.
func (s *Service) Get(ctx context.Context, agentID string) (*Record, error) {
	doc, err := s.store.Get(ctx, Collection, agentID)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("trainlog: decode %s: %w", agentID, err)
	}
	return &rec, nil
}

// Analytics computes aggregate statistics for an agent.
func (s *Service) Analytics(ctx context.Context, agentID string) (*Analytics, error) {
	rec, err := s.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	convs := rec.Conversations
	if len(convs) == 0 {
		return &Analytics{}, nil
	}

	var lengthSum, qualitySum int
	for _, c := range convs {
		lengthSum += c.ReplyLength
		qualitySum += c.Quality
	}

	return &Analytics{
		TotalConversations: len(convs),
		AverageReplyLength: float64(lengthSum) / float64(len(convs)),
		AverageQuality:     float64(qualitySum) / float64(len(convs)),
		TopTopics:          topTopics(convs, 10),
		QualityTrend:       qualityTrend(convs),
		Patterns:           replyPatterns(convs),
	}, nil
}

// topTopics returns the most frequent topics, most common first.
func topTopics(convs []Conversation, limit int) []string {
	counts := make(map[string]int)
	for _, c := range convs {
		counts[c.Topic]++
	}
	topics := make([]string, 0, len(counts))
	for t := range counts {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return topics[i] < topics[j]
	})
	if len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}

// qualityTrend returns the quality series of the most recent conversations
// in chronological order.
func qualityTrend(convs []Conversation) []int {
	sorted := make([]Conversation, len(convs))
	copy(sorted, convs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp.Time)
	})
	if len(sorted) > qualityTrendWindow {
		sorted = sorted[len(sorted)-qualityTrendWindow:]
	}
	trend := make([]int, len(sorted))
	for i, c := range sorted {
		trend[i] = c.Quality
	}
	return trend
}

// replyPatterns buckets conversations by reply length and aggregates
// quality per bucket.
func replyPatterns(convs []Conversation) []Pattern {
	type acc struct {
		frequency int
		quality   int
		length    int
		contexts  map[string]struct{}
	}
	buckets := make(map[string]*acc)
	bucketOf := func(length int) string {
		switch {
		case length < 100:
			return "short"
		case length < 300:
			return "medium"
		default:
			return "long"
		}
	}

	for _, c := range convs {
		name := bucketOf(c.ReplyLength)
		b, ok := buckets[name]
		if !ok {
			b = &acc{contexts: make(map[string]struct{})}
			buckets[name] = b
		}
		b.frequency++
		b.quality += c.Quality
		b.length += c.ReplyLength
		b.contexts[c.Topic] = struct{}{}
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	patterns := make([]Pattern, 0, len(names))
	for _, name := range names {
		b := buckets[name]
		contexts := make([]string, 0, len(b.contexts))
		for c := range b.contexts {
			contexts = append(contexts, c)
		}
		sort.Strings(contexts)
		patterns = append(patterns, Pattern{
			Pattern:        name,
			Frequency:      b.frequency,
			SuccessRate:    float64(b.quality) / float64(b.frequency),
			AvgReplyLength: float64(b.length) / float64(b.frequency),
			Contexts:       contexts,
		})
	}
	return patterns
}

// Package chat orchestrates one chat turn: persona lookup, moderation,
// cached-history retrieval, length analysis, prompt composition, the
// completion call, and the best-effort write-back of both messages into the
// conversation cache.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hikarilab/mentorchat/internal/analysis"
	"github.com/hikarilab/mentorchat/internal/category"
	"github.com/hikarilab/mentorchat/internal/convcache"
	"github.com/hikarilab/mentorchat/internal/filter"
	"github.com/hikarilab/mentorchat/internal/llm"
	"github.com/hikarilab/mentorchat/internal/persona"
	"github.com/hikarilab/mentorchat/internal/prompt"
	"github.com/hikarilab/mentorchat/internal/telemetry"
)

// ErrCompletion marks a failed completion call. The caller decides whether
// to retry or show fallback text; this service never synthesizes a canned
// reply for generation failures.
var ErrCompletion = errors.New("chat: completion failed")

// Request is one user turn.
type Request struct {
	AgentID        string `json:"agent_id"`
	SessionID      string `json:"session_id"`
	Message        string `json:"message"`
	Category       string `json:"category,omitempty"`
	Mode           string `json:"mode,omitempty"`
	ResponseLength string `json:"response_length,omitempty"`
	UseCache       bool   `json:"use_cache"`
}

// Response is the generated (or refusal) reply for one turn.
type Response struct {
	Reply     string         `json:"reply"`
	AgentID   string         `json:"agent_id"`
	AgentName string         `json:"agent_name"`
	Timestamp convcache.Time `json:"timestamp"`
	Filtered  bool           `json:"filtered,omitempty"`
}

// Service wires the chat-turn collaborators together.
type Service struct {
	registry *persona.Registry
	cache    *convcache.Service
	client   llm.Client
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	appendTimeout time.Duration
	wait          func(done <-chan struct{}) // test hook for async appends
}

// NewService creates a chat service.
func NewService(registry *persona.Registry, cache *convcache.Service, client llm.Client, metrics *telemetry.Metrics, logger *slog.Logger) *Service {
	return &Service{
		registry:      registry,
		cache:         cache,
		client:        client,
		metrics:       metrics,
		logger:        logger,
		appendTimeout: 10 * time.Second,
	}
}

// Send processes one chat turn.
func (s *Service) Send(ctx context.Context, req Request) (*Response, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("chat: agent id is required")
	}
	if req.Message == "" {
		return nil, fmt.Errorf("chat: message is required")
	}

	agent, err := s.registry.Get(req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	log := telemetry.TurnLogger(s.logger, ctx, req.AgentID, req.SessionID)

	// Moderation runs before anything touches the model or the cache.
	if res := filter.CheckNGWords(req.Message, agent.NGWords); res.Blocked {
		s.metrics.ChatTurns.WithLabelValues(req.AgentID, "filtered").Inc()
		return s.refusal(agent, res.Reply), nil
	}
	if res := filter.CheckRestrictedTopics(req.Message, agent.Customization); res.Blocked {
		s.metrics.ChatTurns.WithLabelValues(req.AgentID, "filtered").Inc()
		return s.refusal(agent, res.Reply), nil
	}

	cat := category.Normalize(req.Category)
	useCache := req.UseCache && req.SessionID != ""

	// Snapshot history before generating; the in-flight user message is
	// appended only after the reply exists.
	var history string
	var recent []convcache.Message
	if useCache {
		cached, _ := s.cache.Get(ctx, req.AgentID, req.SessionID)
		if cached != nil && len(cached.Messages) > 0 {
			s.metrics.CacheHits.Inc()
			recent = cached.Messages
			history = convcache.FormatHistory(cached.Messages, s.cache.Policy().HistoryWindow)
		} else {
			s.metrics.CacheMisses.Inc()
		}
	}

	la := analysis.AnalyzeLength(req.Message, cat, analysis.ParseLength(req.ResponseLength))
	adjusted := analysis.AdjustForContext(la.Instruction, recent)

	composed, err := prompt.Compose(prompt.Input{
		Persona:           agent.BuildPrompt(),
		History:           history,
		LengthDirective:   prompt.LengthDirective(la, adjusted),
		CategoryDirective: prompt.CategoryDirective(cat),
		ModeDirective:     prompt.ModeDirective(prompt.Mode(req.Mode)),
		CustomDirective:   customDirective(agent, req, cat),
		UserMessage:       req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	start := time.Now()
	reply, err := s.client.Complete(ctx, composed.System, composed.User)
	s.metrics.CompletionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ChatTurns.WithLabelValues(req.AgentID, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrCompletion, err)
	}

	// Write-back is fire-and-forget: the reply is already delivered, so a
	// failed append degrades future context but never fails the turn.
	if useCache {
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.saveTurn(req, cat, reply, log)
		}()
		if s.wait != nil {
			s.wait(done)
		}
	}

	s.metrics.ChatTurns.WithLabelValues(req.AgentID, "ok").Inc()
	log.Info("chat turn completed",
		"type", string(la.Type),
		"recommended_length", string(la.Recommended),
		"reply_chars", len([]rune(reply)),
	)

	return &Response{
		Reply:     reply,
		AgentID:   agent.ID,
		AgentName: agent.DisplayName,
		Timestamp: convcache.Now(),
	}, nil
}

// refusal builds a filtered-turn response.
func (s *Service) refusal(agent *persona.Agent, reply string) *Response {
	return &Response{
		Reply:     reply,
		AgentID:   agent.ID,
		AgentName: agent.DisplayName,
		Timestamp: convcache.Now(),
		Filtered:  true,
	}
}

// saveTurn appends the user message then the agent reply to the cache.
// Runs detached from the request context so an abandoned UI call does not
// cancel it. Failures are logged and swallowed.
func (s *Service) saveTurn(req Request, cat category.Category, reply string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.appendTimeout)
	defer cancel()

	policy := s.cache.Policy()
	userMsg := convcache.NewMessage(
		convcache.SenderUser,
		req.Message,
		analysis.ClassifyImportance(req.Message, cat),
		policy.TokenEstimate(req.Message),
	)
	agentMsg := convcache.NewMessage(
		convcache.SenderAgent,
		reply,
		analysis.ClassifyImportance(reply, category.None),
		policy.TokenEstimate(reply),
	)

	for _, msg := range []convcache.Message{userMsg, agentMsg} {
		if err := s.cache.Append(ctx, req.AgentID, req.SessionID, msg); err != nil {
			s.metrics.CacheAppends.WithLabelValues("error").Inc()
			log.Warn("cache append failed", "message_id", msg.ID, "error", err)
			return
		}
		s.metrics.CacheAppends.WithLabelValues("ok").Inc()
	}
}

// poolStats is implemented by llm.KeyPool.
type poolStats interface {
	Stats() llm.PoolStats
}

// Status reports service availability for the status endpoint.
type Status struct {
	Available     bool   `json:"available"`
	ActiveKeys    int    `json:"active_keys"`
	TodayRequests int64  `json:"today_requests"`
	Message       string `json:"message"`
}

// ServiceStatus summarizes completion availability. Without a key pool the
// single configured client is assumed available.
func (s *Service) ServiceStatus() Status {
	pool, ok := s.client.(poolStats)
	if !ok {
		return Status{Available: true, ActiveKeys: 1, Message: "AIサービスは正常に動作しています"}
	}
	stats := pool.Stats()
	st := Status{
		Available:     stats.ActiveKeys > 0,
		ActiveKeys:    stats.ActiveKeys,
		TodayRequests: stats.TodayRequests,
	}
	if st.Available {
		st.Message = "AIサービスは正常に動作しています"
	} else {
		st.Message = "APIキーの上限に達しています。しばらくお待ちください"
	}
	return st
}

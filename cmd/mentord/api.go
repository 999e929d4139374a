package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hikarilab/mentorchat/internal/chat"
	"github.com/hikarilab/mentorchat/internal/docstore"
	"github.com/hikarilab/mentorchat/internal/llm"
	"github.com/hikarilab/mentorchat/internal/persona"
	"github.com/hikarilab/mentorchat/internal/trainlog"
)

// apiServer holds the HTTP handlers for the chat API.
type apiServer struct {
	chat     *chat.Service
	registry *persona.Registry
	training *trainlog.Service
	logger   *slog.Logger
}

func (s *apiServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.chat.Send(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, persona.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, llm.ErrQuotaExceeded):
			writeError(w, http.StatusServiceUnavailable, "completion quota exhausted")
		case errors.Is(err, chat.ErrCompletion):
			writeError(w, http.StatusBadGateway, "completion failed")
		default:
			s.logger.Error("chat turn failed", "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chat.ServiceStatus())
}

func (s *apiServer) handleAgents(w http.ResponseWriter, r *http.Request) {
	type agentSummary struct {
		ID          string   `json:"id"`
		DisplayName string   `json:"display_name"`
		Specialties []string `json:"specialties,omitempty"`
		Greeting    string   `json:"greeting,omitempty"`
	}
	agents := s.registry.List()
	out := make([]agentSummary, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentSummary{
			ID:          a.ID,
			DisplayName: a.DisplayName,
			Specialties: a.Specialties,
			Greeting:    a.Greeting,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleTraining(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, err := s.registry.Get(agentID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var body struct {
		Context     string `json:"context"`
		UserMessage string `json:"user_message"`
		Reply       string `json:"reply"`
		Quality     int    `json:"quality"`
		Topic       string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Quality < 1 || body.Quality > 10 {
		writeError(w, http.StatusBadRequest, "quality must be between 1 and 10")
		return
	}

	conv := trainlog.NewConversation(body.Context, body.UserMessage, body.Reply, body.Quality, body.Topic)
	if err := s.training.Add(r.Context(), agentID, conv); err != nil {
		s.logger.Error("training record failed", "agent", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "training record failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": conv.ID})
}

func (s *apiServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	analytics, err := s.training.Analytics(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no training data for agent")
			return
		}
		s.logger.Error("analytics failed", "agent", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "analytics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package ingest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/message"
	"github.com/chatwatch/chatwatch/internal/types"
)

// Handler exposes the ingestion service and message broker over HTTP.
type Handler struct {
	service *Service
	broker  *message.Broker
	logger  zerolog.Logger
}

// NewHandler creates the HTTP handler set for agent-facing endpoints.
func NewHandler(service *Service, broker *message.Broker, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		broker:  broker,
		logger:  logger.With().Str("component", "ingest-http").Logger(),
	}
}

// HandleReport receives one agent report.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	var report types.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		h.logger.Error().Err(err).Msg("failed to decode report")
		http.Error(w, "invalid report", http.StatusBadRequest)
		return
	}
	if report.AgentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	resp := h.service.Process(&report)
	writeJSON(w, resp)
}

// HandleTodayStats serves the durable current-day counters for one agent.
func (h *Handler) HandleTodayStats(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	stats, err := h.service.TodayStats(agentID)
	if err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to load today stats")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

// HandleRoster serves the merged online/offline agent roster.
func (h *Handler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := h.service.Roster()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build roster")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, roster)
}

// HandleHistory serves stored daily rows for one agent over a named range.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentID := q.Get("agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	records, err := h.service.History(agentID, q.Get("range"), q.Get("from"), q.Get("to"))
	if err != nil {
		h.logger.Warn().Err(err).Str("agent_id", agentID).Msg("history query failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, records)
}

// HandlePollMessages blocks until messages arrive for the agent or the
// long-poll wait expires.
func (h *Handler) HandlePollMessages(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if agentID == "" {
		http.Error(w, "agentID is required", http.StatusBadRequest)
		return
	}

	msgs := h.broker.Poll(r.Context(), agentID)
	writeJSON(w, msgs)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

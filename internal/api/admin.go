package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/cache"
	"github.com/chatwatch/chatwatch/internal/ingest"
	"github.com/chatwatch/chatwatch/internal/message"
	"github.com/chatwatch/chatwatch/internal/storage"
)

// AdminHandler serves the operator endpoints: renaming, visibility, data
// resets and direct messages.
type AdminHandler struct {
	store   storage.Store
	tracker *cache.ActiveTracker
	ingest  *ingest.Service
	broker  *message.Broker
	logger  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(store storage.Store, tracker *cache.ActiveTracker, ingestSvc *ingest.Service, broker *message.Broker, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		store:   store,
		tracker: tracker,
		ingest:  ingestSvc,
		broker:  broker,
		logger:  logger.With().Str("component", "admin").Logger(),
	}
}

// RenameAgent stores an operator-assigned display name.
func (h *AdminHandler) RenameAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}

	if err := h.store.SetDisplayName(agentID, req.DisplayName); err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to rename agent")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info().Str("agent_id", agentID).Str("display_name", req.DisplayName).Msg("agent renamed")
	writeOK(w, map[string]string{"agentId": agentID, "displayName": req.DisplayName})
}

// DeleteAgent removes an agent's stored rows. scope=today drops only the
// current day; scope=all (the default) drops everything including metadata.
func (h *AdminHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	scopeDate := ""
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "all":
	case "today":
		scopeDate = h.ingest.Today()
	default:
		writeError(w, http.StatusBadRequest, "scope must be today or all")
		return
	}

	deleted, err := h.store.DeleteAgent(agentID, scopeDate)
	if err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to delete agent")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.tracker.Remove(agentID)

	h.logger.Info().Str("agent_id", agentID).Int("rows", deleted).Msg("agent deleted")
	writeOK(w, map[string]interface{}{"agentId": agentID, "rowsDeleted": deleted})
}

// ClearToday zeroes the current day: live counters in the active index and
// the durable rows for today's date.
func (h *AdminHandler) ClearToday(w http.ResponseWriter, r *http.Request) {
	today := h.ingest.Today()

	deleted, err := h.store.DeleteDate(today)
	if err != nil {
		h.logger.Error().Err(err).Str("date", today).Msg("failed to clear today")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.tracker.ClearToday()

	h.logger.Info().Str("date", today).Int("rows", deleted).Msg("today cleared")
	writeOK(w, map[string]interface{}{"date": today, "rowsDeleted": deleted})
}

// GetVisibility lists stored per-agent visibility and naming.
func (h *AdminHandler) GetVisibility(w http.ResponseWriter, r *http.Request) {
	metas, err := h.store.ListMeta()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list agent meta")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeOK(w, metas)
}

// SetVisibility hides or unhides an agent. Operator changes are marked
// manual so the nightly rollover unhides them again.
func (h *AdminHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agentId"`
		Hidden  bool   `json:"hidden"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agentId is required")
		return
	}

	if err := h.store.SetVisibility(req.AgentID, req.Hidden, req.Hidden); err != nil {
		h.logger.Error().Err(err).Str("agent_id", req.AgentID).Msg("failed to set visibility")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info().Str("agent_id", req.AgentID).Bool("hidden", req.Hidden).Msg("visibility changed")
	writeOK(w, map[string]interface{}{"agentId": req.AgentID, "hidden": req.Hidden})
}

// SendMessage queues an operator message for one agent.
func (h *AdminHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agentId"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "agentId and message are required")
		return
	}

	msg := h.broker.Send(req.AgentID, req.Message)
	writeOK(w, msg)
}

func writeOK(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

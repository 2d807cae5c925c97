package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AxlesAI/axles-voice-service/internal/core/tool"
	"github.com/AxlesAI/axles-voice-service/internal/services/call"
	"github.com/AxlesAI/axles-voice-service/internal/session"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxToolArgsBody = 64 << 10

// ReasonEngineClosed is recorded when the engine ends the session itself.
const ReasonEngineClosed = "engine_closed"

// ToolReply is the body returned to the engine for a tool call.
type ToolReply struct {
	Reply string `json:"reply"`
}

// SessionHandler serves the conversational engine: bootstrap, tool calls and end.
type SessionHandler struct {
	calls CallOrchestrator
}

func NewSessionHandler(calls CallOrchestrator) *SessionHandler {
	return &SessionHandler{calls: calls}
}

// SetupSessionRoutes registers the engine routes on an /api subrouter.
func (h *SessionHandler) SetupSessionRoutes(router *mux.Router) {
	router.HandleFunc("/v1/sessions/{id}/bootstrap", h.GetBootstrap).Methods(http.MethodGet)
	router.HandleFunc("/v1/sessions/{id}/tools/{name}", h.ExecuteTool).Methods(http.MethodPost)
	router.HandleFunc("/v1/sessions/{id}/end", h.EndSession).Methods(http.MethodPost)
}

// GetBootstrap handles GET /api/v1/sessions/{id}/bootstrap
func (h *SessionHandler) GetBootstrap(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	bootstrap, err := h.calls.Bootstrap(id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		logger.ForSession(id).Error("Failed to build bootstrap", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build bootstrap")
		return
	}
	writeJSON(w, http.StatusOK, bootstrap)
}

// ExecuteTool handles POST /api/v1/sessions/{id}/tools/{name}. The body is the
// raw JSON arguments. A reply is always returned so the engine has something to say.
func (h *SessionHandler) ExecuteTool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, name := vars["id"], vars["name"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxToolArgsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "arguments must be a JSON object")
		return
	}

	// Tool side effects must not be cut short by the engine dropping the request.
	reply, err := h.calls.ExecuteTool(context.WithoutCancel(r.Context()), id, name, json.RawMessage(body))
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, ToolReply{Reply: reply})
	case errors.Is(err, tool.ErrUnknownTool):
		writeJSON(w, http.StatusNotFound, ToolReply{Reply: reply})
	default:
		writeJSON(w, http.StatusOK, ToolReply{Reply: reply})
	}
}

// EndSession handles POST /api/v1/sessions/{id}/end
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.calls.EndCall(context.WithoutCancel(r.Context()), id, ReasonEngineClosed); err != nil {
		logger.ForSession(id).Error("Failed to end call", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to end session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var _ CallOrchestrator = (*call.CallService)(nil)

package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/events"
	"github.com/Harshitk-cp/paper-agent/internal/service"
)

// SessionHandler serves the dialogue, its inspection endpoints and the
// standalone methodologist review.
type SessionHandler struct {
	engine *service.Engine
	bus    *events.Bus
	logger *zap.Logger
}

func NewSessionHandler(engine *service.Engine, bus *events.Bus, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{engine: engine, bus: bus, logger: logger}
}

type turnRequest struct {
	Input string `json:"input"`
}

type abortedResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeEngineError maps engine errors to statuses. An aborted turn is a
// gateway failure and carries the recovery message for the user.
func (h *SessionHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var suspension *domain.SuspensionError
	switch {
	case errors.Is(err, events.ErrInvalidSessionID):
		writeError(w, http.StatusBadRequest, "invalid session id")
	case errors.Is(err, service.ErrInputEmpty):
		writeError(w, http.StatusBadRequest, "input is required")
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.As(err, &suspension):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTurnAborted):
		h.logger.Warn("turn aborted",
			zap.String("session_id", chi.URLParam(r, "id")),
			zap.Error(err))
		writeJSON(w, http.StatusBadGateway, abortedResponse{Error: err.Error(), Message: service.RecoveryMessage})
	case domain.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("session request failed",
			zap.String("session_id", chi.URLParam(r, "id")),
			zap.Error(err))
		writeJSON(w, http.StatusBadGateway, abortedResponse{Error: err.Error(), Message: service.RecoveryMessage})
	}
}

func (h *SessionHandler) Turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.engine.ProcessTurn(r.Context(), chi.URLParam(r, "id"), req.Input)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type listSessionsResponse struct {
	Sessions []domain.SessionInfo  `json:"sessions"`
	InMemory []service.SessionView `json:"in_memory"`
}

// List returns sessions with recent events. max_age_minutes=0 lists all.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	maxAge := time.Duration(queryInt(r, "max_age_minutes", 0)) * time.Minute
	infos, err := h.bus.ListActiveSessions(maxAge)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if infos == nil {
		infos = []domain.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: infos, InMemory: h.engine.Sessions().List()})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.Session(chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !events.ValidSessionID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.engine.Reset(r.Context(), id); err != nil {
		h.logger.Error("failed to reset session", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	FinalStatus string `json:"final_status"`
}

func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.engine.EndSession(chi.URLParam(r, "id"), req.FinalStatus)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type eventsResponse struct {
	SessionID string         `json:"session_id"`
	Events    []domain.Event `json:"events"`
}

func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	evs, err := h.bus.GetSessionEvents(id)
	if err != nil {
		if errors.Is(err, events.ErrInvalidSessionID) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		h.logger.Error("failed to read events", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{SessionID: id, Events: evs})
}

func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.bus.GetSessionSummary(id)
	if err != nil {
		if errors.Is(err, events.ErrInvalidSessionID) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type executionsResponse struct {
	SessionID  string                  `json:"session_id"`
	Executions []domain.AgentExecution `json:"executions"`
	Usage      service.SessionUsage    `json:"usage"`
}

func (h *SessionHandler) Executions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	execs, usage := h.engine.Executions(id)
	if execs == nil {
		execs = []domain.AgentExecution{}
	}
	writeJSON(w, http.StatusOK, executionsResponse{SessionID: id, Executions: execs, Usage: usage})
}

func (h *SessionHandler) Observer(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.ObserverSnapshot(chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type insightRequest struct {
	Context  string `json:"context"`
	Question string `json:"question"`
}

func (h *SessionHandler) Insight(w http.ResponseWriter, r *http.Request) {
	var req insightRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	insight, err := h.engine.ObserverInsight(r.Context(), chi.URLParam(r, "id"), req.Context, req.Question)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

type reviewRequest struct {
	Hypothesis string `json:"hypothesis"`
}

func (h *SessionHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.engine.Review(r.Context(), chi.URLParam(r, "id"), req.Hypothesis)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type resumeRequest struct {
	Answer string `json:"answer"`
}

func (h *SessionHandler) ResumeReview(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}
	res, err := h.engine.ResumeReview(r.Context(), chi.URLParam(r, "id"), req.Answer)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/quizchest/quizchest/go/internal/game/engine"
	"github.com/quizchest/quizchest/go/internal/game/host"
	"github.com/quizchest/quizchest/go/internal/game/session"
	"github.com/quizchest/quizchest/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SessionHandler exposes the host device's HTTP surface: create, resume
// and end sessions, read state, and submit host actions. Participants
// never use these routes; their only write path is the websocket intent
// stream.
type SessionHandler struct {
	manager    *host.Manager
	loadBank   host.BankLoader
	defaultCfg models.GameConfig
}

// NewSessionHandler creates the host HTTP handler. defaultCfg is used
// for sessions created without an explicit game config.
func NewSessionHandler(manager *host.Manager, loadBank host.BankLoader, defaultCfg models.GameConfig) *SessionHandler {
	return &SessionHandler{manager: manager, loadBank: loadBank, defaultCfg: defaultCfg}
}

// CreateSessionBody is the POST /api/sessions request.
type CreateSessionBody struct {
	HostRef string             `json:"host_ref"`
	Teams   []session.TeamSeed `json:"teams"`
	BankRef string             `json:"bank_ref"`
	Config  *models.GameConfig `json:"config,omitempty"`
}

// HostCommandBody is the POST /api/sessions/{code}/command request.
type HostCommandBody struct {
	HostRef   string             `json:"host_ref"`
	Type      engine.CommandType `json:"type"`
	TeamIndex int                `json:"team_index,omitempty"`
	Correct   bool               `json:"correct,omitempty"`
}

// HandleCreateSession handles POST /api/sessions
func (h *SessionHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body CreateSessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	bank, err := h.loadBank(body.BankRef)
	if err != nil {
		log.Error().Err(err).Str("bank_ref", body.BankRef).Msg("failed to load question bank")
		http.Error(w, "Unknown question bank", http.StatusBadRequest)
		return
	}

	cfg := h.defaultCfg
	if body.Config != nil {
		cfg = *body.Config
	}

	sessionHost, err := h.manager.CreateSession(context.Background(), session.CreateSessionRequest{
		HostRef: body.HostRef,
		Teams:   body.Teams,
		BankRef: body.BankRef,
		Config:  cfg,
	}, bank)
	if err != nil {
		// ContentExhausted surfaces at configuration time, before any
		// session exists.
		if errors.Is(err, session.ErrContentExhausted) || errors.Is(err, session.ErrNoTeams) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		log.Error().Err(err).Msg("failed to create session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, sessionHost.Snapshot())
}

// HandleResumeSession handles POST /api/sessions/resume
func (h *SessionHandler) HandleResumeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sessionHost, err := h.manager.ResumeSession(context.Background(), body.Code)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "No saved session for code", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("code", body.Code).Msg("failed to resume session")
		http.Error(w, "Failed to resume session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, sessionHost.Snapshot())
}

// HandleGetSessionState handles GET /api/sessions/{code}/state
func (h *SessionHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request, code string) {
	sessionHost, err := h.manager.Get(code)
	if err != nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	// The snapshot carries the absolute TimerEnd; clients reconstruct
	// the countdown against their own clocks, never from a
	// seconds-remaining integer computed here.
	writeJSON(w, sessionHost.Snapshot())
}

// HandleHostCommand handles POST /api/sessions/{code}/command. Only the
// owning host may drive the state machine; timer expiries are raised
// internally and can never be injected through this route.
func (h *SessionHandler) HandleHostCommand(w http.ResponseWriter, r *http.Request, code string) {
	var body HostCommandBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.Type == engine.CommandTimerExpired {
		http.Error(w, "Command not allowed", http.StatusForbidden)
		return
	}

	sessionHost, err := h.manager.Get(code)
	if err != nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}
	if sessionHost.Snapshot().HostRef != body.HostRef {
		http.Error(w, "Not the session host", http.StatusForbidden)
		return
	}

	cmd := engine.Command{
		Type:      body.Type,
		TeamIndex: body.TeamIndex,
		Correct:   body.Correct,
	}
	if err := sessionHost.Do(r.Context(), cmd); err != nil {
		// Invalid transitions are dropped by design; tell the host UI
		// the command did not land, nothing more.
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, sessionHost.Snapshot())
}

// HandleEndSession handles DELETE /api/sessions/{code}
func (h *SessionHandler) HandleEndSession(w http.ResponseWriter, r *http.Request, code string) {
	hostRef := r.URL.Query().Get("host_ref")

	sessionHost, err := h.manager.Get(code)
	if err != nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}
	if sessionHost.Snapshot().HostRef != hostRef {
		http.Error(w, "Not the session host", http.StatusForbidden)
		return
	}

	if err := h.manager.EndSession(r.Context(), code); err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to end session")
		http.Error(w, "Failed to end session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleActiveSessions handles GET /api/sessions/active
func (h *SessionHandler) HandleActiveSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.manager.ActiveSessions())
}

// RegisterRoutes registers the session HTTP routes.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", h.HandleCreateSession)
	mux.HandleFunc("/api/sessions/resume", h.HandleResumeSession)
	mux.HandleFunc("/api/sessions/active", h.HandleActiveSessions)

	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
		parts := strings.Split(rest, "/")

		switch {
		case len(parts) == 2 && parts[1] == "state" && r.Method == http.MethodGet:
			h.HandleGetSessionState(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "command" && r.Method == http.MethodPost:
			h.HandleHostCommand(w, r, parts[0])
		case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodDelete:
			h.HandleEndSession(w, r, parts[0])
		default:
			http.NotFound(w, r)
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

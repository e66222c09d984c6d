package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/medwatch/internal/journal"
	"github.com/nerrad567/medwatch/internal/monitor"
	"github.com/nerrad567/medwatch/internal/profile"
)

// defaultWSPath is used when the websocket path is not configured.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/profiles", s.handleListProfiles)
		r.Put("/profile", s.handleSelectProfile)
		r.Post("/restart", s.handleRestart)
		r.Post("/command", s.handleCommand)
		r.Get("/journal", s.handleListJournal)
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth runs every registered check and answers 503 with status
// "degraded" if any of them fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":            status,
		"version":           s.version,
		"components":        components,
		"websocket_clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": profile.All(),
		"active":   s.tracker.Profile(),
	})
}

type selectProfileRequest struct {
	Profile string `json:"profile"`
}

// handleSelectProfile accepts any identifier; unknown ones make the
// status indeterminate rather than failing the request.
func (s *Server) handleSelectProfile(w http.ResponseWriter, r *http.Request) {
	var req selectProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	id := strings.TrimSpace(req.Profile)
	if id == "" {
		writeBadRequest(w, "profile is required")
		return
	}

	if err := s.controller.SelectProfile(id); err != nil {
		s.writeControlError(w, err)
		return
	}

	_, known := profile.Lookup(id)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"profile": id,
		"known":   known,
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.Restart(); err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "restarting"})
}

type commandRequest struct {
	Command string `json:"command"`
}

// handleCommand queues a publish to the device command topic. Delivery
// is not confirmed; the command is dropped if the link is down.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	if err := s.controller.SendCommand(req.Command); err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"command": req.Command})
}

func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	if errors.Is(err, monitor.ErrStopped) {
		writeUnavailable(w, "monitor is stopped")
		return
	}
	s.logger.Error("monitor request failed", "error", err)
	writeInternalError(w, "monitor request failed")
}

// handleListJournal lists journal entries, most recent first.
//
// Query parameters:
//   - kind: filter by entry kind
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{Kind: journal.Kind(q.Get("kind"))}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeBadRequest(w, "unknown kind: "+string(filter.Kind))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list journal entries", "error", err)
		writeInternalError(w, "failed to list journal entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

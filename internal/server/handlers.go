package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aurascope/aurascope/internal/capture"
	"github.com/aurascope/aurascope/internal/domain"
	"github.com/aurascope/aurascope/internal/settings"
)

// ackResponse acknowledges fire-and-forget endpoints. Accepted is true
// even for silently-ignored payloads; the bridge retries nothing.
type ackResponse struct {
	Accepted bool `json:"accepted"`
}

// CallListResponse is the session log snapshot served to panels. Calls
// carry no request or response bodies; the detail endpoint does.
type CallListResponse struct {
	Calls []*domain.CanonicalCallRecord `json:"calls"`
	Total int                           `json:"total"`
}

// CallDetailResponse is one record plus the full exchange it came from.
type CallDetailResponse struct {
	*domain.CanonicalCallRecord
	Exchange *domain.RawExchange `json:"exchange,omitempty"`
}

// StatusResponse reports daemon health for the panel's status strip.
type StatusResponse struct {
	Uptime       string        `json:"uptime"`
	GoVersion    string        `json:"go_version"`
	NumGoroutine int           `json:"num_goroutine"`
	Calls        int           `json:"calls"`
	Capture      capture.Stats `json:"capture"`
}

type revealRequest struct {
	URL  string `json:"url"`
	Line int    `json:"line"`
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	var env domain.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		AddError(r.Context(), err)
		http.Error(w, "undecodable envelope", http.StatusBadRequest)
		return
	}
	s.adapter.Offer(r.Context(), env)
	writeJSONStatus(w, http.StatusAccepted, ackResponse{Accepted: true})
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	calls := s.log.Snapshot()
	if calls == nil {
		calls = make([]*domain.CanonicalCallRecord, 0)
	}
	writeJSON(w, CallListResponse{Calls: calls, Total: len(calls)})
}

func (s *Server) handleCallDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.log.Get(id)
	if !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	writeJSON(w, CallDetailResponse{CanonicalCallRecord: rec, Exchange: rec.Exchange})
}

func (s *Server) handleClearCalls(w http.ResponseWriter, r *http.Request) {
	s.log.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.settings.Get(r.Context())
	if err != nil {
		AddError(r.Context(), err)
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, current)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var next settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		http.Error(w, "undecodable settings", http.StatusBadRequest)
		return
	}
	if err := next.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.settings.Put(r.Context(), next); err != nil {
		AddError(r.Context(), err)
		http.Error(w, "failed to store settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, next)
}

// handleReveal forwards an open-resource request to the bridge. It is
// best-effort: the panel gets a 202 no matter what, and failures only
// show up in the daemon log.
func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err == nil && req.URL != "" && s.revealer != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.revealer.Reveal(ctx, req.URL, req.Line); err != nil {
				s.logger.Debug("reveal forwarding failed", "url", req.URL, "error", err)
			}
		}()
	} else if err != nil {
		s.logger.Debug("undecodable reveal request", "error", err)
	}
	writeJSONStatus(w, http.StatusAccepted, ackResponse{Accepted: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatusResponse{
		Uptime:       time.Since(s.started).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Calls:        s.log.Len(),
		Capture:      s.adapter.Stats(),
	})
}

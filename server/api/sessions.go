package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mynextid/zk-kyc/models"
	"github.com/mynextid/zk-kyc/orchestrator"
	"github.com/mynextid/zk-kyc/prover"
)

// RunRequest starts a verification attempt on a session
type RunRequest struct {
	Subject orchestrator.Subject   `json:"subject"`
	Record  *models.IdentityRecord `json:"record"`
	Options prover.KYCOptions      `json:"options"`
}

// HandleCreateSession creates an idle session
func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionsEnabled(w) {
		return
	}
	respondJSON(w, http.StatusCreated, s.Sessions.Create().Snapshot())
}

// HandleGetSession returns the current state of a session
func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session.Snapshot())
}

// HandleRunSession drives a session to a terminal state. A failed
// verification is an outcome and is returned with 200.
func (s *Server) HandleRunSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req RunRequest
	if !decode(w, r, &req) {
		return
	}

	// a disconnecting client does not abort the attempt; Reset does
	snap, err := session.Run(context.WithoutCancel(r.Context()), req.Subject, req.Record, req.Options)
	switch {
	case errors.Is(err, models.ErrSessionBusy):
		respondError(w, http.StatusConflict, "session_busy", "a verification is already running")
	case errors.Is(err, models.ErrStaleSession):
		respondError(w, http.StatusConflict, "session_reset", "the session was reset while running")
	case errors.Is(err, orchestrator.ErrNotIdle):
		respondError(w, http.StatusConflict, "session_finished", err.Error())
	default:
		respondJSON(w, http.StatusOK, snap)
	}
}

// HandleResetSession abandons the current attempt
func (s *Server) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session.Reset())
}

// HandleDeleteSession forgets a session
func (s *Server) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionsEnabled(w) {
		return
	}
	if !s.Sessions.Delete(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "session_not_found", "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*orchestrator.Session, bool) {
	if !s.sessionsEnabled(w) {
		return nil, false
	}
	session, err := s.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	return session, true
}

func (s *Server) sessionsEnabled(w http.ResponseWriter) bool {
	if s.Sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "sessions_disabled", "verification sessions are not enabled")
		return false
	}
	return true
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mynextid/zk-kyc/common"
)

// HandleGetVerification returns the ledger entry of a subject
func (s *Server) HandleGetVerification(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger_disabled", "ledger is not enabled")
		return
	}
	subject, err := common.NormalizeSubject(chi.URLParam(r, "subject"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_subject", err.Error())
		return
	}
	v, ok := s.Ledger.GetVerification(subject)
	if !ok {
		respondError(w, http.StatusNotFound, "verification_not_found", "no verification for "+subject)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"subject":      subject,
		"verification": v,
	})
}

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mynextid/zk-kyc/confidential"
)

// NetworkResponse is a network profile lookup
type NetworkResponse struct {
	confidential.Network
	Recognized bool `json:"recognized"`
}

// HandleProtectData registers protected data with the confidential backend
func (s *Server) HandleProtectData(w http.ResponseWriter, r *http.Request) {
	if !s.gatewayEnabled(w) {
		return
	}
	var req confidential.ProtectRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.Gateway.ProtectData(r.Context(), req)
	if err != nil {
		respondKindError(w, err, "protection_failed")
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// HandleGrantAccess authorizes an app and user on protected data
func (s *Server) HandleGrantAccess(w http.ResponseWriter, r *http.Request) {
	if !s.gatewayEnabled(w) {
		return
	}
	var req confidential.GrantRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.Gateway.GrantAccess(r.Context(), req)
	if err != nil {
		respondKindError(w, err, "grant_failed")
		return
	}
	if !resp.Granted {
		respondError(w, http.StatusForbidden, confidential.CodeAccessDenied, resp.Reason)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// HandleProcess runs a confidential task and returns its result document
func (s *Server) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if !s.gatewayEnabled(w) {
		return
	}
	var req confidential.ProcessRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.Gateway.ProcessProtectedData(r.Context(), req)
	if err != nil {
		s.Logger.Warn("task failed", "protected_data", req.ProtectedData, "error", err)
		respondKindError(w, err, confidential.CodeExecutionFailed)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// HandleNetwork resolves the network profile of a chain
func (s *Server) HandleNetwork(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "chainId")
	chainID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_chain_id",
			fmt.Sprintf("chain id '%s' is not a number", raw))
		return
	}
	n, ok := confidential.NetworkForChain(chainID)
	if !ok {
		respondJSON(w, http.StatusOK, NetworkResponse{Network: confidential.PrimaryNetwork()})
		return
	}
	respondJSON(w, http.StatusOK, NetworkResponse{Network: n, Recognized: true})
}

func (s *Server) gatewayEnabled(w http.ResponseWriter) bool {
	if s.Gateway == nil {
		respondError(w, http.StatusServiceUnavailable, "gateway_disabled", "confidential gateway is not enabled")
		return false
	}
	return true
}

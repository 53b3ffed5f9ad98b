package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mynextid/zk-kyc/confidential"
	"github.com/mynextid/zk-kyc/ledger"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/models"
	"github.com/mynextid/zk-kyc/orchestrator"
	"github.com/mynextid/zk-kyc/prover"
)

// Deps are the components behind the HTTP API. Gateway, Sessions, Ledger
// and Logs are optional; their routes answer 503 when unset.
type Deps struct {
	Registry  *prover.CircuitRegistry
	Generator *prover.Generator
	Verifier  *prover.Verifier
	Gateway   confidential.Backend
	Sessions  *orchestrator.Manager
	Ledger    *ledger.Registry
	Logs      *logging.Ring
	Logger    logging.Logger
}

// Server handles HTTP requests for proofs, confidential tasks and sessions
type Server struct {
	Deps
}

// NewServer creates a new HTTP server
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	return &Server{Deps: deps}
}

// ==== Request/Response Types ====

// ProveRequest carries the private inputs of one proof. Which fields are
// read depends on the circuit type in the path.
type ProveRequest struct {
	Subject        string                 `json:"subject"`
	DateOfBirth    string                 `json:"dateOfBirth,omitempty"`
	MinimumAge     int                    `json:"minimumAge,omitempty"`
	DocumentExpiry string                 `json:"documentExpiry,omitempty"`
	DocumentType   models.DocumentType    `json:"documentType,omitempty"`
	Record         *models.IdentityRecord `json:"record,omitempty"`
	Options        prover.KYCOptions      `json:"options,omitempty"`
}

// ProveResponse represents a proof generation response
type ProveResponse struct {
	Proof     *models.ProofArtifact `json:"proof"`
	Timestamp time.Time             `json:"timestamp"`
}

// VerifyRequest represents a proof verification request
type VerifyRequest struct {
	Proof *models.ProofArtifact `json:"proof"`
}

// VerifyResponse represents a proof verification response
type VerifyResponse struct {
	Valid         bool      `json:"valid"`
	NullifierHash string    `json:"nullifierHash,omitempty"`
	PublicOutputs []string  `json:"publicOutputs,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CircuitInfoResponse represents circuit information
type CircuitInfoResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     uint     `json:"version"`
	Description string   `json:"description"`
	Public      []string `json:"public"`
	Loaded      bool     `json:"loaded"`
}

// CircuitListResponse represents a list of circuits
type CircuitListResponse struct {
	Circuits []CircuitInfoResponse `json:"circuits"`
	Count    int                   `json:"count"`
}

// ==== Handlers ====

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"time":     time.Now().Format(time.RFC3339),
		"circuits": len(s.Registry.IDs()),
		"gateway":  s.Gateway != nil,
		"sessions": s.Sessions != nil,
	})
}

// HandleListCircuits lists all available circuits
func (s *Server) HandleListCircuits(w http.ResponseWriter, r *http.Request) {
	circuits := make([]CircuitInfoResponse, 0, len(prover.CircuitList))
	for _, id := range prover.CircuitIDs() {
		circuits = append(circuits, s.circuitInfo(prover.CircuitList[id]))
	}

	respondJSON(w, http.StatusOK, CircuitListResponse{
		Circuits: circuits,
		Count:    len(circuits),
	})
}

// HandleGetCircuit gets information about a specific circuit
func (s *Server) HandleGetCircuit(w http.ResponseWriter, r *http.Request) {
	circuitID := chi.URLParam(r, "circuit")

	info, ok := prover.CircuitList[circuitID]
	if !ok {
		respondError(w, http.StatusNotFound, "circuit_not_found",
			fmt.Sprintf("circuit '%s' not found", circuitID))
		return
	}
	respondJSON(w, http.StatusOK, s.circuitInfo(info))
}

func (s *Server) circuitInfo(ci prover.CircuitInfo) CircuitInfoResponse {
	_, err := s.Registry.Get(ci.ID)
	return CircuitInfoResponse{
		ID:          ci.ID,
		Name:        ci.Name,
		Version:     ci.Version,
		Description: ci.Description,
		Public:      ci.Public,
		Loaded:      err == nil,
	}
}

// HandleProve handles proof generation requests
func (s *Server) HandleProve(w http.ResponseWriter, r *http.Request) {
	circuitType := models.CircuitType(chi.URLParam(r, "circuit"))

	var req ProveRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		artifact *models.ProofArtifact
		err      error
	)
	switch circuitType {
	case models.CircuitAge:
		artifact, err = s.Generator.ProveAge(r.Context(), req.DateOfBirth, req.MinimumAge, req.Subject)
	case models.CircuitDocument:
		artifact, err = s.Generator.ProveDocumentValidity(r.Context(), req.DocumentExpiry, req.DocumentType, req.Subject)
	case models.CircuitKYC:
		if req.Record == nil {
			respondError(w, http.StatusBadRequest, "missing_input", "record is required")
			return
		}
		artifact, err = s.Generator.ProveFullKYC(r.Context(), req.Record, req.Subject, req.Options)
		req.Record.Zero()
	default:
		respondError(w, http.StatusNotFound, "circuit_not_found",
			fmt.Sprintf("circuit type '%s' not found", circuitType))
		return
	}
	if err != nil {
		respondKindError(w, err, "proof_generation_failed")
		return
	}

	respondJSON(w, http.StatusOK, ProveResponse{
		Proof:     artifact,
		Timestamp: time.Now(),
	})
}

// HandleVerify handles proof verification requests
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	circuitType := models.CircuitType(chi.URLParam(r, "circuit"))
	switch circuitType {
	case models.CircuitAge, models.CircuitDocument, models.CircuitKYC:
	default:
		respondError(w, http.StatusNotFound, "circuit_not_found",
			fmt.Sprintf("circuit type '%s' not found", circuitType))
		return
	}

	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Proof == nil {
		respondError(w, http.StatusBadRequest, "missing_input", "proof is required")
		return
	}

	res := s.Verifier.Verify(req.Proof, circuitType)
	response := VerifyResponse{
		Valid:         res.IsValid,
		NullifierHash: res.NullifierHash,
		PublicOutputs: res.PublicOutputs,
		Timestamp:     time.Now(),
		Message:       "proof is valid",
	}
	if !res.IsValid {
		response.Message = "verification failed"
	}
	respondJSON(w, http.StatusOK, response)
}

// HandleLogs returns the buffered log entries
func (s *Server) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if s.Logs == nil {
		respondError(w, http.StatusServiceUnavailable, "logs_disabled", "log buffer is not enabled")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries":  s.Logs.Entries(),
		"capacity": s.Logs.Cap(),
		"dropped":  s.Logs.Dropped(),
	})
}

// ==== Helper Functions ====

const maxBody = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request",
			"failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json",
			fmt.Sprintf("failed to parse request: %v", err))
		return false
	}
	return true
}

// respondKindError maps the error taxonomy onto HTTP statuses
func respondKindError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrEncoding),
		errors.Is(err, models.ErrSubjectBinding):
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, models.ErrProtection):
		respondError(w, http.StatusBadRequest, confidential.CodeInvalidPayload, err.Error())
	case errors.Is(err, models.ErrAccessDenied):
		respondError(w, http.StatusForbidden, confidential.CodeAccessDenied, err.Error())
	case errors.Is(err, models.ErrExecution), errors.Is(err, models.ErrResultParse):
		respondError(w, http.StatusUnprocessableEntity, confidential.CodeExecutionFailed, err.Error())
	case errors.Is(err, models.ErrSessionBusy):
		respondError(w, http.StatusConflict, "session_busy", err.Error())
	case errors.Is(err, prover.ErrUnknownCircuit):
		respondError(w, http.StatusServiceUnavailable, "circuit_not_loaded", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, fallback, err.Error())
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		Timestamp: time.Now(),
	})
}

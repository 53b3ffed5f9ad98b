package confidential

import (
	"context"

	"github.com/mynextid/zk-kyc/models"
)

// ProtectRequest registers an encoded payload with the backend
type ProtectRequest struct {
	Data  []byte `json:"data"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

type ProtectResponse struct {
	Address string `json:"address"`
}

// GrantRequest authorizes one app and one user on a protected-data address
type GrantRequest struct {
	ProtectedData  string `json:"protectedData"`
	AuthorizedApp  string `json:"authorizedApp"`
	AuthorizedUser string `json:"authorizedUser"`
}

type GrantResponse struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

// ProcessRequest runs app on a protected-data address
type ProcessRequest struct {
	ProtectedData string `json:"protectedData"`
	App           string `json:"app"`
	Workerpool    string `json:"workerpool"`
	// Requester must hold a grant when set
	Requester string `json:"requester,omitempty"`
}

type ProcessResponse struct {
	TaskID string `json:"taskId"`
	// Result is the JSON document produced by the task
	Result string `json:"result"`
}

// Backend is the confidential-computation protocol. Implementations are
// the HTTP gateway, the enclave RPC transport and the in-process enclave.
type Backend interface {
	ProtectData(ctx context.Context, req ProtectRequest) (ProtectResponse, error)
	GrantAccess(ctx context.Context, req GrantRequest) (GrantResponse, error)
	ProcessProtectedData(ctx context.Context, req ProcessRequest) (ProcessResponse, error)
}

// ExecutionResult is the outcome of Client.Execute
type ExecutionResult struct {
	TaskID string                    `json:"taskId"`
	Result *models.AttestationResult `json:"result"`
}

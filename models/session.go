package models

// Status is a state of the verification state machine
type Status string

const (
	StatusIdle       Status = "idle"
	StatusEncrypting Status = "encrypting"
	StatusComputing  Status = "computing"
	StatusVerifying  Status = "verifying"
	StatusSubmitting Status = "submitting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether only Reset can leave the status
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step is one entry of the user-facing progress list
type Step struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Steps is the 7-entry progress list driven by the state machine
var Steps = []Step{
	{Index: 0, Name: "connect", Title: "Connect wallet"},
	{Index: 1, Name: "details", Title: "Enter identity details"},
	{Index: 2, Name: "encrypt", Title: "Encrypt identity data"},
	{Index: 3, Name: "prove", Title: "Generate zero-knowledge proof"},
	{Index: 4, Name: "attest", Title: "Confidential verification"},
	{Index: 5, Name: "submit", Title: "Submit on-chain"},
	{Index: 6, Name: "complete", Title: "Verification complete"},
}

// StepIndex maps an active status to its entry in Steps
func StepIndex(s Status) int {
	switch s {
	case StatusEncrypting:
		return 2
	case StatusComputing:
		return 3
	case StatusVerifying:
		return 4
	case StatusSubmitting:
		return 5
	case StatusCompleted:
		return 6
	}
	return 0
}

// VerificationSession is a read-only snapshot of an orchestrator session
type VerificationSession struct {
	ID                  string               `json:"id"`
	Generation          uint64               `json:"generation"`
	Status              Status               `json:"status"`
	CurrentStepIndex    int                  `json:"currentStepIndex"`
	Subject             string               `json:"subject,omitempty"`
	Commitment          string               `json:"commitment,omitempty"`
	ProtectedDataHandle *ProtectedDataHandle `json:"protectedDataHandle,omitempty"`
	ProofArtifact       *ProofArtifact       `json:"proofArtifact,omitempty"`
	TaskID              string               `json:"taskId,omitempty"`
	AttestationResult   *AttestationResult   `json:"attestationResult,omitempty"`
	LedgerReceipt       *LedgerReceipt       `json:"ledgerReceipt,omitempty"`
	Error               *SessionError        `json:"error,omitempty"`
}

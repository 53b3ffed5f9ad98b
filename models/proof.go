package models

import (
	"fmt"
	"time"
)

// CircuitType selects the statement a proof is checked against
type CircuitType string

const (
	CircuitAge      CircuitType = "age"
	CircuitDocument CircuitType = "document"
	CircuitKYC      CircuitType = "kyc"
)

// Circuit identifiers of the compiled gnark circuits
const (
	CircuitIDAge         = "age-v1"
	CircuitIDValidity    = "document-validity-v1"
	CircuitIDNationality = "nationality-v1"
	CircuitIDKYC         = "kyc-v1"
)

// ProofArtifact is produced once by the generator and never mutated.
//
// PublicSignals is the protocol-defined, ordered outcome list. Statement is
// the full ordered public input of the circuit (decimal field elements) the
// proof was produced for; for composite proofs it is empty and the
// sub-statements live inside Proof.
type ProofArtifact struct {
	Circuit       string    `json:"circuit"`
	Proof         []byte    `json:"proof"`
	ProofHash     string    `json:"proofHash"`
	PublicSignals []string  `json:"publicSignals"`
	Statement     []string  `json:"statement,omitempty"`
	NullifierHash string    `json:"nullifierHash"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Signal renders a boolean public signal
func Signal(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ProtectedDataHandle references data owned by the confidential backend
type ProtectedDataHandle struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Owner   string `json:"owner,omitempty"`
}

// ProtectedPayload is the plaintext handed to the confidential backend. Only
// the enclave ever sees it decrypted.
type ProtectedPayload struct {
	Subject        string       `json:"subject" cbor:"1,keyasint"`
	DocumentType   DocumentType `json:"documentType" cbor:"2,keyasint"`
	DocumentNumber string       `json:"documentNumber,omitempty" cbor:"3,keyasint,omitempty"`
	DocumentHash   string       `json:"documentHash" cbor:"4,keyasint"`
	DateOfBirth    string       `json:"dateOfBirth" cbor:"5,keyasint"`
	DocumentExpiry string       `json:"documentExpiry" cbor:"6,keyasint"`
	Nationality    string       `json:"nationality" cbor:"7,keyasint"`
	Commitment     string       `json:"commitment" cbor:"8,keyasint"`
	NullifierHash  string       `json:"nullifierHash" cbor:"9,keyasint"`
	RequestedAt    int64        `json:"requestedAt" cbor:"10,keyasint"`
	// MinimumAge is the threshold the local proof was made for, 0 when unset
	MinimumAge     int          `json:"minimumAge,omitempty" cbor:"11,keyasint,omitempty"`
}

// Attributes are the boolean facts asserted by an attestation
type Attributes struct {
	IsAdult         bool `json:"isAdult"`
	IsNotExpired    bool `json:"isNotExpired"`
	IsNotSanctioned bool `json:"isNotSanctioned"`
}

// AttestationResult is the signed outcome of one confidential execution
type AttestationResult struct {
	IsValid          bool       `json:"isValid"`
	Timestamp        int64      `json:"timestamp"`
	ProofHash        string     `json:"proofHash"`
	EnclaveSignature string     `json:"enclaveSignature"`
	Signer           string     `json:"signer,omitempty"`
	Subject          string     `json:"subject"`
	Attributes       Attributes `json:"attributes"`
}

// LedgerReceipt binds a submitted attestation to the ledger
type LedgerReceipt struct {
	TxHash          string `json:"txHash"`
	Subject         string `json:"subject"`
	ProofHash       string `json:"proofHash"`
	ExpiryTimestamp int64  `json:"expiryTimestamp"`
	SubmittedAt     int64  `json:"submittedAt"`
}

// Check reports whether a parsed attestation has the required shape
func (a *AttestationResult) Check() error {
	switch {
	case a == nil:
		return fmt.Errorf("%w: empty attestation", ErrResultParse)
	case len(a.ProofHash) != 64:
		return fmt.Errorf("%w: proof hash has %d characters", ErrResultParse, len(a.ProofHash))
	case a.EnclaveSignature == "":
		return fmt.Errorf("%w: attestation is not signed", ErrResultParse)
	case a.Timestamp <= 0:
		return fmt.Errorf("%w: attestation has no timestamp", ErrResultParse)
	}
	return nil
}

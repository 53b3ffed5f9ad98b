package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/enclave"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/models"
)

// ValidityPeriod is how long a submitted verification stays valid
const ValidityPeriod = 365 * 24 * time.Hour

// ErrUnauthorized is returned when a privileged call comes from a non-admin
var ErrUnauthorized = errors.New("caller is not the registry admin")

// Submission is one submitProof call
type Submission struct {
	Subject          string `json:"subject"`
	Result           bool   `json:"result"`
	ProofHash        string `json:"proofHash"`
	EnclaveSignature string `json:"enclaveSignature"`
	ExpiryTimestamp  int64  `json:"expiryTimestamp"`
	// Attestation is what the enclave signed; the registry authenticates
	// the submission against it
	Attestation *models.AttestationResult `json:"attestation"`
}

// NewSubmission builds the submission for att, expiring ValidityPeriod
// after the attestation timestamp
func NewSubmission(att *models.AttestationResult) Submission {
	return Submission{
		Subject:          att.Subject,
		Result:           att.IsValid,
		ProofHash:        att.ProofHash,
		EnclaveSignature: att.EnclaveSignature,
		ExpiryTimestamp:  att.Timestamp + int64(ValidityPeriod/time.Second),
		Attestation:      att,
	}
}

// Submitter hands attestations to the ledger
type Submitter interface {
	Submit(ctx context.Context, s Submission) (models.LedgerReceipt, error)
}

// Verification is the stored state for one subject
type Verification struct {
	IsVerified            bool   `json:"isVerified"`
	VerificationTimestamp int64  `json:"verificationTimestamp"`
	ProofHash             string `json:"proofHash"`
	ExpiryTimestamp       int64  `json:"expiryTimestamp"`
	Revoked               bool   `json:"revoked,omitempty"`
	TxHash                string `json:"txHash,omitempty"`
}

// Registry is an in-memory verification registry with the contract's
// semantics. Subjects are stored lowercase.
type Registry struct {
	mu      sync.RWMutex
	trusted ethcommon.Address
	admin   ethcommon.Address
	entries map[string]Verification
	nonce   uint64
	logger  logging.Logger

	Now func() time.Time
}

var _ Submitter = (*Registry)(nil)

// NewRegistry accepts attestations signed by trusted; admin may revoke
func NewRegistry(trusted, admin ethcommon.Address, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		trusted: trusted,
		admin:   admin,
		entries: make(map[string]Verification),
		logger:  logger,
		Now:     time.Now,
	}
}

func (r *Registry) Submit(_ context.Context, s Submission) (models.LedgerReceipt, error) {
	subject, err := common.NormalizeSubject(s.Subject)
	if err != nil {
		return models.LedgerReceipt{}, fmt.Errorf("%w: %v", models.ErrLedgerSubmission, err)
	}
	if err := r.authenticate(subject, s); err != nil {
		return models.LedgerReceipt{}, fmt.Errorf("%w: %v", models.ErrLedgerSubmission, err)
	}

	now := r.Now().Unix()
	if s.ExpiryTimestamp <= now {
		return models.LedgerReceipt{}, fmt.Errorf("%w: expiry %d is not in the future", models.ErrLedgerSubmission, s.ExpiryTimestamp)
	}
	if s.ExpiryTimestamp > now+int64(ValidityPeriod/time.Second) {
		return models.LedgerReceipt{}, fmt.Errorf("%w: expiry %d exceeds the validity window", models.ErrLedgerSubmission, s.ExpiryTimestamp)
	}

	calldata, err := SubmitProofCalldata(s)
	if err != nil {
		return models.LedgerReceipt{}, fmt.Errorf("%w: %v", models.ErrLedgerSubmission, err)
	}

	r.mu.Lock()
	r.nonce++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], r.nonce)
	tx := crypto.Keccak256Hash(calldata, n[:]).Hex()
	r.entries[subject] = Verification{
		IsVerified:            s.Result,
		VerificationTimestamp: now,
		ProofHash:             strings.ToLower(s.ProofHash),
		ExpiryTimestamp:       s.ExpiryTimestamp,
		TxHash:                tx,
	}
	r.mu.Unlock()

	r.logger.Info("verification submitted", "subject", subject, "tx", tx, "result", s.Result)
	return models.LedgerReceipt{
		TxHash:          tx,
		Subject:         subject,
		ProofHash:       s.ProofHash,
		ExpiryTimestamp: s.ExpiryTimestamp,
		SubmittedAt:     now,
	}, nil
}

func (r *Registry) authenticate(subject string, s Submission) error {
	att := s.Attestation
	if att == nil {
		return fmt.Errorf("%w: missing attestation", enclave.ErrSignature)
	}
	if !common.SameSubject(att.Subject, subject) ||
		att.IsValid != s.Result ||
		!strings.EqualFold(att.ProofHash, s.ProofHash) ||
		att.EnclaveSignature != s.EnclaveSignature {
		return errors.New("submission does not match its attestation")
	}
	return enclave.VerifyAttestation(att, r.trusted)
}

// IsVerified reports a live, positive, unrevoked verification
func (r *Registry) IsVerified(subject string) bool {
	v, ok := r.GetVerification(subject)
	return ok && v.IsVerified
}

// GetVerification returns the stored verification. IsVerified is false
// once the entry expired or was revoked.
func (r *Registry) GetVerification(subject string) (Verification, bool) {
	key, err := common.NormalizeSubject(subject)
	if err != nil {
		return Verification{}, false
	}
	r.mu.RLock()
	v, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return Verification{}, false
	}
	if v.Revoked || r.Now().Unix() >= v.ExpiryTimestamp {
		v.IsVerified = false
	}
	return v, true
}

// RevokeVerification clears subject's verification; only admin may call it
func (r *Registry) RevokeVerification(caller ethcommon.Address, subject string) error {
	if caller != r.admin {
		return ErrUnauthorized
	}
	key, err := common.NormalizeSubject(subject)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	if !ok {
		return fmt.Errorf("%w: no verification for %s", models.ErrInvalidInput, key)
	}
	v.Revoked = true
	v.IsVerified = false
	r.entries[key] = v
	r.logger.Info("verification revoked", "subject", key)
	return nil
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/ledger"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/models"
	"github.com/mynextid/zk-kyc/prover"
)

// ErrNotIdle is returned by Run on a session that needs a Reset first
var ErrNotIdle = fmt.Errorf("%w: session is not idle", models.ErrInvalidInput)

// Subject is the connected identity a session is bound to
type Subject struct {
	Address string `json:"address"`
	ChainID int64  `json:"chainId"`
}

// Config holds the collaborators a session drives
type Config struct {
	Generator *prover.Generator
	Verifier  *prover.Verifier
	Attester  Attester
	// Ledger may be nil; sessions then complete without a receipt
	Ledger ledger.Submitter
	// RequiredChainID rejects subjects on another chain when non-zero
	RequiredChainID int64
	Logger          logging.Logger
	Now             func() time.Time
}

// Session runs one verification attempt at a time through the state
// machine idle, encrypting, computing, verifying, submitting, completed,
// with failed reachable from every active state.
type Session struct {
	cfg    Config
	logger logging.Logger

	mu         sync.Mutex
	state      models.VerificationSession
	generation uint64
	running    bool
	observers  []func(models.VerificationSession)
}

func NewSession(id string, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{cfg: cfg, logger: cfg.Logger.With("session_id", id)}
	s.state = idle(id, 0)
	return s
}

func idle(id string, generation uint64) models.VerificationSession {
	return models.VerificationSession{ID: id, Generation: generation, Status: models.StatusIdle}
}

// OnTransition registers fn to receive a snapshot after every transition.
// fn runs on the session's goroutine and must not call back into it.
func (s *Session) OnTransition(fn func(models.VerificationSession)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() models.VerificationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() models.VerificationSession {
	out := s.state
	if out.ProtectedDataHandle != nil {
		h := *out.ProtectedDataHandle
		out.ProtectedDataHandle = &h
	}
	if out.ProofArtifact != nil {
		a := *out.ProofArtifact
		out.ProofArtifact = &a
	}
	if out.AttestationResult != nil {
		a := *out.AttestationResult
		out.AttestationResult = &a
	}
	if out.LedgerReceipt != nil {
		r := *out.LedgerReceipt
		out.LedgerReceipt = &r
	}
	if out.Error != nil {
		e := *out.Error
		out.Error = &e
	}
	return out
}

// Reset abandons the current attempt. In-flight steps are not cancelled;
// their results are discarded when they settle.
func (s *Session) Reset() models.VerificationSession {
	s.mu.Lock()
	s.generation++
	s.running = false
	s.state = idle(s.state.ID, s.generation)
	snap, observers := s.snapshot(), s.observers
	s.mu.Unlock()

	s.logger.Info("session reset", "generation", snap.Generation)
	notify(observers, snap)
	return snap
}

// Run drives one attempt to a terminal state. record is zeroed when Run
// returns. A failed attempt returns the terminal snapshot and its error.
func (s *Session) Run(ctx context.Context, subject Subject, record *models.IdentityRecord, opts prover.KYCOptions) (models.VerificationSession, error) {
	if record != nil {
		defer record.Zero()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return s.Snapshot(), models.ErrSessionBusy
	}
	if s.state.Status != models.StatusIdle {
		snap := s.snapshot()
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: status %s, reset it first", ErrNotIdle, snap.Status)
	}
	s.running = true
	gen := s.generation
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.generation == gen {
			s.running = false
		}
		s.mu.Unlock()
	}()

	r := &run{Session: s, gen: gen}
	err := r.pipeline(ctx, subject, record, opts)

	s.mu.Lock()
	stale := s.generation != gen
	snap := s.snapshot()
	s.mu.Unlock()
	if stale {
		s.logger.Warn("discarding result of a reset attempt", "generation", gen)
		return snap, models.ErrStaleSession
	}
	return snap, err
}

// run is one generation of a session
type run struct {
	*Session
	gen uint64
	// step is the active status, used to attribute failures
	step models.Status
}

func (r *run) pipeline(ctx context.Context, subject Subject, record *models.IdentityRecord, opts prover.KYCOptions) error {
	r.step = models.StatusIdle

	address, err := r.bind(subject)
	if err != nil {
		return r.fail(err, 0)
	}
	if record == nil {
		return r.fail(fmt.Errorf("%w: identity record is required", models.ErrValidation), 1)
	}
	if err := record.Validate(); err != nil {
		return r.fail(err, 1)
	}

	// encrypting
	if err := r.enter(models.StatusEncrypting, func(st *models.VerificationSession) { st.Subject = address }); err != nil {
		return err
	}
	payload, err := r.payload(record, address, opts.MinimumAge)
	if err != nil {
		return r.fail(err, -1)
	}
	handle, err := r.cfg.Attester.Protect(ctx, payload, address)
	if err != nil {
		return r.fail(err, -1)
	}
	if !r.apply(func(st *models.VerificationSession) {
		st.Commitment = payload.Commitment
		st.ProtectedDataHandle = &handle
	}) {
		return models.ErrStaleSession
	}

	// computing
	if err := r.enter(models.StatusComputing, nil); err != nil {
		return err
	}
	artifact, err := r.cfg.Generator.ProveFullKYC(ctx, record, address, opts)
	if err != nil {
		return r.fail(err, -1)
	}
	if err := r.cfg.Verifier.Check(artifact, models.CircuitKYC); err != nil {
		return r.fail(fmt.Errorf("%w: kyc proof rejected: %v", models.ErrLocalProofInvalid, err), -1)
	}
	if !r.apply(func(st *models.VerificationSession) { st.ProofArtifact = artifact }) {
		return models.ErrStaleSession
	}
	if artifact.PublicSignals[0] != "1" {
		return r.fail(fmt.Errorf("%w: proof shows the requirements are not met (age %s, document %s, nationality %s)",
			models.ErrLocalProofInvalid, artifact.PublicSignals[1], artifact.PublicSignals[2], artifact.PublicSignals[3]), -1)
	}

	// verifying
	if err := r.enter(models.StatusVerifying, nil); err != nil {
		return err
	}
	att, taskID, err := r.cfg.Attester.Attest(ctx, handle, address)
	if err != nil {
		return r.fail(err, -1)
	}
	if !common.SameSubject(att.Subject, address) {
		return r.fail(fmt.Errorf("%w: attestation is for %s", models.ErrResultParse, att.Subject), -1)
	}
	if !r.apply(func(st *models.VerificationSession) {
		st.TaskID = taskID
		st.AttestationResult = att
	}) {
		return models.ErrStaleSession
	}
	if !att.IsValid {
		return r.fail(fmt.Errorf("%w: attributes %+v", models.ErrAttestationInvalid, att.Attributes), -1)
	}

	// submitting
	if err := r.enter(models.StatusSubmitting, nil); err != nil {
		return err
	}
	var receipt *models.LedgerReceipt
	if r.cfg.Ledger == nil {
		r.logger.Warn("no ledger configured, completing without a receipt")
	} else {
		rc, err := r.cfg.Ledger.Submit(ctx, ledger.NewSubmission(att))
		if err != nil {
			if !errors.Is(err, models.ErrLedgerSubmission) {
				err = fmt.Errorf("%w: %v", models.ErrLedgerSubmission, err)
			}
			return r.fail(err, -1)
		}
		receipt = &rc
	}

	return r.enter(models.StatusCompleted, func(st *models.VerificationSession) { st.LedgerReceipt = receipt })
}

func (r *run) bind(subject Subject) (string, error) {
	if subject.Address == "" {
		return "", fmt.Errorf("%w: connect a wallet first", models.ErrSubjectBinding)
	}
	address, err := common.NormalizeSubject(subject.Address)
	if err != nil {
		return "", err
	}
	if r.cfg.RequiredChainID != 0 && subject.ChainID != r.cfg.RequiredChainID {
		return "", fmt.Errorf("%w: subject is on chain %d, want %d", models.ErrNetworkMismatch, subject.ChainID, r.cfg.RequiredChainID)
	}
	return address, nil
}

func (r *run) payload(record *models.IdentityRecord, subject string, minimumAge int) (*models.ProtectedPayload, error) {
	if minimumAge == 0 {
		minimumAge = prover.DefaultMinimumAge
	}
	commitment, err := common.DeriveCommitment(record.CommitmentSubset())
	if err != nil {
		return nil, err
	}
	return &models.ProtectedPayload{
		Subject:        subject,
		DocumentType:   record.DocumentType,
		DocumentNumber: record.DocumentNumber,
		DocumentHash:   common.DigestString(record.DocumentNumber),
		DateOfBirth:    record.DateOfBirth,
		DocumentExpiry: record.DocumentExpiry,
		Nationality:    record.Nationality,
		Commitment:     commitment,
		NullifierHash:  prover.KYCNullifier(record.DocumentType, record.DocumentNumber, subject),
		RequestedAt:    r.cfg.Now().Unix(),
		MinimumAge:     minimumAge,
	}, nil
}

// apply mutates the state if the generation is still current
func (r *run) apply(mutate func(st *models.VerificationSession)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != r.gen {
		return false
	}
	mutate(&r.state)
	return true
}

// enter moves forward to status and advances the step index
func (r *run) enter(status models.Status, mutate func(st *models.VerificationSession)) error {
	r.mu.Lock()
	if r.generation != r.gen {
		r.mu.Unlock()
		return models.ErrStaleSession
	}
	r.state.Status = status
	r.state.CurrentStepIndex = models.StepIndex(status)
	if mutate != nil {
		mutate(&r.state)
	}
	snap, observers := r.snapshot(), r.observers
	r.mu.Unlock()

	r.step = status
	r.logger.Debug("session transition", "status", status, "step", snap.CurrentStepIndex)
	notify(observers, snap)
	return nil
}

// fail moves to failed. index >= 0 sets the frozen step index for failures
// raised before the first active state.
func (r *run) fail(cause error, index int) error {
	r.mu.Lock()
	if r.generation != r.gen {
		r.mu.Unlock()
		return models.ErrStaleSession
	}
	serr := models.NewSessionError(r.step, cause)
	r.state.Status = models.StatusFailed
	if index >= 0 {
		r.state.CurrentStepIndex = index
	}
	r.state.Error = serr
	snap, observers := r.snapshot(), r.observers
	r.mu.Unlock()

	r.logger.Warn("session failed", "step", r.step, "kind", serr.Kind, "error", cause)
	notify(observers, snap)
	return cause
}

func notify(observers []func(models.VerificationSession), snap models.VerificationSession) {
	for _, fn := range observers {
		fn(snap)
	}
}

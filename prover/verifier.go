package prover

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/consensys/gnark/frontend"
	cm "github.com/mynextid/zk-kyc/circuits/membership"
	ct "github.com/mynextid/zk-kyc/circuits/temporal"
	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/models"
)

var errMalformed = errors.New("malformed proof")

// VerificationResult is the outcome of Verifier.Verify
type VerificationResult struct {
	IsValid       bool     `json:"isValid"`
	NullifierHash string   `json:"nullifierHash"`
	PublicOutputs []string `json:"publicOutputs"`
}

func invalid() VerificationResult {
	return VerificationResult{PublicOutputs: []string{}}
}

// publicCircuit is a circuit whose public inputs can be set from a statement
type publicCircuit interface {
	frontend.Circuit
	Assign(statement []string) error
}

func newPublicCircuit(id string) (publicCircuit, error) {
	switch id {
	case models.CircuitIDAge:
		return &ct.AgeCircuit{}, nil
	case models.CircuitIDValidity:
		return &ct.ValidityCircuit{}, nil
	case models.CircuitIDNationality:
		return &cm.NationalityCircuit{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCircuit, id)
}

// Verifier checks proof artifacts cryptographically against the verifying
// keys of the proving system, then checks that the public signals are the
// ones the proof was produced for.
type Verifier struct {
	System ProvingSystem
	Logger logging.Logger
}

func NewVerifier(system ProvingSystem, logger logging.Logger) *Verifier {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Verifier{System: system, Logger: logger}
}

// Verify never fails: a malformed or forged artifact yields IsValid=false
// with empty outputs.
func (v *Verifier) Verify(proof *models.ProofArtifact, circuitType models.CircuitType) VerificationResult {
	if err := v.Check(proof, circuitType); err != nil {
		v.Logger.Debug("proof rejected", "circuit_type", circuitType, "error", err)
		return invalid()
	}

	return VerificationResult{
		IsValid:       proof.PublicSignals[0] == "1",
		NullifierHash: proof.NullifierHash,
		PublicOutputs: slices.Clone(proof.PublicSignals),
	}
}

// Check reports whether proof is well formed, cryptographically valid and
// consistent with its public signals. A proof of a negative outcome
// (first signal "0") passes.
func (v *Verifier) Check(proof *models.ProofArtifact, circuitType models.CircuitType) (err error) {
	defer func() {
		if r := recover(); r != nil {
			v.Logger.Warn("proof verification panicked", "circuit_type", circuitType, "panic", fmt.Sprint(r))
			err = fmt.Errorf("%w: verification panicked: %v", errMalformed, r)
		}
	}()
	return v.check(proof, circuitType)
}

func (v *Verifier) check(proof *models.ProofArtifact, circuitType models.CircuitType) error {
	if proof == nil {
		return fmt.Errorf("%w: no artifact", errMalformed)
	}
	if !common.IsDigest(proof.ProofHash) {
		return fmt.Errorf("%w: proof hash %q", errMalformed, proof.ProofHash)
	}
	if len(proof.PublicSignals) == 0 {
		return fmt.Errorf("%w: no public signals", errMalformed)
	}
	if !common.IsDigest(proof.NullifierHash) {
		return fmt.Errorf("%w: nullifier hash %q", errMalformed, proof.NullifierHash)
	}

	switch circuitType {
	case models.CircuitAge:
		return v.checkLeaf(proof, models.CircuitIDAge)
	case models.CircuitDocument:
		return v.checkLeaf(proof, models.CircuitIDValidity)
	case models.CircuitKYC:
		return v.checkKYC(proof)
	}
	return fmt.Errorf("%w: circuit type %q", errMalformed, circuitType)
}

func (v *Verifier) checkLeaf(a *models.ProofArtifact, id string) error {
	if a == nil {
		return fmt.Errorf("%w: missing %s proof", errMalformed, id)
	}
	if a.Circuit != id {
		return fmt.Errorf("%w: artifact is for %q, want %q", errMalformed, a.Circuit, id)
	}
	if common.Digest(a.Proof) != a.ProofHash {
		return fmt.Errorf("%w: proof hash does not match proof", errMalformed)
	}

	public, err := newPublicCircuit(id)
	if err != nil {
		return err
	}
	if err := public.Assign(a.Statement); err != nil {
		return err
	}

	binding, err := common.ToField(a.NullifierHash)
	if err != nil {
		return err
	}
	if a.Statement[len(a.Statement)-1] != binding.String() {
		return fmt.Errorf("%w: proof is not bound to its nullifier", errMalformed)
	}

	if err := v.System.Verify(id, a.Proof, public); err != nil {
		return err
	}

	// the signals must be the proven outcome
	var want []string
	switch id {
	case models.CircuitIDAge:
		want = a.Statement[:3]
	case models.CircuitIDValidity:
		if a.Statement[3] != strconv.Itoa(ct.MinimumValidityDays) {
			return fmt.Errorf("%w: unexpected validity horizon %s", errMalformed, a.Statement[3])
		}
		want = a.Statement[:2]
	case models.CircuitIDNationality:
		want = a.Statement[cm.MaxAllowed+1 : cm.MaxAllowed+2]
	}
	if !slices.Equal(a.PublicSignals, want) {
		return fmt.Errorf("%w: public signals %v do not match the proven statement", errMalformed, a.PublicSignals)
	}
	return nil
}

func (v *Verifier) checkKYC(a *models.ProofArtifact) error {
	if a.Circuit != models.CircuitIDKYC {
		return fmt.Errorf("%w: artifact is for %q", errMalformed, a.Circuit)
	}
	if len(a.PublicSignals) != 5 {
		return fmt.Errorf("%w: kyc proof has %d signals", errMalformed, len(a.PublicSignals))
	}

	var b KYCBundle
	if err := json.Unmarshal(a.Proof, &b); err != nil {
		return fmt.Errorf("%w: kyc bundle: %v", errMalformed, err)
	}
	if KYCProofHash(&b) != a.ProofHash {
		return fmt.Errorf("%w: proof hash does not match bundle", errMalformed)
	}

	subs := []struct {
		artifact *models.ProofArtifact
		id       string
	}{
		{b.Age, models.CircuitIDAge},
		{b.Document, models.CircuitIDValidity},
		{b.Nationality, models.CircuitIDNationality},
	}
	for _, s := range subs {
		if err := v.checkLeaf(s.artifact, s.id); err != nil {
			return err
		}
		if s.artifact.NullifierHash != a.NullifierHash {
			return fmt.Errorf("%w: %s proof has a different nullifier", errMalformed, s.id)
		}
	}

	isAge := b.Age.PublicSignals[0] == "1"
	isDoc := b.Document.PublicSignals[0] == "1"
	isNat := b.Nationality.PublicSignals[0] == "1"
	want := []string{
		models.Signal(isAge && isDoc && isNat),
		b.Age.PublicSignals[0],
		b.Document.PublicSignals[0],
		b.Nationality.PublicSignals[0],
		b.Age.PublicSignals[1],
	}
	if !slices.Equal(a.PublicSignals, want) {
		return fmt.Errorf("%w: public signals %v do not match the sub-proofs", errMalformed, a.PublicSignals)
	}
	return nil
}

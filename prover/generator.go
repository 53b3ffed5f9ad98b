package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/consensys/gnark/frontend"
	cm "github.com/mynextid/zk-kyc/circuits/membership"
	ct "github.com/mynextid/zk-kyc/circuits/temporal"
	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/models"
	"golang.org/x/sync/errgroup"
)

// DefaultMinimumAge applies when KYCOptions leaves MinimumAge unset
const DefaultMinimumAge = 18

// KYCOptions parameterizes a full KYC proof
type KYCOptions struct {
	MinimumAge           int      `json:"minimumAge,omitempty"`
	// AllowedNationalities restricts nationality when it has entries; nil
	// and empty both mean unrestricted
	AllowedNationalities []string `json:"allowedNationalities,omitempty"`
}

// KYCBundle is the proof blob of a full KYC artifact
type KYCBundle struct {
	Timestamp   int64                 `json:"timestamp"`
	Age         *models.ProofArtifact `json:"age"`
	Document    *models.ProofArtifact `json:"document"`
	Nationality *models.ProofArtifact `json:"nationality"`
}

// statementCircuit is implemented by every circuit of the pipeline
type statementCircuit interface {
	frontend.Circuit
	Statement() ([]string, error)
}

// Generator builds proof artifacts from private identity data
type Generator struct {
	System ProvingSystem
	Logger logging.Logger
	// Now is the clock "today" is taken from
	Now func() time.Time
}

func NewGenerator(system ProvingSystem, logger logging.Logger) *Generator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Generator{System: system, Logger: logger, Now: time.Now}
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now().UTC()
	}
	return g.Now().UTC()
}

// AgeNullifier scopes a standalone age proof to (date of birth, subject)
func AgeNullifier(dob, subject string) string {
	return common.DeriveNullifier(common.DigestString("age:"+strings.TrimSpace(dob)), subject)
}

// DocumentNullifier scopes a standalone validity proof to (document, subject)
func DocumentNullifier(documentType models.DocumentType, expiry, subject string) string {
	return common.DeriveNullifier(common.DigestString(string(documentType)+":"+strings.TrimSpace(expiry)), subject)
}

// KYCNullifier is shared by every sub-proof of a full KYC proof. It depends
// on the document and subject only, so repeated attempts collide.
func KYCNullifier(documentType models.DocumentType, documentNumber, subject string) string {
	return common.DeriveNullifier(common.DocumentDigest(documentType, documentNumber), subject)
}

// ProveAge proves that dob is at least minimumAge calendar years before
// today. Signals: [isAboveMinimumAge, minimumAge, currentYear].
func (g *Generator) ProveAge(ctx context.Context, dob string, minimumAge int, subject string) (*models.ProofArtifact, error) {
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	return g.proveAge(ctx, dob, minimumAge, AgeNullifier(dob, subject), g.now())
}

func (g *Generator) proveAge(ctx context.Context, dob string, minimumAge int, nullifier string, now time.Time) (*models.ProofArtifact, error) {
	birth, err := models.ParseDate(dob)
	if err != nil {
		return nil, err
	}
	if minimumAge < 0 || minimumAge > 150 {
		return nil, fmt.Errorf("%w: minimum age %d out of range", models.ErrInvalidInput, minimumAge)
	}

	binding, err := common.ToField(nullifier)
	if err != nil {
		return nil, err
	}
	assignment := ct.NewAgeAssignment(birth, now, minimumAge, binding)

	signals := []string{
		strconv.Itoa(assignment.IsAboveMinimumAge.(int)),
		strconv.Itoa(minimumAge),
		strconv.Itoa(now.Year()),
	}
	return g.prove(ctx, models.CircuitIDAge, assignment, signals, nullifier, now)
}

// ProveDocumentValidity proves that expiry is after today and more than
// MinimumValidityDays after it. Signals: [isValid, hasMinimumValidity].
func (g *Generator) ProveDocumentValidity(ctx context.Context, expiry string, documentType models.DocumentType, subject string) (*models.ProofArtifact, error) {
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	if !documentType.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", models.ErrInvalidInput, documentType)
	}
	return g.proveValidity(ctx, expiry, DocumentNullifier(documentType, expiry, subject), g.now())
}

func (g *Generator) proveValidity(ctx context.Context, expiry, nullifier string, now time.Time) (*models.ProofArtifact, error) {
	exp, err := models.ParseDate(expiry)
	if err != nil {
		return nil, err
	}

	binding, err := common.ToField(nullifier)
	if err != nil {
		return nil, err
	}
	assignment := ct.NewValidityAssignment(exp, now, binding)

	signals := []string{
		strconv.Itoa(assignment.IsValid.(int)),
		strconv.Itoa(assignment.HasMinimumValidity.(int)),
	}
	return g.prove(ctx, models.CircuitIDValidity, assignment, signals, nullifier, now)
}

func (g *Generator) proveNationality(ctx context.Context, nationality string, allowed []string, nullifier string, now time.Time) (*models.ProofArtifact, error) {
	binding, err := common.ToField(nullifier)
	if err != nil {
		return nil, err
	}
	assignment, err := cm.NewNationalityAssignment(nationality, allowed, binding)
	if err != nil {
		return nil, err
	}

	signals := []string{strconv.Itoa(assignment.IsNationalityValid.(int))}
	return g.prove(ctx, models.CircuitIDNationality, assignment, signals, nullifier, now)
}

// ProveFullKYC composes the age, validity and nationality proofs. Signals:
// [isFullyValid, isAgeValid, isDocValid, isNationalityValid, minimumAge].
func (g *Generator) ProveFullKYC(ctx context.Context, record *models.IdentityRecord, subject string, opts KYCOptions) (*models.ProofArtifact, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: identity record is required", models.ErrInvalidInput)
	}
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	if !record.DocumentType.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", models.ErrInvalidInput, record.DocumentType)
	}
	if opts.MinimumAge == 0 {
		opts.MinimumAge = DefaultMinimumAge
	}

	now := g.now()
	nullifier := KYCNullifier(record.DocumentType, record.DocumentNumber, subject)

	var bundle KYCBundle
	bundle.Timestamp = now.UnixMilli()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		bundle.Age, err = g.proveAge(egCtx, record.DateOfBirth, opts.MinimumAge, nullifier, now)
		return err
	})
	eg.Go(func() (err error) {
		bundle.Document, err = g.proveValidity(egCtx, record.DocumentExpiry, nullifier, now)
		return err
	})
	eg.Go(func() (err error) {
		bundle.Nationality, err = g.proveNationality(egCtx, record.Nationality, opts.AllowedNationalities, nullifier, now)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	isAge := bundle.Age.PublicSignals[0] == "1"
	isDoc := bundle.Document.PublicSignals[0] == "1"
	isNat := bundle.Nationality.PublicSignals[0] == "1"

	blob, err := json.Marshal(&bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: kyc bundle: %v", models.ErrEncoding, err)
	}

	artifact := &models.ProofArtifact{
		Circuit:   models.CircuitIDKYC,
		Proof:     blob,
		ProofHash: KYCProofHash(&bundle),
		PublicSignals: []string{
			models.Signal(isAge && isDoc && isNat),
			models.Signal(isAge),
			models.Signal(isDoc),
			models.Signal(isNat),
			strconv.Itoa(opts.MinimumAge),
		},
		NullifierHash: nullifier,
		CreatedAt:     now,
	}

	g.Logger.Debug("kyc proof generated",
		"proof_hash", artifact.ProofHash,
		"fully_valid", artifact.PublicSignals[0],
	)
	return artifact, nil
}

// KYCProofHash digests the sub-proof hashes together with the freshness
// timestamp of the bundle
func KYCProofHash(b *KYCBundle) string {
	var sb strings.Builder
	for _, a := range []*models.ProofArtifact{b.Age, b.Document, b.Nationality} {
		if a != nil {
			sb.WriteString(a.ProofHash)
		}
	}
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatInt(b.Timestamp, 10))
	return common.DigestString(sb.String())
}

func (g *Generator) prove(ctx context.Context, id string, assignment statementCircuit, signals []string, nullifier string, now time.Time) (*models.ProofArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	statement, err := assignment.Statement()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	proof, err := g.System.Generate(id, assignment)
	if err != nil {
		return nil, fmt.Errorf("prove %s: %w", id, err)
	}
	g.Logger.Debug("proof generated", "circuit", id, "duration_ms", time.Since(start).Milliseconds())

	return &models.ProofArtifact{
		Circuit:       id,
		Proof:         proof,
		ProofHash:     common.Digest(proof),
		PublicSignals: signals,
		Statement:     statement,
		NullifierHash: nullifier,
		CreatedAt:     now,
	}, nil
}

func checkSubject(subject string) error {
	if strings.TrimSpace(subject) == "" {
		return fmt.Errorf("%w: subject is required", models.ErrInvalidInput)
	}
	return nil
}

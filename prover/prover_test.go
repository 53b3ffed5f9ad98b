package prover_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/mynextid/zk-kyc/models"
	"github.com/mynextid/zk-kyc/prover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subject = "0xabc0000000000000000000000000000000000001"

var (
	system *prover.Groth16
	today  = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func TestMain(m *testing.M) {
	registry := prover.NewCircuitRegistry()
	if err := registry.SetupAll(); err != nil {
		fmt.Fprintln(os.Stderr, "circuit setup failed:", err)
		os.Exit(1)
	}
	system = prover.NewGroth16(registry)
	os.Exit(m.Run())
}

func newGenerator(now time.Time) *prover.Generator {
	g := prover.NewGenerator(system, nil)
	g.Now = func() time.Time { return now }
	return g
}

func newVerifier() *prover.Verifier {
	return prover.NewVerifier(system, nil)
}

func record(nationality string) *models.IdentityRecord {
	return &models.IdentityRecord{
		DocumentType:   models.DocumentPassport,
		DocumentNumber: "P1234567",
		FullName:       "Jane Doe",
		DateOfBirth:    "2000-01-01",
		Nationality:    nationality,
		DocumentExpiry: today.AddDate(2, 0, 0).Format(models.DateLayout),
	}
}

func TestProveAgeBoundary(t *testing.T) {
	ctx := context.Background()
	g := newGenerator(today)
	v := newVerifier()

	exact, err := g.ProveAge(ctx, "2006-06-01", 18, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "18", "2024"}, exact.PublicSignals)
	res := v.Verify(exact, models.CircuitAge)
	assert.True(t, res.IsValid)
	assert.Equal(t, exact.NullifierHash, res.NullifierHash)
	assert.Equal(t, exact.PublicSignals, res.PublicOutputs)

	short, err := g.ProveAge(ctx, "2006-06-02", 18, subject)
	require.NoError(t, err)
	assert.Equal(t, "0", short.PublicSignals[0])
	res = v.Verify(short, models.CircuitAge)
	assert.False(t, res.IsValid)
	// a negative outcome is still a well-formed proof
	assert.Equal(t, short.PublicSignals, res.PublicOutputs)
}

func TestProveDocumentValidityBoundary(t *testing.T) {
	ctx := context.Background()
	g := newGenerator(today)
	v := newVerifier()

	cases := []struct {
		expiry time.Time
		want   []string
	}{
		{today.AddDate(0, 0, 31), []string{"1", "1"}},
		{today.AddDate(0, 0, 29), []string{"1", "0"}},
		{today.AddDate(0, 0, -1), []string{"0", "0"}},
	}
	for _, tc := range cases {
		expiry := tc.expiry.Format(models.DateLayout)
		t.Run(expiry, func(t *testing.T) {
			a, err := g.ProveDocumentValidity(ctx, expiry, models.DocumentPassport, subject)
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.PublicSignals)
			res := v.Verify(a, models.CircuitDocument)
			assert.Equal(t, tc.want[0] == "1", res.IsValid)
			assert.Equal(t, tc.want, res.PublicOutputs)
		})
	}
}

func TestProveFullKYCScenario(t *testing.T) {
	ctx := context.Background()
	g := newGenerator(today)
	v := newVerifier()
	opts := prover.KYCOptions{MinimumAge: 18, AllowedNationalities: []string{"Canada", "USA"}}

	age, err := g.ProveAge(ctx, "2000-01-01", 18, subject)
	require.NoError(t, err)
	assert.Equal(t, "1", age.PublicSignals[0])

	doc, err := g.ProveDocumentValidity(ctx, record("Canada").DocumentExpiry, models.DocumentPassport, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "1"}, doc.PublicSignals)

	canada, err := g.ProveFullKYC(ctx, record("Canada"), subject, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "1", "1", "1", "18"}, canada.PublicSignals)
	assert.True(t, v.Verify(canada, models.CircuitKYC).IsValid)

	germany, err := g.ProveFullKYC(ctx, record("Germany"), subject, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "1", "0", "18"}, germany.PublicSignals)
	res := v.Verify(germany, models.CircuitKYC)
	assert.False(t, res.IsValid)
	assert.Equal(t, germany.PublicSignals, res.PublicOutputs)

	// a sound proof of a negative outcome passes Check, a forged one does not
	require.NoError(t, v.Check(germany, models.CircuitKYC))
	forged := *germany
	forged.PublicSignals = []string{"1", "1", "1", "1", "18"}
	assert.Error(t, v.Check(&forged, models.CircuitKYC))
	assert.Error(t, v.Check(nil, models.CircuitKYC))
}

func TestProveFullKYCComposition(t *testing.T) {
	ctx := context.Background()
	g := newGenerator(today)
	v := newVerifier()

	for mask := 0; mask < 8; mask++ {
		ageOK, docOK, natOK := mask&1 != 0, mask&2 != 0, mask&4 != 0
		t.Run(fmt.Sprintf("age=%v/doc=%v/nat=%v", ageOK, docOK, natOK), func(t *testing.T) {
			r := record("Canada")
			if !ageOK {
				r.DateOfBirth = "2010-01-01"
			}
			if !docOK {
				r.DocumentExpiry = "2024-05-01"
			}
			if !natOK {
				r.Nationality = "Germany"
			}

			a, err := g.ProveFullKYC(ctx, r, subject, prover.KYCOptions{AllowedNationalities: []string{"Canada"}})
			require.NoError(t, err)

			want := []string{
				models.Signal(ageOK && docOK && natOK),
				models.Signal(ageOK),
				models.Signal(docOK),
				models.Signal(natOK),
				"18",
			}
			assert.Equal(t, want, a.PublicSignals)
			assert.Equal(t, ageOK && docOK && natOK, v.Verify(a, models.CircuitKYC).IsValid)
		})
	}
}

func TestNullifierStability(t *testing.T) {
	ctx := context.Background()
	opts := prover.KYCOptions{}

	first, err := newGenerator(today).ProveFullKYC(ctx, record("Canada"), subject, opts)
	require.NoError(t, err)
	second, err := newGenerator(today.Add(time.Minute)).ProveFullKYC(ctx, record("Canada"), subject, opts)
	require.NoError(t, err)

	assert.Equal(t, first.NullifierHash, second.NullifierHash)
	assert.NotEqual(t, first.ProofHash, second.ProofHash)

	other, err := newGenerator(today).ProveFullKYC(ctx, record("Canada"), "0xabc0000000000000000000000000000000000002", opts)
	require.NoError(t, err)
	assert.NotEqual(t, first.NullifierHash, other.NullifierHash)

	r := record("Canada")
	r.DocumentNumber = "P7654321"
	otherDoc, err := newGenerator(today).ProveFullKYC(ctx, r, subject, opts)
	require.NoError(t, err)
	assert.NotEqual(t, first.NullifierHash, otherDoc.NullifierHash)

	assert.Equal(t, prover.KYCNullifier(models.DocumentPassport, "P1234567", subject), first.NullifierHash)
}

func TestVerifierRejectsForgedSignals(t *testing.T) {
	ctx := context.Background()
	v := newVerifier()

	a, err := newGenerator(today).ProveAge(ctx, "2010-01-01", 18, subject)
	require.NoError(t, err)
	require.Equal(t, "0", a.PublicSignals[0])

	forged := *a
	forged.PublicSignals = []string{"1", "18", "2024"}
	res := v.Verify(&forged, models.CircuitAge)
	assert.False(t, res.IsValid)
	assert.Empty(t, res.PublicOutputs)

	// flipping the statement breaks the cryptographic check instead
	forged.Statement = append([]string{"1"}, a.Statement[1:]...)
	assert.False(t, v.Verify(&forged, models.CircuitAge).IsValid)

	kyc, err := newGenerator(today).ProveFullKYC(ctx, record("Germany"), subject, prover.KYCOptions{AllowedNationalities: []string{"Canada"}})
	require.NoError(t, err)
	forgedKYC := *kyc
	forgedKYC.PublicSignals = []string{"1", "1", "1", "1", "18"}
	assert.False(t, v.Verify(&forgedKYC, models.CircuitKYC).IsValid)
}

func TestVerifierRejectsMalformedShape(t *testing.T) {
	ctx := context.Background()
	v := newVerifier()

	a, err := newGenerator(today).ProveAge(ctx, "2000-01-01", 18, subject)
	require.NoError(t, err)

	noHash := *a
	noHash.ProofHash = ""
	res := v.Verify(&noHash, models.CircuitAge)
	assert.False(t, res.IsValid)
	assert.Empty(t, res.PublicOutputs)
	assert.Empty(t, res.NullifierHash)

	noSignals := *a
	noSignals.PublicSignals = nil
	res = v.Verify(&noSignals, models.CircuitAge)
	assert.False(t, res.IsValid)
	assert.Empty(t, res.PublicOutputs)

	assert.False(t, v.Verify(nil, models.CircuitAge).IsValid)
	assert.False(t, v.Verify(a, models.CircuitDocument).IsValid)
	assert.False(t, v.Verify(a, "unknown").IsValid)

	tampered := *a
	tampered.Proof = append([]byte{}, a.Proof...)
	tampered.Proof[len(tampered.Proof)-1] ^= 0xff
	assert.False(t, v.Verify(&tampered, models.CircuitAge).IsValid)
}

func TestGeneratorRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	g := newGenerator(today)

	_, err := g.ProveAge(ctx, "01/01/2000", 18, subject)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = g.ProveDocumentValidity(ctx, "soon", models.DocumentPassport, subject)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	r := record("Canada")
	r.DateOfBirth = "not a date"
	_, err = g.ProveFullKYC(ctx, r, subject, prover.KYCOptions{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = g.ProveAge(ctx, "2000-01-01", 18, " ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, prover.CircuitIDs(), system.Registry.IDs())
	_, err := system.Registry.Get("nope")
	assert.ErrorIs(t, err, prover.ErrUnknownCircuit)
}

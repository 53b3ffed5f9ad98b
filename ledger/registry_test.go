package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/enclave"
	"github.com/mynextid/zk-kyc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subject = "0xAbC0000000000000000000000000000000000001"

var (
	now   = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	admin = ethcommon.HexToAddress("0x00000000000000000000000000000000000000ad")
)

func signed(t *testing.T, s *enclave.Signer, valid bool) *models.AttestationResult {
	t.Helper()
	att := &models.AttestationResult{
		IsValid:    valid,
		Timestamp:  now.Unix(),
		ProofHash:  common.DigestString("batch"),
		Subject:    "0xabc0000000000000000000000000000000000001",
		Attributes: models.Attributes{IsAdult: valid, IsNotExpired: true, IsNotSanctioned: true},
	}
	require.NoError(t, s.SignAttestation(att))
	return att
}

func setup(t *testing.T) (*Registry, *enclave.Signer) {
	t.Helper()
	s, err := enclave.GenerateSigner()
	require.NoError(t, err)
	r := NewRegistry(s.Address(), admin, nil)
	r.Now = func() time.Time { return now }
	return r, s
}

func TestSubmitAndQuery(t *testing.T) {
	r, s := setup(t)
	att := signed(t, s, true)

	receipt, err := r.Submit(context.Background(), NewSubmission(att))
	require.NoError(t, err)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", receipt.Subject)
	assert.Equal(t, now.Unix()+365*24*3600, receipt.ExpiryTimestamp)
	assert.Len(t, receipt.TxHash, 66)

	// case-insensitive lookups
	assert.True(t, r.IsVerified(subject))
	assert.True(t, r.IsVerified("0xABC0000000000000000000000000000000000001"))

	v, ok := r.GetVerification(subject)
	require.True(t, ok)
	assert.Equal(t, now.Unix(), v.VerificationTimestamp)
	assert.Equal(t, att.ProofHash, v.ProofHash)

	r.Now = func() time.Time { return now.Add(ValidityPeriod) }
	assert.False(t, r.IsVerified(subject))
}

func TestSubmitRejectsUntrustedSigner(t *testing.T) {
	r, _ := setup(t)
	other, err := enclave.GenerateSigner()
	require.NoError(t, err)

	_, err = r.Submit(context.Background(), NewSubmission(signed(t, other, true)))
	assert.ErrorIs(t, err, models.ErrLedgerSubmission)
	assert.False(t, r.IsVerified(subject))
}

func TestSubmitRejectsTampering(t *testing.T) {
	r, s := setup(t)
	att := signed(t, s, false)

	sub := NewSubmission(att)
	sub.Result = true
	_, err := r.Submit(context.Background(), sub)
	assert.ErrorIs(t, err, models.ErrLedgerSubmission)

	att.IsValid = true
	_, err = r.Submit(context.Background(), NewSubmission(att))
	assert.ErrorIs(t, err, models.ErrLedgerSubmission)

	_, err = r.Submit(context.Background(), Submission{Subject: subject})
	assert.ErrorIs(t, err, models.ErrLedgerSubmission)
}

func TestSubmitExpiryWindow(t *testing.T) {
	r, s := setup(t)
	sub := NewSubmission(signed(t, s, true))

	late := sub
	late.ExpiryTimestamp = now.Unix() + int64(ValidityPeriod/time.Second) + 1
	_, err := r.Submit(context.Background(), late)
	assert.ErrorIs(t, err, models.ErrLedgerSubmission)

	past := sub
	past.ExpiryTimestamp = now.Unix()
	_, err = r.Submit(context.Background(), past)
	assert.ErrorIs(t, err, models.ErrLedgerSubmission)
}

func TestNegativeResultIsStored(t *testing.T) {
	r, s := setup(t)
	_, err := r.Submit(context.Background(), NewSubmission(signed(t, s, false)))
	require.NoError(t, err)

	v, ok := r.GetVerification(subject)
	require.True(t, ok)
	assert.False(t, v.IsVerified)
	assert.False(t, r.IsVerified(subject))
}

func TestRevoke(t *testing.T) {
	r, s := setup(t)
	_, err := r.Submit(context.Background(), NewSubmission(signed(t, s, true)))
	require.NoError(t, err)

	err = r.RevokeVerification(s.Address(), subject)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, r.IsVerified(subject))

	require.NoError(t, r.RevokeVerification(admin, subject))
	assert.False(t, r.IsVerified(subject))
	v, ok := r.GetVerification(subject)
	require.True(t, ok)
	assert.True(t, v.Revoked)

	err = r.RevokeVerification(admin, "0x0000000000000000000000000000000000000009")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCalldata(t *testing.T) {
	_, s := setup(t)
	sub := NewSubmission(signed(t, s, true))

	data, err := SubmitProofCalldata(sub)
	require.NoError(t, err)
	coder, err := NewRegistryCoder()
	require.NoError(t, err)
	assert.Equal(t, coder.Methods["submitProof"].ID, data[:4])

	for _, fn := range []func(string) ([]byte, error){IsVerifiedCalldata, GetVerificationCalldata, RevokeVerificationCalldata} {
		data, err := fn(subject)
		require.NoError(t, err)
		assert.Len(t, data, 4+32)
	}
	_, err = IsVerifiedCalldata("nope")
	assert.ErrorIs(t, err, models.ErrValidation)

	bad := sub
	bad.ProofHash = "abcd"
	_, err = SubmitProofCalldata(bad)
	assert.ErrorIs(t, err, models.ErrEncoding)
}

func TestUnpackVerification(t *testing.T) {
	coder, err := NewRegistryCoder()
	require.NoError(t, err)

	var hash [32]byte
	hash[31] = 7
	out, err := coder.Methods["getVerification"].Outputs.Pack(true, bigInt(100), hash, bigInt(200))
	require.NoError(t, err)

	v, err := UnpackVerification(out)
	require.NoError(t, err)
	assert.True(t, v.IsVerified)
	assert.Equal(t, int64(100), v.VerificationTimestamp)
	assert.Equal(t, int64(200), v.ExpiryTimestamp)
	assert.Equal(t, "00000000000000000000000000000000000000000000000000000000000000"+"07", v.ProofHash)

	_, err = UnpackVerification([]byte{1, 2})
	assert.ErrorIs(t, err, models.ErrEncoding)
}

func bigInt(v int64) *big.Int { return big.NewInt(v) }

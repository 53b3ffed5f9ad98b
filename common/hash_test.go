package common_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", common.DigestString("abc"))
	assert.True(t, common.IsDigest(common.DigestString("")))
	assert.False(t, common.IsDigest("ABC"))
	assert.Len(t, common.Digest(nil), common.DigestHexLen)
}

func TestDeriveNullifier(t *testing.T) {
	doc := common.DigestString("P1234567")
	subject := "0xAbCdEf0000000000000000000000000000000001"

	n1 := common.DeriveNullifier(doc, subject)
	n2 := common.DeriveNullifier(doc, subject)
	assert.Equal(t, n1, n2)
	assert.True(t, common.IsDigest(n1))

	// case of the subject does not matter
	assert.Equal(t, n1, common.DeriveNullifier(doc, "0xabcdef0000000000000000000000000000000001"))

	assert.NotEqual(t, n1, common.DeriveNullifier(doc, "0xabcdef0000000000000000000000000000000002"))
	assert.NotEqual(t, n1, common.DeriveNullifier(common.DigestString("P7654321"), subject))
	assert.Equal(t, common.DigestString(doc+":0xabcdef0000000000000000000000000000000001:"+common.NullifierTag), n1)
}

func TestDeriveCommitment(t *testing.T) {
	subset := models.CommitmentSubset{
		DocumentType:   models.DocumentPassport,
		DocumentNumber: "P1234567",
		DateOfBirth:    "2000-01-01",
		Nationality:    "Canada",
	}

	c1, err := common.DeriveCommitment(subset)
	require.NoError(t, err)
	c2, err := common.DeriveCommitment(subset)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	want := `{"documentType":"passport","documentNumber":"P1234567","dateOfBirth":"2000-01-01","nationality":"Canada"}`
	assert.Equal(t, common.DigestString(want), c1)

	subset.Nationality = "USA"
	c3, err := common.DeriveCommitment(subset)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c3)
}

func TestCanonicalJSON(t *testing.T) {
	b, err := common.CanonicalJSON(
		common.Field{Key: "z", Value: 1},
		common.Field{Key: "a", Value: "x"},
	)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":"x"}`, string(b))
	assert.True(t, json.Valid(b))

	_, err = common.CanonicalJSON(common.Field{Key: "bad", Value: make(chan int)})
	assert.ErrorIs(t, err, models.ErrEncoding)

	_, err = common.DigestJSON(func() {})
	assert.ErrorIs(t, err, models.ErrEncoding)
}

func TestToField(t *testing.T) {
	f, err := common.ToField(common.DigestString("abc"))
	require.NoError(t, err)
	_, err = common.ParseField(f.String())
	assert.NoError(t, err)

	_, err = common.ToField("zz")
	assert.ErrorIs(t, err, models.ErrEncoding)

	_, err = common.ParseField("-1")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestMiMC(t *testing.T) {
	a := common.MiMC(big.NewInt(1), big.NewInt(2))
	assert.Equal(t, a, common.MiMC(big.NewInt(1), big.NewInt(2)))
	assert.NotEqual(t, a, common.MiMC(big.NewInt(2), big.NewInt(1)))
}

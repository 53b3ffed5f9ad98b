package ct_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
	ct "github.com/mynextid/zk-kyc/circuits/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	today   = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	binding = big.NewInt(424242)
)

func TestAgeCircuitBoundary(t *testing.T) {
	cases := []struct {
		name  string
		dob   time.Time
		adult int
	}{
		{"birthday today", time.Date(2006, 6, 1, 0, 0, 0, 0, time.UTC), 1},
		{"one day short", time.Date(2006, 6, 2, 0, 0, 0, 0, time.UTC), 0},
		{"well over", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 1},
		{"child", time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC), 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assignment := ct.NewAgeAssignment(tc.dob, today, 18, binding)
			assert.Equal(t, tc.adult, assignment.IsAboveMinimumAge)
			require.NoError(t, test.IsSolved(&ct.AgeCircuit{}, assignment, ecc.BN254.ScalarField()))
		})
	}
}

func TestAgeCircuitRejectsForgedOutcome(t *testing.T) {
	assignment := ct.NewAgeAssignment(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), today, 18, binding)
	assignment.IsAboveMinimumAge = 1
	assert.Error(t, test.IsSolved(&ct.AgeCircuit{}, assignment, ecc.BN254.ScalarField()))
}

func TestAgeCircuitRejectsWrongCommitment(t *testing.T) {
	assignment := ct.NewAgeAssignment(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), today, 18, binding)
	assignment.Binding = big.NewInt(1)
	assert.Error(t, test.IsSolved(&ct.AgeCircuit{}, assignment, ecc.BN254.ScalarField()))
}

func TestValidityCircuitBoundary(t *testing.T) {
	cases := []struct {
		name      string
		expiry    time.Time
		valid     int
		longValid int
	}{
		{"31 days out", today.AddDate(0, 0, 31), 1, 1},
		{"30 days out", today.AddDate(0, 0, 30), 1, 0},
		{"29 days out", today.AddDate(0, 0, 29), 1, 0},
		{"expires today", today, 0, 0},
		{"yesterday", today.AddDate(0, 0, -1), 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assignment := ct.NewValidityAssignment(tc.expiry, today, binding)
			assert.Equal(t, tc.valid, assignment.IsValid)
			assert.Equal(t, tc.longValid, assignment.HasMinimumValidity)
			require.NoError(t, test.IsSolved(&ct.ValidityCircuit{}, assignment, ecc.BN254.ScalarField()))
		})
	}
}

func TestValidityCircuitRejectsForgedOutcome(t *testing.T) {
	assignment := ct.NewValidityAssignment(today.AddDate(0, 0, -1), today, binding)
	assignment.IsValid = 1
	assert.Error(t, test.IsSolved(&ct.ValidityCircuit{}, assignment, ecc.BN254.ScalarField()))
}

func TestStatementRoundTrip(t *testing.T) {
	assignment := ct.NewAgeAssignment(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), today, 18, binding)
	statement, err := assignment.Statement()
	require.NoError(t, err)
	require.Len(t, statement, 6)
	assert.Equal(t, []string{"1", "18", "2024", "601"}, statement[:4])

	var public ct.AgeCircuit
	require.NoError(t, public.Assign(statement))
	again, err := public.Statement()
	require.NoError(t, err)
	assert.Equal(t, statement, again)

	assert.Error(t, public.Assign(statement[:5]))
}

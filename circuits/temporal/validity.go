package ct

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/mynextid/zk-kyc/common"
)

// MinimumValidityDays is the remaining validity a document needs to count
// as comfortably valid. The comparison is strict.
const MinimumValidityDays = 30

// ValidityCircuit proves a document expiry against today without exposing
// the expiry. Days are counted from 1900-01-01.
type ValidityCircuit struct {
	// Secret input
	ExpiryDay frontend.Variable `gnark:",secret"`

	// Public input
	IsValid             frontend.Variable `gnark:",public"` // ExpiryDay > Today
	HasMinimumValidity  frontend.Variable `gnark:",public"` // ExpiryDay > Today + MinimumValidityDays
	Today               frontend.Variable `gnark:",public"`
	MinimumValidityDays frontend.Variable `gnark:",public"`
	Commitment          frontend.Variable `gnark:",public"` // MiMC(ExpiryDay, Binding)
	Binding             frontend.Variable `gnark:",public"`
}

func (c *ValidityCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.IsValid, common.IsGreater(api, c.ExpiryDay, c.Today))

	horizon := api.Add(c.Today, c.MinimumValidityDays)
	api.AssertIsEqual(c.HasMinimumValidity, common.IsGreater(api, c.ExpiryDay, horizon))

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.ExpiryDay, c.Binding)
	api.AssertIsEqual(c.Commitment, h.Sum())

	return nil
}

// Statement returns the public inputs in witness order
func (c *ValidityCircuit) Statement() ([]string, error) {
	return common.FormatStatement(c.IsValid, c.HasMinimumValidity, c.Today, c.MinimumValidityDays, c.Commitment, c.Binding)
}

// Assign sets the public inputs from a statement produced by Statement
func (c *ValidityCircuit) Assign(statement []string) error {
	return common.AssignStatement(statement, &c.IsValid, &c.HasMinimumValidity, &c.Today, &c.MinimumValidityDays, &c.Commitment, &c.Binding)
}

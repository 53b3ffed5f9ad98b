package cm

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/mynextid/zk-kyc/common"
)

// MaxAllowed is the number of allow-list slots. Unused slots hold 0.
const MaxAllowed = 16

// NationalityCircuit proves that a committed nationality is on a public
// allow-list. With Restricted = 0 any nationality passes.
type NationalityCircuit struct {
	// Secret input
	Nationality frontend.Variable `gnark:",secret"` // field digest of the upper-cased name

	// Public input
	Allowed            [MaxAllowed]frontend.Variable `gnark:",public"`
	Restricted         frontend.Variable             `gnark:",public"`
	IsNationalityValid frontend.Variable             `gnark:",public"`
	Commitment         frontend.Variable             `gnark:",public"` // MiMC(Nationality, Binding)
	Binding            frontend.Variable             `gnark:",public"`
}

func (c *NationalityCircuit) Define(api frontend.API) error {
	api.AssertIsBoolean(c.Restricted)

	member := common.IsMember(api, c.Nationality, c.Allowed[:])
	api.AssertIsEqual(c.IsNationalityValid, api.Select(c.Restricted, member, 1))

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Nationality, c.Binding)
	api.AssertIsEqual(c.Commitment, h.Sum())

	return nil
}

func (c *NationalityCircuit) publicInputs() []*frontend.Variable {
	targets := make([]*frontend.Variable, 0, MaxAllowed+4)
	for i := range c.Allowed {
		targets = append(targets, &c.Allowed[i])
	}
	return append(targets, &c.Restricted, &c.IsNationalityValid, &c.Commitment, &c.Binding)
}

// Statement returns the public inputs in witness order
func (c *NationalityCircuit) Statement() ([]string, error) {
	targets := c.publicInputs()
	values := make([]frontend.Variable, len(targets))
	for i, t := range targets {
		values[i] = *t
	}
	return common.FormatStatement(values...)
}

// Assign sets the public inputs from a statement produced by Statement
func (c *NationalityCircuit) Assign(statement []string) error {
	return common.AssignStatement(statement, c.publicInputs()...)
}

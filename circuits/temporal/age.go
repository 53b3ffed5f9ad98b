package ct

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/mynextid/zk-kyc/common"
)

// Circuit functions
// - compare the date of birth with the cutoff date derived from today
// - bind the date of birth to the subject through the commitment
//
// Dates are encoded as YYYYMMDD, so integer order is calendar order and the
// birthday itself passes the check.
type AgeCircuit struct {
	// Secret input
	DateOfBirth frontend.Variable `gnark:",secret"` // YYYYMMDD

	// Public input
	IsAboveMinimumAge frontend.Variable `gnark:",public"` // 1 or 0
	MinimumAge        frontend.Variable `gnark:",public"`
	CurrentYear       frontend.Variable `gnark:",public"`
	CurrentMonthDay   frontend.Variable `gnark:",public"` // MMDD
	Commitment        frontend.Variable `gnark:",public"` // MiMC(DateOfBirth, Binding)
	Binding           frontend.Variable `gnark:",public"` // nullifier reduced to the field
}

func (c *AgeCircuit) Define(api frontend.API) error {
	// latest date of birth that is old enough today
	cutoff := api.Add(api.Mul(api.Sub(c.CurrentYear, c.MinimumAge), 10000), c.CurrentMonthDay)

	isAdult := common.IsLessOrEqual(api, c.DateOfBirth, cutoff)
	api.AssertIsEqual(c.IsAboveMinimumAge, isAdult)

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.DateOfBirth, c.Binding)
	api.AssertIsEqual(c.Commitment, h.Sum())

	return nil
}

// Statement returns the public inputs in witness order
func (c *AgeCircuit) Statement() ([]string, error) {
	return common.FormatStatement(c.IsAboveMinimumAge, c.MinimumAge, c.CurrentYear, c.CurrentMonthDay, c.Commitment, c.Binding)
}

// Assign sets the public inputs from a statement produced by Statement
func (c *AgeCircuit) Assign(statement []string) error {
	return common.AssignStatement(statement, &c.IsAboveMinimumAge, &c.MinimumAge, &c.CurrentYear, &c.CurrentMonthDay, &c.Commitment, &c.Binding)
}

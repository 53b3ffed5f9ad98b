package prover

import (
	"errors"

	"github.com/consensys/gnark/frontend"
)

// ErrUnknownCircuit is returned for identifiers missing from the registry
var ErrUnknownCircuit = errors.New("unknown circuit")

// ProvingSystem is the capability the generator and verifier depend on.
// Swapping the backend does not touch either of them.
type ProvingSystem interface {
	// Generate proves a full assignment of the circuit registered as id
	Generate(id string, assignment frontend.Circuit) ([]byte, error)
	// Verify checks proof against the public inputs held by public
	Verify(id string, proof []byte, public frontend.Circuit) error
}

// Groth16 is the ProvingSystem backed by gnark Groth16 over BN254
type Groth16 struct {
	Registry *CircuitRegistry
}

func NewGroth16(registry *CircuitRegistry) *Groth16 {
	return &Groth16{Registry: registry}
}

func (g *Groth16) Generate(id string, assignment frontend.Circuit) ([]byte, error) {
	c, err := g.Registry.Get(id)
	if err != nil {
		return nil, err
	}
	return c.Prove(assignment)
}

func (g *Groth16) Verify(id string, proof []byte, public frontend.Circuit) error {
	c, err := g.Registry.Get(id)
	if err != nil {
		return err
	}
	return c.Public().Verify(public, proof)
}

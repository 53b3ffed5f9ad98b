package prover

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mynextid/zk-kyc/common"
	"golang.org/x/sync/errgroup"
)

// CircuitRegistry stores compiled circuits by identifier
type CircuitRegistry struct {
	mu       sync.RWMutex
	Circuits map[string]*Circuit
}

// NewCircuitRegistry creates a new registry
func NewCircuitRegistry() *CircuitRegistry {
	return &CircuitRegistry{
		Circuits: make(map[string]*Circuit),
	}
}

// LoadAll loads every circuit of CircuitList from dir
func (cr *CircuitRegistry) LoadAll(dir string) error {
	for _, id := range CircuitIDs() {
		if err := cr.LoadCircuit(dir, CircuitList[id]); err != nil {
			return err
		}
	}
	return nil
}

// LoadCircuit loads one pre-compiled circuit from dir
func (cr *CircuitRegistry) LoadCircuit(dir string, ci CircuitInfo) error {
	ccsPath, pkPath, vkPath := ci.paths(dir)

	cs, pk, vk, err := common.LoadSetup(ccsPath, pkPath, vkPath)
	if err != nil {
		return fmt.Errorf("failed to load the circuit %s: %w", ci.ID, err)
	}

	return cr.Register(ci.ID, &Circuit{
		CS:           cs,
		ProvingKey:   pk,
		VerifyingKey: vk,
	})
}

// InitAll loads every circuit from dir, compiling the missing ones first.
// It returns the identifiers that had to be compiled.
func (cr *CircuitRegistry) InitAll(dir string, forceCompile bool) ([]string, error) {
	var compiled []string
	for _, id := range CircuitIDs() {
		ci := CircuitList[id]
		ccsPath, pkPath, vkPath := ci.paths(dir)
		cs, pk, vk, didCompile, err := common.InitCircuit(ccsPath, pkPath, vkPath, forceCompile, ci.Circuit)
		if err != nil {
			return compiled, fmt.Errorf("failed to init the circuit %s: %w", id, err)
		}
		if didCompile {
			compiled = append(compiled, id)
		}
		if err := cr.Register(id, &Circuit{CS: cs, ProvingKey: pk, VerifyingKey: vk}); err != nil {
			return compiled, err
		}
	}
	return compiled, nil
}

// SetupAll compiles and sets up every circuit in memory. The keys come
// from a local setup and are only suitable for development and tests.
func (cr *CircuitRegistry) SetupAll() error {
	ids := CircuitIDs()
	circuits := make([]*Circuit, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			cs, pk, vk, err := common.Setup(CircuitList[id].Circuit)
			if err != nil {
				return fmt.Errorf("setup %s: %w", id, err)
			}
			circuits[i] = &Circuit{CS: cs, ProvingKey: pk, VerifyingKey: vk}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, id := range ids {
		if err := cr.Register(id, circuits[i]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a circuit by identifier
func (cr *CircuitRegistry) Get(id string) (*Circuit, error) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	if c, ok := cr.Circuits[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: circuit %s not found", ErrUnknownCircuit, id)
}

// Register registers a new circuit by identifier
func (cr *CircuitRegistry) Register(id string, circuit *Circuit) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if _, ok := cr.Circuits[id]; ok {
		return fmt.Errorf("circuit with name %s already exists", id)
	}
	cr.Circuits[id] = circuit
	return nil
}

// IDs lists the registered circuits
func (cr *CircuitRegistry) IDs() []string {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	ids := make([]string, 0, len(cr.Circuits))
	for id := range cr.Circuits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

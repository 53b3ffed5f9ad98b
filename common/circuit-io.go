package common

import (
	"fmt"
	"io"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Setup compiles the circuit and runs the Groth16 setup in memory
func Setup(circuitTemplate frontend.Circuit) (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuitTemplate)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("circuit compilation failed: %w", err)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("groth16 setup failed: %w", err)
	}
	return ccs, pk, vk, nil
}

// Save compiled circuit and keys
func SetupAndSave(circuitTemplate frontend.Circuit, ccsPath, pkPath, vkPath string) error {
	ccs, pk, vk, err := Setup(circuitTemplate)
	if err != nil {
		return err
	}

	if err := writeTo(ccsPath, ccs); err != nil {
		return fmt.Errorf("failed to save constraint system: %w", err)
	}
	if err := writeTo(pkPath, pk); err != nil {
		return fmt.Errorf("failed to save proving key: %w", err)
	}
	if err := writeTo(vkPath, vk); err != nil {
		return fmt.Errorf("failed to save verifying key: %w", err)
	}
	return nil
}

// Load pre-compiled circuit and keys
func LoadSetup(ccsPath, pkPath, vkPath string) (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey, error) {
	ccs := groth16.NewCS(ecc.BN254)
	if err := readFrom(ccsPath, ccs); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read constraint system: %w", err)
	}

	pk := groth16.NewProvingKey(ecc.BN254)
	if err := readFrom(pkPath, pk); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read proving key: %w", err)
	}

	vk := groth16.NewVerifyingKey(ecc.BN254)
	if err := readFrom(vkPath, vk); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read verifying key: %w", err)
	}

	return ccs, pk, vk, nil
}

func writeTo(path string, w io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readFrom(path string, r io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.ReadFrom(f)
	return err
}

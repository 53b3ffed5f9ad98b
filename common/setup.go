package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
)

// InitCircuit loads the circuit artifacts from disk, compiling and saving
// them first when any file is missing or forceCompile is set. The returned
// bool reports whether a compilation happened.
func InitCircuit(ccsPath, pkPath, vkPath string, forceCompile bool, circuitTemplate frontend.Circuit) (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey, bool, error) {
	// Validate paths to prevent directory traversal attacks
	for name, p := range map[string]string{"ccsPath": ccsPath, "pkPath": pkPath, "vkPath": vkPath} {
		if err := validatePath(p); err != nil {
			return nil, nil, nil, false, fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if err := ensureDirectories(ccsPath, pkPath, vkPath); err != nil {
		return nil, nil, nil, false, fmt.Errorf("failed to create directories: %w", err)
	}

	if forceCompile {
		for _, p := range []string{ccsPath, pkPath, vkPath} {
			if err := safeRemove(p); err != nil {
				return nil, nil, nil, false, fmt.Errorf("failed to remove %s: %w", p, err)
			}
		}
	}

	compiled := false
	if !(fileExists(ccsPath) && fileExists(pkPath) && fileExists(vkPath)) {
		if err := SetupAndSave(circuitTemplate, ccsPath, pkPath, vkPath); err != nil {
			return nil, nil, nil, false, fmt.Errorf("setup and save failed: %w", err)
		}
		compiled = true
	}

	ccs, pk, vk, err := LoadSetup(ccsPath, pkPath, vkPath)
	return ccs, pk, vk, compiled, err
}

func validatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("empty path")
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return fmt.Errorf("path %q escapes its base directory", p)
		}
	}
	return nil
}

func ensureDirectories(paths ...string) error {
	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func safeRemove(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

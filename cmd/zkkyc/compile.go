package zkkyc

import (
	"fmt"
	"os"
	"time"

	"github.com/mynextid/zk-kyc/prover"
	"github.com/spf13/cobra"
)

type compileConfig struct {
	outputDir string
	circuits  []string
	force     bool
}

func NewCompileCmd() *cobra.Command {
	cfg := &compileConfig{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile circuits and generate setup files",
		Long:  `Compile the KYC circuits and generate constraint systems, proving keys, and verification keys. The keys come from a local setup.`,
		Example: `  # Compile all circuits
  zkkyc compile -o ./circuits-data

  # Compile specific circuits
  zkkyc compile -o ./circuits-data -c age-v1,nationality-v1
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.outputDir, "output", "o", "./circuits-data", "Output directory for compiled circuits")
	cmd.Flags().StringSliceVarP(&cfg.circuits, "circuits", "c", []string{}, "Specific circuits to compile (comma-separated, empty = all)")
	cmd.Flags().BoolVarP(&cfg.force, "force", "f", false, "Overwrite existing files")

	return cmd
}

func runCompile(cfg *compileConfig) error {
	// Create output directory
	if err := os.MkdirAll(cfg.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if len(cfg.circuits) == 0 {
		start := time.Now()
		registry := prover.NewCircuitRegistry()
		compiled, err := registry.InitAll(cfg.outputDir, cfg.force)
		if err != nil {
			return err
		}
		fmt.Printf("==== Compiled %d of %d circuits in %s ====\n",
			len(compiled), len(prover.CircuitIDs()), time.Since(start).Round(time.Second))
		return nil
	}

	fmt.Printf("\n==== Compiling %d circuits to %s ====\n", len(cfg.circuits), cfg.outputDir)
	for _, id := range cfg.circuits {
		info, ok := prover.CircuitList[id]
		if !ok {
			fmt.Printf("Circuit %s not found, skipping\n", id)
			continue
		}

		start := time.Now()
		fmt.Printf("Compiling %s...\n", id)
		if err := info.Compile(cfg.outputDir); err != nil {
			fmt.Printf("[X] Failed to compile %s: %v\n", id, err)
			continue
		}
		fmt.Printf("[OK] Compiled %s in %s\n", id, time.Since(start).Round(time.Second))
	}

	fmt.Println("\n==== Compilation complete ====")
	return nil
}

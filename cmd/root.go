package main

import (
	"github.com/mynextid/zk-kyc/cmd/zkkyc"
	"github.com/spf13/cobra"
)

// Init the cmd
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zkkyc",
		Short: "Privacy-preserving KYC prover and verifier",
		Long:  `Zero-knowledge identity proofs, confidential attestation and verification sessions`,
	}

	rootCmd.AddCommand(
		zkkyc.NewServeCmd(),
		zkkyc.NewCompileCmd(),
		zkkyc.NewWorkerCmd(),
		zkkyc.NewEnclaveCmd(),
		NewVersionCmd(),
	)

	return rootCmd
}

package main

import (
	"fmt"
	"os"
)

// zkkyc - CLI and API service for zero-knowledge KYC proofs and
// confidential attestation
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

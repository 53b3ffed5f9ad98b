package zkkyc

import (
	"os"

	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/worker"
	"github.com/spf13/cobra"
)

func NewWorkerCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one confidential verification task",
		Long: `Run the enclave worker once. The task is described by the IEXEC_* environment:
protected data is read from IEXEC_IN, result.json and computed.json are written to IEXEC_OUT.
The attestation is signed with KYC_ENCLAVE_SIGNER_KEY, or an ephemeral key when unset.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(logging.Options{Level: logLevel, Format: "json", Out: os.Stderr})
			cfg, err := worker.ConfigFromEnv(os.Getenv)
			if err != nil {
				return err
			}
			return worker.Run(cfg, logger)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

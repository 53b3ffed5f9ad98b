package zkkyc

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mynextid/zk-kyc/confidential"
	"github.com/mynextid/zk-kyc/enclave"
	"github.com/mynextid/zk-kyc/internal/vsock"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/spf13/cobra"
)

type enclaveConfig struct {
	listen    string
	signerKey string
	policy    string
	workDir   string
	logLevel  string
	logFormat string
}

func NewEnclaveCmd() *cobra.Command {
	cfg := &enclaveConfig{}

	cmd := &cobra.Command{
		Use:   "enclave",
		Short: "Serve the confidential backend over RPC",
		Long:  `Run the in-enclave backend and answer protect, grant and process calls over TCP or vsock.`,
		Example: `  # Inside a Nitro enclave
  zkkyc enclave --listen vsock://5005 --signer-key $KEY

  # Local development
  zkkyc enclave --listen 127.0.0.1:5005`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnclave(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.listen, "listen", "127.0.0.1:5005", "Listen address, host:port or vsock://port")
	cmd.Flags().StringVar(&cfg.signerKey, "signer-key", os.Getenv("KYC_ENCLAVE_SIGNER_KEY"), "Hex attestation signer key (empty = ephemeral)")
	cmd.Flags().StringVar(&cfg.policy, "policy", "", "Worker policy JSON")
	cmd.Flags().StringVar(&cfg.workDir, "work-dir", "", "Directory for task scratch space (empty = system temp)")
	cmd.Flags().StringVar(&cfg.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&cfg.logFormat, "log-format", "json", "Log format (text, json)")

	return cmd
}

func runEnclave(cfg *enclaveConfig) error {
	logger := logging.Setup(cfg.logLevel, cfg.logFormat, nil)

	var signer *enclave.Signer
	if cfg.signerKey != "" {
		s, err := enclave.SignerFromHex(cfg.signerKey)
		if err != nil {
			return err
		}
		signer = s
	}

	backend, err := confidential.NewLocalEnclave(confidential.LocalOptions{
		Signer:    signer,
		AppSecret: cfg.policy,
		WorkDir:   cfg.workDir,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ln, err := listen(cfg.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.listen, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("enclave listening", "addr", ln.Addr().String(), "signer", backend.Signer().GetKeyID())
	return confidential.ServeRPC(ctx, ln, backend, logger)
}

func listen(addr string) (net.Listener, error) {
	if port, ok := strings.CutPrefix(addr, "vsock://"); ok {
		a, err := vsock.ParseAddr("0:" + port)
		if err != nil {
			return nil, err
		}
		l, err := vsock.Listen(a.Port)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return net.Listen("tcp", addr)
}

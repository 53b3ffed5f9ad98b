package zkkyc

import (
	"github.com/mynextid/zk-kyc/server"
	"github.com/spf13/cobra"
)

func NewServeCmd() *cobra.Command {
	cfg := server.DefaultServeConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the KYC API server",
		Long:  `Start the HTTP API server for proofs, confidential tasks and verification sessions.`,
		Example: `  # Start server on default port
  zkkyc serve

  # Start with custom settings
  zkkyc serve --host 0.0.0.0 --port 9090 --circuits-dir ./setup

  # Attest through an enclave over vsock
  zkkyc serve --backend rpc --enclave-addr vsock://16:5005 --trusted-signer 0x...

  # Production deployment with TLS
  zkkyc serve --host 0.0.0.0 --port 443 --enable-tls \
    --cert-file /etc/ssl/cert.pem --key-file /etc/ssl/key.pem`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(&cfg)
		},
	}

	// Server flags
	cmd.Flags().StringVar(&cfg.Host, "host", cfg.Host, "Host to bind to")
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port to listen on")

	// Circuit flags
	cmd.Flags().StringVarP(&cfg.CircuitsDir, "circuits-dir", "d", cfg.CircuitsDir, "Directory containing compiled circuits")
	cmd.Flags().BoolVar(&cfg.ForceCompile, "force-compile", false, "Recompile circuits even when setup files exist")

	// Performance flags
	cmd.Flags().Int64Var(&cfg.MaxRequestSize, "max-request-size", cfg.MaxRequestSize, "Maximum request body size in bytes")
	cmd.Flags().DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "HTTP read timeout")
	cmd.Flags().DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "HTTP write timeout (sessions run proofs and tasks)")
	cmd.Flags().DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "HTTP idle timeout")
	cmd.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")

	// Security flags
	cmd.Flags().BoolVar(&cfg.EnableCORS, "enable-cors", true, "Enable CORS middleware")
	cmd.Flags().StringSliceVar(&cfg.CorsOrigins, "cors-origins", cfg.CorsOrigins, "Allowed CORS origins")

	// Observability flags
	cmd.Flags().BoolVar(&cfg.EnablePprof, "enable-pprof", false, "Enable pprof endpoints (debug only)")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	cmd.Flags().IntVar(&cfg.LogBufferSize, "log-buffer", cfg.LogBufferSize, "Log entries kept for /v1/logs (0 disables)")

	// TLS flags
	cmd.Flags().BoolVar(&cfg.EnableTLS, "enable-tls", false, "Enable TLS/HTTPS")
	cmd.Flags().StringVar(&cfg.CertFile, "cert-file", "", "TLS certificate file")
	cmd.Flags().StringVar(&cfg.KeyFile, "key-file", "", "TLS private key file")

	// Confidential verification flags
	cmd.Flags().StringVar(&cfg.Backend, "backend", cfg.Backend, "Attestation backend (local, http, rpc, simulation)")
	cmd.Flags().StringVar(&cfg.GatewayURL, "gateway-url", "", "Confidential gateway base URL (http backend)")
	cmd.Flags().StringVar(&cfg.EnclaveAddr, "enclave-addr", "", "Enclave RPC address, host:port or vsock://cid:port (rpc backend)")
	cmd.Flags().BoolVar(&cfg.EnableGateway, "enable-gateway", cfg.EnableGateway, "Serve the /v1 gateway routes from the local enclave")
	cmd.Flags().Int64Var(&cfg.ChainID, "chain-id", cfg.ChainID, "Chain the sessions are bound to")
	cmd.Flags().StringVar(&cfg.App, "app", cfg.App, "Confidential app address")
	cmd.Flags().StringVar(&cfg.Workerpool, "workerpool", "", "Workerpool (empty = network default)")
	cmd.Flags().StringVar(&cfg.SignerKey, "signer-key", "", "Hex enclave signer key for local backends (empty = ephemeral)")
	cmd.Flags().StringVar(&cfg.TrustedSigner, "trusted-signer", "", "Attestation signer address accepted by the ledger")
	cmd.Flags().StringVar(&cfg.Policy, "policy", "", "Worker policy JSON for local backends")
	cmd.Flags().StringVar(&cfg.LedgerAdmin, "ledger-admin", "", "Address allowed to revoke verifications")

	return cmd
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/prover"
	"github.com/mynextid/zk-kyc/server/api"
)

// Attestation backends
const (
	BackendLocal      = "local"
	BackendHTTP       = "http"
	BackendRPC        = "rpc"
	BackendSimulation = "simulation"
)

type ServeConfig struct {
	// Server settings
	Host string
	Port int

	// Circuit settings
	CircuitsDir  string
	ForceCompile bool

	// Performance settings
	MaxRequestSize  int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Security settings
	EnableCORS  bool
	CorsOrigins []string

	// Observability
	EnablePprof   bool
	LogLevel      string
	LogFormat     string // "json" or "text"
	LogBufferSize int    // entries kept for /v1/logs, 0 disables

	// TLS settings
	EnableTLS bool
	CertFile  string
	KeyFile   string

	// Confidential verification
	Backend       string // local, http, rpc or simulation
	GatewayURL    string
	EnclaveAddr   string // host:port or vsock://cid:port
	EnableGateway bool   // serve /v1 gateway routes from the local enclave
	ChainID       int64
	App           string
	Workerpool    string
	SignerKey     string // enclave key for local and simulation backends
	TrustedSigner string // attestation signer accepted by the ledger
	Policy        string // worker policy document
	LedgerAdmin   string
}

// DefaultServeConfig returns the flag defaults
func DefaultServeConfig() ServeConfig {
	return ServeConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		CircuitsDir:     "./circuits-data",
		MaxRequestSize:  1 << 20,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		CorsOrigins:     []string{"*"},
		LogLevel:        "info",
		LogFormat:       "text",
		LogBufferSize:   logging.DefaultRingSize,
		Backend:         BackendLocal,
		EnableGateway:   true,
		ChainID:         421614,
		App:             "0x0000000000000000000000000000000000000000",
	}
}

func Run(cfg *ServeConfig) error {
	// Validate configuration
	if err := validateServeConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Setup structured logging
	var ring *logging.Ring
	if cfg.LogBufferSize > 0 {
		ring = logging.NewRing(cfg.LogBufferSize)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat, ring)

	// Initialize circuit registry
	registry := prover.NewCircuitRegistry()

	// Load circuits
	if err := loadCircuits(registry, cfg, logger); err != nil {
		return fmt.Errorf("failed to load circuits: %w", err)
	}

	deps, err := buildDeps(cfg, registry, logger)
	if err != nil {
		return err
	}
	deps.Logs = ring

	// Create server
	server := api.NewServer(deps)

	// Setup router with middleware
	r := setupRouter(server, cfg, logger)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", addr, "tls", cfg.EnableTLS, "backend", cfg.Backend)

		var err error
		if cfg.EnableTLS {
			err = httpServer.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Info("Shutting down server gracefully...")
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func loadCircuits(registry *prover.CircuitRegistry, cfg *ServeConfig, logger logging.Logger) error {
	start := time.Now()
	compiled, err := registry.InitAll(cfg.CircuitsDir, cfg.ForceCompile)
	for _, id := range compiled {
		logger.Info("Compiled circuit", "circuit", id)
	}
	if err != nil {
		return err
	}

	logger.Info("Circuit loading complete",
		"loaded", len(registry.IDs()),
		"compiled", len(compiled),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func validateServeConfig(cfg *ServeConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}

	if cfg.EnableTLS {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert-file or key-file not provided")
		}
		if _, err := os.Stat(cfg.CertFile); err != nil {
			return fmt.Errorf("cert file not found: %s", cfg.CertFile)
		}
		if _, err := os.Stat(cfg.KeyFile); err != nil {
			return fmt.Errorf("key file not found: %s", cfg.KeyFile)
		}
	}

	if cfg.CircuitsDir == "" {
		return fmt.Errorf("circuits directory is required")
	}
	if cfg.MaxRequestSize <= 0 || cfg.WriteTimeout <= 0 {
		return fmt.Errorf("max-request-size and write-timeout must be positive")
	}

	switch cfg.Backend {
	case BackendLocal, BackendSimulation:
	case BackendHTTP:
		if cfg.GatewayURL == "" {
			return fmt.Errorf("backend %s requires gateway-url", cfg.Backend)
		}
	case BackendRPC:
		if cfg.EnclaveAddr == "" {
			return fmt.Errorf("backend %s requires enclave-addr", cfg.Backend)
		}
	default:
		return fmt.Errorf("unknown backend: %q", cfg.Backend)
	}
	if (cfg.Backend == BackendHTTP || cfg.Backend == BackendRPC) && cfg.TrustedSigner == "" {
		return fmt.Errorf("backend %s requires trusted-signer", cfg.Backend)
	}
	return nil
}

package server

import (
	"context"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/mynextid/zk-kyc/confidential"
	"github.com/mynextid/zk-kyc/enclave"
	"github.com/mynextid/zk-kyc/internal/vsock"
	"github.com/mynextid/zk-kyc/ledger"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/orchestrator"
	"github.com/mynextid/zk-kyc/prover"
	"github.com/mynextid/zk-kyc/server/api"
	"github.com/mynextid/zk-kyc/worker"
)

// buildDeps wires the proving system, the attestation backend, the ledger
// and the session manager from cfg
func buildDeps(cfg *ServeConfig, registry *prover.CircuitRegistry, logger logging.Logger) (api.Deps, error) {
	system := prover.NewGroth16(registry)
	deps := api.Deps{
		Registry:  registry,
		Generator: prover.NewGenerator(system, logger.With("component", "prover")),
		Verifier:  prover.NewVerifier(system, logger.With("component", "verifier")),
		Logger:    logger,
	}

	signer, err := localSigner(cfg.SignerKey, logger)
	if err != nil {
		return deps, err
	}

	var local *confidential.LocalEnclave
	if cfg.EnableGateway || cfg.Backend == BackendLocal {
		local, err = confidential.NewLocalEnclave(confidential.LocalOptions{
			Signer:    signer,
			AppSecret: cfg.Policy,
			Logger:    logger.With("component", "enclave"),
		})
		if err != nil {
			return deps, err
		}
	}
	if cfg.EnableGateway {
		deps.Gateway = local
	}

	attester, err := buildAttester(cfg, local, signer, logger)
	if err != nil {
		return deps, err
	}

	trusted := signer.Address()
	if cfg.TrustedSigner != "" {
		if !ethcommon.IsHexAddress(cfg.TrustedSigner) {
			return deps, fmt.Errorf("trusted signer %q is not an address", cfg.TrustedSigner)
		}
		trusted = ethcommon.HexToAddress(cfg.TrustedSigner)
	}
	admin := trusted
	if cfg.LedgerAdmin != "" {
		admin = ethcommon.HexToAddress(cfg.LedgerAdmin)
	}
	deps.Ledger = ledger.NewRegistry(trusted, admin, logger.With("component", "ledger"))

	network, ok := confidential.NetworkForChain(cfg.ChainID)
	if !ok {
		logger.Warn("unrecognized chain id, using the primary network", "chain_id", cfg.ChainID, "network", network.Name)
	}

	deps.Sessions = orchestrator.NewManager(orchestrator.Config{
		Generator:       deps.Generator,
		Verifier:        deps.Verifier,
		Attester:        attester,
		Ledger:          deps.Ledger,
		RequiredChainID: network.ChainID,
		Logger:          logger.With("component", "orchestrator"),
	})
	return deps, nil
}

func buildAttester(cfg *ServeConfig, local *confidential.LocalEnclave, signer *enclave.Signer, logger logging.Logger) (orchestrator.Attester, error) {
	var backend confidential.Backend
	switch cfg.Backend {
	case BackendSimulation:
		policy, err := worker.ParsePolicy(cfg.Policy, "")
		if err != nil {
			return nil, err
		}
		return orchestrator.NewSimulationAttester(signer, policy)
	case BackendLocal:
		backend = local
	case BackendHTTP:
		backend = confidential.NewHTTPBackend(cfg.GatewayURL, nil)
	case BackendRPC:
		dial, err := enclaveDialer(cfg.EnclaveAddr)
		if err != nil {
			return nil, err
		}
		rpc := confidential.NewRPCBackend(dial)
		if err := rpc.Ping(context.Background()); err != nil {
			logger.Warn("enclave is not answering yet", "addr", cfg.EnclaveAddr, "error", err)
		}
		backend = rpc
	default:
		return nil, fmt.Errorf("unknown backend: %q", cfg.Backend)
	}

	client := confidential.NewClient(backend, cfg.ChainID, logger.With("component", "confidential"))
	return &orchestrator.RemoteAttester{
		Client:     client,
		App:        cfg.App,
		Workerpool: cfg.Workerpool,
	}, nil
}

// enclaveDialer parses host:port or vsock://cid:port
func enclaveDialer(addr string) (confidential.Dialer, error) {
	if rest, ok := strings.CutPrefix(addr, "vsock://"); ok {
		a, err := vsock.ParseAddr(rest)
		if err != nil {
			return nil, err
		}
		return confidential.VsockDialer(a), nil
	}
	return confidential.TCPDialer(addr), nil
}

func localSigner(key string, logger logging.Logger) (*enclave.Signer, error) {
	if key != "" {
		return enclave.SignerFromHex(key)
	}
	s, err := enclave.GenerateSigner()
	if err != nil {
		return nil, err
	}
	logger.Warn("no enclave signer key configured, using an ephemeral key", "signer", s.GetKeyID())
	return s, nil
}

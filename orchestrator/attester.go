package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/confidential"
	"github.com/mynextid/zk-kyc/enclave"
	"github.com/mynextid/zk-kyc/models"
	"github.com/mynextid/zk-kyc/worker"
)

// Attester turns a protected payload into a signed attestation. Protect
// runs in the encrypting step, Attest in the verifying step.
type Attester interface {
	Protect(ctx context.Context, payload *models.ProtectedPayload, owner string) (models.ProtectedDataHandle, error)
	// Attest returns the attestation and the task identifier
	Attest(ctx context.Context, handle models.ProtectedDataHandle, subject string) (*models.AttestationResult, string, error)
}

// RemoteAttester runs the confidential task through a Client
type RemoteAttester struct {
	Client     *confidential.Client
	App        string
	Workerpool string
}

func (a *RemoteAttester) Protect(ctx context.Context, payload *models.ProtectedPayload, owner string) (models.ProtectedDataHandle, error) {
	return a.Client.Protect(ctx, payload, owner)
}

func (a *RemoteAttester) Attest(ctx context.Context, handle models.ProtectedDataHandle, subject string) (*models.AttestationResult, string, error) {
	granted, err := a.Client.GrantAccess(ctx, handle, a.App, subject)
	if err != nil {
		return nil, "", err
	}
	if !granted {
		return nil, "", fmt.Errorf("%w: app %s on %s", models.ErrAccessDenied, a.App, handle.Address)
	}
	res, err := a.Client.Execute(ctx, handle, a.App, a.Workerpool)
	if err != nil {
		return nil, "", err
	}
	return res.Result, res.TaskID, nil
}

// SimulationAttester keeps the sealed payload locally and applies the
// worker checks in process. Used when no confidential backend is reachable.
type SimulationAttester struct {
	signer *enclave.Signer
	policy worker.Policy
	key    *confidential.SealKey

	mu    sync.Mutex
	blobs map[string][]byte
}

func NewSimulationAttester(signer *enclave.Signer, policy worker.Policy) (*SimulationAttester, error) {
	key, err := confidential.NewSealKey()
	if err != nil {
		return nil, err
	}
	if signer == nil {
		if signer, err = enclave.GenerateSigner(); err != nil {
			return nil, err
		}
	}
	return &SimulationAttester{
		signer: signer,
		policy: policy,
		key:    key,
		blobs:  make(map[string][]byte),
	}, nil
}

// Signer returns the key that signs simulated attestations
func (a *SimulationAttester) Signer() *enclave.Signer { return a.signer }

func (a *SimulationAttester) Protect(_ context.Context, payload *models.ProtectedPayload, owner string) (models.ProtectedDataHandle, error) {
	owner, err := common.NormalizeSubject(owner)
	if err != nil {
		return models.ProtectedDataHandle{}, fmt.Errorf("%w: owner: %v", models.ErrProtection, err)
	}
	data, err := confidential.EncodePayload(payload)
	if err != nil {
		return models.ProtectedDataHandle{}, err
	}
	sealed, err := confidential.Seal(a.key.Public, data)
	if err != nil {
		return models.ProtectedDataHandle{}, err
	}

	address := "local:" + common.Digest(sealed)
	a.mu.Lock()
	a.blobs[address] = sealed
	a.mu.Unlock()
	return models.ProtectedDataHandle{Address: address, Name: "local-" + payload.Commitment[:16], Owner: owner}, nil
}

func (a *SimulationAttester) Attest(ctx context.Context, handle models.ProtectedDataHandle, subject string) (*models.AttestationResult, string, error) {
	a.mu.Lock()
	sealed, ok := a.blobs[handle.Address]
	delete(a.blobs, handle.Address)
	a.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown local blob %s", models.ErrExecution, handle.Address)
	}
	if !common.SameSubject(handle.Owner, subject) {
		return nil, "", fmt.Errorf("%w: blob is owned by %s", models.ErrAccessDenied, handle.Owner)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrExecution, err)
	}

	plain, err := a.key.Open(sealed)
	if err != nil {
		return nil, "", err
	}
	report, err := worker.Evaluate([]worker.Item{{Source: handle.Address, Raw: plain}}, a.policy, a.signer)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrExecution, err)
	}
	if report.Attestation.EnclaveSignature == "" {
		return nil, "", fmt.Errorf("%w: %s", models.ErrExecution, report.Items[0].Reason)
	}
	att := report.Attestation
	return &att, report.SessionID, nil
}

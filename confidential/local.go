package confidential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/enclave"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/models"
	"github.com/mynextid/zk-kyc/worker"
)

const datasetFile = "protected-data.bin"

type protectedEntry struct {
	name   string
	owner  string
	sealed []byte
	// app -> user -> granted
	grants map[string]map[string]bool
}

// LocalEnclave is an in-process Backend. Protected data is sealed at rest
// and only opened inside ProcessProtectedData, which runs the worker on a
// private scratch directory.
type LocalEnclave struct {
	mu      sync.Mutex
	key     *SealKey
	signer  *enclave.Signer
	policy  string
	entries map[string]*protectedEntry
	logger  logging.Logger
	workDir string
}

// LocalOptions configures a LocalEnclave
type LocalOptions struct {
	Signer *enclave.Signer
	// AppSecret is passed to the worker as the policy document
	AppSecret string
	// WorkDir hosts per-task scratch directories; empty means os.TempDir
	WorkDir string
	Logger  logging.Logger
}

func NewLocalEnclave(opts LocalOptions) (*LocalEnclave, error) {
	key, err := NewSealKey()
	if err != nil {
		return nil, err
	}
	if opts.Signer == nil {
		if opts.Signer, err = enclave.GenerateSigner(); err != nil {
			return nil, err
		}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &LocalEnclave{
		key:     key,
		signer:  opts.Signer,
		policy:  opts.AppSecret,
		entries: make(map[string]*protectedEntry),
		logger:  opts.Logger,
		workDir: opts.WorkDir,
	}, nil
}

// Signer returns the attestation signing identity
func (e *LocalEnclave) Signer() *enclave.Signer { return e.signer }

func (e *LocalEnclave) ProtectData(_ context.Context, req ProtectRequest) (ProtectResponse, error) {
	if len(req.Data) == 0 {
		return ProtectResponse{}, fmt.Errorf("%w: empty data", models.ErrProtection)
	}
	owner, err := common.NormalizeSubject(req.Owner)
	if err != nil {
		return ProtectResponse{}, fmt.Errorf("%w: owner: %v", models.ErrProtection, err)
	}
	if _, err := worker.DecodePayload(req.Data); err != nil {
		return ProtectResponse{}, fmt.Errorf("%w: %v", models.ErrProtection, err)
	}

	sealed, err := Seal(e.key.Public, req.Data)
	if err != nil {
		return ProtectResponse{}, err
	}
	address := crypto.Keccak256Hash(sealed).Hex()[:42]

	e.mu.Lock()
	e.entries[address] = &protectedEntry{
		name:   req.Name,
		owner:  owner,
		sealed: sealed,
		grants: make(map[string]map[string]bool),
	}
	e.mu.Unlock()

	e.logger.Debug("data protected", "address", address, "name", req.Name)
	return ProtectResponse{Address: address}, nil
}

func (e *LocalEnclave) GrantAccess(_ context.Context, req GrantRequest) (GrantResponse, error) {
	user, err := common.NormalizeSubject(req.AuthorizedUser)
	if err != nil {
		return GrantResponse{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if req.AuthorizedApp == "" {
		return GrantResponse{}, fmt.Errorf("%w: app is required", models.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[req.ProtectedData]
	if !ok {
		return GrantResponse{}, fmt.Errorf("%w: unknown protected data %s", models.ErrAccessDenied, req.ProtectedData)
	}
	if entry.owner != user {
		return GrantResponse{Granted: false, Reason: "only the owner may be authorized"}, nil
	}
	if entry.grants[req.AuthorizedApp] == nil {
		entry.grants[req.AuthorizedApp] = make(map[string]bool)
	}
	entry.grants[req.AuthorizedApp][user] = true
	return GrantResponse{Granted: true}, nil
}

func (e *LocalEnclave) ProcessProtectedData(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	e.mu.Lock()
	entry, ok := e.entries[req.ProtectedData]
	var allowed bool
	if ok {
		users := entry.grants[req.App]
		if req.Requester == "" {
			allowed = len(users) > 0
		} else if r, err := common.NormalizeSubject(req.Requester); err == nil {
			allowed = users[r]
		}
	}
	e.mu.Unlock()

	if !ok {
		return ProcessResponse{}, fmt.Errorf("%w: unknown protected data %s", models.ErrExecution, req.ProtectedData)
	}
	if !allowed {
		return ProcessResponse{}, fmt.Errorf("%w: app %s is not authorized", models.ErrAccessDenied, req.App)
	}
	if err := ctx.Err(); err != nil {
		return ProcessResponse{}, fmt.Errorf("%w: %v", models.ErrExecution, err)
	}

	plain, err := e.key.Open(entry.sealed)
	if err != nil {
		return ProcessResponse{}, err
	}

	taskID := uuid.NewString()
	report, err := e.run(taskID, plain)
	if err != nil {
		return ProcessResponse{}, fmt.Errorf("%w: task %s: %v", models.ErrExecution, taskID, err)
	}
	if report.Attestation.EnclaveSignature == "" {
		reason := "no item verified"
		if len(report.Items) > 0 && report.Items[0].Reason != "" {
			reason = report.Items[0].Reason
		}
		return ProcessResponse{}, fmt.Errorf("%w: task %s: %s", models.ErrExecution, taskID, reason)
	}

	b, err := json.Marshal(report.Attestation)
	if err != nil {
		return ProcessResponse{}, fmt.Errorf("%w: %v", models.ErrEncoding, err)
	}
	e.logger.Info("task executed",
		"task_id", taskID,
		"app", req.App,
		"workerpool", req.Workerpool,
		"overall_status", report.OverallStatus,
	)
	return ProcessResponse{TaskID: taskID, Result: string(b)}, nil
}

func (e *LocalEnclave) run(taskID string, data []byte) (*worker.Report, error) {
	root, err := os.MkdirTemp(e.workDir, "task-"+taskID[:8]+"-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(root)

	cfg := worker.Config{
		InputDir:     filepath.Join(root, "in"),
		OutputDir:    filepath.Join(root, "out"),
		DatasetFiles: []string{datasetFile},
		AppSecret:    e.policy,
		SignerKey:    e.signer.KeyHex(),
	}
	if err := os.MkdirAll(cfg.InputDir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(cfg.InputDir, datasetFile), data, 0o600); err != nil {
		return nil, err
	}

	if err := worker.Run(cfg, e.logger.With("task_id", taskID)); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(cfg.OutputDir, worker.ResultFile))
	if err != nil {
		return nil, err
	}
	var report worker.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("%w: result: %v", models.ErrResultParse, err)
	}
	return &report, nil
}

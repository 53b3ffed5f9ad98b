package confidential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/models"
)

var payloadEncoding cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	payloadEncoding = em
}

// EncodePayload is the deterministic CBOR encoding handed to the backend
func EncodePayload(p *models.ProtectedPayload) ([]byte, error) {
	b, err := payloadEncoding.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEncoding, err)
	}
	return b, nil
}

// Client drives the protect, grant, execute sequence against one network
type Client struct {
	backend Backend
	network Network
	logger  logging.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

// NewClient binds a backend to the network profile of chainID
func NewClient(backend Backend, chainID int64, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	network, known := NetworkForChain(chainID)
	if !known {
		logger.Warn("unrecognized chain, using the primary test profile", "chain_id", chainID, "network", network.Name)
	}
	return &Client{
		backend: backend,
		network: network,
		logger:  logger.With("network", network.Name),
		running: make(map[string]struct{}),
	}
}

// Network returns the profile the client is bound to
func (c *Client) Network() Network {
	return c.network
}

// Protect encrypts and registers payload with the backend
func (c *Client) Protect(ctx context.Context, payload *models.ProtectedPayload, owner string) (models.ProtectedDataHandle, error) {
	if err := checkPayload(payload); err != nil {
		return models.ProtectedDataHandle{}, err
	}
	owner, err := common.NormalizeSubject(owner)
	if err != nil {
		return models.ProtectedDataHandle{}, fmt.Errorf("%w: owner: %v", models.ErrProtection, err)
	}

	data, err := EncodePayload(payload)
	if err != nil {
		return models.ProtectedDataHandle{}, fmt.Errorf("%w: %v", models.ErrProtection, err)
	}

	name := "kyc-" + payload.Commitment[:16]
	resp, err := c.backend.ProtectData(ctx, ProtectRequest{Data: data, Name: name, Owner: owner})
	if err != nil {
		return models.ProtectedDataHandle{}, wrap(models.ErrProtection, err)
	}
	if strings.TrimSpace(resp.Address) == "" {
		return models.ProtectedDataHandle{}, fmt.Errorf("%w: backend returned no address", models.ErrProtection)
	}

	c.logger.Info("data protected", "address", resp.Address)
	return models.ProtectedDataHandle{Address: resp.Address, Name: name, Owner: owner}, nil
}

// GrantAccess authorizes app and subject on handle. A denial reported by
// the backend is false without error; a transport failure is an error.
func (c *Client) GrantAccess(ctx context.Context, handle models.ProtectedDataHandle, app, subject string) (bool, error) {
	if handle.Address == "" || app == "" {
		return false, fmt.Errorf("%w: handle and app are required", models.ErrInvalidInput)
	}
	subject, err := common.NormalizeSubject(subject)
	if err != nil {
		return false, err
	}

	resp, err := c.backend.GrantAccess(ctx, GrantRequest{
		ProtectedData:  handle.Address,
		AuthorizedApp:  app,
		AuthorizedUser: subject,
	})
	if err != nil {
		if errors.Is(err, models.ErrAccessDenied) {
			return false, nil
		}
		return false, wrap(models.ErrTransport, err)
	}
	if !resp.Granted {
		c.logger.Warn("access denied", "address", handle.Address, "app", app, "reason", resp.Reason)
	}
	return resp.Granted, nil
}

// Execute runs app on handle and parses the attestation it returns. A
// second call on the same handle while one is running fails.
func (c *Client) Execute(ctx context.Context, handle models.ProtectedDataHandle, app, workerpool string) (*ExecutionResult, error) {
	if handle.Address == "" || app == "" {
		return nil, fmt.Errorf("%w: handle and app are required", models.ErrInvalidInput)
	}
	if !c.acquire(handle.Address) {
		return nil, fmt.Errorf("%w: an execution is already running on %s", models.ErrExecution, handle.Address)
	}
	defer c.release(handle.Address)

	if workerpool == "" {
		workerpool = c.network.Workerpool
	}

	resp, err := c.backend.ProcessProtectedData(ctx, ProcessRequest{
		ProtectedData: handle.Address,
		App:           app,
		Workerpool:    workerpool,
		Requester:     handle.Owner,
	})
	if err != nil {
		return nil, wrap(models.ErrExecution, err)
	}

	att, err := ParseAttestation(resp.Result)
	if err != nil {
		return nil, err
	}

	c.logger.Info("task completed", "task_id", resp.TaskID, "is_valid", att.IsValid)
	return &ExecutionResult{TaskID: resp.TaskID, Result: att}, nil
}

// ParseAttestation decodes a task result into an attestation
func ParseAttestation(result string) (*models.AttestationResult, error) {
	dec := json.NewDecoder(strings.NewReader(result))
	var att models.AttestationResult
	if err := dec.Decode(&att); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrResultParse, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after the attestation", models.ErrResultParse)
	}
	if err := att.Check(); err != nil {
		return nil, err
	}
	return &att, nil
}

func (c *Client) acquire(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.running[address]; busy {
		return false
	}
	c.running[address] = struct{}{}
	return true
}

func (c *Client) release(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, address)
}

func checkPayload(p *models.ProtectedPayload) error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: payload is required", models.ErrProtection)
	case strings.TrimSpace(p.Subject) == "":
		return fmt.Errorf("%w: payload subject is missing", models.ErrProtection)
	case !p.DocumentType.Valid():
		return fmt.Errorf("%w: payload document type %q", models.ErrProtection, p.DocumentType)
	case !common.IsDigest(p.DocumentHash):
		return fmt.Errorf("%w: payload document hash is malformed", models.ErrProtection)
	case !common.IsDigest(p.Commitment):
		return fmt.Errorf("%w: payload commitment is malformed", models.ErrProtection)
	case p.DateOfBirth == "" || p.DocumentExpiry == "":
		return fmt.Errorf("%w: payload dates are missing", models.ErrProtection)
	}
	return nil
}

// wrap tags err with kind unless it already carries a taxonomy error
func wrap(kind, err error) error {
	if models.KindOf(err) != "InternalError" {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}

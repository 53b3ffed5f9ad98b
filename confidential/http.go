package confidential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mynextid/zk-kyc/models"
)

// Gateway paths
const (
	PathProtectedData = "/v1/protected-data"
	PathGrants        = "/v1/grants"
	PathTasks         = "/v1/tasks"
)

// Error codes shared by the gateway and HTTPBackend
const (
	CodeAccessDenied    = "access_denied"
	CodeInvalidPayload  = "invalid_payload"
	CodeExecutionFailed = "execution_failed"
	CodeUnknownData     = "unknown_protected_data"
)

// GatewayError is a non-2xx gateway answer
type GatewayError struct {
	Status  int
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	switch e.Code {
	case CodeAccessDenied:
		return models.ErrAccessDenied
	case CodeInvalidPayload:
		return models.ErrProtection
	case CodeExecutionFailed, CodeUnknownData:
		return models.ErrExecution
	}
	return models.ErrTransport
}

// HTTPBackend speaks the gateway protocol served by the server package
type HTTPBackend struct {
	baseURL string
	http    *http.Client
}

func NewHTTPBackend(baseURL string, httpClient *http.Client) *HTTPBackend {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
	}
}

func (b *HTTPBackend) ProtectData(ctx context.Context, req ProtectRequest) (ProtectResponse, error) {
	var out ProtectResponse
	err := b.post(ctx, PathProtectedData, req, &out)
	return out, err
}

func (b *HTTPBackend) GrantAccess(ctx context.Context, req GrantRequest) (GrantResponse, error) {
	var out GrantResponse
	err := b.post(ctx, PathGrants, req, &out)
	var gerr *GatewayError
	if errors.As(err, &gerr) && gerr.Code == CodeAccessDenied {
		return GrantResponse{Granted: false, Reason: gerr.Message}, nil
	}
	return out, err
}

func (b *HTTPBackend) ProcessProtectedData(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	var out ProcessResponse
	err := b.post(ctx, PathTasks, req, &out)
	return out, err
}

func (b *HTTPBackend) post(ctx context.Context, path string, in, out any) error {
	if b.baseURL == "" {
		return fmt.Errorf("%w: missing gateway url", models.ErrTransport)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrEncoding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &GatewayError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: gateway response: %v", models.ErrTransport, err)
	}
	return nil
}

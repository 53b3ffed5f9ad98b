package confidential

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/enclave"
	"github.com/mynextid/zk-kyc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	subject = "0xAbC0000000000000000000000000000000000001"
	app     = "0x00000000000000000000000000000000000a9901"
)

func payload() *models.ProtectedPayload {
	return &models.ProtectedPayload{
		Subject:        subject,
		DocumentType:   models.DocumentPassport,
		DocumentNumber: "P12345678",
		DocumentHash:   common.DigestString("P12345678"),
		DateOfBirth:    "2000-01-01",
		DocumentExpiry: "2026-06-01",
		Nationality:    "Canada",
		Commitment:     common.DigestString("commitment"),
		NullifierHash:  common.DigestString("nullifier"),
		RequestedAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Unix(),
	}
}

func localEnclave(t *testing.T) *LocalEnclave {
	t.Helper()
	e, err := NewLocalEnclave(LocalOptions{WorkDir: t.TempDir()})
	require.NoError(t, err)
	return e
}

func TestSealRoundTrip(t *testing.T) {
	k, err := NewSealKey()
	require.NoError(t, err)

	sealed, err := Seal(k.Public, []byte("secret"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secret")

	plain, err := k.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plain))

	other, err := NewSealKey()
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, models.ErrExecution)

	sealed[len(sealed)-1] ^= 1
	_, err = k.Open(sealed)
	assert.ErrorIs(t, err, models.ErrExecution)

	_, err = Seal([]byte("short"), []byte("x"))
	assert.ErrorIs(t, err, models.ErrProtection)
}

func TestLocalEnclavePipeline(t *testing.T) {
	e := localEnclave(t)
	c := NewClient(e, ChainArbitrumSepolia, nil)
	ctx := context.Background()

	handle, err := c.Protect(ctx, payload(), subject)
	require.NoError(t, err)
	assert.Len(t, handle.Address, 42)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", handle.Owner)

	granted, err := c.GrantAccess(ctx, handle, app, subject)
	require.NoError(t, err)
	require.True(t, granted)

	res, err := c.Execute(ctx, handle, app, "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.TaskID)
	assert.True(t, res.Result.IsValid)
	assert.Equal(t, models.Attributes{IsAdult: true, IsNotExpired: true, IsNotSanctioned: true}, res.Result.Attributes)
	require.NoError(t, enclave.VerifyAttestation(res.Result, e.Signer().Address()))
}

func TestLocalEnclaveRequiresGrant(t *testing.T) {
	e := localEnclave(t)
	c := NewClient(e, ChainArbitrumSepolia, nil)
	ctx := context.Background()

	handle, err := c.Protect(ctx, payload(), subject)
	require.NoError(t, err)

	_, err = c.Execute(ctx, handle, app, "")
	assert.ErrorIs(t, err, models.ErrAccessDenied)

	granted, err := c.GrantAccess(ctx, handle, app, "0x0000000000000000000000000000000000000002")
	require.NoError(t, err)
	assert.False(t, granted)

	granted, err = c.GrantAccess(ctx, models.ProtectedDataHandle{Address: "0xunknown"}, app, subject)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestProtectRejectsIncompletePayload(t *testing.T) {
	c := NewClient(localEnclave(t), ChainArbitrumSepolia, nil)
	p := payload()
	p.Commitment = ""
	_, err := c.Protect(context.Background(), p, subject)
	assert.ErrorIs(t, err, models.ErrProtection)

	_, err = c.Protect(context.Background(), payload(), "not-an-address")
	assert.ErrorIs(t, err, models.ErrProtection)
}

func TestExecuteUnverifiedPayload(t *testing.T) {
	e := localEnclave(t)
	c := NewClient(e, ChainArbitrumSepolia, nil)
	ctx := context.Background()

	p := payload()
	p.DocumentNumber = "P00000000"
	handle, err := c.Protect(ctx, p, subject)
	require.NoError(t, err)
	_, err = c.GrantAccess(ctx, handle, app, subject)
	require.NoError(t, err)

	_, err = c.Execute(ctx, handle, app, "")
	assert.ErrorIs(t, err, models.ErrExecution)
}

func TestParseAttestation(t *testing.T) {
	good := models.AttestationResult{
		IsValid:          true,
		Timestamp:        1,
		ProofHash:        common.DigestString("x"),
		EnclaveSignature: "0x01",
		Subject:          subject,
	}
	b, err := json.Marshal(good)
	require.NoError(t, err)

	att, err := ParseAttestation(string(b))
	require.NoError(t, err)
	assert.Equal(t, good, *att)

	for name, in := range map[string]string{
		"empty":    "",
		"not json": "kyc ok",
		"trailing": string(b) + string(b),
		"no hash":  `{"isValid":true,"timestamp":1,"enclaveSignature":"0x01"}`,
		"no stamp": `{"isValid":true,"proofHash":"` + good.ProofHash + `","enclaveSignature":"0x01"}`,
		"unsigned": `{"isValid":true,"timestamp":1,"proofHash":"` + good.ProofHash + `"}`,
	} {
		_, err := ParseAttestation(in)
		assert.ErrorIs(t, err, models.ErrResultParse, name)
	}
}

type blockingBackend struct {
	*LocalEnclave
	started chan struct{}
	release chan struct{}
}

func (b *blockingBackend) ProcessProtectedData(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	close(b.started)
	<-b.release
	return b.LocalEnclave.ProcessProtectedData(ctx, req)
}

func TestExecuteIsExclusivePerHandle(t *testing.T) {
	b := &blockingBackend{LocalEnclave: localEnclave(t), started: make(chan struct{}), release: make(chan struct{})}
	c := NewClient(b, ChainArbitrumSepolia, nil)
	ctx := context.Background()

	handle, err := c.Protect(ctx, payload(), subject)
	require.NoError(t, err)
	_, err = c.GrantAccess(ctx, handle, app, subject)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = c.Execute(ctx, handle, app, "")
	}()
	<-b.started

	_, err = c.Execute(ctx, handle, app, "")
	assert.ErrorIs(t, err, models.ErrExecution)

	close(b.release)
	wg.Wait()
	assert.NoError(t, firstErr)
}

func TestNetworkSelection(t *testing.T) {
	c := NewClient(localEnclave(t), ChainBellecour, nil)
	assert.Equal(t, "bellecour", c.Network().Name)

	c = NewClient(localEnclave(t), 1, nil)
	assert.Equal(t, PrimaryNetwork().Name, c.Network().Name)

	n, ok := NetworkForChain(ChainArbitrumSepolia)
	require.True(t, ok)
	assert.Equal(t, "arbitrum-sepolia", n.Name)
	_, ok = NetworkForChain(5)
	assert.False(t, ok)
}

func TestHTTPBackend(t *testing.T) {
	e := localEnclave(t)
	mux := http.NewServeMux()
	serve := func(path string, fn func(r *http.Request) (any, error)) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			out, err := fn(r)
			w.Header().Set("Content-Type", "application/json")
			if err != nil {
				code := CodeExecutionFailed
				status := http.StatusUnprocessableEntity
				if errors.Is(err, models.ErrAccessDenied) {
					code, status = CodeAccessDenied, http.StatusForbidden
				}
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "code": code})
				return
			}
			_ = json.NewEncoder(w).Encode(out)
		})
	}
	serve(PathProtectedData, func(r *http.Request) (any, error) {
		var req ProtectRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		return e.ProtectData(r.Context(), req)
	})
	serve(PathGrants, func(r *http.Request) (any, error) {
		var req GrantRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		return e.GrantAccess(r.Context(), req)
	})
	serve(PathTasks, func(r *http.Request) (any, error) {
		var req ProcessRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		return e.ProcessProtectedData(r.Context(), req)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(NewHTTPBackend(srv.URL+"/", srv.Client()), ChainArbitrumSepolia, nil)
	ctx := context.Background()

	handle, err := c.Protect(ctx, payload(), subject)
	require.NoError(t, err)

	_, err = c.Execute(ctx, handle, app, "")
	assert.ErrorIs(t, err, models.ErrAccessDenied)

	granted, err := c.GrantAccess(ctx, models.ProtectedDataHandle{Address: "0xmissing"}, app, subject)
	require.NoError(t, err)
	assert.False(t, granted)

	granted, err = c.GrantAccess(ctx, handle, app, subject)
	require.NoError(t, err)
	require.True(t, granted)

	res, err := c.Execute(ctx, handle, app, "")
	require.NoError(t, err)
	assert.True(t, res.Result.IsValid)
}

func TestHTTPBackendTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(NewHTTPBackend(url, nil), ChainArbitrumSepolia, nil)
	_, err := c.GrantAccess(context.Background(), models.ProtectedDataHandle{Address: "0x1"}, app, subject)
	assert.ErrorIs(t, err, models.ErrTransport)

	_, err = NewHTTPBackend("", nil).ProtectData(context.Background(), ProtectRequest{})
	assert.ErrorIs(t, err, models.ErrTransport)
}

func TestRPCBackend(t *testing.T) {
	e := localEnclave(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeRPC(ctx, ln, e, nil) }()

	rpc := NewRPCBackend(TCPDialer(ln.Addr().String()))
	require.NoError(t, rpc.Ping(ctx))

	c := NewClient(rpc, ChainArbitrumSepolia, nil)
	handle, err := c.Protect(ctx, payload(), subject)
	require.NoError(t, err)

	_, err = c.Execute(ctx, handle, app, "")
	assert.ErrorIs(t, err, models.ErrAccessDenied)

	granted, err := c.GrantAccess(ctx, handle, app, subject)
	require.NoError(t, err)
	require.True(t, granted)

	res, err := c.Execute(ctx, handle, app, "")
	require.NoError(t, err)
	require.NoError(t, enclave.VerifyAttestation(res.Result, e.Signer().Address()))

	err = rpc.call(ctx, "reboot", nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	cancel()
	assert.NoError(t, <-done)

	_, err = rpc.ProtectData(context.Background(), ProtectRequest{})
	assert.ErrorIs(t, err, models.ErrTransport)
}

package confidential

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/mynextid/zk-kyc/internal/vsock"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/models"
)

// RPC methods served by ServeRPC
const (
	MethodPing    = "ping"
	MethodProtect = "protect_data"
	MethodGrant   = "grant_access"
	MethodProcess = "process_protected_data"
)

type rpcRequest struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	// Kind is the taxonomy name of Error
	Kind string `json:"kind,omitempty"`
}

// Dialer opens one connection per call
type Dialer func(ctx context.Context) (net.Conn, error)

// TCPDialer dials addr over TCP
func TCPDialer(addr string) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
}

// RPCBackend speaks newline-delimited JSON to an enclave, one request per
// connection
type RPCBackend struct {
	dial Dialer
}

func NewRPCBackend(dial Dialer) *RPCBackend {
	return &RPCBackend{dial: dial}
}

func (b *RPCBackend) ProtectData(ctx context.Context, req ProtectRequest) (ProtectResponse, error) {
	var out ProtectResponse
	err := b.call(ctx, MethodProtect, req, &out)
	return out, err
}

func (b *RPCBackend) GrantAccess(ctx context.Context, req GrantRequest) (GrantResponse, error) {
	var out GrantResponse
	err := b.call(ctx, MethodGrant, req, &out)
	return out, err
}

func (b *RPCBackend) ProcessProtectedData(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	var out ProcessResponse
	err := b.call(ctx, MethodProcess, req, &out)
	return out, err
}

// Ping checks that the enclave answers
func (b *RPCBackend) Ping(ctx context.Context) error {
	var out string
	if err := b.call(ctx, MethodPing, nil, &out); err != nil {
		return err
	}
	if out != "pong" {
		return fmt.Errorf("%w: unexpected ping answer %q", models.ErrTransport, out)
	}
	return nil
}

func (b *RPCBackend) call(ctx context.Context, method string, params, result any) error {
	conn, err := b.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", models.ErrTransport, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	req := struct {
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{Method: method, Params: params}
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrEncoding, err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: write: %v", models.ErrTransport, err)
	}

	rd := bufio.NewScanner(conn)
	rd.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !rd.Scan() {
		if err := rd.Err(); err != nil {
			return fmt.Errorf("%w: read: %v", models.ErrTransport, err)
		}
		return fmt.Errorf("%w: no response", models.ErrTransport)
	}

	var resp rpcResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(rd.Text())), &resp); err != nil {
		return fmt.Errorf("%w: response: %v", models.ErrTransport, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", kindError(resp.Kind), resp.Error)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%w: result: %v", models.ErrTransport, err)
	}
	return nil
}

func kindError(kind string) error {
	for _, err := range []error{
		models.ErrProtection, models.ErrAccessDenied, models.ErrExecution,
		models.ErrInvalidInput, models.ErrEncoding, models.ErrResultParse, models.ErrValidation,
	} {
		if models.KindOf(err) == kind {
			return err
		}
	}
	return models.ErrTransport
}

// ServeRPC answers RPC connections from ln with backend until ctx is done
func ServeRPC(ctx context.Context, ln net.Listener, backend Backend, logger logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := handleConn(ctx, c, backend); err != nil {
				logger.Warn("rpc connection failed", "remote", c.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

func handleConn(ctx context.Context, c net.Conn, backend Backend) error {
	defer c.Close()

	rd := bufio.NewScanner(c)
	rd.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	wr := bufio.NewWriter(c)
	enc := json.NewEncoder(wr)

	for rd.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(rd.Text())
		if line == "" {
			continue
		}

		var req rpcRequest
		var resp rpcResponse
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			resp.Error = "invalid_json"
		} else {
			resp = dispatch(ctx, backend, req)
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
		if err := wr.Flush(); err != nil {
			return err
		}
	}
	return rd.Err()
}

func dispatch(ctx context.Context, backend Backend, req rpcRequest) rpcResponse {
	resp := rpcResponse{ID: req.ID}

	var (
		result any
		err    error
	)
	switch req.Method {
	case MethodPing:
		result = "pong"
	case MethodProtect:
		var p ProtectRequest
		if err = json.Unmarshal(req.Params, &p); err == nil {
			result, err = backend.ProtectData(ctx, p)
		}
	case MethodGrant:
		var p GrantRequest
		if err = json.Unmarshal(req.Params, &p); err == nil {
			result, err = backend.GrantAccess(ctx, p)
		}
	case MethodProcess:
		var p ProcessRequest
		if err = json.Unmarshal(req.Params, &p); err == nil {
			result, err = backend.ProcessProtectedData(ctx, p)
		}
	default:
		err = fmt.Errorf("%w: unknown method %q", models.ErrInvalidInput, req.Method)
	}

	if err != nil {
		resp.Error = err.Error()
		resp.Kind = models.KindOf(err)
		return resp
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = err.Error()
		resp.Kind = models.KindOf(models.ErrEncoding)
		return resp
	}
	resp.Result = raw
	return resp
}

// VsockDialer dials an enclave at addr
func VsockDialer(addr vsock.Addr) Dialer {
	return func(context.Context) (net.Conn, error) {
		return vsock.Dial(addr)
	}
}

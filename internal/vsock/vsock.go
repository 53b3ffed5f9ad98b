// Package vsock carries the enclave RPC between a parent instance and its
// enclave over AF_VSOCK.
package vsock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupported is returned on platforms without AF_VSOCK
var ErrUnsupported = errors.New("vsock is not supported on this platform")

// Addr is a context ID and port pair
type Addr struct {
	CID  uint32
	Port uint32
}

func (a Addr) Network() string { return "vsock" }
func (a Addr) String() string  { return fmt.Sprintf("%d:%d", a.CID, a.Port) }

// ParseAddr parses "cid:port"
func ParseAddr(s string) (Addr, error) {
	cid, port, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Addr{}, fmt.Errorf("vsock address %q: want cid:port", s)
	}
	c, err := strconv.ParseUint(cid, 10, 32)
	if err != nil {
		return Addr{}, fmt.Errorf("vsock cid %q: %w", cid, err)
	}
	p, err := strconv.ParseUint(port, 10, 32)
	if err != nil {
		return Addr{}, fmt.Errorf("vsock port %q: %w", port, err)
	}
	return Addr{CID: uint32(c), Port: uint32(p)}, nil
}

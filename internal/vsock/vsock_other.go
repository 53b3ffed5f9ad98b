//go:build !linux

package vsock

import "net"

func Dial(Addr) (net.Conn, error) { return nil, ErrUnsupported }

func Listen(uint32) (net.Listener, error) { return nil, ErrUnsupported }

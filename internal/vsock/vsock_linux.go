//go:build linux

package vsock

import (
	"errors"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Dial connects to addr
func Dial(addr Addr) (net.Conn, error) {
	fd, err := unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Connect(fd, &unix.SockaddrVM{CID: addr.CID, Port: addr.Port}); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return newConn(fd, Addr{}, addr)
}

// Listener accepts vsock connections on one port
type Listener struct {
	fd   int
	addr Addr
}

// Listen binds port on any context ID
func Listen(port uint32) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrVM{CID: unix.VMADDR_CID_ANY, Port: port}); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &Listener{fd: fd, addr: Addr{CID: unix.VMADDR_CID_ANY, Port: port}}, nil
}

func (l *Listener) Accept() (net.Conn, error) {
	fd, sa, err := unix.Accept(l.fd)
	if err != nil {
		if errors.Is(err, unix.EBADF) || errors.Is(err, unix.EINVAL) {
			return nil, net.ErrClosed
		}
		return nil, err
	}
	var remote Addr
	if vm, ok := sa.(*unix.SockaddrVM); ok {
		remote = Addr{CID: vm.CID, Port: vm.Port}
	}
	return newConn(fd, l.addr, remote)
}

func (l *Listener) Close() error   { return unix.Close(l.fd) }
func (l *Listener) Addr() net.Addr { return l.addr }

// Conn is a connected vsock stream; deadlines map to socket timeouts
type Conn struct {
	f      *os.File
	fd     int
	local  Addr
	remote Addr
}

func newConn(fd int, local, remote Addr) (*Conn, error) {
	if sa, err := unix.Getsockname(fd); err == nil {
		if vm, ok := sa.(*unix.SockaddrVM); ok {
			local = Addr{CID: vm.CID, Port: vm.Port}
		}
	}
	f := os.NewFile(uintptr(fd), "vsock")
	if f == nil {
		_ = unix.Close(fd)
		return nil, errors.New("vsock: invalid descriptor")
	}
	return &Conn{f: f, fd: fd, local: local, remote: remote}, nil
}

func (c *Conn) Read(b []byte) (int, error)  { return c.f.Read(b) }
func (c *Conn) Write(b []byte) (int, error) { return c.f.Write(b) }
func (c *Conn) Close() error                { return c.f.Close() }
func (c *Conn) LocalAddr() net.Addr         { return c.local }
func (c *Conn) RemoteAddr() net.Addr        { return c.remote }

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return timeout(c.fd, unix.SO_RCVTIMEO, t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return timeout(c.fd, unix.SO_SNDTIMEO, t)
}

func timeout(fd, opt int, deadline time.Time) error {
	var tv unix.Timeval
	if !deadline.IsZero() {
		d := max(time.Until(deadline), time.Microsecond)
		tv = unix.NsecToTimeval(d.Nanoseconds())
	}
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, opt, &tv)
}

// Package socketset manages the non-blocking UDP sockets a worker sends
// queries from and receives replies on, plus their epoll registration.
package socketset

import (
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// AltReceiver models an optional alternate receive path (e.g. a
// raw-capture backend) alongside the normal socket set. The shipped
// implementation is always not-ready; no packet-capture library exists
// in the dependency corpus to back a real one (see DESIGN.md).
type AltReceiver interface {
	// Ready reports whether the alternate path has a datagram available.
	Ready() bool
	// Recv reads one datagram from the alternate path into buf.
	Recv(buf []byte) (n int, err error)
}

// NoopAltReceiver is the default AltReceiver: never ready.
type NoopAltReceiver struct{}

func (NoopAltReceiver) Ready() bool                      { return false }
func (NoopAltReceiver) Recv(buf []byte) (int, error) { return 0, nil }

// Socket is one bound, non-blocking UDP socket with its raw file
// descriptor extracted so the event loop can drive it with epoll and
// direct unix.Sendto/unix.Recvfrom calls instead of going through the Go
// runtime's network poller.
type Socket struct {
	Conn   *net.UDPConn
	FD     int
	IsIPv6 bool
}

// Set groups a worker's sockets by address family so the engine can pick
// a source socket matching a resolver's family.
type Set struct {
	v4 []*Socket
	v6 []*Socket
}

// Open binds one non-blocking UDP socket per address in addrs (or one
// wildcard IPv4 socket if addrs is empty), applying sndBuf/rcvBuf when
// non-zero.
func Open(addrs []string, sndBuf, rcvBuf int) (*Set, error) {
	if len(addrs) == 0 {
		addrs = []string{"0.0.0.0"}
	}
	set := &Set{}
	for _, a := range addrs {
		sock, err := openOne(a, sndBuf, rcvBuf)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("bind %s: %w", a, err)
		}
		if sock.IsIPv6 {
			set.v6 = append(set.v6, sock)
		} else {
			set.v4 = append(set.v4, sock)
		}
	}
	return set, nil
}

func openOne(addr string, sndBuf, rcvBuf int) (*Socket, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid bind address %q: %w", addr, err)
	}

	network := "udp4"
	if ip.Is6() {
		network = "udp6"
	}

	conn, err := net.ListenUDP(network, &net.UDPAddr{IP: ip.AsSlice()})
	if err != nil {
		return nil, err
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	var fd int
	var sockErr error
	err = raw.Control(func(fdPtr uintptr) {
		fd = int(fdPtr)
		if sndBuf > 0 {
			sockErr = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sndBuf)
		}
		if sockErr == nil && rcvBuf > 0 {
			sockErr = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBuf)
		}
		if sockErr == nil {
			sockErr = unix.SetNonblock(fd, true)
		}
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if sockErr != nil {
		_ = conn.Close()
		return nil, sockErr
	}

	return &Socket{Conn: conn, FD: fd, IsIPv6: ip.Is6()}, nil
}

// Close releases every socket in the set.
func (s *Set) Close() {
	for _, sock := range s.v4 {
		_ = sock.Conn.Close()
	}
	for _, sock := range s.v6 {
		_ = sock.Conn.Close()
	}
}

// All returns every socket in the set, v4 first.
func (s *Set) All() []*Socket {
	all := make([]*Socket, 0, len(s.v4)+len(s.v6))
	all = append(all, s.v4...)
	all = append(all, s.v6...)
	return all
}

// ForFamily returns the socket bucket matching isIPv6.
func (s *Set) ForFamily(isIPv6 bool) []*Socket {
	if isIPv6 {
		return s.v6
	}
	return s.v4
}

// Choose picks a source socket uniformly at random from the
// family-matching bucket. It reports ok=false if no socket of that
// family is bound.
func (s *Set) Choose(isIPv6 bool) (*Socket, bool) {
	bucket := s.ForFamily(isIPv6)
	if len(bucket) == 0 {
		return nil, false
	}
	return bucket[rand.Intn(len(bucket))], true
}

// sockaddrFromAddrPort converts a netip.AddrPort to the unix.Sockaddr
// the raw syscalls expect.
func sockaddrFromAddrPort(ap netip.AddrPort) unix.Sockaddr {
	if ap.Addr().Is4() || ap.Addr().Is4In6() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ap.Addr().As16()}
}

// SendTo transmits buf to dest via sock without blocking. A short write
// is reported as an error for the caller to log and otherwise ignore —
// the timeout path will retry.
func SendTo(sock *Socket, dest netip.AddrPort, buf []byte) error {
	sa := sockaddrFromAddrPort(dest)
	return unix.Sendto(sock.FD, buf, 0, sa)
}

// RecvFrom reads one datagram from sock into buf without blocking,
// along with the address it arrived from. Returns syscall.EAGAIN when
// nothing is currently available.
func RecvFrom(sock *Socket, buf []byte) (n int, from netip.AddrPort, err error) {
	var sa unix.Sockaddr
	n, sa, err = unix.Recvfrom(sock.FD, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, netip.AddrPort{}, syscall.EAGAIN
		}
		return 0, netip.AddrPort{}, err
	}
	return n, addrPortFromSockaddr(sa), nil
}

// addrPortFromSockaddr converts a raw unix.Sockaddr (as returned by
// Recvfrom) back into a netip.AddrPort.
func addrPortFromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port))
	default:
		return netip.AddrPort{}
	}
}

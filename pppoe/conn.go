package pppoe

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DiscoveryPort is the link-level transport used by the discovery engine.
//
// RecvDeadline must return an error satisfying
// errors.Is(err, os.ErrDeadlineExceeded) if no frame arrives before
// the deadline.
type DiscoveryPort interface {
	HWAddr() [6]byte
	Send(b []byte) (int, error)
	RecvDeadline(b []byte, deadline time.Time) (int, error)
}

var _ DiscoveryPort = (*PPPoEConn)(nil)

// PPPoEConn is a raw Ethernet socket bound to the PPPoE discovery
// Ethernet type on a single interface.
type PPPoEConn struct {
	iface *net.Interface
	file  *os.File
}

// ethTypeDiscoveryNetUint16 returns the discovery Ethernet type in network
// byte order for use in sockaddr_ll.
func ethTypeDiscoveryNetUint16() uint16 {
	return uint16(ethTypeDiscovery&0xff)<<8 | uint16(ethTypeDiscovery>>8)
}

func newRawSocket(protocol int) (fd int, err error) {

	// raw socket since we want to read/write link-level packets
	fd, err = unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, protocol)
	if err != nil {
		return -1, fmt.Errorf("socket: %v", err)
	}

	// make the socket nonblocking so we can use it with the runtime poller
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to set socket nonblocking: %v", err)
	}

	// set the socket CLOEXEC to prevent passing it to child processes
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("fcntl(F_GETFD): %v", err)
	}

	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("fcntl(F_SETFD, FD_CLOEXEC): %v", err)
	}

	// allow broadcast
	err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt(SO_BROADCAST): %v", err)
	}

	return
}

// NewDiscoveryConnection opens a raw discovery socket on the named
// interface.  It fails if the interface does not exist, is not an
// Ethernet interface, or cannot be bound for raw access.
func NewDiscoveryConnection(ifname string) (conn *PPPoEConn, err error) {

	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain details of interface \"%s\": %v", ifname, err)
	}

	if len(iface.HardwareAddr) != 6 {
		return nil, fmt.Errorf("interface \"%s\" has a non-Ethernet hardware address", ifname)
	}

	fd, err := newRawSocket(int(ethTypeDiscoveryNetUint16()))
	if err != nil {
		return nil, fmt.Errorf("failed to create raw socket: %v", err)
	}

	// bind to the interface specified
	sa := unix.SockaddrLinklayer{
		Protocol: ethTypeDiscoveryNetUint16(),
		Ifindex:  iface.Index,
	}
	err = unix.Bind(fd, &sa)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind socket: %v", err)
	}

	// register the socket with the runtime poller
	return &PPPoEConn{
		iface: iface,
		file:  os.NewFile(uintptr(fd), "pppoe"),
	}, nil
}

// Close closes the socket, unblocking any pending Recv.
func (c *PPPoEConn) Close() error {
	return c.file.Close()
}

// Send transmits a raw Ethernet frame.
func (c *PPPoEConn) Send(b []byte) (n int, err error) {
	return c.file.Write(b)
}

// Recv blocks until a raw Ethernet frame is received.
func (c *PPPoEConn) Recv(b []byte) (n int, err error) {
	return c.file.Read(b)
}

// RecvDeadline receives a raw Ethernet frame, giving up at deadline.
func (c *PPPoEConn) RecvDeadline(b []byte, deadline time.Time) (n int, err error) {
	if err = c.file.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("failed to set read deadline: %w", err)
	}
	n, err = c.file.Read(b)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, os.ErrDeadlineExceeded
	}
	return
}

// InterfaceName returns the name of the interface the socket is bound to.
func (c *PPPoEConn) InterfaceName() string {
	return c.iface.Name
}

// HWAddr returns the Ethernet address of the bound interface.
func (c *PPPoEConn) HWAddr() (addr [6]byte) {
	copy(addr[:], c.iface.HardwareAddr)
	return
}

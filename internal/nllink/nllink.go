// Package nllink queries network interface state over rtnetlink.
package nllink

import (
	"errors"
	"fmt"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"
)

// ifinfomsg is the fixed header preceding link attributes
const ifInfoMsgLen = 16

// Operational states, from RFC2863 via linux/if.h
const (
	OperStateUnknown        = 0
	OperStateNotPresent     = 1
	OperStateDown           = 2
	OperStateLowerLayerDown = 3
	OperStateTesting        = 4
	OperStateDormant        = 5
	OperStateUp             = 6
)

// Link describes a network interface.
type Link struct {
	Index     int32
	Name      string
	ARPType   uint16
	Flags     uint32
	MTU       uint32
	HWAddr    []byte
	OperState uint8
}

// IsUp reports whether the interface is administratively up.
func (l *Link) IsUp() bool {
	return l.Flags&unix.IFF_UP != 0
}

// HasCarrier reports whether the operational state allows traffic to
// flow.  Drivers which do not report an operational state are assumed to
// have carrier.
func (l *Link) HasCarrier() bool {
	switch l.OperState {
	case OperStateNotPresent, OperStateDown, OperStateLowerLayerDown:
		return false
	}
	return true
}

// IsEthernet reports whether the interface carries Ethernet frames.
func (l *Link) IsEthernet() bool {
	return l.ARPType == unix.ARPHRD_ETHER && len(l.HWAddr) == 6
}

// Conn is an rtnetlink connection to the kernel.
type Conn struct {
	c *netlink.Conn
}

// Dial opens an rtnetlink connection.
func Dial() (*Conn, error) {
	c, err := netlink.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// Close connection, releasing associated resources
func (c *Conn) Close() error {
	return c.c.Close()
}

// LinkByName looks up an interface by name.
func (c *Conn) LinkByName(name string) (*Link, error) {
	if name == "" {
		return nil, errors.New("interface name must be specified")
	}

	ae := netlink.NewAttributeEncoder()
	ae.String(unix.IFLA_IFNAME, name)
	attrs, err := ae.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %v", err)
	}

	b := make([]byte, ifInfoMsgLen, ifInfoMsgLen+len(attrs))
	b[0] = unix.AF_UNSPEC
	b = append(b, attrs...)

	req := netlink.Message{
		Header: netlink.Header{
			Type:  unix.RTM_GETLINK,
			Flags: netlink.Request,
		},
		Data: b,
	}

	msgs, err := c.c.Execute(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get link %s: %w", name, err)
	}
	if len(msgs) != 1 {
		return nil, fmt.Errorf("expected 1 link message for %s, got %d", name, len(msgs))
	}
	return parseLink(msgs[0].Data)
}

func parseLink(b []byte) (*Link, error) {
	if len(b) < ifInfoMsgLen {
		return nil, fmt.Errorf("link message too short: %d bytes", len(b))
	}

	link := &Link{
		ARPType: nlenc.Uint16(b[2:4]),
		Index:   nlenc.Int32(b[4:8]),
		Flags:   nlenc.Uint32(b[8:12]),
	}

	ad, err := netlink.NewAttributeDecoder(b[ifInfoMsgLen:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode link attributes: %v", err)
	}
	for ad.Next() {
		switch ad.Type() {
		case unix.IFLA_IFNAME:
			link.Name = ad.String()
		case unix.IFLA_ADDRESS:
			link.HWAddr = ad.Bytes()
		case unix.IFLA_MTU:
			link.MTU = ad.Uint32()
		case unix.IFLA_OPERSTATE:
			link.OperState = ad.Uint8()
		}
	}
	if err := ad.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode link attributes: %v", err)
	}
	return link, nil
}

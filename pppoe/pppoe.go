package pppoe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// PPPoEPacket is an outgoing PPPoE discovery packet.
//
// Tags are encoded as they are added, so a packet can never hold a tag list
// larger than MaxPayloadLen.
type PPPoEPacket struct {
	// SrcHWAddr is the Ethernet address of the sender of the packet.
	SrcHWAddr [6]byte
	// DstHWAddr is the Ethernet address of the receiver of the packet.
	DstHWAddr [6]byte
	// Code is the code per RFC2516 which identifes the packet.
	Code PPPoECode
	// SessionID is the allocated session ID, once it has been set.
	// Up until that point in the discovery sequence the ID is zero.
	SessionID PPPoESessionID

	tags TagEncoder
}

// Frame is a received PPPoE discovery packet.
//
// Payload aliases the receive buffer and covers exactly the number of bytes
// declared in the PPPoE header.
type Frame struct {
	DstHWAddr [6]byte
	SrcHWAddr [6]byte
	Code      PPPoECode
	SessionID PPPoESessionID
	Payload   []byte
}

// pppoeHeader is the on-the-wire structure which we use for parsing
// raw data buffers received on a connection.
type pppoeHeader struct {
	// Ethernet header
	DstHWAddr [6]byte
	SrcHWAddr [6]byte
	EtherType uint16
	// PPPoE header
	VerType   uint8
	Code      uint8
	SessionID uint16
	Length    uint16
}

// String provides a human-readable representation of PPPoECode.
func (code PPPoECode) String() string {
	switch code {
	case PPPoECodePADI:
		return "PADI"
	case PPPoECodePADO:
		return "PADO"
	case PPPoECodePADR:
		return "PADR"
	case PPPoECodePADS:
		return "PADS"
	case PPPoECodePADT:
		return "PADT"
	}
	return "???"
}

// String provides a human-readable representation of PPPoETagType.
func (typ PPPoETagType) String() string {
	switch typ {
	case PPPoETagTypeEOL:
		return "EOL"
	case PPPoETagTypeServiceName:
		return "Service Name"
	case PPPoETagTypeACName:
		return "AC Name"
	case PPPoETagTypeHostUniq:
		return "Host Uniq"
	case PPPoETagTypeACCookie:
		return "AC Cookie"
	case PPPoETagTypeVendorSpecific:
		return "Vendor Specific"
	case PPPoETagTypeRelaySessionID:
		return "Relay Session ID"
	case PPPoETagTypeServiceNameError:
		return "Service Name Error"
	case PPPoETagTypeACSystemError:
		return "AC System Error"
	case PPPoETagTypeGenericError:
		return "Generic Error"
	default:
		return "Unknown"
	}
}

func hwAddrString(addr [6]byte) string {
	return net.HardwareAddr(addr[:]).String()
}

func tagListString(payload []byte) string {
	var s string
	it := NewTagIterator(payload)
	for it.Next() {
		s += fmt.Sprintf(" %s,", it.Tag())
	}
	if it.Err() != nil {
		s += " <malformed>"
	}
	return s
}

// String provides a human-readable representation of PPPoEPacket.
func (packet *PPPoEPacket) String() string {
	return fmt.Sprintf("%s: src %s, dst %s, session %v, tags:%s",
		packet.Code,
		hwAddrString(packet.SrcHWAddr),
		hwAddrString(packet.DstHWAddr),
		packet.SessionID,
		tagListString(packet.tags.Bytes()))
}

// String provides a human-readable representation of Frame.
func (frame *Frame) String() string {
	return fmt.Sprintf("%s: src %s, dst %s, session %v, tags:%s",
		frame.Code,
		hwAddrString(frame.SrcHWAddr),
		hwAddrString(frame.DstHWAddr),
		frame.SessionID,
		tagListString(frame.Payload))
}

// Tags returns an iterator over the frame's tags.
func (frame *Frame) Tags() *TagIterator {
	return NewTagIterator(frame.Payload)
}

// Tags returns an iterator over the tags added to the packet so far.
func (packet *PPPoEPacket) Tags() *TagIterator {
	return NewTagIterator(packet.tags.Bytes())
}

// PayloadLen returns the length of the packet's encoded tag list.
func (packet *PPPoEPacket) PayloadLen() int {
	return packet.tags.Len()
}

// ParseFrame parses a raw frame received on a discovery connection.
//
// The frame must carry the PPPoE discovery Ethernet type and a version 1,
// type 1 PPPoE header, and the payload length declared in that header must
// not exceed the bytes received.  Trailing bytes beyond the declared length
// (e.g. Ethernet padding) are ignored.  Failures wrap ErrMalformedPacket.
func ParseFrame(b []byte) (frame *Frame, err error) {
	var hdr pppoeHeader

	if len(b) < pppoePacketMinLength {
		return nil, fmt.Errorf("%w: frame of %d bytes is shorter than the %d byte header",
			ErrMalformedPacket, len(b), pppoePacketMinLength)
	}

	if err = binary.Read(bytes.NewReader(b), binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	if hdr.EtherType != ethTypeDiscovery {
		return nil, fmt.Errorf("%w: Ethernet type %#04x is not PPPoE discovery",
			ErrMalformedPacket, hdr.EtherType)
	}

	if hdr.VerType != pppoeVerType {
		return nil, fmt.Errorf("%w: unsupported PPPoE version/type %#02x",
			ErrMalformedPacket, hdr.VerType)
	}

	if int(hdr.Length) > len(b)-pppoePacketMinLength {
		return nil, fmt.Errorf("%w: bogus PPPoE length field %d exceeds buffer bounds of %d",
			ErrMalformedPacket, hdr.Length, len(b)-pppoePacketMinLength)
	}

	return &Frame{
		DstHWAddr: hdr.DstHWAddr,
		SrcHWAddr: hdr.SrcHWAddr,
		Code:      PPPoECode(hdr.Code),
		SessionID: PPPoESessionID(hdr.SessionID),
		Payload:   b[pppoePacketMinLength : pppoePacketMinLength+int(hdr.Length)],
	}, nil
}

func newPacket(code PPPoECode, src, dst [6]byte, sid PPPoESessionID) *PPPoEPacket {
	return &PPPoEPacket{
		SrcHWAddr: src,
		DstHWAddr: dst,
		Code:      code,
		SessionID: sid,
	}
}

// NewPADI returns a PADI packet with the RFC-mandated service name
// tag included.
//
// PADI packets are used by the client to initiate the PPPoE discovery
// sequence.
//
// Clients which wish to use any service available should pass an empty
// string.
//
// PADI packets are sent to the Ethernet broadcast address, so only the
// source address must be specified.
func NewPADI(sourceHWAddr [6]byte, serviceName string) (packet *PPPoEPacket, err error) {
	packet = newPacket(PPPoECodePADI, sourceHWAddr, ethBroadcastAddr, 0)
	err = packet.AddServiceNameTag(serviceName)
	if err != nil {
		return nil, err
	}
	return
}

// NewPADO returns a PADO packet with the RFC-mandated service name and
// AC name tags included.
//
// PADO packets are used by the server respond to a client's PADI.
func NewPADO(sourceHWAddr [6]byte, destHWAddr [6]byte, serviceName string, acName string) (packet *PPPoEPacket, err error) {
	packet = newPacket(PPPoECodePADO, sourceHWAddr, destHWAddr, 0)
	err = packet.AddServiceNameTag(serviceName)
	if err != nil {
		return nil, err
	}
	err = packet.AddACNameTag(acName)
	if err != nil {
		return nil, err
	}
	return
}

// NewPADR returns a PADR packet with the RFC-mandated service name
// tag included.
//
// PADR packets are used by the client to request a specific service from
// a server, based on a server's PADO.
func NewPADR(sourceHWAddr [6]byte, destHWAddr [6]byte, serviceName string) (packet *PPPoEPacket, err error) {
	packet = newPacket(PPPoECodePADR, sourceHWAddr, destHWAddr, 0)
	err = packet.AddServiceNameTag(serviceName)
	if err != nil {
		return nil, err
	}
	return
}

// NewPADS returns a PADS packet including an allocated session ID and the
// RFC-mandated service name tag.
//
// If the PADS packet indicates failure, the session ID should be zero, and
// the packet should have the PPPoETagTypeServiceNameError tag appended.
func NewPADS(sourceHWAddr [6]byte, destHWAddr [6]byte, serviceName string, sid PPPoESessionID) (packet *PPPoEPacket, err error) {
	packet = newPacket(PPPoECodePADS, sourceHWAddr, destHWAddr, sid)
	err = packet.AddServiceNameTag(serviceName)
	if err != nil {
		return nil, err
	}
	return
}

// NewPADT returns a PADT packet for the specified session ID.
//
// PADT packets are used by either client or server to terminate the PPPoE
// connection once established.
func NewPADT(sourceHWAddr [6]byte, destHWAddr [6]byte, sid PPPoESessionID) (packet *PPPoEPacket, err error) {
	return newPacket(PPPoECodePADT, sourceHWAddr, destHWAddr, sid), nil
}

// packetSpec is used to define the requirements of each PPPoE packet
// as per RFC2516, allowing packets to be validated prior to transmission.
type packetSpec struct {
	zeroSessionID bool
	anySessionID  bool
	mandatoryTags []PPPoETagType
}

// Validate validates a packet meets the requirements of RFC2516, checking
// the mandatory tags are included and the session ID is set correctly.
func (packet *PPPoEPacket) Validate() (err error) {
	specMap := map[PPPoECode]*packetSpec{
		PPPoECodePADI: {
			zeroSessionID: true,
			mandatoryTags: []PPPoETagType{PPPoETagTypeServiceName},
		},
		PPPoECodePADO: {
			zeroSessionID: true,
			mandatoryTags: []PPPoETagType{PPPoETagTypeServiceName, PPPoETagTypeACName},
		},
		PPPoECodePADR: {
			zeroSessionID: true,
			mandatoryTags: []PPPoETagType{PPPoETagTypeServiceName},
		},
		// A PADS may allocate one of the reserved session IDs, and
		// the session must still be torn down.
		PPPoECodePADT: {
			anySessionID: true,
		},
	}

	spec, ok := specMap[packet.Code]
	if !ok {
		// PADS is a special case: its mandatory tag list varies depending on whether
		// the access concentrator likes the service name in the PADR or not.  The session
		// ID is used to determine whether it's the happy or sad path: session ID of zero
		// is used in the sad path.
		if packet.Code != PPPoECodePADS {
			return fmt.Errorf("unrecognised packet code %v", packet.Code)
		}
		if packet.SessionID == 0 {
			spec = &packetSpec{
				zeroSessionID: true,
				mandatoryTags: []PPPoETagType{PPPoETagTypeServiceNameError},
			}
		} else {
			spec = &packetSpec{
				mandatoryTags: []PPPoETagType{PPPoETagTypeServiceName},
			}
		}
	}

	switch {
	case spec.anySessionID:
	case spec.zeroSessionID:
		if packet.SessionID != 0 {
			return fmt.Errorf("nonzero session ID in %v; must have zero", packet.Code)
		}
	case packet.SessionID == 0:
		return fmt.Errorf("zero session ID in %v; must have nonzero", packet.Code)
	}

	for _, tagType := range spec.mandatoryTags {
		_, found, err := FindTag(packet.tags.Bytes(), tagType)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("missing mandatory tag %v in %v", tagType, packet.Code)
		}
	}
	return nil
}

// AddServiceNameTag adds a service name tag to the packet.
// The service name is an arbitrary string.
func (packet *PPPoEPacket) AddServiceNameTag(name string) (err error) {
	return packet.tags.Append(PPPoETagTypeServiceName, []byte(name))
}

// AddACNameTag adds an access concentrator name tag to the packet.
// The AC name is an arbitrary string.
func (packet *PPPoEPacket) AddACNameTag(name string) (err error) {
	return packet.tags.Append(PPPoETagTypeACName, []byte(name))
}

// AddHostUniqTag adds a host unique tag to the packet.
// The host unique value is an arbitrary byte slice which is used by
// the client to associate a given response (PADO or PADS) to a particular
// request (PADI or PADR).
func (packet *PPPoEPacket) AddHostUniqTag(hostUniq []byte) (err error) {
	return packet.tags.Append(PPPoETagTypeHostUniq, hostUniq)
}

// AddACCookieTag adds an access concentrator cookie tag to the packet.
// The AC cookie value is an arbitrary byte slice which is used by the
// access concentrator to aid in protecting against DoS attacks.
// Refer to RFC2516 for details.
func (packet *PPPoEPacket) AddACCookieTag(cookie []byte) (err error) {
	return packet.tags.Append(PPPoETagTypeACCookie, cookie)
}

// AddServiceNameErrorTag adds a service name error tag to the packet.
// The value may be an empty string, but should preferably be a human-readable
// string explaining why the request was denied.
func (packet *PPPoEPacket) AddServiceNameErrorTag(reason string) (err error) {
	return packet.tags.Append(PPPoETagTypeServiceNameError, []byte(reason))
}

// AddACSystemErrorTag adds an access concentrator system error tag to the packet.
func (packet *PPPoEPacket) AddACSystemErrorTag(reason string) (err error) {
	return packet.tags.Append(PPPoETagTypeACSystemError, []byte(reason))
}

// AddGenericErrorTag adds an generic error tag to the packet.
func (packet *PPPoEPacket) AddGenericErrorTag(reason string) (err error) {
	return packet.tags.Append(PPPoETagTypeGenericError, []byte(reason))
}

// AddTag adds a generic tag to the packet.
// The caller is responsible for ensuring that the data type matches the tag type.
func (packet *PPPoEPacket) AddTag(typ PPPoETagType, data []byte) (err error) {
	return packet.tags.Append(typ, data)
}

// ToBytes renders the PPPoE packet to a byte slice ready for transmission
// over a PPPoEConn connection.  Frames shorter than the Ethernet minimum
// are zero padded.
func (packet *PPPoEPacket) ToBytes() (encoded []byte, err error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	err = gopacket.SerializeLayers(buf, opts,
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr(packet.SrcHWAddr[:]),
			DstMAC:       net.HardwareAddr(packet.DstHWAddr[:]),
			EthernetType: layers.EthernetTypePPPoEDiscovery,
		},
		&layers.PPPoE{
			Version:   1,
			Type:      1,
			Code:      layers.PPPoECode(packet.Code),
			SessionId: uint16(packet.SessionID),
		},
		gopacket.Payload(packet.tags.Bytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to encode %v: %v", packet.Code, err)
	}
	return buf.Bytes(), nil
}

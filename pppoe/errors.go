package pppoe

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPacket is returned when a received frame's declared
	// lengths are inconsistent with the bytes actually received.
	ErrMalformedPacket = errors.New("malformed PPPoE packet")

	// ErrTagOverflow is returned when encoding a tag would take a
	// discovery packet past MaxPayloadLen.
	ErrTagOverflow = errors.New("PPPoE tag list exceeds maximum payload length")

	// ErrSessionKilled is returned by Run when the connection was configured
	// to skip discovery and kill the existing session, and the PADT has
	// been sent.
	ErrSessionKilled = errors.New("existing PPPoE session killed")
)

// TimeoutError reports that no acceptable reply was received for any of
// the attempts made in a discovery phase.
type TimeoutError struct {
	// Waiting is the packet code the engine was waiting for: PADO or PADS.
	Waiting  PPPoECode
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %v packets after %d attempts", e.Waiting, e.Attempts)
}

// Timeout allows callers to treat TimeoutError like a net.Error.
func (e *TimeoutError) Timeout() bool {
	return true
}

// ProtocolRejectionError reports that the access concentrator included
// an error tag in its PADO or PADS.
type ProtocolRejectionError struct {
	Code   PPPoECode
	Peer   [6]byte
	Reason Tag
}

func (e *ProtocolRejectionError) Error() string {
	return fmt.Sprintf("%v from %s: %v", e.Code, hwAddrString(e.Peer), e.Reason)
}

// SessionIDAdvisory flags a session ID which RFC2516 says an access
// concentrator must not allocate.  It does not prevent the session from
// being established.
type SessionIDAdvisory struct {
	SessionID PPPoESessionID
	Peer      [6]byte
}

func (e *SessionIDAdvisory) Error() string {
	return fmt.Sprintf("access concentrator %s used a session value of %#x, violating RFC2516",
		hwAddrString(e.Peer), uint16(e.SessionID))
}

func isErrorTag(typ PPPoETagType) bool {
	switch typ {
	case PPPoETagTypeServiceNameError,
		PPPoETagTypeACSystemError,
		PPPoETagTypeGenericError:
		return true
	}
	return false
}

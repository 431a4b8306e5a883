package pppoe

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DiscoveryState is the state of a Connection's discovery handshake.
type DiscoveryState int

// Discovery states.  A connection only ever moves forward through
// these states during a single discovery attempt.
const (
	StateInit DiscoveryState = iota
	StateSentPADI
	StateReceivedPADO
	StateSentPADR
	StateSession
)

// String provides a human-readable representation of DiscoveryState.
func (s DiscoveryState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSentPADI:
		return "SENT_PADI"
	case StateReceivedPADO:
		return "RECEIVED_PADO"
	case StateSentPADR:
		return "SENT_PADR"
	case StateSession:
		return "SESSION"
	}
	return "???"
}

// DiscoveryConfig contains the user-supplied parameters governing
// a discovery attempt.
type DiscoveryConfig struct {
	// InterfaceName is the Ethernet interface to run discovery on.
	InterfaceName string
	// ACName, if set, restricts the accepted offers to those from an
	// access concentrator with exactly this name.
	ACName string
	// ServiceName, if set, is requested in the PADI and PADR and offers
	// must list exactly this service.  An empty service name requests
	// any service.
	ServiceName string
	// UseHostUniq enables the Host-Uniq tag.  Replies which do not echo
	// this client's Host-Uniq value are ignored.
	UseHostUniq bool
	// SkipDiscovery moves straight to the session state using
	// SessionID and PeerHWAddr.
	SkipDiscovery bool
	// KillSession, used with SkipDiscovery, terminates the session
	// identified by SessionID and PeerHWAddr.
	KillSession bool
	// ProbeOnly lists the access concentrators which respond to a PADI
	// rather than establishing a session.
	ProbeOnly bool
	// SessionID and PeerHWAddr identify an existing session for use
	// with SkipDiscovery.
	SessionID  PPPoESessionID
	PeerHWAddr [6]byte
	// Timeout is the initial time to wait for a PADO or PADS.  Each
	// unanswered attempt doubles the timeout, except when probing.
	// If set to 0, DefaultDiscoveryTimeout is used.
	Timeout time.Duration
	// MaxAttempts is the number of PADI or PADR packets sent before
	// giving up.  If set to 0, DefaultMaxAttempts is used.
	MaxAttempts uint
}

// DefaultDiscoveryConfig returns a default configuration for discovery
// on the named interface.
func DefaultDiscoveryConfig(ifname string) DiscoveryConfig {
	return DiscoveryConfig{
		InterfaceName: ifname,
		UseHostUniq:   true,
		Timeout:       DefaultDiscoveryTimeout,
		MaxAttempts:   DefaultMaxAttempts,
	}
}

func sanitiseConfig(cfg *DiscoveryConfig) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDiscoveryTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
}

// Connection holds the state of a single discovery attempt.
//
// A Connection is owned by the caller driving the handshake and must not
// be used from more than one goroutine at a time.
type Connection struct {
	Config DiscoveryConfig
	// HWAddr is our own Ethernet address.
	HWAddr [6]byte
	// PeerHWAddr is the address of the accepted access concentrator.
	// It is set once, when a PADO is accepted.
	PeerHWAddr [6]byte
	// HostUniq is the correlation token sent in the Host-Uniq tag.
	HostUniq []byte
	// Cookie and RelayID are captured from the accepted PADO and
	// replayed verbatim in the PADR.
	Cookie  *Tag
	RelayID *Tag
	// State is the current discovery state.
	State DiscoveryState
	// NumPADOs counts the well-formed PADOs seen.
	NumPADOs int

	sessionID PPPoESessionID
}

// NewConnection creates a connection in the INIT state.
func NewConnection(cfg DiscoveryConfig, hwAddr [6]byte) *Connection {
	sanitiseConfig(&cfg)
	conn := &Connection{
		Config: cfg,
		HWAddr: hwAddr,
	}
	conn.reset()
	return conn
}

// reset returns the connection to INIT, discarding anything learned
// from a previous attempt and generating a fresh Host-Uniq value.
func (conn *Connection) reset() {
	conn.PeerHWAddr = [6]byte{}
	conn.Cookie = nil
	conn.RelayID = nil
	conn.State = StateInit
	conn.NumPADOs = 0
	conn.sessionID = 0
	conn.HostUniq = nil
	if conn.Config.UseHostUniq {
		token := uuid.New()
		conn.HostUniq = token[:]
	}
}

// Session returns the session ID.  The second return value is false
// unless discovery has reached the SESSION state.
func (conn *Connection) Session() (PPPoESessionID, bool) {
	if conn.State != StateSession {
		return 0, false
	}
	return conn.sessionID, true
}

// advance moves the connection to the next state, refusing to move
// backwards.
func (conn *Connection) advance(to DiscoveryState) error {
	if to < conn.State {
		return fmt.Errorf("illegal discovery state transition %v -> %v", conn.State, to)
	}
	conn.State = to
	return nil
}

// Admits reports whether a received frame is addressed to this connection.
//
// The frame must be sent to our Ethernet address.  If Host-Uniq is in use
// the frame must also carry a Host-Uniq tag matching our token.  A frame
// with a malformed tag list is never admitted when Host-Uniq is in use.
func (conn *Connection) Admits(frame *Frame) bool {
	if frame.DstHWAddr != conn.HWAddr {
		return false
	}

	if !conn.Config.UseHostUniq {
		return true
	}

	matched := false
	it := frame.Tags()
	for it.Next() {
		tag := it.Tag()
		if tag.Type == PPPoETagTypeHostUniq && bytes.Equal(tag.Data, conn.HostUniq) {
			matched = true
		}
	}
	return matched && it.Err() == nil
}

// IsUnicast reports whether addr is a unicast Ethernet address.
func IsUnicast(addr [6]byte) bool {
	return addr[0]&0x01 == 0
}

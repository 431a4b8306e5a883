package pppoe

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// SessionEstablished is the result of a successful discovery handshake.
type SessionEstablished struct {
	// PeerHWAddr is the Ethernet address of the access concentrator.
	PeerHWAddr [6]byte
	// SessionID is the session ID allocated by the access concentrator.
	SessionID PPPoESessionID
	// Port is the discovery port the handshake ran on.  Ownership passes
	// to the caller: it is not closed by the discovery engine.
	Port DiscoveryPort
	// Advisory is set if the access concentrator allocated a session ID
	// which violates RFC2516.
	Advisory *SessionIDAdvisory
}

// ACOffer describes an access concentrator which answered a probe.
type ACOffer struct {
	HWAddr       [6]byte
	ACNames      []string
	ServiceNames []string
	Cookie       *Tag
	RelayID      *Tag
	// Errors holds any error tags included in the PADO.
	Errors []*Tag
}

// Discovery runs the client side of the PPPoE discovery handshake
// for a single Connection.
type Discovery struct {
	conn     *Connection
	port     DiscoveryPort
	logger   log.Logger
	observer DiscoveryObserver
	now      func() time.Time
	probing  bool
	offers   []*ACOffer
	rxBuf    []byte
}

// padoScan accumulates what a single PADO told us.
type padoScan struct {
	acNames         []string
	serviceNames    []string
	seenACName      bool
	seenServiceName bool
	acNameOK        bool
	serviceNameOK   bool
	cookie          *Tag
	relayID         *Tag
	errors          []*Tag
}

// NewDiscovery creates a discovery engine for conn which will send and
// receive frames using port.  A nil logger disables logging.
func NewDiscovery(conn *Connection, port DiscoveryPort, logger log.Logger) *Discovery {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Discovery{
		conn:     conn,
		port:     port,
		logger:   log.With(logger, "interface", conn.Config.InterfaceName),
		observer: nilObserver{},
		now:      time.Now,
		rxBuf:    make([]byte, maxFrameLength),
	}
}

// SetObserver registers an observer for discovery events.
func (d *Discovery) SetObserver(observer DiscoveryObserver) {
	if observer == nil {
		observer = nilObserver{}
	}
	d.observer = observer
}

// RunDiscovery runs the discovery handshake for conn on port.
func RunDiscovery(conn *Connection, port DiscoveryPort, logger log.Logger) (*SessionEstablished, error) {
	return NewDiscovery(conn, port, logger).Run()
}

// Run drives the connection from INIT to SESSION.
//
// Run returns a *TimeoutError if the access concentrator does not respond,
// or a *ProtocolRejectionError if it includes an error tag in its PADO or
// PADS.  With SkipDiscovery and KillSession set, Run sends a PADT for the
// configured session and returns ErrSessionKilled.
func (d *Discovery) Run() (*SessionEstablished, error) {
	if d.conn.Config.ProbeOnly {
		return nil, errors.New("connection is configured to probe for access concentrators")
	}

	d.probing = false
	d.conn.reset()

	if d.conn.Config.SkipDiscovery {
		return d.skipDiscovery()
	}

	if err := d.padiPhase(); err != nil {
		return nil, err
	}

	if err := d.padrPhase(); err != nil {
		return nil, err
	}

	return d.established(), nil
}

// Probe sends PADIs and collects the offers of all access concentrators
// which match the configured filters.  Probing stops after the first
// attempt which draws any PADO, or when the attempts are exhausted.  The
// timeout is not doubled between attempts.
func (d *Discovery) Probe() ([]*ACOffer, error) {
	d.probing = true
	d.offers = nil
	d.conn.reset()

	err := d.padiPhase()
	return d.offers, err
}

// Terminate sends a PADT for the connection's session.
func (d *Discovery) Terminate(reason string) error {
	sid, ok := d.conn.Session()
	if !ok {
		return fmt.Errorf("cannot terminate: discovery state is %v", d.conn.State)
	}

	packet, err := NewPADT(d.conn.HWAddr, d.conn.PeerHWAddr, sid)
	if err != nil {
		return err
	}

	if err = d.addCorrelationTags(packet); err != nil {
		return err
	}

	if reason != "" {
		if err = packet.AddGenericErrorTag(reason); err != nil {
			return fmt.Errorf("failed to build PADT: %w", err)
		}
	}

	level.Info(d.logger).Log(
		"message", "sending PADT",
		"session_id", sid,
		"peer", hwAddrString(d.conn.PeerHWAddr),
		"reason", reason)

	return d.send(packet)
}

func (d *Discovery) skipDiscovery() (*SessionEstablished, error) {
	d.conn.PeerHWAddr = d.conn.Config.PeerHWAddr
	d.conn.sessionID = d.conn.Config.SessionID
	if err := d.conn.advance(StateSession); err != nil {
		return nil, err
	}

	if d.conn.Config.KillSession {
		if err := d.Terminate("Session killed manually"); err != nil {
			return nil, err
		}
		return nil, ErrSessionKilled
	}

	level.Info(d.logger).Log(
		"message", "skipping discovery",
		"session_id", d.conn.sessionID,
		"peer", hwAddrString(d.conn.PeerHWAddr))

	return &SessionEstablished{
		PeerHWAddr: d.conn.PeerHWAddr,
		SessionID:  d.conn.sessionID,
		Port:       d.port,
	}, nil
}

func (d *Discovery) padiPhase() error {
	timeout := d.conn.Config.Timeout
	for attempt := 1; ; attempt++ {
		if attempt > int(d.conn.Config.MaxAttempts) {
			level.Warn(d.logger).Log("message", "timeout waiting for PADO packets", "attempts", attempt-1)
			return &TimeoutError{Waiting: PPPoECodePADO, Attempts: attempt - 1}
		}

		if err := d.sendPADI(); err != nil {
			return err
		}
		if err := d.conn.advance(StateSentPADI); err != nil {
			return err
		}

		accepted, err := d.waitForPADO(timeout)
		if err != nil {
			return err
		}
		if accepted {
			return nil
		}

		if d.probing {
			if d.conn.NumPADOs > 0 {
				return nil
			}
		} else {
			timeout *= 2
		}
	}
}

func (d *Discovery) padrPhase() error {
	timeout := d.conn.Config.Timeout
	for attempt := 1; ; attempt++ {
		if attempt > int(d.conn.Config.MaxAttempts) {
			level.Warn(d.logger).Log("message", "timeout waiting for PADS packets", "attempts", attempt-1)
			return &TimeoutError{Waiting: PPPoECodePADS, Attempts: attempt - 1}
		}

		if err := d.sendPADR(); err != nil {
			return err
		}
		if err := d.conn.advance(StateSentPADR); err != nil {
			return err
		}

		accepted, err := d.waitForPADS(timeout)
		if err != nil {
			return err
		}
		if accepted {
			return nil
		}
		timeout *= 2
	}
}

func (d *Discovery) established() *SessionEstablished {
	sid, _ := d.conn.Session()
	est := &SessionEstablished{
		PeerHWAddr: d.conn.PeerHWAddr,
		SessionID:  sid,
		Port:       d.port,
	}

	level.Info(d.logger).Log(
		"message", "received PADS",
		"session_id", sid,
		"peer", hwAddrString(d.conn.PeerHWAddr))

	// RFC2516 says the session ID must not be zero or 0xffff
	if sid == 0 || sid == 0xffff {
		est.Advisory = &SessionIDAdvisory{SessionID: sid, Peer: d.conn.PeerHWAddr}
		level.Warn(d.logger).Log("message", "peer protocol violation", "error", est.Advisory)
	}

	d.observer.SessionEstablished(est.Advisory != nil)
	return est
}

func (d *Discovery) addCorrelationTags(packet *PPPoEPacket) (err error) {
	if d.conn.Config.UseHostUniq {
		if err = packet.AddHostUniqTag(d.conn.HostUniq); err != nil {
			return fmt.Errorf("failed to add host uniq tag to %v: %w", packet.Code, err)
		}
	}
	if d.conn.Cookie != nil {
		if err = packet.AddTag(d.conn.Cookie.Type, d.conn.Cookie.Data); err != nil {
			return fmt.Errorf("failed to add AC cookie tag to %v: %w", packet.Code, err)
		}
	}
	if d.conn.RelayID != nil {
		if err = packet.AddTag(d.conn.RelayID.Type, d.conn.RelayID.Data); err != nil {
			return fmt.Errorf("failed to add relay session ID tag to %v: %w", packet.Code, err)
		}
	}
	return nil
}

func (d *Discovery) sendPADI() error {
	packet, err := NewPADI(d.conn.HWAddr, d.conn.Config.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to build PADI: %w", err)
	}

	if d.conn.Config.UseHostUniq {
		if err = packet.AddHostUniqTag(d.conn.HostUniq); err != nil {
			return fmt.Errorf("failed to build PADI: %w", err)
		}
	}

	level.Info(d.logger).Log("message", "sending PADI")
	return d.send(packet)
}

func (d *Discovery) sendPADR() error {
	packet, err := NewPADR(d.conn.HWAddr, d.conn.PeerHWAddr, d.conn.Config.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to build PADR: %w", err)
	}

	if err = d.addCorrelationTags(packet); err != nil {
		return err
	}

	level.Info(d.logger).Log("message", "sending PADR", "peer", hwAddrString(d.conn.PeerHWAddr))
	return d.send(packet)
}

func (d *Discovery) send(packet *PPPoEPacket) (err error) {
	err = packet.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate %s: %v", packet.Code, err)
	}

	b, err := packet.ToBytes()
	if err != nil {
		return err
	}

	level.Debug(d.logger).Log("message", "send", "packet", packet)

	_, err = d.port.Send(b)
	if err != nil {
		return fmt.Errorf("failed to send %v: %w", packet.Code, err)
	}
	d.observer.FrameSent(packet.Code)
	return nil
}

// recv returns the next frame received before the deadline.  Malformed
// frames are dropped, in which case both return values are nil.
func (d *Discovery) recv(deadline time.Time) (*Frame, error) {
	n, err := d.port.RecvDeadline(d.rxBuf, deadline)
	if err != nil {
		return nil, err
	}

	frame, err := ParseFrame(d.rxBuf[:n])
	if err != nil {
		level.Warn(d.logger).Log("message", "dropping received frame", "error", err)
		d.observer.FrameDropped(DropMalformed)
		return nil, nil
	}

	level.Debug(d.logger).Log("message", "recv", "packet", frame)
	d.observer.FrameReceived(frame.Code)
	return frame, nil
}

func (d *Discovery) drop(frame *Frame, reason DropReason) {
	level.Debug(d.logger).Log(
		"message", "ignoring packet",
		"code", frame.Code,
		"src", hwAddrString(frame.SrcHWAddr),
		"reason", reason)
	d.observer.FrameDropped(reason)
}

func (d *Discovery) waitForPADO(timeout time.Duration) (accepted bool, err error) {
	deadline := d.now().Add(timeout)
	for {
		frame, err := d.recv(deadline)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				d.observer.WaitTimeout(PPPoECodePADO)
				return false, nil
			}
			return false, fmt.Errorf("failed waiting for PADO: %w", err)
		}
		if frame == nil {
			continue
		}

		if !d.conn.Admits(frame) {
			d.drop(frame, DropFiltered)
			continue
		}

		if frame.Code != PPPoECodePADO {
			d.drop(frame, DropUnexpectedCode)
			continue
		}

		if !IsUnicast(frame.SrcHWAddr) {
			level.Warn(d.logger).Log(
				"message", "ignoring PADO packet from non-unicast MAC address",
				"src", hwAddrString(frame.SrcHWAddr))
			d.observer.FrameDropped(DropNonUnicast)
			continue
		}

		scan, err := d.scanPADO(frame)
		if err != nil {
			level.Warn(d.logger).Log("message", "dropping PADO", "src", hwAddrString(frame.SrcHWAddr), "error", err)
			d.observer.FrameDropped(DropMalformed)
			continue
		}

		if len(scan.errors) > 0 {
			for _, tag := range scan.errors {
				d.observer.Rejected(PPPoECodePADO, tag.Type)
				if d.probing {
					level.Info(d.logger).Log("message", "PADO error tag", "src", hwAddrString(frame.SrcHWAddr), "tag", tag)
				}
			}
			if !d.probing {
				level.Error(d.logger).Log("message", "PADO rejected", "src", hwAddrString(frame.SrcHWAddr), "tag", scan.errors[0])
				return false, &ProtocolRejectionError{
					Code:   PPPoECodePADO,
					Peer:   frame.SrcHWAddr,
					Reason: *scan.errors[0],
				}
			}
		}

		if !scan.seenACName || !scan.seenServiceName {
			level.Info(d.logger).Log(
				"message", "ignoring PADO packet with missing tags",
				"src", hwAddrString(frame.SrcHWAddr),
				"ac_name", scan.seenACName,
				"service_name", scan.seenServiceName)
			d.observer.FrameDropped(DropMissingTags)
			continue
		}

		d.conn.NumPADOs++

		if !scan.acNameOK || !scan.serviceNameOK {
			level.Debug(d.logger).Log(
				"message", "PADO does not match filters",
				"src", hwAddrString(frame.SrcHWAddr),
				"ac_name_ok", scan.acNameOK,
				"service_name_ok", scan.serviceNameOK)
			d.observer.FrameDropped(DropFilterMismatch)
			continue
		}

		d.observer.OfferAccepted()

		if d.probing {
			d.offers = append(d.offers, &ACOffer{
				HWAddr:       frame.SrcHWAddr,
				ACNames:      scan.acNames,
				ServiceNames: scan.serviceNames,
				Cookie:       scan.cookie,
				RelayID:      scan.relayID,
				Errors:       scan.errors,
			})
			level.Info(d.logger).Log(
				"message", "access concentrator offer",
				"src", hwAddrString(frame.SrcHWAddr),
				"ac_names", fmt.Sprintf("%q", scan.acNames),
				"services", fmt.Sprintf("%q", scan.serviceNames))
			continue
		}

		d.conn.PeerHWAddr = frame.SrcHWAddr
		d.conn.Cookie = scan.cookie
		d.conn.RelayID = scan.relayID
		if err := d.conn.advance(StateReceivedPADO); err != nil {
			return false, err
		}

		level.Info(d.logger).Log("message", "received PADO", "peer", hwAddrString(d.conn.PeerHWAddr))
		return true, nil
	}
}

// scanPADO folds the tags of a PADO into a padoScan.  Tag data which
// must outlive the receive buffer is copied.
func (d *Discovery) scanPADO(frame *Frame) (*padoScan, error) {
	cfg := &d.conn.Config
	scan := &padoScan{
		acNameOK:      cfg.ACName == "",
		serviceNameOK: cfg.ServiceName == "",
	}

	it := frame.Tags()
	for it.Next() {
		tag := it.Tag()
		switch tag.Type {
		case PPPoETagTypeACName:
			scan.seenACName = true
			scan.acNames = append(scan.acNames, string(tag.Data))
			if cfg.ACName != "" && string(tag.Data) == cfg.ACName {
				scan.acNameOK = true
			}
		case PPPoETagTypeServiceName:
			scan.seenServiceName = true
			scan.serviceNames = append(scan.serviceNames, string(tag.Data))
			if cfg.ServiceName != "" && string(tag.Data) == cfg.ServiceName {
				scan.serviceNameOK = true
			}
		case PPPoETagTypeACCookie:
			scan.cookie = tag.Clone()
		case PPPoETagTypeRelaySessionID:
			scan.relayID = tag.Clone()
		case PPPoETagTypeServiceNameError,
			PPPoETagTypeACSystemError,
			PPPoETagTypeGenericError:
			scan.errors = append(scan.errors, tag.Clone())
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return scan, nil
}

func (d *Discovery) waitForPADS(timeout time.Duration) (accepted bool, err error) {
	deadline := d.now().Add(timeout)
	for {
		frame, err := d.recv(deadline)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				d.observer.WaitTimeout(PPPoECodePADS)
				return false, nil
			}
			return false, fmt.Errorf("failed waiting for PADS: %w", err)
		}
		if frame == nil {
			continue
		}

		// If it's not from the AC, it's not for us
		if frame.SrcHWAddr != d.conn.PeerHWAddr || !d.conn.Admits(frame) {
			d.drop(frame, DropFiltered)
			continue
		}

		if frame.Code != PPPoECodePADS {
			d.drop(frame, DropUnexpectedCode)
			continue
		}

		var relayID, rejection *Tag
		it := frame.Tags()
		for it.Next() {
			tag := it.Tag()
			switch {
			case tag.Type == PPPoETagTypeRelaySessionID:
				relayID = tag.Clone()
			case isErrorTag(tag.Type) && rejection == nil:
				rejection = tag.Clone()
			}
		}
		if err := it.Err(); err != nil {
			level.Warn(d.logger).Log("message", "dropping PADS", "src", hwAddrString(frame.SrcHWAddr), "error", err)
			d.observer.FrameDropped(DropMalformed)
			continue
		}

		if rejection != nil {
			d.observer.Rejected(PPPoECodePADS, rejection.Type)
			level.Error(d.logger).Log("message", "PADS rejected", "src", hwAddrString(frame.SrcHWAddr), "tag", rejection)
			return false, &ProtocolRejectionError{
				Code:   PPPoECodePADS,
				Peer:   frame.SrcHWAddr,
				Reason: *rejection,
			}
		}

		if relayID != nil {
			d.conn.RelayID = relayID
		}
		d.conn.sessionID = frame.SessionID
		if err := d.conn.advance(StateSession); err != nil {
			return false, err
		}
		return true, nil
	}
}

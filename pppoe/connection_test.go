package pppoe

import (
	"bytes"
	"testing"
	"time"
)

var (
	testClientHWAddr = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	testACHWAddr     = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0xac}
)

func buildFrame(t *testing.T, packet *PPPoEPacket) *Frame {
	t.Helper()
	b, err := packet.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes(%v): %v", packet, err)
	}
	frame, err := ParseFrame(b)
	if err != nil {
		t.Fatalf("ParseFrame(%x): %v", b, err)
	}
	return frame
}

func TestNewConnectionDefaults(t *testing.T) {
	conn := NewConnection(DiscoveryConfig{InterfaceName: "eth0"}, testClientHWAddr)
	if conn.Config.Timeout != DefaultDiscoveryTimeout {
		t.Errorf("Timeout: expect %v, got %v", DefaultDiscoveryTimeout, conn.Config.Timeout)
	}
	if conn.Config.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts: expect %v, got %v", DefaultMaxAttempts, conn.Config.MaxAttempts)
	}
	if conn.State != StateInit {
		t.Errorf("State: expect %v, got %v", StateInit, conn.State)
	}
	if conn.HostUniq != nil {
		t.Errorf("HostUniq: expect nil without UseHostUniq, got %x", conn.HostUniq)
	}
	if _, ok := conn.Session(); ok {
		t.Errorf("Session(): expected no session in %v", conn.State)
	}

	conn = NewConnection(DiscoveryConfig{Timeout: time.Second, MaxAttempts: 7}, testClientHWAddr)
	if conn.Config.Timeout != time.Second || conn.Config.MaxAttempts != 7 {
		t.Errorf("explicit config overridden: %+v", conn.Config)
	}
}

func TestConnectionHostUniqRegenerated(t *testing.T) {
	conn := NewConnection(DefaultDiscoveryConfig("eth0"), testClientHWAddr)
	first := append([]byte(nil), conn.HostUniq...)
	if len(first) != 16 {
		t.Fatalf("HostUniq: expect 16 bytes, got %x", first)
	}
	conn.reset()
	if bytes.Equal(first, conn.HostUniq) {
		t.Errorf("HostUniq not regenerated by reset: %x", conn.HostUniq)
	}
}

func TestConnectionAdvance(t *testing.T) {
	conn := NewConnection(DiscoveryConfig{}, testClientHWAddr)
	for _, s := range []DiscoveryState{StateSentPADI, StateSentPADI, StateReceivedPADO, StateSentPADR, StateSession} {
		if err := conn.advance(s); err != nil {
			t.Fatalf("advance(%v): %v", s, err)
		}
	}
	if err := conn.advance(StateSentPADI); err == nil {
		t.Errorf("advance(%v) from %v: expected error", StateSentPADI, StateSession)
	}
	if conn.State != StateSession {
		t.Errorf("State: expect %v, got %v", StateSession, conn.State)
	}
}

func TestConnectionAdmits(t *testing.T) {
	hostUniq := []byte{0xde, 0xad, 0xbe, 0xef}
	otherHWAddr := [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

	pado := func(t *testing.T, dst [6]byte, hostUniq ...[]byte) *Frame {
		packet, err := NewPADO(testACHWAddr, dst, "", "ac")
		if err != nil {
			t.Fatalf("NewPADO: %v", err)
		}
		for _, hu := range hostUniq {
			if err = packet.AddHostUniqTag(hu); err != nil {
				t.Fatalf("AddHostUniqTag: %v", err)
			}
		}
		return buildFrame(t, packet)
	}

	cases := []struct {
		name        string
		useHostUniq bool
		genFrame    func(t *testing.T) *Frame
		admit       bool
	}{
		{
			name:     "addressed to us",
			genFrame: func(t *testing.T) *Frame { return pado(t, testClientHWAddr) },
			admit:    true,
		},
		{
			name:     "addressed to another host",
			genFrame: func(t *testing.T) *Frame { return pado(t, otherHWAddr) },
		},
		{
			name:     "broadcast",
			genFrame: func(t *testing.T) *Frame { return pado(t, ethBroadcastAddr) },
		},
		{
			name:        "matching host uniq",
			useHostUniq: true,
			genFrame:    func(t *testing.T) *Frame { return pado(t, testClientHWAddr, hostUniq) },
			admit:       true,
		},
		{
			name:        "missing host uniq",
			useHostUniq: true,
			genFrame:    func(t *testing.T) *Frame { return pado(t, testClientHWAddr) },
		},
		{
			name:        "mismatched host uniq",
			useHostUniq: true,
			genFrame:    func(t *testing.T) *Frame { return pado(t, testClientHWAddr, []byte{0xde, 0xad}) },
		},
		{
			name:        "host uniq prefix",
			useHostUniq: true,
			genFrame:    func(t *testing.T) *Frame { return pado(t, testClientHWAddr, append(hostUniq, 0x00)) },
		},
		{
			name:        "matching host uniq after mismatch",
			useHostUniq: true,
			genFrame:    func(t *testing.T) *Frame { return pado(t, testClientHWAddr, []byte{0x01}, hostUniq) },
			admit:       true,
		},
		{
			name:        "matching host uniq in malformed tag list",
			useHostUniq: true,
			genFrame: func(t *testing.T) *Frame {
				frame := pado(t, testClientHWAddr, hostUniq)
				frame.Payload = append(append([]byte(nil), frame.Payload...), 0x01, 0x04, 0x00)
				return frame
			},
		},
		{
			name:        "matching host uniq to another host",
			useHostUniq: true,
			genFrame:    func(t *testing.T) *Frame { return pado(t, otherHWAddr, hostUniq) },
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			conn := NewConnection(DiscoveryConfig{UseHostUniq: c.useHostUniq}, testClientHWAddr)
			if c.useHostUniq {
				conn.HostUniq = hostUniq
			}
			frame := c.genFrame(t)
			if got := conn.Admits(frame); got != c.admit {
				t.Errorf("Admits(%v): expect %v, got %v", frame, c.admit, got)
			}
		})
	}
}

func TestIsUnicast(t *testing.T) {
	cases := []struct {
		addr [6]byte
		want bool
	}{
		{addr: testACHWAddr, want: true},
		{addr: [6]byte{0x00, 0x1b, 0x21, 0x3a, 0x4b, 0x5c}, want: true},
		{addr: ethBroadcastAddr, want: false},
		{addr: [6]byte{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01}, want: false},
		{addr: [6]byte{0x33, 0x33, 0x00, 0x00, 0x00, 0x01}, want: false},
	}
	for _, c := range cases {
		if got := IsUnicast(c.addr); got != c.want {
			t.Errorf("IsUnicast(%v): expect %v, got %v", hwAddrString(c.addr), c.want, got)
		}
	}
}

/*
Package pppoe is a library for PPP over Ethernet client applications
running on Linux systems.

PPPoE is specified by RFC2516, and is widely used in home broadband
links when connecting the client's router into the Internet Service
Provider network.

Currently package pppoe implements:

  - Encoding and decoding of PPPoE Active Discovery packets, including
    bounds-checked iteration over the TLV tags carried in a packet.

  - Raw socket support for sending and receiving discovery packets on
    a Linux Ethernet interface.

  - The client side of the discovery handshake: broadcast a PADI,
    choose an access concentrator from the PADO offers received, send
    a PADR and wait for the PADS which allocates the session ID.
    Access concentrators may also be probed without starting a session,
    and an existing session may be terminated with a PADT.

Actual session data packets are managed using a PPP daemon and are
outside the scope of package pppoe.

Usage

	# Note we're ignoring errors for brevity

	import (
		"fmt"
		"os"

		"github.com/go-kit/kit/log"
		"github.com/katalix/go-pppoe/pppoe"
	)

	// Create a new PPPoE discovery connection on interface eth0
	port, _ := pppoe.NewDiscoveryConnection("eth0")
	defer port.Close()

	// Ask for any access concentrator offering the "isp" service
	cfg := pppoe.DefaultDiscoveryConfig("eth0")
	cfg.ServiceName = "isp"

	conn := pppoe.NewConnection(cfg, port.HWAddr())
	logger := log.NewLogfmtLogger(os.Stderr)

	// Run the handshake.  On success the session ID and the access
	// concentrator's address are ready to hand to the PPP daemon.
	session, _ := pppoe.RunDiscovery(conn, port, logger)
	fmt.Printf("%d:%v\n", session.SessionID, session.PeerHWAddr)
*/
package pppoe

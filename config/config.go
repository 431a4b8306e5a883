/*
Package config implements a parser for PPPoE client configuration
represented in the TOML format: https://github.com/toml-lang/toml.

Please refer to the TOML repos for an in-depth description of the syntax.

Discovery parameters are called out in the [discovery] table, and
settings for the client application itself in the [client] table.
Both tables are optional: any parameter which is not set takes its
default value.

	[discovery]

	# interface_name specifies the Ethernet interface to run discovery on.
	interface_name = "eth0"

	# ac_name, if set, restricts discovery to the access concentrator
	# with exactly this name.  The comparison is case sensitive.
	# By default any access concentrator is accepted.
	ac_name = "BRAS-01"

	# service_name, if set, is requested in the PADI and PADR packets,
	# and offers which don't list exactly this service are ignored.
	# By default any service is requested.
	service_name = "isp"

	# host_uniq enables the Host-Uniq tag, which allows multiple clients
	# on the same interface to tell their replies apart.
	# The default is to use Host-Uniq.
	host_uniq = true

	# timeout sets the time to wait for the first PADO or PADS.  The
	# timeout doubles for each subsequent attempt, except when probing.
	# The default is 5000ms.
	timeout = 5000 # milliseconds

	# max_attempts sets how many PADI or PADR packets are sent before
	# discovery gives up.
	# The default is 3 attempts.
	max_attempts = 3

	# probe, if set, lists the access concentrators which respond rather
	# than establishing a session.
	probe = false

	# skip_discovery, if set, doesn't run discovery: the session named by
	# session_id and peer_mac is used instead.
	skip_discovery = false

	# kill_session, used with skip_discovery, sends a PADT to terminate
	# the session named by session_id and peer_mac.
	kill_session = false

	# session_id and peer_mac name an existing session for use with
	# skip_discovery.
	session_id = 0x1234
	peer_mac = "00:11:22:33:44:55"

	[client]

	# oui_database, if set, names an IEEE OUI registry file used to
	# look up the vendor of each access concentrator found by a probe.
	oui_database = "/usr/share/ieee-data/oui.txt"

	# metrics_file, if set, names a file to which discovery metrics are
	# written in the Prometheus text format on exit, for collection by the
	# node_exporter textfile collector.
	metrics_file = "/var/lib/node_exporter/kpppoec.prom"
*/
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/katalix/go-pppoe/pppoe"
	"github.com/pelletier/go-toml"
)

// Config contains PPPoE client configuration.
type Config struct {
	// The entire tree as a map as parsed from the TOML representation.
	// Apps may access this tree to handle their own config tables.
	Map map[string]interface{}
	// Discovery contains the parameters for the discovery handshake.
	Discovery pppoe.DiscoveryConfig
	// Client contains settings for the client application.
	Client ClientConfig
}

// ClientConfig contains settings which don't affect the discovery
// protocol itself.
type ClientConfig struct {
	// OUIDatabase is the path to an IEEE OUI registry file.
	OUIDatabase string
	// MetricsFile is the path of the Prometheus textfile to write.
	MetricsFile string
}

func toBool(v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("supplied value could not be parsed as a bool")
}

// go-toml's ToMap function represents numbers as either uint64 or int64.
// So when we are converting numbers, we need to figure out which one it
// has picked and range check to ensure that the number from the config
// fits within the range of the destination type.
func toUint16(v interface{}) (uint16, error) {
	if b, ok := v.(int64); ok {
		if b < 0x0 || b > 0xffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint16(b), nil
	} else if b, ok := v.(uint64); ok {
		if b > 0xffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint16(b), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

func toUint32(v interface{}) (uint32, error) {
	if b, ok := v.(int64); ok {
		if b < 0x0 || b > 0xffffffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint32(b), nil
	} else if b, ok := v.(uint64); ok {
		if b > 0xffffffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint32(b), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

func toString(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("supplied value could not be parsed as a string")
}

func toDurationMs(v interface{}) (time.Duration, error) {
	u, err := toUint32(v)
	return time.Duration(u) * time.Millisecond, err
}

func toSessionID(v interface{}) (pppoe.PPPoESessionID, error) {
	u, err := toUint16(v)
	return pppoe.PPPoESessionID(u), err
}

// ParseHWAddr parses an Ethernet address in any of the forms accepted
// by net.ParseMAC.
func ParseHWAddr(s string) (addr [6]byte, err error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return addr, err
	}
	if len(mac) != len(addr) {
		return addr, fmt.Errorf("%q is not an Ethernet address", s)
	}
	copy(addr[:], mac)
	return addr, nil
}

func toHWAddr(v interface{}) ([6]byte, error) {
	s, err := toString(v)
	if err != nil {
		return [6]byte{}, err
	}
	return ParseHWAddr(s)
}

func loadDiscovery(dc *pppoe.DiscoveryConfig, dmap map[string]interface{}) error {
	for k, v := range dmap {
		var err error
		switch k {
		case "interface_name":
			dc.InterfaceName, err = toString(v)
		case "ac_name":
			dc.ACName, err = toString(v)
		case "service_name":
			dc.ServiceName, err = toString(v)
		case "host_uniq":
			dc.UseHostUniq, err = toBool(v)
		case "timeout":
			dc.Timeout, err = toDurationMs(v)
		case "max_attempts":
			var u uint16
			u, err = toUint16(v)
			dc.MaxAttempts = uint(u)
		case "probe":
			dc.ProbeOnly, err = toBool(v)
		case "skip_discovery":
			dc.SkipDiscovery, err = toBool(v)
		case "kill_session":
			dc.KillSession, err = toBool(v)
		case "session_id":
			dc.SessionID, err = toSessionID(v)
		case "peer_mac":
			dc.PeerHWAddr, err = toHWAddr(v)
		default:
			return fmt.Errorf("unrecognised parameter '%v'", k)
		}
		if err != nil {
			return fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return nil
}

func loadClient(cc *ClientConfig, cmap map[string]interface{}) error {
	for k, v := range cmap {
		var err error
		switch k {
		case "oui_database":
			cc.OUIDatabase, err = toString(v)
		case "metrics_file":
			cc.MetricsFile, err = toString(v)
		default:
			return fmt.Errorf("unrecognised parameter '%v'", k)
		}
		if err != nil {
			return fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return nil
}

// Validate checks that the discovery parameters are consistent with
// one another.
func (cfg *Config) Validate() error {
	dc := &cfg.Discovery
	if dc.KillSession && !dc.SkipDiscovery {
		return fmt.Errorf("kill_session requires skip_discovery")
	}
	if dc.SkipDiscovery {
		if dc.ProbeOnly {
			return fmt.Errorf("probe and skip_discovery are mutually exclusive")
		}
		if dc.PeerHWAddr == [6]byte{} {
			return fmt.Errorf("skip_discovery requires peer_mac")
		}
	}
	return nil
}

func (cfg *Config) loadTables() error {
	for name, got := range cfg.Map {
		table, ok := got.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unrecognised parameter '%v'", name)
		}
		var err error
		switch name {
		case "discovery":
			err = loadDiscovery(&cfg.Discovery, table)
		case "client":
			err = loadClient(&cfg.Client, table)
		default:
			return fmt.Errorf("unrecognised table '%v'", name)
		}
		if err != nil {
			return fmt.Errorf("%v: %v", name, err)
		}
	}
	return nil
}

func newConfig(tree *toml.Tree) (*Config, error) {
	cfg := &Config{
		Map:       tree.ToMap(),
		Discovery: pppoe.DefaultDiscoveryConfig(""),
	}
	err := cfg.loadTables()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Map:       map[string]interface{}{},
		Discovery: pppoe.DefaultDiscoveryConfig(""),
	}
}

// LoadFile loads configuration from the specified file.
func LoadFile(path string) (*Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %v", err)
	}
	return newConfig(tree)
}

// LoadString loads configuration from the specified string.
func LoadString(content string) (*Config, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load config string: %v", err)
	}
	return newConfig(tree)
}

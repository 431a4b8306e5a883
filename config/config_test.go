package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/katalix/go-pppoe/pppoe"
)

func TestLoadString(t *testing.T) {
	cases := []struct {
		name      string
		in        string
		discovery pppoe.DiscoveryConfig
		client    ClientConfig
	}{
		{
			name:      "empty",
			in:        ``,
			discovery: pppoe.DefaultDiscoveryConfig(""),
		},
		{
			name: "discovery",
			in: `[discovery]
				 interface_name = "eth0"
				 ac_name = "BRAS-01"
				 service_name = "isp"
				 host_uniq = false
				 timeout = 2500
				 max_attempts = 5
				 probe = true
				 `,
			discovery: pppoe.DiscoveryConfig{
				InterfaceName: "eth0",
				ACName:        "BRAS-01",
				ServiceName:   "isp",
				UseHostUniq:   false,
				ProbeOnly:     true,
				Timeout:       2500 * time.Millisecond,
				MaxAttempts:   5,
			},
		},
		{
			name: "existing session",
			in: `[discovery]
				 interface_name = "eth1"
				 skip_discovery = true
				 kill_session = true
				 session_id = 0x1234
				 peer_mac = "00:11:22:33:44:55"
				 `,
			discovery: pppoe.DiscoveryConfig{
				InterfaceName: "eth1",
				UseHostUniq:   true,
				SkipDiscovery: true,
				KillSession:   true,
				SessionID:     0x1234,
				PeerHWAddr:    [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
				Timeout:       pppoe.DefaultDiscoveryTimeout,
				MaxAttempts:   pppoe.DefaultMaxAttempts,
			},
		},
		{
			name: "client",
			in: `[client]
				 oui_database = "/usr/share/ieee-data/oui.txt"
				 metrics_file = "/tmp/kpppoec.prom"
				 `,
			discovery: pppoe.DefaultDiscoveryConfig(""),
			client: ClientConfig{
				OUIDatabase: "/usr/share/ieee-data/oui.txt",
				MetricsFile: "/tmp/kpppoec.prom",
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := LoadString(c.in)
			if err != nil {
				t.Fatalf("LoadString(%v): %v", c.in, err)
			}
			if !reflect.DeepEqual(cfg.Discovery, c.discovery) {
				t.Errorf("Discovery: got %+v, want %+v", cfg.Discovery, c.discovery)
			}
			if !reflect.DeepEqual(cfg.Client, c.client) {
				t.Errorf("Client: got %+v, want %+v", cfg.Client, c.client)
			}
			if err = cfg.Validate(); err != nil {
				t.Errorf("Validate(): %v", err)
			}
		})
	}
}

func TestLoadStringErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{name: "bad syntax", in: `[discovery`},
		{name: "unknown table", in: "[tunnel]\nlocal = \"127.0.0.1:5000\""},
		{name: "unknown key", in: "[discovery]\nretry_timeout = 1000"},
		{name: "top level key", in: `interface_name = "eth0"`},
		{name: "unknown client key", in: "[client]\nlog_file = \"/tmp/x\""},
		{name: "bad bool", in: "[discovery]\nprobe = \"yes\""},
		{name: "bad string", in: "[discovery]\nac_name = 42"},
		{name: "negative timeout", in: "[discovery]\ntimeout = -1"},
		{name: "session id out of range", in: "[discovery]\nsession_id = 65536"},
		{name: "bad mac", in: "[discovery]\npeer_mac = \"00:11:22:33:44\""},
		{name: "long mac", in: "[discovery]\npeer_mac = \"00:11:22:33:44:55:66:77\""},
		{name: "mac not a string", in: "[discovery]\npeer_mac = 12"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := LoadString(c.in)
			if err == nil {
				t.Errorf("LoadString(%v): expected error, got %+v", c.in, cfg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{
			name:    "kill without skip",
			in:      "[discovery]\nkill_session = true",
			wantErr: true,
		},
		{
			name:    "skip without peer",
			in:      "[discovery]\nskip_discovery = true\nsession_id = 3",
			wantErr: true,
		},
		{
			name:    "skip and probe",
			in:      "[discovery]\nskip_discovery = true\nprobe = true\npeer_mac = \"02:00:00:00:00:01\"",
			wantErr: true,
		},
		{
			name: "skip",
			in:   "[discovery]\nskip_discovery = true\npeer_mac = \"02:00:00:00:00:01\"",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := LoadString(c.in)
			if err != nil {
				t.Fatalf("LoadString(%v): %v", c.in, err)
			}
			err = cfg.Validate()
			if c.wantErr && err == nil {
				t.Errorf("Validate(): expected error for %+v", cfg.Discovery)
			} else if !c.wantErr && err != nil {
				t.Errorf("Validate(): %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpppoec.toml")
	err := os.WriteFile(path, []byte("[discovery]\ninterface_name = \"veth0\"\n"), 0o600)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile(%v): %v", path, err)
	}
	if cfg.Discovery.InterfaceName != "veth0" {
		t.Errorf("InterfaceName: got %q, want %q", cfg.Discovery.InterfaceName, "veth0")
	}

	if _, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("LoadFile(missing): expected error")
	}
}

func TestParseHWAddr(t *testing.T) {
	cases := []struct {
		in      string
		want    [6]byte
		wantErr bool
	}{
		{in: "00:11:22:33:44:55", want: [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}},
		{in: "AA-BB-CC-DD-EE-FF", want: [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}},
		{in: "0011.2233.4455", want: [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}},
		{in: "00:11:22:33:44", wantErr: true},
		{in: "02:00:5e:10:00:00:00:01", wantErr: true},
		{in: "wombles", wantErr: true},
	}
	for _, c := range cases {
		got, err := ParseHWAddr(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseHWAddr(%q): expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHWAddr(%q): %v", c.in, err)
		} else if got != c.want {
			t.Errorf("ParseHWAddr(%q): got %v, want %v", c.in, got, c.want)
		}
	}
}

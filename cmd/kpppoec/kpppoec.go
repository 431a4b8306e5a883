// The kpppoec command runs the client side of PPPoE discovery on an
// Ethernet interface.
//
// On success kpppoec prints the session ID and the access concentrator's
// Ethernet address as "<session>:<mac>", ready to hand to a PPP daemon.
// With --probe it lists the access concentrators which answer instead,
// and with --kill it terminates an existing session.
package main

import (
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/katalix/go-pppoe/config"
	"github.com/katalix/go-pppoe/internal/acinfo"
	"github.com/katalix/go-pppoe/internal/metrics"
	"github.com/katalix/go-pppoe/internal/nllink"
	"github.com/katalix/go-pppoe/pppoe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type discoveryPort interface {
	pppoe.DiscoveryPort
	InterfaceName() string
	Close() error
}

type portOpener func(ifname string) (discoveryPort, error)

// checkLink refuses interfaces which cannot carry discovery traffic.  If
// rtnetlink is unavailable the raw socket is left to report problems.
func checkLink(ifname string) error {
	c, err := nllink.Dial()
	if err != nil {
		return nil
	}
	defer c.Close()

	link, err := c.LinkByName(ifname)
	if err != nil {
		return err
	}
	return linkUsable(ifname, link)
}

func linkUsable(ifname string, link *nllink.Link) error {
	if !link.IsEthernet() {
		return fmt.Errorf("interface %s is not an Ethernet interface", ifname)
	}
	if !link.IsUp() {
		return fmt.Errorf("interface %s is down", ifname)
	}
	if !link.HasCarrier() {
		return fmt.Errorf("interface %s has no carrier", ifname)
	}
	return nil
}

func openRawPort(ifname string) (discoveryPort, error) {
	if err := checkLink(ifname); err != nil {
		return nil, err
	}
	conn, err := pppoe.NewDiscoveryConnection(ifname)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// options holds the command line flags.  Flags which are set override
// the configuration file.
type options struct {
	configPath  string
	verbose     bool
	ifName      string
	acName      string
	serviceName string
	probe       bool
	hostUniq    bool
	timeout     time.Duration
	maxAttempts uint
	session     string
	kill        string
	ouiDatabase string
	metricsFile string
}

type application struct {
	config    *config.Config
	logger    log.Logger
	port      discoveryPort
	vendors   *acinfo.Directory
	registry  *prometheus.Registry
	collector *metrics.Collector
	out       io.Writer
}

// parseSessionSpec parses "<session>:<mac>", where session is decimal.
func parseSessionSpec(s string) (sid pppoe.PPPoESessionID, peer [6]byte, err error) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return 0, peer, fmt.Errorf("expected <session>:<mac>, got %q", s)
	}
	u, err := strconv.ParseUint(s[:i], 10, 16)
	if err != nil {
		return 0, peer, fmt.Errorf("bad session ID in %q: %v", s, err)
	}
	peer, err = config.ParseHWAddr(s[i+1:])
	if err != nil {
		return 0, peer, fmt.Errorf("bad peer address in %q: %v", s, err)
	}
	return pppoe.PPPoESessionID(u), peer, nil
}

func loadConfig(cmd *cobra.Command, opts *options) (cfg *config.Config, err error) {
	cfg = config.Default()
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	dc := &cfg.Discovery
	flags := cmd.Flags()
	if flags.Changed("interface") {
		dc.InterfaceName = opts.ifName
	}
	if flags.Changed("ac-name") {
		dc.ACName = opts.acName
	}
	if flags.Changed("service-name") {
		dc.ServiceName = opts.serviceName
	}
	if flags.Changed("probe") {
		dc.ProbeOnly = opts.probe
	}
	if flags.Changed("host-uniq") {
		dc.UseHostUniq = opts.hostUniq
	}
	if flags.Changed("timeout") {
		dc.Timeout = opts.timeout
	}
	if flags.Changed("max-attempts") {
		dc.MaxAttempts = opts.maxAttempts
	}
	if flags.Changed("session") {
		dc.SessionID, dc.PeerHWAddr, err = parseSessionSpec(opts.session)
		if err != nil {
			return nil, fmt.Errorf("--session: %v", err)
		}
		dc.SkipDiscovery = true
	}
	if flags.Changed("kill") {
		dc.SessionID, dc.PeerHWAddr, err = parseSessionSpec(opts.kill)
		if err != nil {
			return nil, fmt.Errorf("--kill: %v", err)
		}
		dc.SkipDiscovery = true
		dc.KillSession = true
	}
	if flags.Changed("oui-database") {
		cfg.Client.OUIDatabase = opts.ouiDatabase
	}
	if flags.Changed("metrics-file") {
		cfg.Client.MetricsFile = opts.metricsFile
	}

	if dc.InterfaceName == "" {
		return nil, fmt.Errorf("no interface name called out in the configuration file or on the command line")
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApplication(cfg *config.Config, verbose bool, openPort portOpener, out, logOut io.Writer) (app *application, err error) {
	app = &application{
		config: cfg,
		out:    out,
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(logOut))
	if verbose {
		app.logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		app.logger = level.NewFilter(logger, level.AllowInfo())
	}

	if cfg.Client.OUIDatabase != "" {
		app.vendors, err = acinfo.Open(cfg.Client.OUIDatabase)
		if err != nil {
			level.Warn(app.logger).Log("message", "access concentrator vendor lookup disabled", "error", err)
		}
	}

	if cfg.Client.MetricsFile != "" {
		app.registry = prometheus.NewRegistry()
		app.collector = metrics.NewCollector(app.registry)
	}

	app.port, err = openPort(cfg.Discovery.InterfaceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create PPPoE connection: %v", err)
	}
	hwAddr := app.port.HWAddr()
	level.Info(app.logger).Log(
		"message", "discovery port open",
		"interface", app.port.InterfaceName(),
		"hwaddr", net.HardwareAddr(hwAddr[:]))

	return app, nil
}

func (app *application) close() {
	if app.registry != nil {
		err := metrics.WriteTextfile(app.config.Client.MetricsFile, app.registry)
		if err != nil {
			level.Error(app.logger).Log("message", "failed to export metrics", "error", err)
		}
	}
	app.port.Close()
}

func (app *application) run() error {
	conn := pppoe.NewConnection(app.config.Discovery, app.port.HWAddr())
	d := pppoe.NewDiscovery(conn, app.port, app.logger)
	if app.collector != nil {
		d.SetObserver(app.collector)
	}

	if app.config.Discovery.ProbeOnly {
		offers, err := d.Probe()
		app.printOffers(offers)
		return err
	}

	session, err := d.Run()
	if err != nil {
		if errors.Is(err, pppoe.ErrSessionKilled) {
			return nil
		}
		return err
	}

	fmt.Fprintf(app.out, "%d:%s\n", session.SessionID, net.HardwareAddr(session.PeerHWAddr[:]))
	return nil
}

func (app *application) vendor(addr [6]byte) (string, bool) {
	name, found, err := app.vendors.Vendor(addr)
	if err != nil {
		level.Warn(app.logger).Log("message", "vendor lookup failed", "error", err)
	}
	return name, found
}

func (app *application) printOffers(offers []*pppoe.ACOffer) {
	for _, offer := range offers {
		for _, name := range offer.ACNames {
			fmt.Fprintf(app.out, "Access-Concentrator: %s\n", name)
		}
		for _, name := range offer.ServiceNames {
			fmt.Fprintf(app.out, "       Service-Name: %s\n", name)
		}
		if offer.Cookie != nil {
			fmt.Fprintf(app.out, "       Got a cookie: %x\n", offer.Cookie.Data)
		}
		if offer.RelayID != nil {
			fmt.Fprintf(app.out, "   Relay-Session-ID: %x\n", offer.RelayID.Data)
		}
		for _, tag := range offer.Errors {
			fmt.Fprintf(app.out, "              Error: %v\n", tag)
		}
		fmt.Fprintf(app.out, "AC-Ethernet-Address: %s\n", net.HardwareAddr(offer.HWAddr[:]))
		if name, ok := app.vendor(offer.HWAddr); ok {
			fmt.Fprintf(app.out, "          AC-Vendor: %s\n", name)
		}
		fmt.Fprintln(app.out, strings.Repeat("-", 50))
	}
}

func newRootCmd(openPort portOpener, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "kpppoec",
		Short: "PPPoE discovery client",
		Long: "kpppoec runs PPPoE discovery on an Ethernet interface and prints " +
			"the session ID and access concentrator address as <session>:<mac>.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %v", err)
			}

			app, err := newApplication(cfg, opts.verbose, openPort, stdout, stderr)
			if err != nil {
				return fmt.Errorf("failed to instantiate application: %v", err)
			}
			defer app.close()

			return app.run()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "specify configuration file path")
	flags.BoolVar(&opts.verbose, "verbose", false, "toggle verbose log output")
	flags.StringVarP(&opts.ifName, "interface", "I", "", "Ethernet interface to run discovery on")
	flags.StringVarP(&opts.acName, "ac-name", "C", "", "only accept offers from the named access concentrator")
	flags.StringVarP(&opts.serviceName, "service-name", "S", "", "request the named service")
	flags.BoolVarP(&opts.probe, "probe", "A", false, "list the access concentrators which respond, then exit")
	flags.BoolVarP(&opts.hostUniq, "host-uniq", "U", true, "use the Host-Uniq tag")
	flags.DurationVar(&opts.timeout, "timeout", pppoe.DefaultDiscoveryTimeout, "initial time to wait for a PADO or PADS")
	flags.UintVar(&opts.maxAttempts, "max-attempts", pppoe.DefaultMaxAttempts, "PADI or PADR packets to send before giving up")
	flags.StringVarP(&opts.session, "session", "e", "", "skip discovery and use the existing session <session>:<mac>")
	flags.StringVarP(&opts.kill, "kill", "k", "", "send a PADT to terminate the session <session>:<mac>")
	flags.StringVar(&opts.ouiDatabase, "oui-database", "", "IEEE OUI registry used to name access concentrator vendors")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write discovery metrics to a Prometheus textfile on exit")
	cmd.MarkFlagsMutuallyExclusive("session", "kill")
	cmd.MarkFlagsMutuallyExclusive("probe", "kill")

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

func main() {
	cmd := newRootCmd(openRawPort, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		stdlog.Fatalf("kpppoec: %v", err)
	}
}

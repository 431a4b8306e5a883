// Package metrics exports PPPoE discovery events as Prometheus metrics.
package metrics

import (
	"fmt"
	"strings"

	"github.com/katalix/go-pppoe/pppoe"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "kpppoec"
	subsystem = "discovery"
)

// Label names for discovery metrics.
const (
	labelCode   = "code"
	labelReason = "reason"
	labelPhase  = "phase"
	labelTag    = "tag"
)

// Collector holds the discovery metrics.  It implements
// pppoe.DiscoveryObserver so it can be attached to a discovery engine
// with SetObserver.
type Collector struct {
	// FramesSent counts discovery packets transmitted, by packet code.
	FramesSent *prometheus.CounterVec

	// FramesReceived counts well-formed discovery packets received,
	// by packet code.
	FramesReceived *prometheus.CounterVec

	// FramesDropped counts received packets discarded, by reason.
	FramesDropped *prometheus.CounterVec

	// Timeouts counts waits which expired, by the packet code awaited.
	Timeouts *prometheus.CounterVec

	// Rejections counts error tags received from access concentrators.
	Rejections *prometheus.CounterVec

	// Offers counts PADO packets accepted.
	Offers prometheus.Counter

	// SessionsEstablished counts successful handshakes.
	SessionsEstablished prometheus.Counter

	// SessionIDAdvisories counts sessions established with a session ID
	// which RFC2516 reserves.
	SessionIDAdvisories prometheus.Counter
}

var _ pppoe.DiscoveryObserver = (*Collector)(nil)

// NewCollector creates a Collector with all metrics registered against
// reg.  If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.FramesSent,
		c.FramesReceived,
		c.FramesDropped,
		c.Timeouts,
		c.Rejections,
		c.Offers,
		c.SessionsEstablished,
		c.SessionIDAdvisories,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total PPPoE discovery packets transmitted.",
		}, []string{labelCode}),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total well-formed PPPoE discovery packets received.",
		}, []string{labelCode}),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total received PPPoE discovery packets discarded.",
		}, []string{labelReason}),

		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "timeouts_total",
			Help:      "Total waits for a PADO or PADS which expired.",
		}, []string{labelPhase}),

		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejections_total",
			Help:      "Total error tags received from access concentrators.",
		}, []string{labelTag}),

		Offers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "offers_total",
			Help:      "Total access concentrator offers accepted.",
		}),

		SessionsEstablished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_established_total",
			Help:      "Total discovery handshakes completed.",
		}),

		SessionIDAdvisories: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_id_advisories_total",
			Help:      "Total sessions allocated a reserved session ID (RFC 2516).",
		}),
	}
}

// tagLabel renders a tag type as a metric label, e.g. "service_name_error".
func tagLabel(typ pppoe.PPPoETagType) string {
	return strings.ReplaceAll(strings.ToLower(typ.String()), " ", "_")
}

// FrameSent implements pppoe.DiscoveryObserver.
func (c *Collector) FrameSent(code pppoe.PPPoECode) {
	c.FramesSent.WithLabelValues(code.String()).Inc()
}

// FrameReceived implements pppoe.DiscoveryObserver.
func (c *Collector) FrameReceived(code pppoe.PPPoECode) {
	c.FramesReceived.WithLabelValues(code.String()).Inc()
}

// FrameDropped implements pppoe.DiscoveryObserver.
func (c *Collector) FrameDropped(reason pppoe.DropReason) {
	c.FramesDropped.WithLabelValues(string(reason)).Inc()
}

// WaitTimeout implements pppoe.DiscoveryObserver.
func (c *Collector) WaitTimeout(waiting pppoe.PPPoECode) {
	c.Timeouts.WithLabelValues(waiting.String()).Inc()
}

// Rejected implements pppoe.DiscoveryObserver.
func (c *Collector) Rejected(_ pppoe.PPPoECode, tag pppoe.PPPoETagType) {
	c.Rejections.WithLabelValues(tagLabel(tag)).Inc()
}

// OfferAccepted implements pppoe.DiscoveryObserver.
func (c *Collector) OfferAccepted() {
	c.Offers.Inc()
}

// SessionEstablished implements pppoe.DiscoveryObserver.
func (c *Collector) SessionEstablished(advisory bool) {
	c.SessionsEstablished.Inc()
	if advisory {
		c.SessionIDAdvisories.Inc()
	}
}

// WriteTextfile writes the metrics gathered by g to path in the Prometheus
// text format, for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

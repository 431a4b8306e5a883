package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/katalix/go-pppoe/internal/metrics"
	"github.com/katalix/go-pppoe/pppoe"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.FramesSent == nil || c.FramesReceived == nil || c.FramesDropped == nil {
		t.Fatal("frame counters not created")
	}
	if c.Timeouts == nil || c.Rejections == nil {
		t.Fatal("timeout or rejection counters not created")
	}

	// registering the same metrics twice must fail
	defer func() {
		if recover() == nil {
			t.Error("second NewCollector on the same registry did not panic")
		}
	}()
	metrics.NewCollector(reg)
}

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector(prometheus.NewRegistry())

	c.FrameSent(pppoe.PPPoECodePADI)
	c.FrameSent(pppoe.PPPoECodePADI)
	c.FrameSent(pppoe.PPPoECodePADR)
	c.FrameReceived(pppoe.PPPoECodePADO)
	c.FrameDropped(pppoe.DropNonUnicast)
	c.FrameDropped(pppoe.DropNonUnicast)
	c.FrameDropped(pppoe.DropMalformed)

	cases := []struct {
		vec    *prometheus.CounterVec
		labels []string
		want   float64
	}{
		{vec: c.FramesSent, labels: []string{"PADI"}, want: 2},
		{vec: c.FramesSent, labels: []string{"PADR"}, want: 1},
		{vec: c.FramesReceived, labels: []string{"PADO"}, want: 1},
		{vec: c.FramesReceived, labels: []string{"PADS"}, want: 0},
		{vec: c.FramesDropped, labels: []string{"non_unicast"}, want: 2},
		{vec: c.FramesDropped, labels: []string{"malformed"}, want: 1},
	}
	for _, tc := range cases {
		if got := counterVecValue(t, tc.vec, tc.labels...); got != tc.want {
			t.Errorf("%v = %v, want %v", tc.labels, got, tc.want)
		}
	}
}

func TestOutcomeCounters(t *testing.T) {
	t.Parallel()

	c := metrics.NewCollector(prometheus.NewRegistry())

	c.WaitTimeout(pppoe.PPPoECodePADO)
	c.WaitTimeout(pppoe.PPPoECodePADO)
	c.WaitTimeout(pppoe.PPPoECodePADS)
	c.Rejected(pppoe.PPPoECodePADS, pppoe.PPPoETagTypeServiceNameError)
	c.OfferAccepted()
	c.SessionEstablished(false)
	c.SessionEstablished(true)

	if got := counterVecValue(t, c.Timeouts, "PADO"); got != 2 {
		t.Errorf("Timeouts(PADO) = %v, want 2", got)
	}
	if got := counterVecValue(t, c.Timeouts, "PADS"); got != 1 {
		t.Errorf("Timeouts(PADS) = %v, want 1", got)
	}
	if got := counterVecValue(t, c.Rejections, "service_name_error"); got != 1 {
		t.Errorf("Rejections(service_name_error) = %v, want 1", got)
	}
	if got := counterValue(t, c.Offers); got != 1 {
		t.Errorf("Offers = %v, want 1", got)
	}
	if got := counterValue(t, c.SessionsEstablished); got != 2 {
		t.Errorf("SessionsEstablished = %v, want 2", got)
	}
	if got := counterValue(t, c.SessionIDAdvisories); got != 1 {
		t.Errorf("SessionIDAdvisories = %v, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.FrameSent(pppoe.PPPoECodePADI)
	c.SessionEstablished(false)

	path := filepath.Join(t.TempDir(), "kpppoec.prom")
	if err := metrics.WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile(%v): %v", path, err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%v): %v", path, err)
	}
	for _, want := range []string{
		`kpppoec_discovery_frames_sent_total{code="PADI"} 1`,
		`kpppoec_discovery_sessions_established_total 1`,
	} {
		if !strings.Contains(string(b), want) {
			t.Errorf("textfile missing %q:\n%s", want, b)
		}
	}

	if err := metrics.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"), reg); err == nil {
		t.Error("WriteTextfile to missing directory: expected error")
	}
}

func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	return counterValue(t, counter)
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

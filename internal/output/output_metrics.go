package output

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tkjaer/synping/internal/shared"
)

var destinationLabels = []string{"destination", "host"}

type probeCounts struct {
	sent     int
	answered int
}

// MetricsOutput exposes probe results as Prometheus metrics
type MetricsOutput struct {
	registry *prometheus.Registry

	probesSent     *prometheus.CounterVec
	probesAnswered *prometheus.CounterVec
	rtt            *prometheus.GaugeVec
	loss           *prometheus.GaugeVec

	mu     sync.Mutex
	counts map[string]*probeCounts
}

// NewMetricsOutput registers its metrics on a private registry so several
// instances can coexist (tests)
func NewMetricsOutput() *MetricsOutput {
	m := &MetricsOutput{
		registry: prometheus.NewRegistry(),
		probesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synping_probes_sent_total",
				Help: "Total number of SYN probes sent",
			},
			destinationLabels,
		),
		probesAnswered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synping_probes_answered_total",
				Help: "Total number of SYN probes answered with a SYN/ACK",
			},
			destinationLabels,
		),
		rtt: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synping_rtt_ms",
				Help: "Round-trip time of the last answered probe in milliseconds",
			},
			destinationLabels,
		),
		loss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synping_loss_pct",
				Help: "Percentage of sent probes not answered so far",
			},
			destinationLabels,
		),
		counts: make(map[string]*probeCounts),
	}

	m.registry.MustRegister(m.probesSent)
	m.registry.MustRegister(m.probesAnswered)
	m.registry.MustRegister(m.rtt)
	m.registry.MustRegister(m.loss)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *MetricsOutput) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// updateLoss must be called with mu held
func (m *MetricsOutput) updateLoss(obs shared.Observation, c *probeCounts) {
	loss := 0.0
	if c.sent > 0 {
		loss = (1 - float64(c.answered)/float64(c.sent)) * 100
	}
	m.loss.WithLabelValues(obs.Destination, obs.Host).Set(loss)
}

func (m *MetricsOutput) countsFor(dest string) *probeCounts {
	c, ok := m.counts[dest]
	if !ok {
		c = &probeCounts{}
		m.counts[dest] = c
	}
	return c
}

func (m *MetricsOutput) ProbeSent(obs shared.Observation) {
	m.probesSent.WithLabelValues(obs.Destination, obs.Host).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.countsFor(obs.Destination)
	c.sent++
	m.updateLoss(obs, c)
}

func (m *MetricsOutput) ProbeAnswered(obs shared.Observation) {
	m.probesAnswered.WithLabelValues(obs.Destination, obs.Host).Inc()
	m.rtt.WithLabelValues(obs.Destination, obs.Host).Set(obs.RTTMs)

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.countsFor(obs.Destination)
	c.answered++
	m.updateLoss(obs, c)
}

// Summary sets the loss gauges from the final statistics
func (m *MetricsOutput) Summary(summaries []shared.Summary) {
	for _, s := range summaries {
		m.loss.WithLabelValues(s.Key.String(), s.Host).Set(s.LossPct)
	}
}

func (m *MetricsOutput) Close() error {
	return nil
}

package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	commands    *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	dispenses   *prometheus.CounterVec
	connections prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispense_commands_total",
			Help: "Protocol commands handled, by command and reply code.",
		}, []string{"command", "code"}),
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispense_transfers_total",
			Help: "Ledger transfers attempted, by result.",
		}, []string{"result"}),
		dispenses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispense_dispenses_total",
			Help: "Dispense requests, by outcome.",
		}, []string{"outcome"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispense_connections_active",
			Help: "Client connections currently open.",
		}),
	}
}

func (m *Metrics) ObserveCommand(command string, code int) {
	m.commands.WithLabelValues(command, strconv.Itoa(code)).Inc()
}

func (m *Metrics) ObserveTransfer(result string) {
	m.transfers.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDispense(outcome string) {
	m.dispenses.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConnectionOpened() {
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connections.Dec()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus
// metrics.
type PrometheusCollector struct {
	// Connection metrics
	connectionsTotal   *prometheus.CounterVec
	connectionsActive  *prometheus.GaugeVec
	tlsConnectionTotal *prometheus.CounterVec

	// Authentication metrics
	authAttemptsTotal *prometheus.CounterVec

	// Command metrics
	commandsTotal *prometheus.CounterVec

	// Message metrics
	messagesRetrievedTotal *prometheus.CounterVec
	messagesDeletedTotal   *prometheus.CounterVec
	messagesDeliveredTotal *prometheus.CounterVec
	messagesDroppedTotal   prometheus.Counter
	messagesSizeBytes      prometheus.Histogram
}

// NewPrometheusCollector creates a new PrometheusCollector with all
// metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail4one_connections_total",
			Help: "Total number of connections opened.",
		}, []string{"proto"}),
		connectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mail4one_connections_active",
			Help: "Number of currently active connections.",
		}, []string{"proto"}),
		tlsConnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail4one_tls_connections_total",
			Help: "Total number of TLS connections established.",
		}, []string{"proto"}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail4one_auth_attempts_total",
			Help: "Total number of POP3 authentication attempts.",
		}, []string{"result"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail4one_commands_total",
			Help: "Total number of protocol commands processed.",
		}, []string{"proto", "command"}),

		messagesRetrievedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail4one_messages_retrieved_total",
			Help: "Total number of messages retrieved over POP3.",
		}, []string{"mbox"}),
		messagesDeletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail4one_messages_deleted_total",
			Help: "Total number of messages marked for deletion.",
		}, []string{"mbox"}),
		messagesDeliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail4one_messages_delivered_total",
			Help: "Total number of messages delivered to mailboxes.",
		}, []string{"mbox"}),
		messagesDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mail4one_messages_dropped_total",
			Help: "Total number of accepted messages with no matching mailbox.",
		}),
		messagesSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mail4one_messages_size_bytes",
			Help:    "Size of handled messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 52428800},
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.tlsConnectionTotal,
		c.authAttemptsTotal,
		c.commandsTotal,
		c.messagesRetrievedTotal,
		c.messagesDeletedTotal,
		c.messagesDeliveredTotal,
		c.messagesDroppedTotal,
		c.messagesSizeBytes,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened(proto string) {
	c.connectionsTotal.WithLabelValues(proto).Inc()
	c.connectionsActive.WithLabelValues(proto).Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (c *PrometheusCollector) ConnectionClosed(proto string) {
	c.connectionsActive.WithLabelValues(proto).Dec()
}

// TLSConnectionEstablished increments the TLS connection counter.
func (c *PrometheusCollector) TLSConnectionEstablished(proto string) {
	c.tlsConnectionTotal.WithLabelValues(proto).Inc()
}

// AuthAttempt records an authentication attempt by result.
func (c *PrometheusCollector) AuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(result).Inc()
}

// CommandProcessed increments the per-command counter.
func (c *PrometheusCollector) CommandProcessed(proto, command string) {
	c.commandsTotal.WithLabelValues(proto, command).Inc()
}

// MessageRetrieved records a retrieved message and its size.
func (c *PrometheusCollector) MessageRetrieved(mbox string, sizeBytes int64) {
	c.messagesRetrievedTotal.WithLabelValues(mbox).Inc()
	c.messagesSizeBytes.Observe(float64(sizeBytes))
}

// MessageDeleted records a deletion mark.
func (c *PrometheusCollector) MessageDeleted(mbox string) {
	c.messagesDeletedTotal.WithLabelValues(mbox).Inc()
}

// MessageDelivered records a delivered message copy and its size.
func (c *PrometheusCollector) MessageDelivered(mbox string, sizeBytes int64) {
	c.messagesDeliveredTotal.WithLabelValues(mbox).Inc()
	c.messagesSizeBytes.Observe(float64(sizeBytes))
}

// MessageDropped records an accepted message with no target mailbox.
func (c *PrometheusCollector) MessageDropped() {
	c.messagesDroppedTotal.Inc()
}

// Package prometheus provides a Prometheus implementation of the
// meshkeep.Metrics interface.
//
// All metrics are registered with the given Prometheus registerer and
// follow Prometheus naming conventions.
//
// # Metric Names
//
// All metrics use the configured namespace prefix (default: "meshkeep").
// The full metric name follows the pattern: {namespace}_{name}
//
//	meshkeep_connections_opened_total{transport,direction}
//	meshkeep_connections_closed_total{transport,direction}
//	meshkeep_connection_attempts_total{transport,result}
//	meshkeep_handshake_duration_seconds
//	meshkeep_handshake_results_total{result}
//	meshkeep_retry_exhausted_total{transport}
//	meshkeep_retry_scheduled_seconds
//	meshkeep_signals_relayed_total
//	meshkeep_signals_dropped_total{reason}
//	meshkeep_peer_list_broadcasts_total
//	meshkeep_peer_list_recipients
//	meshkeep_known_peers_changed_total
//	meshkeep_peers_disposed_total
//	meshkeep_connected_peers
//	meshkeep_messages_sent_bytes_total
//	meshkeep_messages_received_bytes_total
//	meshkeep_box_errors_total
//	meshkeep_events_dropped_total
//
// # Example Usage
//
//	import (
//	    "github.com/quietmesh/meshkeep"
//	    meshprom "github.com/quietmesh/meshkeep/prometheus"
//	)
//
//	metrics := meshprom.NewMetrics("myapp")
//	mgr, err := meshkeep.New(meshkeep.NewConfig(meshkeep.WithMetrics(metrics)), local, book)
//	// ...
//	http.Handle("/metrics", promhttp.Handler())
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quietmesh/meshkeep"
)

// DefaultNamespace is the default namespace for all metrics.
const DefaultNamespace = "meshkeep"

// Metrics implements meshkeep.Metrics using Prometheus collectors. It is
// safe for concurrent use, since every prometheus.Collector method it
// calls is itself concurrency-safe.
type Metrics struct {
	connectionsOpened  *prometheus.CounterVec
	connectionsClosed  *prometheus.CounterVec
	connectionAttempts *prometheus.CounterVec
	handshakeDuration  prometheus.Histogram
	handshakeResults   *prometheus.CounterVec

	retryExhausted *prometheus.CounterVec
	retryScheduled prometheus.Histogram

	signalsRelayed     prometheus.Counter
	signalsDropped     *prometheus.CounterVec
	peerListBroadcasts prometheus.Counter
	peerListRecipients prometheus.Histogram
	knownPeersChanged  prometheus.Counter

	peersDisposed  prometheus.Counter
	connectedPeers prometheus.Gauge

	messageSentBytes     prometheus.Counter
	messageReceivedBytes prometheus.Counter

	boxErrors     prometheus.Counter
	eventsDropped prometheus.Counter
}

var _ meshkeep.Metrics = (*Metrics)(nil)

// NewMetrics creates a Prometheus metrics collector under namespace and
// registers it with the default Prometheus registry. If namespace is
// empty, DefaultNamespace is used. Panics if registration fails; use
// NewMetricsWithRegisterer with a dedicated registry to avoid that.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a Prometheus metrics collector under
// namespace, registered with registerer. A nil registerer skips
// registration, which is useful in tests that construct multiple
// instances against the global default registry.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		connectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_opened_total",
			Help: "Total number of connections that reached CONNECTED.",
		}, []string{"transport", "direction"}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_closed_total",
			Help: "Total number of connections that transitioned to DISCONNECTED.",
		}, []string{"transport", "direction"}),
		connectionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connection_attempts_total",
			Help: "Total number of dial attempts by outcome.",
		}, []string{"transport", "result"}),
		handshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "handshake_duration_seconds",
			Help:    "Wall-clock time from CONNECTING to CONNECTED.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		handshakeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "handshake_results_total",
			Help: "Total number of identity handshakes by outcome.",
		}, []string{"result"}),
		retryExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "retry_exhausted_total",
			Help: "Total number of (peer, transport) slots permanently retired.",
		}, []string{"transport"}),
		retryScheduled: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "retry_scheduled_seconds",
			Help:    "Backoff delay computed after a failed dial.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		signalsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_relayed_total",
			Help: "Total number of locally originated signals sent through a broker.",
		}),
		signalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_dropped_total",
			Help: "Total number of relay messages dropped by reason.",
		}, []string{"reason"}),
		peerListBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "peer_list_broadcasts_total",
			Help: "Total number of periodic known-peer-list broadcast ticks.",
		}),
		peerListRecipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "peer_list_recipients",
			Help:    "Number of peers a known-peer-list broadcast was sent to.",
			Buckets: prometheus.LinearBuckets(0, 10, 10),
		}),
		knownPeersChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "known_peers_changed_total",
			Help: "Total number of times a peer's known-peers edge set changed.",
		}),
		peersDisposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "peers_disposed_total",
			Help: "Total number of peer records removed from the registry as disposable.",
		}),
		connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connected_peers",
			Help: "Current number of peers in the CONNECTED state.",
		}),
		messageSentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_bytes_total",
			Help: "Total bytes of application messages sent.",
		}),
		messageReceivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_received_bytes_total",
			Help: "Total bytes of application messages received.",
		}),
		boxErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "box_errors_total",
			Help: "Total number of BoxMessage/UnboxMessage failures.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_total",
			Help: "Total number of events dropped due to a full event buffer.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.connectionsOpened, m.connectionsClosed, m.connectionAttempts,
			m.handshakeDuration, m.handshakeResults,
			m.retryExhausted, m.retryScheduled,
			m.signalsRelayed, m.signalsDropped, m.peerListBroadcasts,
			m.peerListRecipients, m.knownPeersChanged,
			m.peersDisposed, m.connectedPeers,
			m.messageSentBytes, m.messageReceivedBytes,
			m.boxErrors, m.eventsDropped,
		)
	}

	return m
}

func (m *Metrics) ConnectionOpened(transport, direction string) {
	m.connectionsOpened.WithLabelValues(transport, direction).Inc()
}

func (m *Metrics) ConnectionClosed(transport, direction string) {
	m.connectionsClosed.WithLabelValues(transport, direction).Inc()
}

func (m *Metrics) ConnectionAttempt(transport, result string) {
	m.connectionAttempts.WithLabelValues(transport, result).Inc()
}

func (m *Metrics) HandshakeDuration(seconds float64) {
	m.handshakeDuration.Observe(seconds)
}

func (m *Metrics) HandshakeResult(result string) {
	m.handshakeResults.WithLabelValues(result).Inc()
}

func (m *Metrics) RetryExhausted(transport string) {
	m.retryExhausted.WithLabelValues(transport).Inc()
}

func (m *Metrics) RetryScheduled(seconds float64) {
	m.retryScheduled.Observe(seconds)
}

func (m *Metrics) SignalRelayed() {
	m.signalsRelayed.Inc()
}

func (m *Metrics) SignalDropped(reason string) {
	m.signalsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) PeerListBroadcast(recipients int) {
	m.peerListBroadcasts.Inc()
	m.peerListRecipients.Observe(float64(recipients))
}

func (m *Metrics) KnownPeersChanged() {
	m.knownPeersChanged.Inc()
}

func (m *Metrics) PeerDisposed() {
	m.peersDisposed.Inc()
}

func (m *Metrics) ConnectedPeers(count int) {
	m.connectedPeers.Set(float64(count))
}

func (m *Metrics) MessageSent(bytes int) {
	m.messageSentBytes.Add(float64(bytes))
}

func (m *Metrics) MessageReceived(bytes int) {
	m.messageReceivedBytes.Add(float64(bytes))
}

func (m *Metrics) BoxError() {
	m.boxErrors.Inc()
}

func (m *Metrics) EventDropped() {
	m.eventsDropped.Inc()
}

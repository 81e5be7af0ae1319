package meshkeep

// Metrics defines the metrics collection interface for the overlay core.
// It is designed to be compatible with Prometheus and other metrics
// systems (see the prometheus/ adapter package).
//
// Implementations must be safe for concurrent use.
type Metrics interface {
	// Connection metrics

	// ConnectionOpened increments when a connection reaches CONNECTED.
	// Labels: transport (direct, assisted), direction (inbound, outbound)
	ConnectionOpened(transport, direction string)

	// ConnectionClosed increments when a connection transitions to
	// DISCONNECTED.
	// Labels: transport (direct, assisted), direction (inbound, outbound)
	ConnectionClosed(transport, direction string)

	// ConnectionAttempt records the outcome of a dial attempt.
	// Labels: transport (direct, assisted), result (success, failure)
	ConnectionAttempt(transport, result string)

	// HandshakeDuration records the wall-clock time from CONNECTING to
	// CONNECTED for one connection.
	HandshakeDuration(seconds float64)

	// HandshakeResult records the outcome of an identity handshake.
	// Labels: result (success, self_dial, version_mismatch, name_too_long,
	// duplicate_superseded)
	HandshakeResult(result string)

	// Retry metrics

	// RetryExhausted increments when a (peer, transport) slot is
	// permanently retired (neverRetry set).
	// Labels: transport (direct, assisted)
	RetryExhausted(transport string)

	// RetryScheduled records a backoff delay computed after a failed
	// dial.
	RetryScheduled(seconds float64)

	// Relay and gossip metrics

	// SignalRelayed increments when this node sends one of its own
	// outbound signalling payloads to a broker as a signal message.
	// Messages forwarded on behalf of other peers are not counted.
	SignalRelayed()

	// SignalDropped increments when a relay message is dropped (spoofed
	// source, congested, or unknown destination).
	// Labels: reason (spoofed_source, congested, unknown_destination)
	SignalDropped(reason string)

	// PeerListBroadcast increments once per periodic broadcast tick.
	// Labels: recipients is the number of peers the list was sent to.
	PeerListBroadcast(recipients int)

	// KnownPeersChanged increments each time a peer's knownPeers edge set
	// changes from an applied PeerList.
	KnownPeersChanged()

	// Peer lifecycle metrics

	// PeerDisposed increments when a disposal check removes a peer record
	// from the registry, whether the check ran in the periodic sweep or
	// elsewhere.
	PeerDisposed()

	// ConnectedPeers reports the current count of peers in the CONNECTED
	// state, each time a peer's connectedness changes.
	ConnectedPeers(count int)

	// Message metrics

	// MessageSent records an application message handed to sendTo or
	// broadcast.
	MessageSent(bytes int)

	// MessageReceived records an application message surfaced via
	// onMessage.
	MessageReceived(bytes int)

	// Crypto metrics

	// BoxError records a BoxMessage/UnboxMessage failure.
	BoxError()

	// Event metrics

	// EventDropped records an event being dropped due to a full event
	// buffer.
	EventDropped()
}

// NopMetrics is a no-op metrics implementation that discards all metrics.
// It is the default when no metrics collector is configured.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) ConnectionOpened(transport, direction string) {}
func (NopMetrics) ConnectionClosed(transport, direction string) {}
func (NopMetrics) ConnectionAttempt(transport, result string)   {}
func (NopMetrics) HandshakeDuration(seconds float64)            {}
func (NopMetrics) HandshakeResult(result string)                {}
func (NopMetrics) RetryExhausted(transport string)              {}
func (NopMetrics) RetryScheduled(seconds float64)                {}
func (NopMetrics) SignalRelayed()                                {}
func (NopMetrics) SignalDropped(reason string)                   {}
func (NopMetrics) PeerListBroadcast(recipients int)              {}
func (NopMetrics) KnownPeersChanged()                            {}
func (NopMetrics) PeerDisposed()                                 {}
func (NopMetrics) ConnectedPeers(count int)                      {}
func (NopMetrics) MessageSent(bytes int)                         {}
func (NopMetrics) MessageReceived(bytes int)                     {}
func (NopMetrics) BoxError()                                     {}
func (NopMetrics) EventDropped()                                 {}

/*
Package meshkeep implements the Peer Manager overlay network core: identity
handshaking, connection state machines for direct and assisted (relayed)
transports, retry/backoff policy, peer records with known-peer gossip
graphs, signal relaying for NAT traversal, duplicate-connection
arbitration, and the periodic broadcast/disposal background tasks that
keep a mesh of peers converging on a shared view of who is reachable.

# Features

  - Identity handshake with version compatibility, name-length validation,
    self-dial rejection, and duplicate-connection arbitration
  - Direct and assisted connection state machines with enforced transitions
  - Exponential-backoff retry policy with a whitelist exemption
  - Known-peer gossip: periodic broadcast and diff-and-merge on receipt
  - Signal/SignalRequest relaying for a single-hop NAT traversal handshake
  - Congestion rejection with an absolute-deadline disconnect window
  - Optional on-disk address book, read for health and debug reporting
    (the Manager does not write to it)
  - Non-blocking connection, message, and known-peers-changed event channels
  - A single logical event loop: every peer-state mutation runs as a
    submitted closure, so no additional locking is needed around it

# Quick Start

Build a LocalPeer and start a Manager:

	local := &localpeer.LocalPeer{
		Identity:        myIdentity,
		Version:         identity.Version{ProtocolVersion: "1"},
		Name:            "node-a",
		ListenPort:      9000,
		Boxer:           myBoxer,
		DirectFactory:   myDirectFactory,
		AssistedFactory: myAssistedFactory,
	}

	mgr, err := meshkeep.New(meshkeep.NewConfig(
		meshkeep.WithMaxPeers(1000),
		meshkeep.WithTargetPeers(50),
	), local, book)
	if err != nil {
		// handle error
	}

	mgr.Start()
	defer mgr.Stop()

Dial a peer and watch its connection state:

	mgr.ConnectToAddress("203.0.113.4:9000")

	for ev := range mgr.Connects() {
		fmt.Printf("connected: %s\n", ev.Peer.DisplayName())
	}

Receive application payloads once a peer reaches CONNECTED:

	for msg := range mgr.Messages() {
		fmt.Printf("from %s: %d bytes\n", msg.Peer.DisplayName(), len(msg.Message))
	}

# Architecture

The Manager owns a single goroutine (loop) that drains a channel of
closures (loopCh); every method that reads or mutates peer state submits
a closure to this channel rather than taking a lock directly, by
convention suffixed Locked. A second goroutine per live connection
(pumpConnection) forwards that connection's state changes, messages,
signals, and closure back into the same channel. This keeps the entire
peer registry, identity map, and connectedness snapshot single-threaded
without exposing that discipline to callers, who only ever see
channel-based event and request APIs.

# Connection Flow

 1. ConnectToAddress or an inbound accept creates a peer.Peer and a
    connection.Connection in the Connecting state
 2. Direct connections move straight to WaitingForIdentity; assisted
    connections first negotiate Signaling/RequestSignaling through a
    broker, then move to WaitingForIdentity once paired
 3. The first frame on a WaitingForIdentity connection is handled by the
    ten-step handshake branch in handshake.go
 4. On success the connection reaches Connected and the peer record is
    identified and merged with any existing record for that identity
 5. Known-peer lists are gossiped periodically and diffed against the
    local graph as peers connect and disconnect
 6. A periodic disposal sweep removes DISCONNECTED peer records that have
    exhausted retries and have no connected neighbour still referencing
    them

# Dependencies

  - golang.org/x/crypto - X25519/ChaCha20-Poly1305 boxing primitives
  - github.com/libp2p/go-libp2p - direct-transport host/dial/accept
  - github.com/prometheus/client_golang - metrics (optional adapter)
  - go.opentelemetry.io/otel - tracing (optional adapter)

# See Also

  - DESIGN.md - grounding ledger and open-question decisions
  - SPEC_FULL.md - module-level specification and package layout
*/
package meshkeep

package meshkeep

import (
	"time"

	"github.com/quietmesh/meshkeep/pkg/peer"
)

// ConnectEvent is emitted on onConnect: a peer has just reached CONNECTED
// for the first time (or again, after having dropped back to
// DISCONNECTED).
type ConnectEvent struct {
	Peer      *peer.Peer
	Timestamp time.Time
}

// DisconnectEvent is emitted on onDisconnect: a peer has lost its last
// live connection and returned to DISCONNECTED.
type DisconnectEvent struct {
	Peer      *peer.Peer
	Err       error
	Timestamp time.Time
}

// MessageEvent is emitted on onMessage: an overlay-control frame that
// wasn't one of the handled control types (identity, peerList,
// signalRequest, signal, disconnecting) arrived from a CONNECTED peer and
// is surfaced to the application unmodified.
type MessageEvent struct {
	Peer      *peer.Peer
	Message   []byte
	Timestamp time.Time
}

// KnownPeersChangedEvent is emitted on onKnownPeersChanged: the given
// peer's gossiped neighbour set changed.
type KnownPeersChangedEvent struct {
	Peer      *peer.Peer
	Timestamp time.Time
}

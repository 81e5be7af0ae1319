// Package peer implements the per-remote-identity record: the ≤1
// connection per transport slot, the per-transport retry state, the
// known-peer gossip edges, and the small event bus a Peer Manager
// subscribes to. A Peer never looks up another Peer directly — knownPeers
// holds identities only, so the owning registry (the Peer Manager) stays
// the single source of truth and no reference cycles exist.
package peer

import (
	"fmt"
	"time"

	"github.com/quietmesh/meshkeep/pkg/connection"
	"github.com/quietmesh/meshkeep/pkg/identity"
	"github.com/quietmesh/meshkeep/pkg/retry"
	"github.com/quietmesh/meshkeep/pkg/wire"
)

// eventBuffer bounds the Peer's event channels. Like connection.Connection,
// Peer is only ever mutated from the Peer Manager's single event loop, so a
// small buffer is enough to guarantee a mutation never blocks on a slow
// subscriber.
const eventBuffer = 8

// DisconnectWindow records a disconnect notice's reason and expiry. A zero
// Until means no active window.
type DisconnectWindow struct {
	Reason wire.DisconnectReason
	Until  time.Time
}

// Active reports whether the window has not yet expired.
func (w DisconnectWindow) Active(now time.Time) bool {
	return !w.Until.IsZero() && now.Before(w.Until)
}

// Peer aggregates everything known about one remote node: at most one
// connection per transport, its retry state per transport, the neighbours
// it has gossiped to us, and the metadata learned from its identity
// message. It carries no lock; every method is called from the Peer
// Manager's single event loop.
type Peer struct {
	id      identity.Identity
	hasID   bool
	name    string
	address string
	port    uint16
	version identity.Version

	isWorker      bool
	isWhitelisted bool

	localDisconnect DisconnectWindow
	peerDisconnect  DisconnectWindow

	knownPeers map[identity.Identity]struct{}

	retryDirect   *retry.State
	retryAssisted *retry.State

	direct   *connection.Connection
	assisted *connection.Connection

	stateCh      chan State
	knownPeersCh chan struct{}
	disposed     bool
}

// New creates a Peer with no identity yet and an empty known-peer set. The
// address/port are set separately via SetAddress once known (outbound
// dials know it immediately; inbound sessions learn it from the identity
// handshake).
func New() *Peer {
	return &Peer{
		knownPeers:    make(map[identity.Identity]struct{}),
		retryDirect:   retry.NewState(),
		retryAssisted: retry.NewState(),
		stateCh:       make(chan State, eventBuffer),
		knownPeersCh:  make(chan struct{}, eventBuffer),
	}
}

// Identity returns the peer's identity and whether it has been learned
// yet. Per I1, a peer has no identity only while DISCONNECTED and never
// having completed a handshake.
func (p *Peer) Identity() (identity.Identity, bool) {
	return p.id, p.hasID
}

// SetIdentity records the peer's now-authenticated identity. Once set it
// never changes for the lifetime of this record; a remote that reconnects
// under a different identity is a different Peer, merged by the Peer
// Manager rather than mutated in place.
func (p *Peer) SetIdentity(id identity.Identity) {
	p.id = id
	p.hasID = true
}

func (p *Peer) Name() string       { return p.name }
func (p *Peer) SetName(n string)   { p.name = n }
func (p *Peer) Address() string    { return p.address }
func (p *Peer) Port() uint16       { return p.port }
func (p *Peer) Version() identity.Version { return p.version }

// SetAddress records the address/port used to dial this peer via the
// direct transport (or learned from its identity message).
func (p *Peer) SetAddress(address string, port uint16) {
	p.address = address
	p.port = port
}

func (p *Peer) SetVersion(v identity.Version) { p.version = v }

func (p *Peer) IsWorker() bool        { return p.isWorker }
func (p *Peer) SetIsWorker(w bool)    { p.isWorker = w }
func (p *Peer) IsWhitelisted() bool   { return p.isWhitelisted }
func (p *Peer) SetIsWhitelisted(w bool) { p.isWhitelisted = w }

// LocalDisconnect returns the local-requested-disconnect window, set by
// disconnect() calls against this peer.
func (p *Peer) LocalDisconnect() DisconnectWindow { return p.localDisconnect }

// SetLocalDisconnect installs a local-requested-disconnect window.
func (p *Peer) SetLocalDisconnect(w DisconnectWindow) { p.localDisconnect = w }

// PeerDisconnect returns the remote-requested-disconnect window, set on
// receipt of a Disconnecting notice destined to us.
func (p *Peer) PeerDisconnect() DisconnectWindow { return p.peerDisconnect }

// SetPeerDisconnect installs a remote-requested-disconnect window.
func (p *Peer) SetPeerDisconnect(w DisconnectWindow) { p.peerDisconnect = w }

// RetryState returns the retry state for the given transport kind. Retry
// state only ever governs outbound dials, so there is one slot per
// transport rather than per (transport, direction).
func (p *Peer) RetryState(kind connection.Kind) *retry.State {
	if kind == connection.Assisted {
		return p.retryAssisted
	}
	return p.retryDirect
}

// Connection returns the installed connection for kind, or nil if that
// slot is empty.
func (p *Peer) Connection(kind connection.Kind) *connection.Connection {
	if kind == connection.Assisted {
		return p.assisted
	}
	return p.direct
}

// Connections returns every non-nil connection slot, direct first.
func (p *Peer) Connections() []*connection.Connection {
	var cs []*connection.Connection
	if p.direct != nil {
		cs = append(cs, p.direct)
	}
	if p.assisted != nil {
		cs = append(cs, p.assisted)
	}
	return cs
}

// SetDirectConnection installs c in the direct slot, closing whatever
// connection previously occupied it (per I3, a slot holds at most one
// connection; the caller must close or transfer, never overwrite, the
// previous occupant). Passing nil closes the previous occupant and leaves
// the slot empty; ClearConnection detaches a connection without closing
// it.
func (p *Peer) SetDirectConnection(c *connection.Connection) {
	if p.direct != nil && p.direct != c {
		_ = p.direct.Close()
	}
	p.direct = c
	p.publishState()
}

// SetAssistedConnection installs c in the assisted slot under the same
// rule as SetDirectConnection.
func (p *Peer) SetAssistedConnection(c *connection.Connection) {
	if p.assisted != nil && p.assisted != c {
		_ = p.assisted.Close()
	}
	p.assisted = c
	p.publishState()
}

// ClearConnection detaches (without closing) whichever slot currently
// holds c. Used by the Peer Manager when transferring a live connection
// from a superseded record onto the surviving one during an identity
// merge.
func (p *Peer) ClearConnection(c *connection.Connection) {
	if p.direct == c {
		p.direct = nil
	}
	if p.assisted == c {
		p.assisted = nil
	}
	p.publishState()
}

// NotifyStateChanged re-derives and republishes the peer's state. Call
// after a connection owned by this peer transitions, since Peer does not
// itself subscribe to Connection.StateChanges() — the Peer Manager's event
// loop does, and relays here.
func (p *Peer) NotifyStateChanged() {
	p.publishState()
}

// State computes the peer-level state as the monotonic join of its
// connections' states: CONNECTED dominates CONNECTING dominates
// DISCONNECTED.
func (p *Peer) State() State {
	var connectedDirect, connectedAssisted, anyLive bool
	if p.direct != nil {
		anyLive = true
		connectedDirect = p.direct.State().Tag == connection.Connected
	}
	if p.assisted != nil {
		anyLive = true
		connectedAssisted = p.assisted.State().Tag == connection.Connected
	}

	switch {
	case connectedDirect || connectedAssisted:
		return State{Tag: ConnectedTag, Identity: p.id, Direct: connectedDirect, Assisted: connectedAssisted}
	case anyLive:
		return State{Tag: Connecting}
	default:
		return State{Tag: Disconnected}
	}
}

func (p *Peer) publishState() {
	select {
	case p.stateCh <- p.State():
	default:
	}
}

// StateChanges yields the peer's derived state every time it is
// recomputed.
func (p *Peer) StateChanges() <-chan State {
	return p.stateCh
}

// KnownPeersChanged fires once per batch of knownPeers mutations that were
// not suppressed.
func (p *Peer) KnownPeersChanged() <-chan struct{} {
	return p.knownPeersCh
}

// KnownPeers returns a snapshot of the neighbour identities this peer has
// gossiped to us.
func (p *Peer) KnownPeers() []identity.Identity {
	out := make([]identity.Identity, 0, len(p.knownPeers))
	for id := range p.knownPeers {
		out = append(out, id)
	}
	return out
}

// HasKnownPeer reports whether id is a recorded neighbour edge.
func (p *Peer) HasKnownPeer(id identity.Identity) bool {
	_, ok := p.knownPeers[id]
	return ok
}

// AddKnownPeer records a neighbour edge. Idempotent: adding an
// already-present edge is a no-op and does not fire the event, even
// unsuppressed. suppressEvent skips the onKnownPeersChanged emission, for
// bulk gossip merges that emit once at the end instead.
func (p *Peer) AddKnownPeer(id identity.Identity, suppressEvent bool) {
	if _, ok := p.knownPeers[id]; ok {
		return
	}
	p.knownPeers[id] = struct{}{}
	if !suppressEvent {
		p.publishKnownPeersChanged()
	}
}

// RemoveKnownPeer deletes a neighbour edge. Idempotent: removing an absent
// edge is a no-op.
func (p *Peer) RemoveKnownPeer(id identity.Identity, suppressEvent bool) {
	if _, ok := p.knownPeers[id]; !ok {
		return
	}
	delete(p.knownPeers, id)
	if !suppressEvent {
		p.publishKnownPeersChanged()
	}
}

// EmitKnownPeersChanged fires the event once, for callers that made a
// batch of suppressed AddKnownPeer/RemoveKnownPeer calls and now want a
// single notification.
func (p *Peer) EmitKnownPeersChanged() {
	p.publishKnownPeersChanged()
}

func (p *Peer) publishKnownPeersChanged() {
	select {
	case p.knownPeersCh <- struct{}{}:
	default:
	}
}

// Close closes every live connection. err is informational only; the
// connections themselves already know why they're closing by the time
// Close is called (the caller decides the reason and has likely already
// sent a Disconnecting notice over any connection still able to transmit).
func (p *Peer) Close(err error) {
	for _, c := range p.Connections() {
		_ = c.Close()
	}
}

// Disposable reports whether this peer satisfies the three disposal
// conditions: DISCONNECTED, no CONNECTED neighbour edge among
// connectedNeighbour (supplied by the caller, since Peer does not resolve
// identities to other Peers itself), and its primary-transport retry
// permanently retired.
func (p *Peer) Disposable(hasConnectedNeighbour bool) bool {
	if p.State().Tag != Disconnected {
		return false
	}
	if hasConnectedNeighbour {
		return false
	}
	return p.retryDirect.NeverRetry() && p.retryAssisted.NeverRetry()
}

// Dispose clears all neighbour edges and releases the peer's event
// subscriptions. After Dispose, the record must not appear in any
// registry — the Peer Manager is responsible for removing it from its own
// maps; Dispose only tears down state owned by the Peer itself.
func (p *Peer) Dispose() {
	if p.disposed {
		return
	}
	p.disposed = true
	p.knownPeers = make(map[identity.Identity]struct{})
	close(p.stateCh)
	close(p.knownPeersCh)
}

// DisplayName is the stable human label used only in diagnostics:
// name@identity[0..7] once identified, else address:port.
func (p *Peer) DisplayName() string {
	if p.hasID {
		short := p.id.String()
		if len(short) > 8 {
			short = short[:8]
		}
		if p.name != "" {
			return fmt.Sprintf("%s@%s", p.name, short)
		}
		return short
	}
	if p.address != "" {
		return fmt.Sprintf("%s:%d", p.address, p.port)
	}
	return "unidentified"
}

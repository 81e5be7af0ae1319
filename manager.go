package meshkeep

import (
	"fmt"
	"sync"
	"time"

	"github.com/quietmesh/meshkeep/pkg/addressbook"
	"github.com/quietmesh/meshkeep/pkg/identity"
	"github.com/quietmesh/meshkeep/pkg/localpeer"
	"github.com/quietmesh/meshkeep/pkg/peer"
	"github.com/quietmesh/meshkeep/pkg/wire"
)

// Manager is the Peer Manager: it orchestrates peer records, connection
// objects, and retry policy into a live mesh. Every mutation to the peer
// registry happens on a single logical event loop (a goroutine draining
// loopCh) — the manager issues no explicit locks over peer state and
// relies on that discipline for every invariant in this package.
type Manager struct {
	cfg   *Config
	local *localpeer.LocalPeer
	book  *addressbook.Book // optional; nil disables persistence of peer metadata

	loopCh chan func()

	peers             []*peer.Peer
	identified        map[identity.Identity]*peer.Peer
	connectedSnapshot map[*peer.Peer]bool

	connectEvents      chan ConnectEvent
	disconnectEvents   chan DisconnectEvent
	messageEvents      chan MessageEvent
	connectedChangedCh chan struct{}
	knownChangedEvents chan KnownPeersChangedEvent

	startMu sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a Manager around local. book may be nil: when present, it is
// only read, by ReadinessChecks and DumpState; the Manager does not seed
// peers from it and does not write addresses, names or last-seen times to
// it.
func New(cfg *Config, local *localpeer.LocalPeer, book *addressbook.Book) (*Manager, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if local == nil {
		return nil, NewError(FatalErrorKind, "manager: local peer is required")
	}
	m := &Manager{
		cfg:                cfg,
		local:              local,
		book:               book,
		loopCh:             make(chan func(), 64),
		identified:         make(map[identity.Identity]*peer.Peer),
		connectedSnapshot:  make(map[*peer.Peer]bool),
		connectEvents:      make(chan ConnectEvent, cfg.EventBufferSize),
		disconnectEvents:   make(chan DisconnectEvent, cfg.EventBufferSize),
		messageEvents:      make(chan MessageEvent, cfg.EventBufferSize),
		connectedChangedCh: make(chan struct{}, cfg.EventBufferSize),
		knownChangedEvents: make(chan KnownPeersChangedEvent, cfg.EventBufferSize),
	}
	return m, nil
}

// Start launches the event loop, the inbound accept pump, and the two
// periodic tasks. Calling Start twice without an intervening Stop returns
// ErrAlreadyStarted.
func (m *Manager) Start() error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.stopCh = make(chan struct{})

	m.wg.Add(1)
	go m.loop()

	m.wg.Add(1)
	go m.acceptPump()

	m.wg.Add(1)
	go m.periodicTask(m.cfg.BroadcastInterval(), m.broadcastPeerList)

	m.wg.Add(1)
	go m.periodicTask(m.cfg.DisposeInterval(), m.disposeSweep)

	m.cfg.Logger.Info("peer manager started", "identity", m.local.Identity.String())
	return nil
}

// Stop disconnects every known peer with ShuttingDown, cancels the
// periodic tasks exactly once, and shuts down the event loop. Calling Stop
// when not started is a no-op.
func (m *Manager) Stop() {
	m.startMu.Lock()
	if !m.started {
		m.startMu.Unlock()
		return
	}
	m.started = false
	stopCh := m.stopCh
	m.startMu.Unlock()

	m.submitWait(func() {
		for _, p := range m.peers {
			m.disconnectLocked(p, wire.ReasonShuttingDown, time.Time{})
		}
	})

	close(stopCh)
	close(m.loopCh)
	m.wg.Wait()
	m.cfg.Logger.Info("peer manager stopped")
}

// loop is the single logical event loop: every closure submitted via
// submit/submitWait runs here, serialized, so no two closures ever touch
// peer state concurrently.
func (m *Manager) loop() {
	defer m.wg.Done()
	for fn := range m.loopCh {
		fn()
	}
}

// submit enqueues fn to run on the event loop without waiting for it to
// complete.
func (m *Manager) submit(fn func()) {
	defer func() { recover() }() // loopCh may already be closed during shutdown races
	m.loopCh <- fn
}

// submitWait enqueues fn and blocks until it has run.
func (m *Manager) submitWait(fn func()) {
	done := make(chan struct{})
	m.submit(func() {
		fn()
		close(done)
	})
	<-done
}

// periodicTask runs fn on the event loop every interval until Stop.
func (m *Manager) periodicTask(interval time.Duration, fn func()) {
	defer m.wg.Done()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	stopCh := m.stopCh
	for {
		select {
		case <-ticker.C:
			m.submit(fn)
		case <-stopCh:
			return
		}
	}
}

// acceptPump forwards inbound direct sessions from the local transport
// factory onto the event loop.
func (m *Manager) acceptPump() {
	defer m.wg.Done()
	accept := m.local.DirectFactory.Accept()
	stopCh := m.stopCh
	for {
		select {
		case h, ok := <-accept:
			if !ok {
				return
			}
			m.submit(func() {
				m.acceptInboundDirectLocked(h, "")
			})
		case <-stopCh:
			return
		}
	}
}

// Connects yields a ConnectEvent each time a peer reaches CONNECTED.
func (m *Manager) Connects() <-chan ConnectEvent { return m.connectEvents }

// Disconnects yields a DisconnectEvent each time a peer returns to
// DISCONNECTED.
func (m *Manager) Disconnects() <-chan DisconnectEvent { return m.disconnectEvents }

// Messages yields application traffic surfaced from CONNECTED peers.
func (m *Manager) Messages() <-chan MessageEvent { return m.messageEvents }

// ConnectedPeersChanged fires whenever the set of CONNECTED peers changes.
func (m *Manager) ConnectedPeersChanged() <-chan struct{} { return m.connectedChangedCh }

// KnownPeersChanged fires whenever a peer's gossiped neighbour set
// changes.
func (m *Manager) KnownPeersChanged() <-chan KnownPeersChangedEvent { return m.knownChangedEvents }

func (m *Manager) emitConnect(p *peer.Peer) {
	select {
	case m.connectEvents <- ConnectEvent{Peer: p, Timestamp: time.Now()}:
	default:
		m.cfg.Metrics.EventDropped()
	}
	m.emitConnectedPeersChanged()
}

func (m *Manager) emitDisconnect(p *peer.Peer, err error) {
	select {
	case m.disconnectEvents <- DisconnectEvent{Peer: p, Err: err, Timestamp: time.Now()}:
	default:
		m.cfg.Metrics.EventDropped()
	}
	m.emitConnectedPeersChanged()
}

func (m *Manager) emitMessage(p *peer.Peer, payload []byte) {
	select {
	case m.messageEvents <- MessageEvent{Peer: p, Message: payload, Timestamp: time.Now()}:
	default:
		m.cfg.Metrics.EventDropped()
	}
}

func (m *Manager) emitConnectedPeersChanged() {
	select {
	case m.connectedChangedCh <- struct{}{}:
	default:
	}
	m.cfg.Metrics.ConnectedPeers(len(m.connectedPeersLocked()))
}

func (m *Manager) emitKnownPeersChanged(p *peer.Peer) {
	select {
	case m.knownChangedEvents <- KnownPeersChangedEvent{Peer: p, Timestamp: time.Now()}:
	default:
		m.cfg.Metrics.EventDropped()
	}
	m.cfg.Metrics.KnownPeersChanged()
}

// --- registry helpers (event-loop-only; never called concurrently) ---

// newPeerLocked creates and registers a fresh, not-yet-identified peer
// record in the flat registry.
func (m *Manager) newPeerLocked() *peer.Peer {
	p := peer.New()
	m.peers = append(m.peers, p)
	return p
}

// lookupIdentifiedLocked returns the authoritative record for id, if any.
func (m *Manager) lookupIdentifiedLocked(id identity.Identity) (*peer.Peer, bool) {
	p, ok := m.identified[id]
	return p, ok
}

// peerByIdentityOrCreateLocked looks up id in identifiedPeers, creating a
// fresh record (not yet inserted into identifiedPeers, since that only
// happens once a connection actually reaches CONNECTED) if none exists.
func (m *Manager) peerByIdentityOrCreateLocked(id identity.Identity) *peer.Peer {
	if p, ok := m.identified[id]; ok {
		return p
	}
	p := m.newPeerLocked()
	p.SetIdentity(id)
	return p
}

// connectedPeersLocked returns every peer currently in the CONNECTED
// state.
func (m *Manager) connectedPeersLocked() []*peer.Peer {
	var out []*peer.Peer
	for _, p := range m.peers {
		if p.State().Tag == peer.ConnectedTag {
			out = append(out, p)
		}
	}
	return out
}

// removePeerLocked drops p from the flat registry and, if present, from
// identifiedPeers.
func (m *Manager) removePeerLocked(p *peer.Peer) {
	for i, q := range m.peers {
		if q == p {
			m.peers = append(m.peers[:i], m.peers[i+1:]...)
			break
		}
	}
	if id, ok := p.Identity(); ok {
		if m.identified[id] == p {
			delete(m.identified, id)
		}
	}
}

func (m *Manager) String() string {
	return fmt.Sprintf("meshkeep.Manager{identity=%s, peers=%d}", m.local.Identity, len(m.peers))
}

package meshkeep

import "github.com/quietmesh/meshkeep/pkg/peer"

// disposeSweep is the periodic task that removes peer records which have
// gone quiet for good: DISCONNECTED, with no connected neighbour still
// advertising them, and no transport left willing to retry.
func (m *Manager) disposeSweep() {
	// Copy first: attemptDisposeLocked mutates m.peers.
	candidates := make([]*peer.Peer, len(m.peers))
	copy(candidates, m.peers)
	for _, p := range candidates {
		m.attemptDisposeLocked(p)
	}
}

// hasConnectedNeighbourLocked reports whether any of p's gossiped
// neighbours is itself currently CONNECTED to us.
func (m *Manager) hasConnectedNeighbourLocked(p *peer.Peer) bool {
	for _, id := range p.KnownPeers() {
		if neighbour, ok := m.lookupIdentifiedLocked(id); ok && neighbour.State().Tag == peer.ConnectedTag {
			return true
		}
	}
	return false
}

// attemptDisposeLocked removes p from the registry if it is eligible per
// Peer.Disposable, releasing it for garbage collection.
func (m *Manager) attemptDisposeLocked(p *peer.Peer) {
	if !p.Disposable(m.hasConnectedNeighbourLocked(p)) {
		return
	}
	p.Dispose()
	m.removePeerLocked(p)
	m.cfg.Metrics.PeerDisposed()
}

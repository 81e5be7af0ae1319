package meshkeep

import (
	"github.com/quietmesh/meshkeep/pkg/connection"
	"github.com/quietmesh/meshkeep/pkg/identity"
	"github.com/quietmesh/meshkeep/pkg/peer"
	"github.com/quietmesh/meshkeep/pkg/wire"
)

// handlePeerList applies a gossiped known-peer snapshot from p: edges
// present in the frame but missing from p.KnownPeers() are added, edges
// present in p.KnownPeers() but missing from the frame are removed. A
// worker node ignores peer lists entirely, since it never participates in
// the gossip graph.
func (m *Manager) handlePeerList(p *peer.Peer, c *connection.Connection, env wire.Envelope) {
	if p.State().Tag != peer.ConnectedTag {
		return
	}
	if m.cfg.IsWorker {
		return
	}

	var list wire.PeerList
	if err := env.DecodePayload(&list); err != nil {
		m.failConnection(p, c, m.peerError(ProtocolError, "malformed peerList payload", p))
		return
	}

	selfID := m.local.Identity
	advertised := make(map[identity.Identity]wire.PeerListEntry, len(list.ConnectedPeers))
	for _, entry := range list.ConnectedPeers {
		id, err := identity.ParseIdentity(entry.Identity)
		if err != nil || id == selfID {
			continue
		}
		advertised[id] = entry
	}

	changed := false

	for _, id := range p.KnownPeers() {
		if _, ok := advertised[id]; ok {
			continue
		}
		p.RemoveKnownPeer(id, true)
		changed = true
		if neighbour, ok := m.lookupIdentifiedLocked(id); ok {
			neighbour.RemoveKnownPeer(mustIdentity(p), true)
			m.attemptDisposeLocked(neighbour)
		}
	}

	for id, entry := range advertised {
		if !p.HasKnownPeer(id) {
			p.AddKnownPeer(id, true)
			changed = true
		}
		neighbour := m.peerByIdentityOrCreateLocked(id)
		if entry.Address != nil && *entry.Address != "" && neighbour.Address() == "" {
			port := uint16(0)
			if entry.Port != nil {
				port = *entry.Port
			}
			neighbour.SetAddress(*entry.Address, port)
		}
		if entry.Name != "" && neighbour.Name() == "" {
			neighbour.SetName(entry.Name)
		}
		if pid, ok := p.Identity(); ok && !neighbour.HasKnownPeer(pid) {
			neighbour.AddKnownPeer(pid, true)
		}
	}

	if changed {
		p.EmitKnownPeersChanged()
		m.emitKnownPeersChanged(p)
	}
}

// mustIdentity returns p's identity, or the zero identity if it somehow
// has none yet (only reachable for already-CONNECTED peers, which always
// have one).
func mustIdentity(p *peer.Peer) identity.Identity {
	id, _ := p.Identity()
	return id
}

// broadcastPeerList is the periodic task that sends every CONNECTED peer
// the current known-peer snapshot (every other CONNECTED peer, minus
// workers unless configured to include them).
func (m *Manager) broadcastPeerList() {
	connected := m.connectedPeersLocked()
	if len(connected) == 0 {
		return
	}

	full := make([]wire.PeerListEntry, 0, len(connected))
	for _, p := range connected {
		if p.IsWorker() && !m.cfg.BroadcastWorkers {
			continue
		}
		id, ok := p.Identity()
		if !ok {
			continue
		}
		entry := wire.PeerListEntry{Identity: id.String(), Name: p.Name()}
		if addr := p.Address(); addr != "" {
			entry.Address = &addr
			port := p.Port()
			entry.Port = &port
		}
		full = append(full, entry)
	}

	sent := 0
	for _, p := range connected {
		selfID, ok := p.Identity()
		if !ok {
			continue
		}
		entries := make([]wire.PeerListEntry, 0, len(full))
		for _, e := range full {
			if e.Identity != selfID.String() {
				entries = append(entries, e)
			}
		}
		frame, err := wire.Encode(wire.TypePeerList, wire.PeerList{ConnectedPeers: entries})
		if err != nil {
			continue
		}
		if m.sendToPeerLocked(p, frame) {
			sent++
		}
	}
	m.cfg.Metrics.PeerListBroadcast(sent)
}

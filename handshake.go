package meshkeep

import (
	"time"

	"github.com/quietmesh/meshkeep/pkg/connection"
	"github.com/quietmesh/meshkeep/pkg/identity"
	"github.com/quietmesh/meshkeep/pkg/peer"
	"github.com/quietmesh/meshkeep/pkg/wire"
)

// handleHandshakeFrame runs the ten-step handshake branch against the
// first message received on a WAITING_FOR_IDENTITY connection.
func (m *Manager) handleHandshakeFrame(p *peer.Peer, c *connection.Connection, env wire.Envelope) {
	if env.Type != wire.TypeIdentity {
		m.failConnection(p, c, m.peerError(ProtocolError, "non-identity frame while awaiting handshake", p))
		return
	}

	var frame wire.Identity
	if err := env.DecodePayload(&frame); err != nil {
		m.failConnection(p, c, m.peerError(ProtocolError, "malformed identity payload", p))
		return
	}

	// 1. Validate identity format.
	remoteID, err := identity.ParseIdentity(frame.Identity)
	if err != nil {
		m.failConnection(p, c, m.peerError(ProtocolError, "invalid identity encoding", p))
		return
	}

	// 2. Version compatibility.
	remoteVersion := identity.Version{ProtocolVersion: frame.Version}
	if !m.local.Version.Compatible(remoteVersion) {
		m.failConnection(p, c, m.peerError(ProtocolError, "incompatible protocol version", p))
		return
	}

	// 3. Name length.
	if err := ValidateName(frame.Name, m.cfg.NameMaxLen); err != nil {
		m.failConnection(p, c, m.peerError(ProtocolError, err.Error(), p))
		return
	}

	// 4. Self-dial.
	if remoteID == m.local.Identity {
		p.SetAddress("", 0)
		p.RetryState(connection.Direct).NeverRetryConnecting()
		p.RetryState(connection.Assisted).NeverRetryConnecting()
		p.ClearConnection(c)
		_ = c.Close()
		m.cfg.Logger.Warn("closing connection from our own identity", "transport", c.Kind())
		m.attemptDisposeLocked(p)
		return
	}

	originalPeer := p
	targetPeer, detached := m.resolveHandshakeTargetLocked(originalPeer, c, remoteID)
	if targetPeer != originalPeer {
		m.attemptDisposeLocked(originalPeer)
	}

	// 6. Duplicate-connection arbitration against whichever connection of
	// this transport class is already CONNECTED on targetPeer.
	if existing := targetPeer.Connection(c.Kind()); existing != nil && existing != c && existing.State().Tag == connection.Connected {
		existingLegit := identity.CanKeepDuplicate(m.local.Identity, remoteID, existing.Direction() == connection.Outbound)
		newLegit := identity.CanKeepDuplicate(m.local.Identity, remoteID, c.Direction() == connection.Outbound)
		incumbentWins := existingLegit || !newLegit
		if incumbentWins {
			if !detached {
				originalPeer.ClearConnection(c)
			}
			_ = c.Close()
			m.cfg.Logger.Debug("duplicate connection superseded, incumbent wins", "peer", targetPeer.DisplayName())
			return
		}
		_ = existing.Close()
		targetPeer.ClearConnection(existing)
	}

	// Install the connection in its slot.
	if c.Kind() == connection.Direct {
		targetPeer.SetDirectConnection(c)
	} else {
		targetPeer.SetAssistedConnection(c)
	}
	targetPeer.SetIdentity(remoteID)

	// 7. Inbound direct sessions don't know the peer's listening port
	// until now.
	if c.Kind() == connection.Direct && c.Direction() == connection.Inbound && frame.Port != nil {
		targetPeer.SetAddress(targetPeer.Address(), *frame.Port)
	}

	// 8. Populate name, version, isWorker.
	targetPeer.SetName(frame.Name)
	targetPeer.SetVersion(remoteVersion)
	targetPeer.SetIsWorker(frame.IsWorker)

	// 9. Honor a still-active local-requested-disconnect window.
	if w := targetPeer.LocalDisconnect(); w.Active(time.Now()) {
		dest := remoteID.String()
		if fr, err := wire.Encode(wire.TypeDisconnecting, wire.Disconnecting{
			SourceIdentity:      m.local.Identity.String(),
			DestinationIdentity: &dest,
			Reason:              w.Reason,
			DisconnectUntil:     w.Until.UnixMilli(),
		}); err == nil {
			_ = c.Send(fr)
		}
		_ = c.Close()
		targetPeer.ClearConnection(c)
		return
	}

	// 10. Transition to CONNECTED.
	if err := c.SetState(connection.State{Tag: connection.Connected, Identity: remoteID}); err != nil {
		panic(err)
	}
	targetPeer.RetryState(c.Kind()).RecordSuccess()
	m.cfg.Metrics.HandshakeResult("success")

	merged := m.identifyAndMergeLocked(targetPeer, remoteID, c)
	merged.NotifyStateChanged()
	m.reconcileConnectedness(merged, nil)
}

// resolveHandshakeTargetLocked decides which peer record should own c once
// its handshake completes: either originalPeer itself (the common case),
// the incumbent already holding remoteID in identifiedPeers (a merge), or
// a freshly-created record when originalPeer turns out to have
// misrepresented its own identity and no incumbent exists yet. The bool
// result reports whether c has already been detached from originalPeer's
// slot by this call.
func (m *Manager) resolveHandshakeTargetLocked(originalPeer *peer.Peer, c *connection.Connection, remoteID identity.Identity) (*peer.Peer, bool) {
	if existingID, hasID := originalPeer.Identity(); hasID && existingID != remoteID {
		var addr string
		var port uint16
		if c.Kind() == connection.Direct && c.Direction() == connection.Outbound {
			addr, port = originalPeer.Address(), originalPeer.Port()
		}
		originalPeer.ClearConnection(c)
		originalPeer.RetryState(connection.Direct).NeverRetryConnecting()
		originalPeer.RetryState(connection.Assisted).NeverRetryConnecting()

		if incumbent, ok := m.lookupIdentifiedLocked(remoteID); ok {
			if addr != "" {
				incumbent.SetAddress(addr, port)
			}
			return incumbent, true
		}
		fresh := m.newPeerLocked()
		fresh.SetIdentity(remoteID)
		if addr != "" {
			fresh.SetAddress(addr, port)
		}
		return fresh, true
	}

	if incumbent, ok := m.lookupIdentifiedLocked(remoteID); ok && incumbent != originalPeer {
		originalPeer.ClearConnection(c)
		originalPeer.RetryState(connection.Direct).NeverRetryConnecting()
		originalPeer.RetryState(connection.Assisted).NeverRetryConnecting()
		return incumbent, true
	}

	return originalPeer, false
}

// identifyAndMergeLocked implements "identifying and merging": if another
// peer record already occupies remoteID, c is transferred onto that
// incumbent (closing whatever it already held in that slot), candidate is
// retired with neverRetry on both transports and disposed, and the
// incumbent's object identity is preserved for outside holders (I2).
// Otherwise candidate itself becomes the authoritative record for
// remoteID.
func (m *Manager) identifyAndMergeLocked(candidate *peer.Peer, remoteID identity.Identity, c *connection.Connection) *peer.Peer {
	incumbent, ok := m.identified[remoteID]
	if !ok || incumbent == candidate {
		m.identified[remoteID] = candidate
		return candidate
	}

	candidate.ClearConnection(c)
	if existing := incumbent.Connection(c.Kind()); existing != nil && existing != c {
		_ = existing.Close()
		incumbent.ClearConnection(existing)
	}
	if c.Kind() == connection.Direct {
		incumbent.SetDirectConnection(c)
	} else {
		incumbent.SetAssistedConnection(c)
	}

	candidate.RetryState(connection.Direct).NeverRetryConnecting()
	candidate.RetryState(connection.Assisted).NeverRetryConnecting()
	m.attemptDisposeLocked(candidate)
	return incumbent
}

package meshkeep

import (
	"time"

	"github.com/quietmesh/meshkeep/pkg/connection"
	"github.com/quietmesh/meshkeep/pkg/identity"
	"github.com/quietmesh/meshkeep/pkg/peer"
	"github.com/quietmesh/meshkeep/pkg/wire"
)

// handleMessage is the overlay-control message dispatch switch run for
// every decoded frame arriving on a live connection.
func (m *Manager) handleMessage(p *peer.Peer, c *connection.Connection, env wire.Envelope) {
	if c.State().Tag == connection.WaitingForIdentity {
		m.handleHandshakeFrame(p, c, env)
		return
	}

	switch env.Type {
	case wire.TypeDisconnecting:
		m.handleDisconnecting(p, c, env)
	case wire.TypeIdentity:
		// Already identified: a second Identify frame is defensive-close
		// territory, not a protocol upgrade path.
		m.cfg.Logger.Warn("identity frame from already-identified peer, closing", "peer", p.DisplayName())
		m.failConnection(p, c, m.peerError(ProtocolError, "unexpected identity frame after handshake", p))
	case wire.TypeSignalRequest:
		m.handleSignalRequest(p, c, env)
	case wire.TypeSignal:
		m.handleSignal(p, c, env)
	case wire.TypePeerList:
		m.handlePeerList(p, c, env)
	default:
		if _, ok := p.Identity(); ok {
			m.emitMessage(p, env.Payload)
		} else {
			m.failConnection(p, c, m.peerError(ProtocolError, "application traffic from unidentified peer", p))
		}
	}
}

// isAddressedToUs reports whether destination names our own identity (nil
// destination on a Disconnecting frame means "broadcast notice", which is
// always addressed to us too).
func (m *Manager) isAddressedToUs(destination *string) bool {
	if destination == nil {
		return true
	}
	return *destination == m.local.Identity.String()
}

// relayTarget resolves the forwarding rules shared by Disconnecting,
// SignalRequest, and Signal: the sender must also be the claimed source,
// and the destination must be a known identified peer.
func (m *Manager) relayTarget(sender *peer.Peer, sourceIdentity, destinationIdentity string) (*peer.Peer, bool) {
	senderID, ok := sender.Identity()
	if !ok || senderID.String() != sourceIdentity {
		m.cfg.Logger.Warn("dropping relay message with spoofed source", "claimed", sourceIdentity, "sender", sender.DisplayName())
		m.cfg.Metrics.SignalDropped("spoofed_source")
		return nil, false
	}
	destID, err := identity.ParseIdentity(destinationIdentity)
	if err != nil {
		m.cfg.Metrics.SignalDropped("unknown_destination")
		return nil, false
	}
	dest, ok := m.lookupIdentifiedLocked(destID)
	if !ok {
		m.cfg.Metrics.SignalDropped("unknown_destination")
		return nil, false
	}
	return dest, true
}

func (m *Manager) handleDisconnecting(p *peer.Peer, c *connection.Connection, env wire.Envelope) {
	var d wire.Disconnecting
	if err := env.DecodePayload(&d); err != nil {
		m.failConnection(p, c, m.peerError(ProtocolError, "malformed disconnecting payload", p))
		return
	}
	if !m.isAddressedToUs(d.DestinationIdentity) {
		dest, ok := m.relayTarget(p, d.SourceIdentity, *d.DestinationIdentity)
		if ok {
			if frame, err := wire.Encode(wire.TypeDisconnecting, d); err == nil {
				m.sendToPeerLocked(dest, frame)
			}
		}
		return
	}
	until := time.UnixMilli(d.DisconnectUntil)
	p.SetPeerDisconnect(peer.DisconnectWindow{Reason: d.Reason, Until: until})
	m.closePeerLocked(p)
}

// congestedLocked reports whether the node is at its connection ceiling,
// per the congestion-rejection boundary scenario: maxPeers connected
// peers, and the candidate isn't one of them already.
func (m *Manager) congestedLocked(candidateAlreadyConnected bool) bool {
	if candidateAlreadyConnected {
		return false
	}
	return len(m.connectedPeersLocked()) >= m.cfg.MaxPeers
}

// congestionWindow returns the fixed 5-minute congestion cooldown as an
// absolute deadline. The teacher-inherited source measured this field
// inconsistently (as a bare duration in one call site); this package
// treats disconnectUntil as "absolute ms since epoch" everywhere, per the
// open question in the design notes.
func congestionWindow(now time.Time) time.Time {
	return now.Add(time.Duration(DefaultCongestionCooldownMs) * time.Millisecond)
}

func (m *Manager) replyCongested(broker *peer.Peer, sourceIdentity string) {
	dest := sourceIdentity
	frame, err := wire.Encode(wire.TypeDisconnecting, wire.Disconnecting{
		SourceIdentity:      m.local.Identity.String(),
		DestinationIdentity: &dest,
		Reason:              wire.ReasonCongested,
		DisconnectUntil:     congestionWindow(time.Now()).UnixMilli(),
	})
	if err != nil {
		return
	}
	m.sendToPeerLocked(broker, frame)
}

func (m *Manager) handleSignalRequest(p *peer.Peer, c *connection.Connection, env wire.Envelope) {
	var req wire.SignalRequest
	if err := env.DecodePayload(&req); err != nil {
		m.failConnection(p, c, m.peerError(ProtocolError, "malformed signalRequest payload", p))
		return
	}
	if !m.isAddressedToUs(&req.DestinationIdentity) {
		dest, ok := m.relayTarget(p, req.SourceIdentity, req.DestinationIdentity)
		if ok {
			if frame, err := wire.Encode(wire.TypeSignalRequest, req); err == nil {
				m.sendToPeerLocked(dest, frame)
			}
		}
		return
	}

	sourceID, err := identity.ParseIdentity(req.SourceIdentity)
	if err != nil {
		return
	}
	if identity.CanInitiate(sourceID, m.local.Identity) {
		// The source should have dialled us directly; a SignalRequest here
		// means it thinks it can't, which isn't ours to second-guess, but
		// per spec this specific direction is dropped.
		return
	}

	target := m.peerByIdentityOrCreateLocked(sourceID)
	if m.congestedLocked(target.State().Tag == peer.ConnectedTag) {
		m.replyCongested(p, req.SourceIdentity)
		return
	}

	if brokerID, ok := p.Identity(); ok {
		target.AddKnownPeer(brokerID, false)
	}
	if target.Connection(connection.Assisted) == nil {
		m.openAssistedAsInitiatorLocked(target, p)
	}
}

func (m *Manager) handleSignal(p *peer.Peer, c *connection.Connection, env wire.Envelope) {
	var sig wire.Signal
	if err := env.DecodePayload(&sig); err != nil {
		m.failConnection(p, c, m.peerError(ProtocolError, "malformed signal payload", p))
		return
	}
	if !m.isAddressedToUs(&sig.DestinationIdentity) {
		dest, ok := m.relayTarget(p, sig.SourceIdentity, sig.DestinationIdentity)
		if ok {
			if frame, err := wire.Encode(wire.TypeSignal, sig); err == nil {
				m.sendToPeerLocked(dest, frame)
			}
		}
		return
	}

	sourceID, err := identity.ParseIdentity(sig.SourceIdentity)
	if err != nil {
		return
	}
	source := m.peerByIdentityOrCreateLocked(sourceID)
	if m.congestedLocked(source.State().Tag == peer.ConnectedTag) {
		m.replyCongested(p, sig.SourceIdentity)
		return
	}
	if source.Connection(connection.Assisted) == nil {
		m.openAssistedAsNonInitiatorLocked(source)
	}

	plaintext, err := m.local.Boxer.UnboxMessage(sig.Signal, sig.Nonce, sourceID)
	if err != nil {
		m.failConnection(p, c, m.peerError(NetworkError, "unbox signal payload failed", p))
		return
	}
	ac := source.Connection(connection.Assisted)
	if ac == nil {
		return
	}
	if err := ac.Signal(plaintext); err != nil {
		m.cfg.Logger.Debug("assisted signal inlet rejected payload", "peer", source.DisplayName(), "error", err)
		return
	}
	if ac.State().Tag == connection.RequestSignaling {
		_ = ac.SetState(connection.State{Tag: connection.Signaling})
	}
}

// openAssistedAsInitiatorLocked opens an assisted connection to target
// with ourselves as initiator, using broker to relay signalling.
func (m *Manager) openAssistedAsInitiatorLocked(target, broker *peer.Peer) {
	handle := m.local.AssistedFactory.Create(true)
	ac := connection.New(connection.Assisted, connection.Outbound, handle)
	target.SetAssistedConnection(ac)
	m.attachConnection(target, ac)
	_ = ac.SetState(connection.State{Tag: connection.Signaling})
}

// openAssistedAsNonInitiatorLocked opens an assisted connection for an
// inbound signalling exchange, as non-initiator.
func (m *Manager) openAssistedAsNonInitiatorLocked(source *peer.Peer) {
	handle := m.local.AssistedFactory.Create(false)
	ac := connection.New(connection.Assisted, connection.Inbound, handle)
	source.SetAssistedConnection(ac)
	m.attachConnection(source, ac)
	_ = ac.SetState(connection.State{Tag: connection.Signaling})
}

// sendSignalRequestLocked sends a SignalRequest for destination to
// broker.
func (m *Manager) sendSignalRequestLocked(broker *peer.Peer, _ identity.Identity, destination identity.Identity) {
	frame, err := wire.Encode(wire.TypeSignalRequest, wire.SignalRequest{
		SourceIdentity:      m.local.Identity.String(),
		DestinationIdentity: destination.String(),
	})
	if err != nil {
		return
	}
	m.sendToPeerLocked(broker, frame)
}

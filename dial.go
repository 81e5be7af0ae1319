package meshkeep

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/quietmesh/meshkeep/pkg/connection"
	"github.com/quietmesh/meshkeep/pkg/identity"
	"github.com/quietmesh/meshkeep/pkg/peer"
	"github.com/quietmesh/meshkeep/pkg/transport"
	"github.com/quietmesh/meshkeep/pkg/wire"
)

// ConnectToAddress parses a "host:port" address, creates a fresh peer
// record for it, marks it for direct-outbound dialling, and dials it.
func (m *Manager) ConnectToAddress(address string) (*peer.Peer, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("meshkeep: parse address %q: %w", address, err)
	}
	port64, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("meshkeep: parse port in %q: %w", address, err)
	}
	port := uint16(port64)

	var result *peer.Peer
	m.submitWait(func() {
		p := m.newPeerLocked()
		p.SetAddress(host, port)
		if m.cfg.IsWhitelistedAddress(host) {
			p.SetIsWhitelisted(true)
		}
		result = p
		m.connectViaDirectLocked(p)
	})
	return result, nil
}

// canDialLocked implements the four-part dial-admission predicate: below
// targetPeers or already non-DISCONNECTED; no active peer-requested
// disconnect window; the relevant transport slot is empty; and retry
// policy allows it. Transport-specific preconditions are checked by the
// caller, since only it knows which slot is being filled.
func (m *Manager) canDialLocked(p *peer.Peer, kind connection.Kind) bool {
	if len(m.connectedPeersLocked()) >= m.cfg.TargetPeers && p.State().Tag == peer.Disconnected {
		return false
	}
	if p.PeerDisconnect().Active(time.Now()) {
		return false
	}
	if p.Connection(kind) != nil {
		return false
	}
	if !p.RetryState(kind).CanConnect(time.Now()) {
		return false
	}
	return true
}

// ConnectViaDirect dials p's configured address over the direct
// transport, subject to canDial. Returns false if admission was refused
// or the peer has no configured address.
func (m *Manager) ConnectViaDirect(p *peer.Peer) bool {
	var ok bool
	m.submitWait(func() { ok = m.connectViaDirectLocked(p) })
	return ok
}

func (m *Manager) connectViaDirectLocked(p *peer.Peer) bool {
	if p.Address() == "" {
		return false
	}
	if !m.canDialLocked(p, connection.Direct) {
		return false
	}
	handle, err := m.local.DirectFactory.Dial(context.Background(), p.Address(), p.Port())
	if err != nil {
		p.RetryState(connection.Direct).RecordFailure(time.Now(), p.IsWhitelisted(), 0)
		m.cfg.Metrics.ConnectionAttempt("direct", "failure")
		m.cfg.Logger.Debug("direct dial failed", "peer", p.DisplayName(), "error", err)
		return false
	}
	m.cfg.Metrics.ConnectionAttempt("direct", "success")
	c := connection.New(connection.Direct, connection.Outbound, handle)
	p.SetDirectConnection(c)
	m.attachConnection(p, c)
	m.beginDirectHandshakeLocked(p, c)
	return true
}

// ConnectViaAssisted opens an assisted session to p using a connected
// broker that also knows p, subject to canDial.
func (m *Manager) ConnectViaAssisted(p *peer.Peer) bool {
	var ok bool
	m.submitWait(func() { ok = m.connectViaAssistedLocked(p) })
	return ok
}

func (m *Manager) connectViaAssistedLocked(p *peer.Peer) bool {
	id, hasID := p.Identity()
	if !hasID {
		return false
	}
	if !m.canDialLocked(p, connection.Assisted) {
		return false
	}
	broker, ok := m.selectBrokerLocked(p)
	if !ok {
		return false
	}
	initiator := identity.CanInitiate(m.local.Identity, id)
	handle := m.local.AssistedFactory.Create(initiator)
	c := connection.New(connection.Assisted, connection.Outbound, handle)
	p.SetAssistedConnection(c)
	m.attachConnection(p, c)

	if initiator {
		_ = c.SetState(connection.State{Tag: connection.Signaling})
	} else {
		_ = c.SetState(connection.State{Tag: connection.RequestSignaling})
		m.sendSignalRequestLocked(broker, m.local.Identity, id)
	}
	return true
}

// selectBrokerLocked picks a CONNECTED peer that also knows p, per the
// broker-selection rule: if we ourselves are already CONNECTED to p, we
// are our own broker (re-signalling); otherwise pick uniformly at random
// among qualifying candidates.
func (m *Manager) selectBrokerLocked(p *peer.Peer) (*peer.Peer, bool) {
	if p.State().Tag == peer.ConnectedTag {
		return p, true
	}
	var candidates []*peer.Peer
	for _, id := range p.KnownPeers() {
		c, ok := m.lookupIdentifiedLocked(id)
		if !ok || c.State().Tag != peer.ConnectedTag {
			continue
		}
		if pid, ok := p.Identity(); ok && c.HasKnownPeer(pid) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// acceptInboundDirectLocked wraps an accepted inbound direct session into
// a fresh peer record.
func (m *Manager) acceptInboundDirectLocked(handle transport.Handle, address string) *peer.Peer {
	p := m.newPeerLocked()
	if address != "" {
		p.SetAddress(address, 0)
	}
	c := connection.New(connection.Direct, connection.Inbound, handle)
	p.SetDirectConnection(c)
	m.attachConnection(p, c)
	m.beginDirectHandshakeLocked(p, c)
	m.cfg.Metrics.ConnectionAttempt("direct", "success")
	return p
}

// beginDirectHandshakeLocked transitions a fresh direct connection into
// WAITING_FOR_IDENTITY and sends our own identity frame.
func (m *Manager) beginDirectHandshakeLocked(p *peer.Peer, c *connection.Connection) {
	if err := c.SetState(connection.State{Tag: connection.WaitingForIdentity}); err != nil {
		panic(err)
	}
	m.sendIdentityFrame(c)
}

// sendIdentityFrame sends our own identity announcement over c.
func (m *Manager) sendIdentityFrame(c *connection.Connection) {
	var port *uint16
	if m.local.ListenPort != 0 {
		lp := m.local.ListenPort
		port = &lp
	}
	frame, err := wire.Encode(wire.TypeIdentity, wire.Identity{
		Identity: m.local.Identity.String(),
		Version:  m.local.Version.ProtocolVersion,
		Port:     port,
		Name:     m.local.Name,
		IsWorker: m.local.IsWorker,
	})
	if err != nil {
		panic(NewErrorWithCause(FatalErrorKind, "encode identity frame", err))
	}
	if err := c.Send(frame); err != nil {
		m.cfg.Logger.Debug("identity frame not admitted yet", "error", err)
	}
}

// Disconnect installs a local-requested-disconnect window on p, notifies
// every live connection that can still transmit, then closes p.
func (m *Manager) Disconnect(p *peer.Peer, reason wire.DisconnectReason, until time.Time) {
	m.submitWait(func() { m.disconnectLocked(p, reason, until) })
}

func (m *Manager) disconnectLocked(p *peer.Peer, reason wire.DisconnectReason, until time.Time) {
	p.SetLocalDisconnect(peer.DisconnectWindow{Reason: reason, Until: until})
	id, _ := p.Identity()
	dest := id.String()
	for _, c := range p.Connections() {
		if c.State().Tag == connection.Connected || c.State().Tag == connection.WaitingForIdentity {
			frame, err := wire.Encode(wire.TypeDisconnecting, wire.Disconnecting{
				SourceIdentity:      m.local.Identity.String(),
				DestinationIdentity: &dest,
				Reason:              reason,
				DisconnectUntil:     until.UnixMilli(),
			})
			if err == nil {
				_ = c.Send(frame)
			}
		}
	}
	m.closePeerLocked(p)
}

// closePeerLocked closes every live connection on p without touching its
// disconnect windows or retry state.
func (m *Manager) closePeerLocked(p *peer.Peer) {
	for _, c := range p.Connections() {
		_ = c.Close()
	}
}

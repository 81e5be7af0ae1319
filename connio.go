package meshkeep

import (
	"time"

	"github.com/quietmesh/meshkeep/pkg/connection"
	"github.com/quietmesh/meshkeep/pkg/peer"
	"github.com/quietmesh/meshkeep/pkg/wire"
)

// pollInterval bounds how quickly the connection pump notices an assisted
// transport finishing its signalling phase. transport.Handle exposes no
// explicit "now paired" event — Messages() simply starts yielding a
// non-nil channel once the underlying handle is ready — so the pump
// re-samples it on this cadence rather than blocking on a nil channel
// forever.
const pollInterval = 20 * time.Millisecond

// attachConnection spawns the goroutine that drains one connection's
// state, message, and signal channels and forwards each as a closure onto
// the single event loop.
func (m *Manager) attachConnection(p *peer.Peer, c *connection.Connection) {
	m.wg.Add(1)
	go m.pumpConnection(p, c)
}

func (m *Manager) pumpConnection(p *peer.Peer, c *connection.Connection) {
	defer m.wg.Done()

	stateCh := c.StateChanges()
	closedCh := c.Closed()
	signalsCh := c.Signals()
	var msgsCh <-chan []byte
	pairedNotified := false

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if msgsCh == nil {
			msgsCh = c.Messages()
			if msgsCh != nil && c.Kind() == connection.Assisted && !pairedNotified {
				pairedNotified = true
				m.submit(func() { m.onAssistedPaired(p, c) })
			}
		}
		select {
		case st, ok := <-stateCh:
			if !ok {
				stateCh = nil
				continue
			}
			s := st
			m.submit(func() { m.onConnectionStateChanged(p, c, s) })

		case frame, ok := <-msgsCh:
			if !ok {
				msgsCh = nil
				continue
			}
			f := frame
			m.submit(func() { m.onConnectionFrame(p, c, f) })

		case sig, ok := <-signalsCh:
			if !ok {
				signalsCh = nil
				continue
			}
			s := sig
			m.submit(func() { m.onConnectionSignalOutbound(p, c, s) })

		case <-closedCh:
			m.submit(func() { m.onConnectionClosed(p, c) })
			return

		case <-ticker.C:
			// re-check msgsCh; see pollInterval doc.
		}
	}
}

// onConnectionStateChanged republishes the peer-level state and reconciles
// manager-level connect/disconnect events against it.
func (m *Manager) onConnectionStateChanged(p *peer.Peer, c *connection.Connection, st connection.State) {
	p.NotifyStateChanged()
	m.reconcileConnectedness(p, nil)
}

// onConnectionFrame decodes one wire envelope from c and dispatches it.
func (m *Manager) onConnectionFrame(p *peer.Peer, c *connection.Connection, frame []byte) {
	env, err := wire.Decode(frame)
	if err != nil {
		m.cfg.Logger.Debug("malformed frame, closing", "peer", p.DisplayName(), "error", err)
		m.failConnection(p, c, m.peerError(ProtocolError, "malformed overlay-control frame", p))
		return
	}
	m.handleMessage(p, c, env)
}

// onConnectionSignalOutbound relays a locally-generated signalling payload
// to the remote peer via a broker as a Signal message.
func (m *Manager) onConnectionSignalOutbound(p *peer.Peer, c *connection.Connection, payload []byte) {
	id, ok := p.Identity()
	if !ok {
		return
	}
	broker, ok := m.selectBrokerLocked(p)
	if !ok {
		m.cfg.Logger.Debug("no broker available to relay outbound signal", "peer", p.DisplayName())
		return
	}
	nonce, ciphertext, err := m.local.Boxer.BoxMessage(payload, id)
	if err != nil {
		m.cfg.Metrics.BoxError()
		m.cfg.Logger.Debug("box outbound signal failed", "peer", p.DisplayName(), "error", err)
		return
	}
	frame, err := wire.Encode(wire.TypeSignal, wire.Signal{
		SourceIdentity:      m.local.Identity.String(),
		DestinationIdentity: id.String(),
		Nonce:               nonce,
		Signal:              ciphertext,
	})
	if err != nil {
		return
	}
	m.sendToPeerLocked(broker, frame)
	m.cfg.Metrics.SignalRelayed()
}

// onAssistedPaired fires once an assisted connection's underlying handle
// finishes its broker-mediated token exchange (detected by Messages() no
// longer being nil). It advances SIGNALING into WAITING_FOR_IDENTITY and
// starts the identity handshake on top of the now-usable transport.
func (m *Manager) onAssistedPaired(p *peer.Peer, c *connection.Connection) {
	if c.State().Tag != connection.Signaling {
		return
	}
	if err := c.SetState(connection.State{Tag: connection.WaitingForIdentity}); err != nil {
		panic(err)
	}
	m.sendIdentityFrame(c)
}

// onConnectionClosed synchronizes the connection's cached state with the
// fact that its underlying transport session has ended, detaches it from
// its slot (I4: a DISCONNECTED peer holds no live connection), and
// reconciles connect/disconnect bookkeeping.
func (m *Manager) onConnectionClosed(p *peer.Peer, c *connection.Connection) {
	_ = c.Close()
	p.ClearConnection(c)
	m.reconcileConnectedness(p, nil)
}

// reconcileConnectedness compares p's derived state against the last
// snapshot the manager observed and emits onConnect/onDisconnect exactly
// once per transition.
func (m *Manager) reconcileConnectedness(p *peer.Peer, err error) {
	now := p.State().Tag == peer.ConnectedTag
	was := m.connectedSnapshot[p]
	if now == was {
		return
	}
	m.connectedSnapshot[p] = now
	if now {
		if id, ok := p.Identity(); ok {
			m.identified[id] = p
		}
		m.emitConnect(p)
	} else {
		m.emitDisconnect(p, err)
	}
}

// failConnection closes a connection after a protocol/network failure,
// recording it against retry policy when the failure occurred on an
// outbound dial's connection.
func (m *Manager) failConnection(p *peer.Peer, c *connection.Connection, err error) {
	m.cfg.Logger.Debug("closing connection", "peer", p.DisplayName(), "error", err)
	if c.Direction() == connection.Outbound {
		p.RetryState(c.Kind()).RecordFailure(time.Now(), p.IsWhitelisted(), 0)
	}
	_ = c.Close()
	p.ClearConnection(c)
	m.reconcileConnectedness(p, err)
}

// peerError builds an *Error for p, keying it by identity when known.
func (m *Manager) peerError(kind ErrorKind, message string, p *peer.Peer) *Error {
	if id, ok := p.Identity(); ok {
		return NewPeerError(kind, message, id)
	}
	return NewError(kind, message)
}

// sendToPeerLocked sends frame over whichever of p's connections can
// currently transmit, preferring direct.
func (m *Manager) sendToPeerLocked(p *peer.Peer, frame []byte) bool {
	for _, c := range p.Connections() {
		st := c.State().Tag
		if st == connection.Connected || st == connection.WaitingForIdentity {
			if err := c.Send(frame); err == nil {
				return true
			}
		}
	}
	return false
}

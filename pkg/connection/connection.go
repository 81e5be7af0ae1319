package connection

import (
	"fmt"
	"time"

	"github.com/quietmesh/meshkeep/pkg/transport"
)

// stateBuffer bounds the StateChanges channel. A connection passes through
// at most a handful of states in its lifetime, so a small buffer is enough
// to guarantee SetState never blocks on a slow subscriber.
const stateBuffer = 8

// Connection owns one transport.Handle and the per-connection state
// machine layered on top of it. It is driven exclusively from the single
// event loop described in the Peer Manager's concurrency model: SetState
// and Send are only ever called from that loop, so Connection itself holds
// no lock.
type Connection struct {
	kind      Kind
	direction Direction
	handle    transport.Handle

	state    State
	stateCh  chan State
	lastSeen time.Time
}

// New wraps handle in a Connection, starting in CONNECTING.
func New(kind Kind, direction Direction, handle transport.Handle) *Connection {
	return &Connection{
		kind:      kind,
		direction: direction,
		handle:    handle,
		state:     State{Tag: Connecting},
		stateCh:   make(chan State, stateBuffer),
		lastSeen:  time.Now(),
	}
}

// Kind reports whether this connection rides a direct or assisted
// transport.
func (c *Connection) Kind() Kind { return c.kind }

// Direction reports which side initiated the underlying transport session.
func (c *Connection) Direction() Direction { return c.direction }

// State returns the most recently set state.
func (c *Connection) State() State { return c.state }

// SetState validates and applies a state transition, then publishes it on
// StateChanges(). An illegal transition is a protocol/logic bug, not a
// recoverable condition: the caller is expected to treat the returned
// error as fatal per the error model (§7).
func (c *Connection) SetState(next State) error {
	if err := c.state.ValidateTransition(next); err != nil {
		return err
	}
	c.state = next
	c.lastSeen = time.Now()

	select {
	case c.stateCh <- next:
	default:
		// A full buffer means no one is listening; drop rather than block
		// the single event loop that called SetState.
	}
	return nil
}

// StateChanges yields every state this connection has transitioned into,
// in issuance order.
func (c *Connection) StateChanges() <-chan State {
	return c.stateCh
}

// Messages yields frames received over the transport, in wire order.
func (c *Connection) Messages() <-chan []byte {
	return c.handle.Recv()
}

// Signals yields local signalling payloads the assisted transport wants
// relayed to the remote peer via a broker. Nil for direct connections.
func (c *Connection) Signals() <-chan []byte {
	return c.handle.LocalSignal()
}

// Closed is closed exactly once, when the underlying transport session
// ends.
func (c *Connection) Closed() <-chan struct{} {
	return c.handle.Closed()
}

// Send transmits a wire frame over the underlying transport.
func (c *Connection) Send(frame []byte) error {
	if err := c.handle.Send(frame); err != nil {
		return fmt.Errorf("connection: send: %w", err)
	}
	return nil
}

// Signal delivers a signalling payload received from the remote peer via a
// broker into the underlying assisted transport. A no-op for direct
// connections.
func (c *Connection) Signal(payload []byte) error {
	return c.handle.Signal(payload)
}

// Close tears down the underlying transport and transitions to
// DISCONNECTED. Idempotent: closing an already-DISCONNECTED connection is
// a no-op.
func (c *Connection) Close() error {
	if c.state.Tag == Disconnected {
		return nil
	}
	err := c.handle.Close()
	_ = c.SetState(State{Tag: Disconnected})
	return err
}

// LastSeen reports when the connection last changed state — used by the
// handshake timeout enforcement a production transport layer runs (the
// core itself does not run handshake timers in-band, per §5).
func (c *Connection) LastSeen() time.Time {
	return c.lastSeen
}

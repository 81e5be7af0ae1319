// Package connection implements the per-transport connection object: one
// state machine per underlying transport session, driving the identity
// handshake (and, for assisted transports, the signalling exchange) and
// surfacing received frames and state changes to its owning peer record.
package connection

import (
	"fmt"

	"github.com/quietmesh/meshkeep/pkg/identity"
)

// Kind distinguishes the type of transport a Connection rides on.
type Kind int

const (
	// Direct is a raw socket-style transport dialled straight to the peer.
	Direct Kind = iota
	// Assisted is a broker-relayed, signalling-negotiated transport used
	// when a direct dial is not possible (e.g. NAT traversal).
	Assisted
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Assisted:
		return "assisted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Direction records which side initiated the underlying transport session.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// StateTag names the variant of a State value without carrying its payload.
type StateTag int

const (
	Connecting StateTag = iota
	WaitingForIdentity
	RequestSignaling
	Signaling
	Connected
	Disconnected
)

func (t StateTag) String() string {
	switch t {
	case Connecting:
		return "CONNECTING"
	case WaitingForIdentity:
		return "WAITING_FOR_IDENTITY"
	case RequestSignaling:
		return "REQUEST_SIGNALING"
	case Signaling:
		return "SIGNALING"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return fmt.Sprintf("StateTag(%d)", int(t))
	}
}

// State is the tagged union of connection states. Only Connected carries a
// payload (the now-authenticated peer identity); all other tags ignore
// Identity.
type State struct {
	Tag      StateTag
	Identity identity.Identity
}

func (s State) String() string {
	if s.Tag == Connected {
		return fmt.Sprintf("CONNECTED{%s}", s.Identity)
	}
	return s.Tag.String()
}

// IsTerminal reports whether s is DISCONNECTED, from which no further
// transition is possible.
func (s State) IsTerminal() bool {
	return s.Tag == Disconnected
}

// validTransitions encodes the transition table: CONNECTING may branch into
// either the direct handshake path or, for assisted transports, the
// signalling path; both signalling states eventually rejoin
// WAITING_FOR_IDENTITY; any state may fall through to DISCONNECTED.
var validTransitions = map[StateTag][]StateTag{
	Connecting:         {WaitingForIdentity, Signaling, RequestSignaling, Disconnected},
	RequestSignaling:   {Signaling, Disconnected},
	Signaling:          {WaitingForIdentity, Disconnected},
	WaitingForIdentity: {Connected, Disconnected},
	Connected:          {Disconnected},
	Disconnected:       {},
}

// CanTransitionTo reports whether moving from s to target is a legal
// transition per the connection state machine.
func (s State) CanTransitionTo(target State) bool {
	for _, allowed := range validTransitions[s.Tag] {
		if allowed == target.Tag {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error describing an illegal transition, or
// nil if the transition is legal. Per the invariant model, an illegal
// transition here represents a protocol or logic bug, not a recoverable
// condition — callers surface it as a FatalError.
func (s State) ValidateTransition(target State) error {
	if !s.CanTransitionTo(target) {
		return fmt.Errorf("connection: invalid state transition: %s -> %s", s, target)
	}
	return nil
}

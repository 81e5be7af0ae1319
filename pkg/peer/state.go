package peer

import (
	"fmt"

	"github.com/quietmesh/meshkeep/pkg/identity"
)

// StateTag names the variant of a peer-level State without its payload.
type StateTag int

const (
	// Disconnected means the peer has no live connection of any transport.
	Disconnected StateTag = iota
	// Connecting means at least one connection exists but none has yet
	// reached CONNECTED.
	Connecting
	// ConnectedTag means at least one connection is CONNECTED; application
	// traffic may flow.
	ConnectedTag
)

func (t StateTag) String() string {
	switch t {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case ConnectedTag:
		return "CONNECTED"
	default:
		return fmt.Sprintf("StateTag(%d)", int(t))
	}
}

// State is the derived, per-peer state: the monotonic join of its
// connections' states. Only ConnectedTag carries a payload.
type State struct {
	Tag      StateTag
	Identity identity.Identity
	Direct   bool // a CONNECTED direct connection is installed
	Assisted bool // a CONNECTED assisted connection is installed
}

func (s State) String() string {
	if s.Tag != ConnectedTag {
		return s.Tag.String()
	}
	switch {
	case s.Direct && s.Assisted:
		return fmt.Sprintf("CONNECTED{%s,direct+assisted}", s.Identity)
	case s.Direct:
		return fmt.Sprintf("CONNECTED{%s,direct}", s.Identity)
	case s.Assisted:
		return fmt.Sprintf("CONNECTED{%s,assisted}", s.Identity)
	default:
		return fmt.Sprintf("CONNECTED{%s}", s.Identity)
	}
}

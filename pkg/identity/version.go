package identity

import "fmt"

// Version identifies the software a peer runs: the agent implementation
// name, its overlay protocol version, and a free-form client string. Only
// ProtocolVersion participates in compatibility checks — Agent and Client
// are informational, surfaced for diagnostics and metrics labels.
type Version struct {
	Agent           string `json:"agent"`
	ProtocolVersion string `json:"protocolVersion"`
	Client          string `json:"client"`
}

// String renders the version for logs and debug output.
func (v Version) String() string {
	return fmt.Sprintf("%s/%s (protocol %s)", v.Agent, v.Client, v.ProtocolVersion)
}

// Compatible reports whether v and other may speak to each other. Unlike a
// semver range check, the overlay's identity handshake requires an exact
// protocol match: any drift in ProtocolVersion is treated as an
// incompatibility, not a negotiable range, since the wire envelope shape
// itself may have changed between protocol versions.
func (v Version) Compatible(other Version) bool {
	return v.ProtocolVersion == other.ProtocolVersion
}

// IsZero reports whether v is the unset zero value.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Package addressbook persists a cache of known peer addresses across
// restarts: the address/port last used to reach a peer, its whitelist
// status (exempting it from the retry ceiling, configured via the
// `whitelisted: [address]` list), and a blacklist a deployment can use to
// bar a peer at the transport layer before it ever reaches the identity
// handshake. The Peer Manager is indifferent to persistence — this is the
// optional on-disk collaborator, the same way on-disk persistence of the
// local identity is left to an external collaborator for the local key.
package addressbook

import (
	"time"

	"github.com/quietmesh/meshkeep/pkg/identity"
)

// Entry represents one known peer in the address book.
type Entry struct {
	// Identity is the peer's overlay identity.
	Identity identity.Identity `json:"identity"`

	// Address and Port are the last-known direct-transport endpoint, if
	// any. Port is 0 when unknown.
	Address string `json:"address,omitempty"`
	Port    uint16 `json:"port,omitempty"`

	// Name is the peer's last-advertised display name.
	Name string `json:"name,omitempty"`

	// Whitelisted exempts this peer from the retry policy's
	// consecutive-failure ceiling.
	Whitelisted bool `json:"whitelisted"`

	// Blacklisted bars this peer from connecting at the transport layer,
	// before the identity handshake ever runs.
	Blacklisted bool `json:"blacklisted"`

	// Metadata holds application-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`

	LastSeen  time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone creates a deep copy of the Entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	if len(e.Metadata) > 0 {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// addressBookData is the on-disk structure.
type addressBookData struct {
	Version int              `json:"version"`
	Peers   map[string]*Entry `json:"peers"`
}

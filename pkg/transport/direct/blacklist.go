package direct

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/quietmesh/meshkeep/pkg/identity"
)

// IdentityBlacklist adapts an identity-keyed blacklist check (such as
// pkg/addressbook.Book.IsBlacklisted) to BlacklistChecker, which gates at
// the libp2p layer using a libp2p peer.ID. Every overlay identity is an
// ed25519 public key and the host is always constructed with identity
// encoding (libp2p embeds an ed25519 public key directly in the peer ID
// rather than hashing it), so the conversion back to identity.Identity is
// exact rather than a lookup.
type IdentityBlacklist struct {
	check func(id identity.Identity) bool
}

// NewIdentityBlacklist wraps check — typically addressbook.Book's
// IsBlacklisted method value — as a BlacklistChecker.
func NewIdentityBlacklist(check func(id identity.Identity) bool) *IdentityBlacklist {
	return &IdentityBlacklist{check: check}
}

// IsBlacklisted implements BlacklistChecker.
func (bl *IdentityBlacklist) IsBlacklisted(p peer.ID) bool {
	pub, err := p.ExtractPublicKey()
	if err != nil || pub == nil {
		// No embedded public key (not an identity-encoded peer ID, or a
		// malformed one) — nothing to check against, so default to
		// allowing the dial; the identity handshake rejects malformed
		// identities downstream anyway.
		return false
	}
	raw, err := pub.Raw()
	if err != nil || len(raw) != identity.Size {
		return false
	}
	var id identity.Identity
	copy(id[:], raw)
	return bl.check(id)
}

var _ BlacklistChecker = (*IdentityBlacklist)(nil)

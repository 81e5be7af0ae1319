// Package identity defines the peer identity type used throughout the
// overlay: an ed25519 public key, its string rendering, and the
// lexicographic tie-break rules used to arbitrate duplicate connections and
// assign a connection initiator deterministically.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// Size is the length in bytes of an Identity (an ed25519 public key).
const Size = ed25519.PublicKeySize

// Identity uniquely names a peer on the overlay. It is the peer's ed25519
// public key.
type Identity [Size]byte

// Nil is the zero-value Identity, never valid as a peer identity.
var Nil Identity

// FromPublicKey builds an Identity from an ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != Size {
		return id, fmt.Errorf("identity: invalid public key size: expected %d, got %d", Size, len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// ParseIdentity decodes a base64 (standard, unpadded) string produced by
// String into an Identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("identity: invalid encoding: %w", err)
	}
	if len(raw) != Size {
		return id, fmt.Errorf("identity: invalid length: expected %d, got %d", Size, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String renders the identity as unpadded standard base64, the wire and
// display form used everywhere else in this module.
func (id Identity) String() string {
	return base64.RawStdEncoding.EncodeToString(id[:])
}

// IsValid reports whether id is non-zero. It does not check that the bytes
// encode a valid ed25519 curve point, nor that the key was ever used to
// sign anything.
func (id Identity) IsValid() bool {
	if id == Nil {
		return false
	}
	// crypto/ed25519 has no cheap "is this a curve point" check exposed for
	// bare bytes short of a Verify call; the byte-length and non-zero checks
	// are what the identity handshake actually needs, since garbage keys
	// simply fail to verify the handshake signature later.
	return true
}

// PublicKey returns id as an ed25519.PublicKey.
func (id Identity) PublicKey() ed25519.PublicKey {
	pk := make(ed25519.PublicKey, Size)
	copy(pk, id[:])
	return pk
}

// Bytes returns a copy of the identity's raw bytes.
func (id Identity) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

// Less reports whether id sorts strictly before other in the lexicographic
// byte ordering used to break ties between two peers.
func (id Identity) Less(other Identity) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// Equal reports whether id and other name the same peer.
func (id Identity) Equal(other Identity) bool {
	return id == other
}

// MarshalText implements encoding.TextMarshaler so Identity can be used
// directly as a JSON object key or value.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// CanInitiate reports whether local is the party responsible for initiating
// a direct connection attempt toward remote. Exactly one side of any pair
// initiates: the side with the lexicographically smaller identity.
func CanInitiate(local, remote Identity) bool {
	return local.Less(remote)
}

// CanKeepDuplicate resolves which of two live connections to the same peer
// survives when both a local dial and a remote dial complete concurrently.
// The connection whose remote identity is lexicographically larger than the
// local identity is the one that was legitimately initiated by the local
// side per CanInitiate; keep is compared against that rule so both peers
// converge on the same winner without further coordination.
func CanKeepDuplicate(local, remote Identity, keepIsOutbound bool) bool {
	// The outbound connection is legitimate exactly when local was supposed
	// to be the initiator; symmetrically the inbound connection is
	// legitimate when remote was supposed to be the initiator. Since both
	// sides run this same rule, they agree.
	if keepIsOutbound {
		return CanInitiate(local, remote)
	}
	return CanInitiate(remote, local)
}

package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/quietmesh/meshkeep/pkg/identity"
)

// Boxer authenticates and encrypts signalling payloads exchanged between
// two identities — the interface the core consumes (see pkg/wire's
// Signal.Signal field and the Signal handler in the Peer Manager).
type Boxer interface {
	BoxMessage(plaintext []byte, recipient identity.Identity) (nonce, ciphertext []byte, err error)
	UnboxMessage(ciphertext, nonce []byte, sender identity.Identity) (plaintext []byte, err error)
}

// IdentityModule adapts Module to the Boxer interface, translating between
// identity.Identity and the ed25519/X25519 key material Module operates on.
type IdentityModule struct {
	module *Module
}

// NewIdentityModule builds an IdentityModule from the local identity's
// ed25519 private key.
func NewIdentityModule(privateKey ed25519.PrivateKey) (*IdentityModule, error) {
	m, err := NewModule(privateKey)
	if err != nil {
		return nil, err
	}
	return &IdentityModule{module: m}, nil
}

// Identity returns the local identity derived from this module's ed25519
// public key.
func (im *IdentityModule) Identity() (identity.Identity, error) {
	return identity.FromPublicKey(im.module.Ed25519PublicKey())
}

// BoxMessage derives (and caches) the shared key for recipient, then
// encrypts plaintext under it.
func (im *IdentityModule) BoxMessage(plaintext []byte, recipient identity.Identity) (nonce, ciphertext []byte, err error) {
	if _, err := im.module.DeriveSharedKey(recipient.PublicKey()); err != nil {
		return nil, nil, fmt.Errorf("crypto: derive shared key for %s: %w", recipient, err)
	}

	sealed, err := im.module.Encrypt(recipientX25519(recipient), plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: box message for %s: %w", recipient, err)
	}
	if len(sealed) < NonceSize {
		return nil, nil, fmt.Errorf("crypto: sealed message shorter than a nonce")
	}
	return sealed[:NonceSize], sealed[NonceSize:], nil
}

// UnboxMessage derives (and caches) the shared key for sender, then
// decrypts ciphertext under it using the given nonce.
func (im *IdentityModule) UnboxMessage(ciphertext, nonce []byte, sender identity.Identity) (plaintext []byte, err error) {
	if _, err := im.module.DeriveSharedKey(sender.PublicKey()); err != nil {
		return nil, fmt.Errorf("crypto: derive shared key for %s: %w", sender, err)
	}

	sealed := make([]byte, 0, len(nonce)+len(ciphertext))
	sealed = append(sealed, nonce...)
	sealed = append(sealed, ciphertext...)

	plaintext, err = im.module.Decrypt(recipientX25519(sender), sealed)
	if err != nil {
		return nil, fmt.Errorf("crypto: unbox message from %s: %w", sender, err)
	}
	return plaintext, nil
}

// Close zeros all key material held by the underlying module.
func (im *IdentityModule) Close() {
	im.module.Close()
}

// recipientX25519 converts an identity's ed25519 public key to its X25519
// form for Module's peer-key cache lookup. A conversion failure here would
// mean the identity bytes aren't a valid curve point, which DeriveSharedKey
// would already have rejected — so the error is swallowed to an empty,
// never-cached key, which cleanly fails the ensuing Encrypt/Decrypt call.
func recipientX25519(id identity.Identity) []byte {
	x, err := Ed25519PublicToX25519(id.PublicKey())
	if err != nil {
		return nil
	}
	return x
}

package addressbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quietmesh/meshkeep/pkg/identity"
)

const (
	// flushInterval is how often the address book flushes dirty changes to disk.
	flushInterval = 5 * time.Second
)

// Book manages the peer address book with persistence and thread-safe
// operations. Changes are batched and periodically flushed to disk to
// reduce I/O overhead. Critical changes (add, remove, blacklist,
// whitelist) are saved immediately. Non-critical changes (LastSeen
// updates) are batched and flushed periodically.
type Book struct {
	storage *storage
	peers   map[string]*Entry
	mu      sync.RWMutex

	// dirty indicates there are unsaved changes (from batched operations)
	dirty bool

	// ctx and cancel control the background flush goroutine
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new address book with the given file path for
// persistence. If the file exists, it loads the existing data. Otherwise,
// starts with an empty book. The returned Book must be closed with
// Close() to ensure all changes are persisted.
func New(path string) (*Book, error) {
	s := newStorage(path)

	data, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load address book: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Book{
		storage: s,
		peers:   data.Peers,
		ctx:     ctx,
		cancel:  cancel,
	}

	go b.flushLoop()

	return b, nil
}

// AddPeer adds or updates a peer's known address in the book.
func (b *Book) AddPeer(id identity.Identity, address string, port uint16, name string, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := id.String()
	now := time.Now()

	var metadataCopy map[string]string
	if metadata != nil {
		metadataCopy = make(map[string]string, len(metadata))
		for k, v := range metadata {
			metadataCopy[k] = v
		}
	}

	if existing, ok := b.peers[key]; ok {
		if existing.Blacklisted {
			return fmt.Errorf("cannot update blacklisted peer %s", id)
		}
		existing.Address = address
		existing.Port = port
		if name != "" {
			existing.Name = name
		}
		if metadataCopy != nil {
			existing.Metadata = metadataCopy
		}
		existing.UpdatedAt = now
	} else {
		b.peers[key] = &Entry{
			Identity:  id,
			Address:   address,
			Port:      port,
			Name:      name,
			Metadata:  metadataCopy,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	return b.saveLocked()
}

// RemovePeer removes a peer from the address book.
func (b *Book) RemovePeer(id identity.Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := id.String()
	if _, ok := b.peers[key]; !ok {
		return fmt.Errorf("peer %s not found", id)
	}

	delete(b.peers, key)
	return b.saveLocked()
}

// GetPeer retrieves a peer entry by identity. Returns a copy of the entry
// to prevent external modification.
func (b *Book) GetPeer(id identity.Identity) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.peers[id.String()]
	if !ok {
		return nil, fmt.Errorf("peer %s not found", id)
	}
	return entry.Clone(), nil
}

// ListPeers returns all non-blacklisted peers.
func (b *Book) ListPeers() []*Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*Entry, 0, len(b.peers))
	for _, entry := range b.peers {
		if !entry.Blacklisted {
			result = append(result, entry.Clone())
		}
	}
	return result
}

// ListAllPeers returns all peers including blacklisted ones.
func (b *Book) ListAllPeers() []*Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*Entry, 0, len(b.peers))
	for _, entry := range b.peers {
		result = append(result, entry.Clone())
	}
	return result
}

// entryForID looks up or creates an Entry for id, used by the
// blacklist/whitelist setters which must work even for a peer the book
// has never seen a dialable address for.
func (b *Book) entryForID(id identity.Identity) *Entry {
	key := id.String()
	entry, ok := b.peers[key]
	if !ok {
		now := time.Now()
		entry = &Entry{Identity: id, CreatedAt: now, UpdatedAt: now}
		b.peers[key] = entry
	}
	return entry
}

// Blacklist marks a peer as blacklisted, barring it at the transport
// layer (see pkg/transport/direct's BlacklistChecker). Creates the entry
// if the peer was not previously known.
func (b *Book) Blacklist(id identity.Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.entryForID(id)
	entry.Blacklisted = true
	entry.UpdatedAt = time.Now()
	return b.saveLocked()
}

// Unblacklist removes the blacklist flag from a peer.
func (b *Book) Unblacklist(id identity.Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.peers[id.String()]
	if !ok {
		return fmt.Errorf("peer %s not found", id)
	}
	entry.Blacklisted = false
	entry.UpdatedAt = time.Now()
	return b.saveLocked()
}

// IsBlacklisted reports whether id is blacklisted. Returns false for an
// unknown peer.
func (b *Book) IsBlacklisted(id identity.Identity) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.peers[id.String()]
	return ok && entry.Blacklisted
}

// SetWhitelisted sets or clears the whitelist flag, exempting (or no
// longer exempting) id from the retry policy's consecutive-failure
// ceiling. Creates the entry if the peer was not previously known — this
// is how a statically configured `whitelisted: [address]` entry (resolved
// to an identity once first seen) gets persisted.
func (b *Book) SetWhitelisted(id identity.Identity, whitelisted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.entryForID(id)
	entry.Whitelisted = whitelisted
	entry.UpdatedAt = time.Now()
	return b.saveLocked()
}

// IsWhitelisted reports whether id is whitelisted. Returns false for an
// unknown peer.
func (b *Book) IsWhitelisted(id identity.Identity) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.peers[id.String()]
	return ok && entry.Whitelisted
}

// UpdateLastSeen updates the last seen timestamp for a peer. This is a
// batched operation — changes are persisted periodically, not immediately.
func (b *Book) UpdateLastSeen(id identity.Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.peers[id.String()]
	if !ok {
		return fmt.Errorf("peer %s not found", id)
	}

	now := time.Now()
	entry.LastSeen = now
	entry.UpdatedAt = now
	b.dirty = true
	return nil
}

// HasPeer checks if a peer exists in the address book.
func (b *Book) HasPeer(id identity.Identity) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.peers[id.String()]
	return ok
}

// Count returns the total number of peers (including blacklisted).
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// Clear removes all peers from the address book.
func (b *Book) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.peers = make(map[string]*Entry)
	return b.saveLocked()
}

// saveLocked saves the address book to disk. Must be called with the
// write lock held.
func (b *Book) saveLocked() error {
	data := &addressBookData{
		Version: currentVersion,
		Peers:   b.peers,
	}
	if err := b.storage.save(data); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

// Reload reloads the address book from disk, discarding in-memory changes.
func (b *Book) Reload() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.storage.load()
	if err != nil {
		return fmt.Errorf("failed to reload address book: %w", err)
	}

	b.peers = data.Peers
	b.dirty = false
	return nil
}

// flushLoop runs in the background and periodically flushes dirty changes to disk.
func (b *Book) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			if b.dirty {
				_ = b.saveLocked()
			}
			b.mu.Unlock()
		}
	}
}

// Flush explicitly saves any pending changes to disk.
func (b *Book) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dirty {
		return nil
	}
	return b.saveLocked()
}

// Close stops the background flush goroutine and saves any pending
// changes. The Book should not be used after Close is called.
func (b *Book) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dirty {
		return b.saveLocked()
	}
	return nil
}

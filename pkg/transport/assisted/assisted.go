// Package assisted implements transport.AssistedFactory: a two-phase
// offer/answer signalling exchange that, once both sides have traded
// payloads via a broker, hands off to an in-memory duplex pipe
// (pkg/transport/mem) standing in for the hole-punched direct socket a
// production NAT-traversal transport would open.
//
// The assisted transport's own wire shape is deliberately left to the
// transport adapter rather than the overlay core; this is a minimal
// reference implementation behind the same transport.Handle interface a
// production transport would implement, so the signalling relay paths in
// the Peer Manager have something concrete to exercise.
package assisted

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/quietmesh/meshkeep/pkg/transport"
	"github.com/quietmesh/meshkeep/pkg/transport/mem"
)

// Broker pairs up two assisted Handles that both name the same session
// token. Two Factory instances must share a Broker to rendezvous — in a
// real deployment the token would travel over the relayed signal path
// between two separate processes; a single in-process Broker stands in for
// that here.
type Broker struct {
	mu      sync.Mutex
	waiting map[string]chan *mem.Handle
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{waiting: make(map[string]chan *mem.Handle)}
}

// join blocks until a second caller joins the same token, then returns this
// side's end of a freshly-created in-memory pipe.
func (b *Broker) join(token string) *mem.Handle {
	b.mu.Lock()
	ch, ok := b.waiting[token]
	if !ok {
		ch = make(chan *mem.Handle, 1)
		b.waiting[token] = ch
		b.mu.Unlock()
		return <-ch
	}
	delete(b.waiting, token)
	b.mu.Unlock()

	mine, theirs := mem.Pipe()
	ch <- theirs
	return mine
}

// Factory implements transport.AssistedFactory over a shared Broker.
type Factory struct {
	broker *Broker
}

// New creates a Factory using broker for rendezvous.
func New(broker *Broker) *Factory {
	return &Factory{broker: broker}
}

// Create starts a new assisted session. The returned Handle is not yet
// usable for Send/Recv — it is in its signalling phase until the broker
// pairs it with the remote side, driven by LocalSignal()/Signal() as the
// Peer Manager relays payloads through a broker peer.
func (f *Factory) Create(initiator bool) transport.Handle {
	h := &handle{
		initiator:   initiator,
		broker:      f.broker,
		localSignal: make(chan []byte, 1),
		paired:      make(chan struct{}),
		closed:      make(chan struct{}),
	}
	if initiator {
		h.token = newToken()
		h.localSignal <- []byte(h.token)
		go h.completePairing(h.token)
	}
	return h
}

type handle struct {
	initiator bool
	broker    *Broker
	token     string

	localSignal chan []byte

	mu     sync.Mutex
	inner  *mem.Handle
	paired chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func newToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (h *handle) completePairing(token string) {
	inner := h.broker.join(token)
	h.mu.Lock()
	select {
	case <-h.closed:
		h.mu.Unlock()
		inner.Close()
		return
	default:
	}
	h.inner = inner
	close(h.paired)
	h.mu.Unlock()
}

// Signal delivers a signalling payload received from the remote peer. The
// non-initiator learns the session token from the first Signal call and
// joins the broker; the initiator's own Signal calls (the remote's ack)
// are accepted but otherwise ignored since pairing is already proceeding.
func (h *handle) Signal(payload []byte) error {
	if h.initiator {
		return nil
	}
	h.mu.Lock()
	if h.token != "" {
		h.mu.Unlock()
		return nil
	}
	h.token = string(payload)
	h.mu.Unlock()

	go h.completePairing(h.token)
	select {
	case h.localSignal <- payload:
	default:
	}
	return nil
}

func (h *handle) LocalSignal() <-chan []byte {
	return h.localSignal
}

func (h *handle) Send(frame []byte) error {
	h.mu.Lock()
	inner := h.inner
	h.mu.Unlock()
	if inner == nil {
		return errSignallingIncomplete{}
	}
	return inner.Send(frame)
}

func (h *handle) Recv() <-chan []byte {
	h.mu.Lock()
	inner := h.inner
	h.mu.Unlock()
	if inner == nil {
		return nil
	}
	return inner.Recv()
}

func (h *handle) Closed() <-chan struct{} {
	return h.closed
}

func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.mu.Lock()
		inner := h.inner
		h.mu.Unlock()
		if inner != nil {
			_ = inner.Close()
		}
	})
	return nil
}

type errSignallingIncomplete struct{}

func (errSignallingIncomplete) Error() string {
	return "assisted: session not yet paired, signalling still in progress"
}

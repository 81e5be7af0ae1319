// Package transport defines the byte-stream abstraction the connection
// state machine drives, and the two factories the Peer Manager uses to
// originate or accept sessions: a direct socket-style factory and an
// assisted, broker-signalled one for NAT-traversal scenarios.
package transport

import "context"

// Handle is one live transport session, direct or assisted. Send and Recv
// carry already-framed wire envelopes; the connection state machine owns
// interpreting their contents.
type Handle interface {
	// Send transmits one frame. Implementations frame it on the wire
	// (length-prefix, encrypt, etc.) before writing.
	Send(frame []byte) error

	// Recv yields received frames in order. The channel is closed when
	// the underlying session ends, whether cleanly or on error; a
	// receive on a closed channel yields a nil, zero-value read
	// (callers should also watch Closed()).
	Recv() <-chan []byte

	// Closed is closed exactly once, when the session ends.
	Closed() <-chan struct{}

	// Close tears down the session. Idempotent.
	Close() error

	// LocalSignal yields signalling payloads this handle wants relayed to
	// the remote peer via a broker. Nil for Direct handles, which have no
	// signalling phase.
	LocalSignal() <-chan []byte

	// Signal delivers a signalling payload received from the remote peer
	// via a broker. A no-op returning nil for Direct handles.
	Signal(payload []byte) error
}

// DirectFactory dials or accepts direct transport sessions.
type DirectFactory interface {
	// Dial opens an outbound direct session to addr:port.
	Dial(ctx context.Context, addr string, port uint16) (Handle, error)

	// Accept yields inbound sessions as they arrive.
	Accept() <-chan Handle
}

// AssistedFactory creates assisted (broker-signalled) transport sessions.
// Create never blocks on the network: the returned Handle starts in its
// signalling phase and only becomes usable for Send/Recv once signalling
// completes, mirroring the connection state machine's own
// REQUEST_SIGNALING/SIGNALING states.
type AssistedFactory interface {
	Create(initiator bool) Handle
}

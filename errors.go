// Package meshkeep implements the Peer Manager: a P2P overlay core that
// maintains a live mesh of mutually-authenticated peers, handshaking
// identities, brokering NAT-traversal sessions, gossiping the
// connected-peer graph, and arbitrating duplicate connections.
package meshkeep

import (
	"errors"
	"fmt"

	"github.com/quietmesh/meshkeep/pkg/identity"
)

// ErrorKind classifies a failure for programmatic handling, per the error
// model: NetworkError (transport-level I/O), ProtocolError (malformed
// frame, illegal state transition, invalid identity, incompatible
// version, name too long), PolicyError (congested, self-dial, an active
// local-requested-disconnect window), FatalError (an invariant was
// violated — a bug, not a recoverable condition).
type ErrorKind int

const (
	NetworkError ErrorKind = iota
	ProtocolError
	PolicyError
	FatalErrorKind
)

func (k ErrorKind) String() string {
	switch k {
	case NetworkError:
		return "NetworkError"
	case ProtocolError:
		return "ProtocolError"
	case PolicyError:
		return "PolicyError"
	case FatalErrorKind:
		return "FatalError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a meshkeep error with enough context to log and to decide
// retry/disposal behaviour without re-deriving it from a string.
type Error struct {
	Kind ErrorKind

	// Message is a human-readable description of the error.
	Message string

	// Identity is the peer associated with the error, if any.
	Identity identity.Identity
	HasID    bool

	// Cause is the underlying error, if any.
	Cause error

	// Retriable indicates whether the operation that failed can be
	// retried under the normal backoff policy.
	Retriable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("meshkeep: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("meshkeep: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two meshkeep errors are
// considered equal if they have the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorWithCause builds an Error wrapping cause.
func NewErrorWithCause(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewPeerError builds an Error associated with a specific peer identity.
func NewPeerError(kind ErrorKind, message string, id identity.Identity) *Error {
	return &Error{Kind: kind, Message: message, Identity: id, HasID: true}
}

// IsRetriable reports whether err is a meshkeep Error marked retriable.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retriable
	}
	return false
}

// invariant panics with a FatalError if cond is false. Used only for the
// assertions named in the error model's FatalError kind — violated
// invariants are bugs, not recoverable conditions, and surface
// immediately rather than being laundered into a logged-and-ignored
// error.
func invariant(cond bool, message string) {
	if !cond {
		panic(NewError(FatalErrorKind, message))
	}
}

// Sentinel errors for peer-manager operations.
var (
	ErrNotStarted     = errors.New("meshkeep: peer manager not started")
	ErrAlreadyStarted = errors.New("meshkeep: peer manager already started")
	ErrStopped        = errors.New("meshkeep: peer manager stopped")

	ErrPeerNotFound  = errors.New("meshkeep: peer not found")
	ErrSelfDial      = errors.New("meshkeep: refusing to dial our own identity")
	ErrNoAddress     = errors.New("meshkeep: peer has no configured address")
	ErrNoBroker      = errors.New("meshkeep: no qualifying broker for assisted dial")
	ErrSlotOccupied  = errors.New("meshkeep: transport slot already occupied")
	ErrCannotConnect = errors.New("meshkeep: retry policy forbids connecting now")

	ErrMalformedFrame     = errors.New("meshkeep: malformed overlay-control frame")
	ErrInvalidIdentity    = errors.New("meshkeep: invalid identity encoding")
	ErrVersionIncompatible = errors.New("meshkeep: incompatible protocol version")
	ErrNameTooLong        = errors.New("meshkeep: display name exceeds configured maximum")

	ErrCongested           = errors.New("meshkeep: at capacity, rejecting new session")
	ErrDisconnectInEffect  = errors.New("meshkeep: a disconnect window is in effect")

	ErrMissingPrivateKey     = errors.New("meshkeep: private key is required")
	ErrMissingListenAddrs    = errors.New("meshkeep: at least one listen address is required")
	ErrInvalidConfig         = errors.New("meshkeep: invalid configuration")
)

// Package wire defines the overlay-control message envelope exchanged over
// every connection and its JSON encoding. Each Envelope is one
// transport.Handle frame — the handle implementations own length-prefixing
// the wire bytes, so wire only needs to marshal/unmarshal the envelope
// itself.
package wire

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the overlay-control message carried by an Envelope.
type Type string

const (
	TypeIdentity      Type = "identity"
	TypePeerList      Type = "peerList"
	TypeSignalRequest Type = "signalRequest"
	TypeSignal        Type = "signal"
	TypeDisconnecting Type = "disconnecting"
)

// Envelope is the outer shape of every overlay-control message.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode marshals v as payload of the given type into one wire frame.
func Encode(t Type, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: payload})
}

// Decode parses one wire frame into an Envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: malformed envelope: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals env's payload into v.
func (e Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("wire: malformed %s payload: %w", e.Type, err)
	}
	return nil
}

// Identity is the payload of an identity message: self-announcement sent
// as soon as a transport session is up, before any application traffic.
type Identity struct {
	Identity string  `json:"identity"`
	Version  string  `json:"version"`
	Port     *uint16 `json:"port,omitempty"`
	Name     string  `json:"name,omitempty"`
	IsWorker bool    `json:"isWorker,omitempty"`
}

// PeerListEntry is one neighbour advertised in a PeerList message.
type PeerListEntry struct {
	Identity string  `json:"identity"`
	Name     string  `json:"name,omitempty"`
	Address  *string `json:"address"`
	Port     *uint16 `json:"port"`
}

// PeerList is the payload of a peerList message: the sender's current
// CONNECTED neighbour set, used to gossip the known-peer graph.
type PeerList struct {
	ConnectedPeers []PeerListEntry `json:"connectedPeers"`
}

// SignalRequest is the payload of a signalRequest message: asks the
// receiving broker to initiate an assisted session toward destination on
// behalf of source.
type SignalRequest struct {
	SourceIdentity      string `json:"sourceIdentity"`
	DestinationIdentity string `json:"destinationIdentity"`
}

// Signal is the payload of a signal message: a broker-relayed, boxed
// signalling payload exchanged while negotiating an assisted session.
type Signal struct {
	SourceIdentity      string `json:"sourceIdentity"`
	DestinationIdentity string `json:"destinationIdentity"`
	Nonce               []byte `json:"nonce"`
	Signal              []byte `json:"signal"`
}

// DisconnectReason enumerates why a Disconnecting message was sent.
type DisconnectReason string

const (
	ReasonShuttingDown DisconnectReason = "ShuttingDown"
	ReasonCongested    DisconnectReason = "Congested"
	ReasonBadHandshake DisconnectReason = "BadHandshake"
	ReasonUnknown      DisconnectReason = "Unknown"
)

// Disconnecting is the payload of a disconnecting message: notifies a peer
// (directly, or via relay) that it should not retry before disconnectUntil.
type Disconnecting struct {
	SourceIdentity      string           `json:"sourceIdentity"`
	DestinationIdentity *string          `json:"destinationIdentity"`
	Reason              DisconnectReason `json:"reason"`
	DisconnectUntil     int64            `json:"disconnectUntil"`
}

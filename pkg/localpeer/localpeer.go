// Package localpeer holds everything that describes and empowers this
// node rather than a remote one: its identity, advertised version, the
// port it listens on, the boxing primitive it signs signalling payloads
// with, and the two transport factories it originates and accepts
// sessions through. A Peer Manager is constructed from exactly one
// LocalPeer.
package localpeer

import (
	"fmt"

	"github.com/quietmesh/meshkeep/pkg/crypto"
	"github.com/quietmesh/meshkeep/pkg/identity"
	"github.com/quietmesh/meshkeep/pkg/transport"
)

// LocalPeer is the external-collaborator bundle the core consumes rather
// than owns: cryptography, transports, and identity persistence are all
// external collaborators here, injected as interfaces.
type LocalPeer struct {
	Identity identity.Identity
	Version  identity.Version
	Name     string
	IsWorker bool

	ListenPort uint16

	Boxer           crypto.Boxer
	DirectFactory   transport.DirectFactory
	AssistedFactory transport.AssistedFactory
}

// New builds a LocalPeer from the local identity's boxing primitive plus
// the transport factories the caller has already constructed (a
// pkg/transport/direct.Factory and a pkg/transport/assisted.Factory, in
// the reference wiring, though any implementation of the two transport
// interfaces works). The local identity is derived from boxer rather than
// taken as a separate parameter, so the two can never disagree.
func New(boxer *crypto.IdentityModule, version identity.Version, name string, isWorker bool, listenPort uint16, direct transport.DirectFactory, assisted transport.AssistedFactory) (*LocalPeer, error) {
	id, err := boxer.Identity()
	if err != nil {
		return nil, fmt.Errorf("localpeer: derive identity: %w", err)
	}
	return &LocalPeer{
		Identity:        id,
		Version:         version,
		Name:            name,
		IsWorker:        isWorker,
		ListenPort:      listenPort,
		Boxer:           boxer,
		DirectFactory:   direct,
		AssistedFactory: assisted,
	}, nil
}

package direct

import (
	"github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// gater implements libp2p's ConnectionGater interface, enforcing the
// address book's blacklist at the connection level so a barred peer is
// rejected before it ever reaches the overlay's identity handshake.
type gater struct {
	checker BlacklistChecker
}

func newGater(checker BlacklistChecker) *gater {
	return &gater{checker: checker}
}

func (g *gater) InterceptPeerDial(p peer.ID) bool {
	return !g.checker.IsBlacklisted(p)
}

func (g *gater) InterceptAddrDial(p peer.ID, addr multiaddr.Multiaddr) bool {
	return !g.checker.IsBlacklisted(p)
}

func (g *gater) InterceptAccept(addrs network.ConnMultiaddrs) bool {
	return true
}

func (g *gater) InterceptSecured(dir network.Direction, p peer.ID, addrs network.ConnMultiaddrs) bool {
	return !g.checker.IsBlacklisted(p)
}

func (g *gater) InterceptUpgraded(conn network.Conn) (bool, control.DisconnectReason) {
	if g.checker.IsBlacklisted(conn.RemotePeer()) {
		return false, control.DisconnectReason(0)
	}
	return true, 0
}

var _ connmgr.ConnectionGater = (*gater)(nil)

// Package direct implements transport.DirectFactory over libp2p: a TCP/QUIC
// host dialling and accepting one overlay stream per connection, each
// wrapped in a length-prefixed transport.FramedHandle.
package direct

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	libp2p "github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"

	"github.com/quietmesh/meshkeep/pkg/transport"
)

// OverlayProtocolID is the single libp2p stream protocol meshkeep speaks;
// one stream per connection carries every wire.Envelope frame for that
// session's lifetime.
const OverlayProtocolID protocol.ID = "/meshkeep/overlay/1.0.0"

// BlacklistChecker reports whether a peer is barred from connecting at
// all, enforced at the libp2p connection-gater layer before any overlay
// bytes are exchanged.
type BlacklistChecker interface {
	IsBlacklisted(p peer.ID) bool
}

// Config configures a Factory's libp2p host.
type Config struct {
	PrivateKey       ed25519.PrivateKey
	ListenAddrs      []multiaddr.Multiaddr
	Blacklist        BlacklistChecker
	ConnMgrLowWater  int
	ConnMgrHighWater int
}

// DefaultConfig returns sensible connection-manager watermarks.
func DefaultConfig() Config {
	return Config{ConnMgrLowWater: 100, ConnMgrHighWater: 400}
}

// Factory implements transport.DirectFactory over a libp2p host.
type Factory struct {
	host   host.Host
	accept chan transport.Handle
}

// New creates a libp2p host listening on cfg.ListenAddrs and registers the
// overlay stream handler so inbound sessions surface on Accept().
func New(ctx context.Context, cfg Config) (*Factory, error) {
	priv, err := libp2pcrypto.UnmarshalEd25519PrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("direct: convert private key: %w", err)
	}

	listenAddrs := make([]string, len(cfg.ListenAddrs))
	for i, ma := range cfg.ListenAddrs {
		listenAddrs[i] = ma.String()
	}

	connMgr, err := connmgr.NewConnManager(cfg.ConnMgrLowWater, cfg.ConnMgrHighWater, connmgr.WithGracePeriod(0))
	if err != nil {
		return nil, fmt.Errorf("direct: create connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.ConnectionManager(connMgr),
		libp2p.EnableHolePunching(),
		libp2p.EnableRelay(),
		libp2p.NATPortMap(),
	}
	if cfg.Blacklist != nil {
		opts = append(opts, libp2p.ConnectionGater(newGater(cfg.Blacklist)))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("direct: create libp2p host: %w", err)
	}

	f := &Factory{
		host:   h,
		accept: make(chan transport.Handle, 32),
	}
	h.SetStreamHandler(OverlayProtocolID, f.handleIncoming)
	return f, nil
}

func (f *Factory) handleIncoming(s network.Stream) {
	select {
	case f.accept <- transport.NewFramedHandle(s):
	default:
		_ = s.Reset()
	}
}

// Dial opens an outbound overlay stream to addr:port.
func (f *Factory) Dial(ctx context.Context, addr string, port uint16) (transport.Handle, error) {
	maStr := fmt.Sprintf("/ip4/%s/tcp/%d", addr, port)
	if strings.ContainsAny(addr, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		maStr = fmt.Sprintf("/dns4/%s/tcp/%d", addr, port)
	}
	target, err := multiaddr.NewMultiaddr(maStr)
	if err != nil {
		return nil, fmt.Errorf("direct: invalid address %s:%d: %w", addr, port, err)
	}

	info, err := peer.AddrInfoFromP2pAddr(target)
	if err != nil {
		// No embedded peer ID (the common case: we dial by address before
		// we know the remote identity). libp2p cannot connect without a
		// peer ID, so look one up among the addresses registered through
		// AddAddr; with no match, Connect fails.
		info = &peer.AddrInfo{Addrs: []multiaddr.Multiaddr{target}}
		ps := f.host.Peerstore()
		for _, pid := range ps.PeersWithAddrs() {
			for _, a := range ps.Addrs(pid) {
				if a.Equal(target) {
					info.ID = pid
				}
			}
		}
	}

	if err := f.host.Connect(ctx, *info); err != nil {
		return nil, fmt.Errorf("direct: dial %s:%d: %w", addr, port, err)
	}

	s, err := f.host.NewStream(ctx, info.ID, OverlayProtocolID)
	if err != nil {
		return nil, fmt.Errorf("direct: open overlay stream to %s:%d: %w", addr, port, err)
	}
	return transport.NewFramedHandle(s), nil
}

// Accept yields inbound overlay sessions.
func (f *Factory) Accept() <-chan transport.Handle {
	return f.accept
}

// Addrs returns the multiaddrs this factory's host is listening on.
func (f *Factory) Addrs() []multiaddr.Multiaddr {
	return f.host.Addrs()
}

// PeerID returns the libp2p peer ID derived from the local identity key —
// exposed for callers that need to build a dialable multiaddr including it.
func (f *Factory) PeerID() peer.ID {
	return f.host.ID()
}

// AddAddr registers a known address for p in the host's peerstore, so a
// subsequent Dial by address can be resolved without a discovery round.
func (f *Factory) AddAddr(p peer.ID, addr multiaddr.Multiaddr) {
	f.host.Peerstore().AddAddr(p, addr, peerstore.PermanentAddrTTL)
}

// Close shuts down the libp2p host.
func (f *Factory) Close() error {
	return f.host.Close()
}

package p2p

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// peerLimitGater closes incoming connections once the configured peer
// limit is reached, per SPEC_FULL.md §4.4.2 ("incoming connections above
// peer_limit are immediately closed"). Outbound dials are never gated: a
// node always finishes a dial it initiated itself.
type peerLimitGater struct {
	limit uint64

	mu        sync.Mutex
	connected map[peer.ID]struct{}
}

func newPeerLimitGater(limit uint64) *peerLimitGater {
	return &peerLimitGater{limit: limit, connected: make(map[peer.ID]struct{})}
}

var _ connmgr.ConnectionGater = (*peerLimitGater)(nil)

func (g *peerLimitGater) InterceptPeerDial(peer.ID) bool { return true }

func (g *peerLimitGater) InterceptAddrDial(peer.ID, ma.Multiaddr) bool { return true }

func (g *peerLimitGater) InterceptAccept(network.ConnMultiaddrs) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit == 0 || uint64(len(g.connected)) < g.limit
}

func (g *peerLimitGater) InterceptSecured(dir network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	if dir == network.DirInbound {
		g.mu.Lock()
		defer g.mu.Unlock()
		_, known := g.connected[p]
		if !known && g.limit != 0 && uint64(len(g.connected)) >= g.limit {
			return false
		}
	}
	return true
}

func (g *peerLimitGater) InterceptUpgraded(conn network.Conn) (bool, control.DisconnectReason) {
	g.mu.Lock()
	g.connected[conn.RemotePeer()] = struct{}{}
	g.mu.Unlock()
	return true, 0
}

// forget removes a peer from the connected set on disconnect, called from
// the DisconnectedF hook of the swarm's network notifiee.
func (g *peerLimitGater) forget(p peer.ID) {
	g.mu.Lock()
	delete(g.connected, p)
	g.mu.Unlock()
}

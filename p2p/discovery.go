package p2p

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"

	"github.com/probeum/mintpool/log"
)

// mdnsServiceTag namespaces mintpool's mDNS announcements from any other
// libp2p application on the same local network.
const mdnsServiceTag = "mintpool::mdns"

const mdnsDialTimeout = 10 * time.Second

// mdnsNotifee dials every peer mDNS discovers on the local network,
// complementing the DHT-based rendezvous for nodes sharing a LAN with no
// line of sight to a bootstrap peer, per SPEC_FULL.md §4.4's transport
// stack list.
type mdnsNotifee struct {
	host host.Host
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() || len(info.Addrs) == 0 {
		return
	}
	if n.host.Network().Connectedness(info.ID) == network.Connected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mdnsDialTimeout)
	defer cancel()
	if err := n.host.Connect(ctx, info); err != nil {
		log.Debug("p2p: failed to dial mdns-discovered peer", "peer", info.ID, "err", err)
	}
}

// startMDNS registers the mDNS discovery service and returns its closer.
// Safe to call even on networks where multicast is unavailable; mdns.
// NewMdnsService degrades to inert rather than failing.
func startMDNS(h host.Host) (mdns.Service, error) {
	svc := mdns.NewMdnsService(h, mdnsServiceTag, &mdnsNotifee{host: h})
	if err := svc.Start(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Package p2p implements mintpool's swarm: a go-libp2p host carrying
// gossipsub pub/sub, Kademlia DHT rendezvous, mDNS local discovery, NAT
// traversal, and a request/response anti-entropy sync protocol. It is the
// idiomatic Go binding for SPEC_FULL.md §4.4's transport stack, built
// directly on go-libp2p rather than translated from rust-libp2p's
// SwarmBuilder/NetworkBehaviour — no file in this tree's teacher or example
// corpus constructs a libp2p host, so this package follows go-libp2p's own
// conventions (functional options into libp2p.New, a host.Host the rest of
// the package composes against) rather than any one example's shape.
package p2p

import (
	"context"
	"fmt"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/probeum/mintpool/log"
)

// GossipProtocolID is the custom gossipsub wire protocol id, distinguishing
// mintpool's mesh from any other gossipsub user sharing the same process.
const GossipProtocolID = protocol.ID("/mintpool/0.1.0")

// RendezvousKey is the fixed DHT provider-record key nodes advertise
// themselves under so peers with no bootstrap list can still find the mesh.
const RendezvousKey = "mintpool::gossip"

// SyncProtocolID is the request/response anti-entropy protocol id.
const SyncProtocolID = protocol.ID("/mintpool-sync/1")

const gossipHeartbeat = 10 * time.Second

func init() {
	// go-libp2p-pubsub v0.10's heartbeat interval is a package-level knob
	// rather than a per-instance option; set once at process start.
	pubsub.GossipSubHeartbeatInterval = gossipHeartbeat
}

// HostConfig is the subset of config.Config the swarm needs to construct
// its libp2p host.
type HostConfig struct {
	PrivateKey      libp2pcrypto.PrivKey
	PeerPort        uint16
	ConnectExternal bool
	PeerLimit       uint64
}

// listenAddrs builds the TCP and QUIC multiaddrs to listen on, binding
// 0.0.0.0 when CONNECT_EXTERNAL is set and 127.0.0.1 otherwise, per
// SPEC_FULL.md §6.
func (c HostConfig) listenAddrs() []string {
	bindIP := "127.0.0.1"
	if c.ConnectExternal {
		bindIP = "0.0.0.0"
	}
	return []string{
		fmt.Sprintf("/ip4/%s/tcp/%d", bindIP, c.PeerPort),
		fmt.Sprintf("/ip4/%s/udp/%d/quic-v1", bindIP, c.PeerPort),
	}
}

// NewHost constructs the libp2p host with its own peer-limit gater, for any
// caller that doesn't need to share the gater with the rest of the swarm;
// New (the swarm constructor) uses newHostWithGater instead so it can
// forget disconnected peers from the same gater instance it gated them
// with.
func NewHost(cfg HostConfig) (host.Host, error) {
	return newHostWithGater(cfg, newPeerLimitGater(cfg.PeerLimit))
}

// newHostWithGater constructs the libp2p host: Noise-encrypted TCP and QUIC
// transport, a peer-limit connection gater, and the NAT traversal stack
// (autonat, UPnP/NAT-PMP port mapping, relay client/server, DCUtR
// hole-punching) named in SPEC_FULL.md §4.4.
func newHostWithGater(cfg HostConfig, gater *peerLimitGater) (host.Host, error) {
	h, err := libp2p.New(
		libp2p.Identity(cfg.PrivateKey),
		libp2p.ListenAddrStrings(cfg.listenAddrs()...),
		libp2p.DefaultTransports,
		libp2p.ConnectionGater(gater),
		libp2p.EnableNATService(),
		libp2p.NATPortMap(),
		libp2p.EnableRelay(),
		libp2p.EnableRelayService(),
		libp2p.EnableHolePunching(),
	)
	if err != nil {
		return nil, fmt.Errorf("p2p: constructing libp2p host: %w", err)
	}
	log.Info("p2p host started", "peer_id", h.ID().String(), "addrs", h.Addrs())
	return h, nil
}

// NewDHT constructs the Kademlia DHT in server mode, used only as a
// rendezvous mechanism (provider records under RendezvousKey), not as a
// general routing table for gossipsub itself.
func NewDHT(ctx context.Context, h host.Host) (*dht.IpfsDHT, error) {
	kad, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
	if err != nil {
		return nil, fmt.Errorf("p2p: constructing kademlia dht: %w", err)
	}
	if err := kad.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("p2p: bootstrapping kademlia dht: %w", err)
	}
	return kad, nil
}

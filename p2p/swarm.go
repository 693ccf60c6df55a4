package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	libp2pping "github.com/libp2p/go-libp2p/p2p/protocol/ping"

	"github.com/probeum/mintpool/log"
	"github.com/probeum/mintpool/premint"
	"github.com/probeum/mintpool/storage"
)

// eventChannelCapacity is the bounded-channel capacity SPEC_FULL.md §5
// requires for every inter-actor channel ("capacity 1024, full channel
// blocks the producer").
const eventChannelCapacity = 1024

// Swarm wires together the libp2p host, gossipsub, Kademlia DHT rendezvous,
// and the anti-entropy sync protocol into the single actor the pool
// controller talks to. It owns no pool state itself — every inbound
// message is forwarded to Events for the controller to validate and apply.
type Swarm struct {
	host  host.Host
	ps    *pubsub.PubSub
	dht   *dht.IpfsDHT
	gater *peerLimitGater

	kinds []premint.Kind

	topics map[string]*pubsub.Topic
	subs   map[string]*pubsub.Subscription

	mappers map[premint.Kind]premint.ClaimMapper

	Events chan Event

	syncHandler *syncResponder
	mdnsService mdns.Service
	rtt         *rttTracker

	externalAddress string

	mu          sync.Mutex
	announced   bool
	providingCh chan struct{}
}

// Deps bundles the external collaborators the swarm needs when handling a
// sync request, kept separate from HostConfig since they're resolved after
// the host exists (storage is constructed independently of the network
// layer).
type Deps struct {
	ListAllWithOptions func(opts storage.QueryOptions) ([]premint.Premint, error)
}

// New constructs the swarm actor: the libp2p host, gossipsub, and Kademlia
// DHT, but does not yet join any topics or start the sync responder — call
// Start for that.
func New(ctx context.Context, cfg HostConfig, kinds []premint.Kind, mappers map[premint.Kind]premint.ClaimMapper, externalAddress string, deps Deps) (*Swarm, error) {
	gater := newPeerLimitGater(cfg.PeerLimit)

	h, err := newHostWithGater(cfg, gater)
	if err != nil {
		return nil, err
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageIdFn(messageID),
		pubsub.WithGossipSubProtocols([]protocol.ID{GossipProtocolID}, pubsub.GossipSubDefaultFeatures),
	)
	if err != nil {
		return nil, fmt.Errorf("p2p: constructing gossipsub: %w", err)
	}

	kad, err := NewDHT(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("p2p: constructing dht: %w", err)
	}

	s := &Swarm{
		host:            h,
		ps:              ps,
		dht:             kad,
		gater:           gater,
		kinds:           kinds,
		topics:          make(map[string]*pubsub.Topic),
		subs:            make(map[string]*pubsub.Subscription),
		mappers:         mappers,
		Events:          make(chan Event, eventChannelCapacity),
		externalAddress: externalAddress,
		providingCh:     make(chan struct{}),
	}
	s.syncHandler = newSyncResponder(h, deps)
	s.rtt = newRTTTracker(libp2pping.NewPingService(h))

	h.Network().Notify(s.connNotifiee())

	return s, nil
}

// Start joins every configured gossip topic and begins both the DHT
// provide loop (once an external address is confirmed) and each topic's
// message pump.
func (s *Swarm) Start(ctx context.Context) error {
	topics := []string{AnnounceTopic}
	for _, k := range s.kinds {
		topics = append(topics, PremintTopic(k), ClaimTopic(k))
	}

	for _, name := range topics {
		topic, err := s.ps.Join(name)
		if err != nil {
			return fmt.Errorf("p2p: joining topic %q: %w", name, err)
		}
		sub, err := topic.Subscribe()
		if err != nil {
			return fmt.Errorf("p2p: subscribing to topic %q: %w", name, err)
		}
		s.topics[name] = topic
		s.subs[name] = sub
		go s.pumpTopic(ctx, name, sub)
	}

	if s.externalAddress != "" {
		go s.provideLoop(ctx)
	}

	svc, err := startMDNS(s.host)
	if err != nil {
		log.Warn("p2p: mdns discovery unavailable", "err", err)
	} else {
		s.mdnsService = svc
	}

	go s.rtt.run(ctx, s)

	return nil
}

// BestPeerByRTT exposes the ping tracker's lowest-latency connected peer.
func (s *Swarm) BestPeerByRTT() (peer.ID, time.Duration, bool) {
	return s.rtt.BestPeerByRTT()
}

func (s *Swarm) pumpTopic(ctx context.Context, topicName string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Debug("p2p: topic subscription ended", "topic", topicName, "err", err)
			return
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		s.handleMessage(topicName, msg)
	}
}

func (s *Swarm) handleMessage(topicName string, msg *pubsub.Message) {
	switch {
	case topicName == AnnounceTopic:
		s.handleAnnounce(msg)
	case isPremintTopic(topicName):
		p, err := premint.FromJSON(msg.Data)
		if err != nil {
			log.Debug("p2p: dropping malformed premint gossip", "topic", topicName, "err", err)
			return
		}
		s.emit(Event{Kind: EventPremintReceived, Premint: p})
	case isClaimTopic(topicName):
		var claim premint.InclusionClaim
		if err := json.Unmarshal(msg.Data, &claim); err != nil {
			log.Debug("p2p: dropping malformed claim gossip", "topic", topicName, "err", err)
			return
		}
		s.emit(Event{
			Kind:  EventClaimReceived,
			Claim: premint.PeerInclusionClaim{Claim: claim, FromPeerID: msg.ReceivedFrom.String()},
		})
	}
}

func (s *Swarm) handleAnnounce(msg *pubsub.Message) {
	addrStr := string(msg.Data)
	info, err := peer.AddrInfoFromString(addrStr)
	if err != nil {
		log.Debug("p2p: dropping malformed announce payload", "err", err)
		return
	}
	if len(info.Addrs) > 0 {
		for _, known := range s.host.Peerstore().Addrs(info.ID) {
			if known.Equal(info.Addrs[0]) {
				return
			}
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.host.Connect(ctx, *info); err != nil {
		log.Debug("p2p: failed to dial announced peer", "peer", info.ID, "err", err)
	}
}

func (s *Swarm) emit(ev Event) {
	select {
	case s.Events <- ev:
	default:
		log.Warn("p2p: event channel full, applying backpressure", "kind", ev.Kind)
		s.Events <- ev
	}
}

// AnnounceSelf publishes the local peer's best listening address to the
// announce topic, per SPEC_FULL.md §4.4.2.
func (s *Swarm) AnnounceSelf(ctx context.Context) error {
	addr := s.bestListenAddr()
	if addr == "" {
		return fmt.Errorf("p2p: no external address to announce")
	}
	topic, ok := s.topics[AnnounceTopic]
	if !ok {
		return fmt.Errorf("p2p: announce topic not joined")
	}
	return topic.Publish(ctx, []byte(addr))
}

func (s *Swarm) bestListenAddr() string {
	if s.externalAddress != "" {
		return fmt.Sprintf("%s/p2p/%s", s.externalAddress, s.host.ID())
	}
	addrs := s.host.Addrs()
	if len(addrs) == 0 {
		return ""
	}
	return fmt.Sprintf("%s/p2p/%s", addrs[0], s.host.ID())
}

// PublishPremint gossips a validated premint on its kind's premint topic.
func (s *Swarm) PublishPremint(ctx context.Context, p premint.Premint) error {
	data, err := premint.ToJSON(p)
	if err != nil {
		return err
	}
	return s.publish(ctx, PremintTopic(p.Metadata().Kind), data)
}

// PublishClaim gossips an inclusion claim on its kind's claim topic.
func (s *Swarm) PublishClaim(ctx context.Context, claim premint.InclusionClaim) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return err
	}
	return s.publish(ctx, ClaimTopic(claim.Kind), data)
}

func (s *Swarm) publish(ctx context.Context, topicName string, data []byte) error {
	topic, ok := s.topics[topicName]
	if !ok {
		return fmt.Errorf("p2p: topic %q not joined", topicName)
	}
	return topic.Publish(ctx, data)
}

// ConnectToPeer dials a peer given its multiaddr string (must end in
// `/p2p/<peer-id>`).
func (s *Swarm) ConnectToPeer(ctx context.Context, addr string) error {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return fmt.Errorf("p2p: parsing peer address: %w", err)
	}
	return s.host.Connect(ctx, *info)
}

// NetworkState summarizes the swarm's currently connected peers and
// listen addresses, for the controller's ReturnNetworkState command.
type NetworkState struct {
	PeerID         string
	ListenAddrs    []string
	ConnectedPeers []string
}

func (s *Swarm) NetworkState() NetworkState {
	conns := s.host.Network().Peers()
	peers := make([]string, 0, len(conns))
	for _, p := range conns {
		peers = append(peers, p.String())
	}
	addrs := make([]string, 0, len(s.host.Addrs()))
	for _, a := range s.host.Addrs() {
		addrs = append(addrs, a.String())
	}
	return NetworkState{PeerID: s.host.ID().String(), ListenAddrs: addrs, ConnectedPeers: peers}
}

func (s *Swarm) connNotifiee() *network.NotifyBundle {
	return &network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			if c.Stat().Direction == network.DirOutbound {
				s.dht.RoutingTable().TryAddPeer(c.RemotePeer(), true, false)
			}
			s.emit(Event{Kind: EventPeerConnected, Peer: c.RemotePeer()})
		},
		DisconnectedF: func(_ network.Network, c network.Conn) {
			s.gater.forget(c.RemotePeer())
			s.emit(Event{Kind: EventPeerDisconnected, Peer: c.RemotePeer()})
		},
	}
}

// provideLoop advertises this node as a provider of RendezvousKey once an
// external address is confirmed, refreshing every minute per
// SPEC_FULL.md §4.4.2, and separately searches for other providers to dial.
func (s *Swarm) provideLoop(ctx context.Context) {
	key, err := rendezvousCID()
	if err != nil {
		log.Error("p2p: computing rendezvous key", "err", err)
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		if err := s.dht.Provide(ctx, key, true); err != nil {
			log.Debug("p2p: dht provide failed", "err", err)
		}
		s.findAndDialProviders(ctx, key)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Swarm) findAndDialProviders(ctx context.Context, key cidType) {
	peersCh := s.dht.FindProvidersAsync(ctx, key, 20)
	for info := range peersCh {
		if info.ID == s.host.ID() || len(info.Addrs) == 0 {
			continue
		}
		if s.host.Network().Connectedness(info.ID) == network.Connected {
			continue
		}
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := s.host.Connect(dialCtx, info); err != nil {
			log.Debug("p2p: failed to dial dht-discovered peer", "peer", info.ID, "err", err)
		}
		cancel()
	}
}

// Close shuts down every joined topic and the underlying host.
func (s *Swarm) Close() error {
	if s.mdnsService != nil {
		s.mdnsService.Close()
	}
	for _, sub := range s.subs {
		sub.Cancel()
	}
	for _, topic := range s.topics {
		topic.Close()
	}
	if err := s.dht.Close(); err != nil {
		log.Warn("p2p: error closing dht", "err", err)
	}
	return s.host.Close()
}

func (s *Swarm) Host() host.Host { return s.host }

func isPremintTopic(name string) bool {
	return hasTopicPrefix(name, "mintpool::premint::")
}

func isClaimTopic(name string) bool {
	return hasTopicPrefix(name, "mintpool::claim::")
}

func hasTopicPrefix(name, prefix string) bool {
	return len(name) > len(prefix) && name[:len(prefix)] == prefix
}

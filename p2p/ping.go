package p2p

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	libp2pping "github.com/libp2p/go-libp2p/p2p/protocol/ping"

	"github.com/probeum/mintpool/log"
)

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 5 * time.Second
)

// rttTracker records the most recent ping RTT per peer so relay selection
// can prefer low-latency paths, per spec.md §4.4.2 ("Ping RTTs are fed back
// to the relay-selection policy"). This is a best-effort sampler, not a
// full relay-selection implementation — go-libp2p's own autorelay picks
// relays internally, so the tracker here is consulted advisorily (via
// BestPeerByRTT) rather than wired into autorelay's candidate list, which
// the library does not expose a hook for in this version.
type rttTracker struct {
	pinger *libp2pping.PingService

	mu   sync.Mutex
	rtts map[peer.ID]time.Duration
}

func newRTTTracker(svc *libp2pping.PingService) *rttTracker {
	return &rttTracker{pinger: svc, rtts: make(map[peer.ID]time.Duration)}
}

// run pings every connected peer on a fixed interval until ctx is done.
func (t *rttTracker) run(ctx context.Context, s *Swarm) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range s.host.Network().Peers() {
				t.pingOnce(ctx, p)
			}
		}
	}
}

func (t *rttTracker) pingOnce(ctx context.Context, p peer.ID) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resCh := t.pinger.Ping(pingCtx, p)
	select {
	case res := <-resCh:
		if res.Error != nil {
			return
		}
		t.mu.Lock()
		t.rtts[p] = res.RTT
		t.mu.Unlock()
	case <-pingCtx.Done():
		log.Debug("p2p: ping timed out", "peer", p)
	}
}

// BestPeerByRTT returns the connected peer with the lowest observed RTT,
// for callers choosing among several relay candidates. Returns false if no
// RTT samples have been collected yet.
func (t *rttTracker) BestPeerByRTT() (peer.ID, time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		best    peer.ID
		bestRTT time.Duration
		found   bool
	)
	for p, rtt := range t.rtts {
		if !found || rtt < bestRTT {
			best, bestRTT, found = p, rtt, true
		}
	}
	return best, bestRTT, found
}

package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/probeum/mintpool/log"
	"github.com/probeum/mintpool/rules"
)

// Pool is the process-wide chain provider cache keyed by chain id, per
// spec.md §5 ("the chain-provider cache is process-wide, idle-expires
// entries after 5 minutes, and serializes connection setup per URL").
// Implemented as a guarded map (rather than sync.Map) since dial guards
// must be created-or-fetched atomically per chain id.
type Pool struct {
	mu        sync.Mutex
	providers map[uint64]*Provider
	dialing   map[uint64]*sync.Mutex
	urls      map[uint64]string

	stopSweep chan struct{}
}

// NewPool constructs an empty provider pool and starts its idle-expiry
// sweep. chainURLs maps chain id to its WebSocket RPC URL (operator
// configured, analogous to the original's bundled chains.json).
func NewPool(chainURLs map[uint64]string) *Pool {
	p := &Pool{
		providers: make(map[uint64]*Provider),
		dialing:   make(map[uint64]*sync.Mutex),
		urls:      chainURLs,
		stopSweep: make(chan struct{}),
	}
	go p.sweepIdle()
	return p
}

// Get returns a cached provider for chainID, dialing a fresh one if
// necessary. Connection setup is serialized per chain id so concurrent
// callers don't open duplicate sockets.
func (p *Pool) Get(ctx context.Context, chainID uint64) (*Provider, error) {
	p.mu.Lock()
	if existing, ok := p.providers[chainID]; ok {
		p.mu.Unlock()
		return existing, nil
	}
	guard, ok := p.dialing[chainID]
	if !ok {
		guard = &sync.Mutex{}
		p.dialing[chainID] = guard
	}
	p.mu.Unlock()

	guard.Lock()
	defer guard.Unlock()

	p.mu.Lock()
	if existing, ok := p.providers[chainID]; ok {
		p.mu.Unlock()
		return existing, nil
	}
	url, ok := p.urls[chainID]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("chain: no RPC URL configured for chain %d", chainID)
	}

	provider, err := newProvider(ctx, chainID, url)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.providers[chainID] = provider
	p.mu.Unlock()
	return provider, nil
}

// RPCFor adapts Get to the rules.ChainClient resolver signature the
// rules engine expects.
func (p *Pool) RPCFor(chainID uint64) (rules.ChainClient, error) {
	provider, err := p.Get(context.Background(), chainID)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func (p *Pool) sweepIdle() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-idleExpiry).Unix()
			p.mu.Lock()
			for id, provider := range p.providers {
				if provider.lastUsed.Load() < cutoff {
					log.Debug("expiring idle chain provider", "chain_id", id)
					provider.Close()
					delete(p.providers, id)
				}
			}
			p.mu.Unlock()
		}
	}
}

// Close stops the idle sweep and closes every cached provider.
func (p *Pool) Close() {
	close(p.stopSweep)
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, provider := range p.providers {
		provider.Close()
		delete(p.providers, id)
	}
}

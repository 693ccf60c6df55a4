package chain

import (
	"context"
	"time"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/log"
	"github.com/probeum/mintpool/premint"
)

const reconnectBackoff = 5 * time.Second

// Watcher runs one long-lived task per configured chain id, subscribing
// to the premint factory's mint-executed event and emitting
// ResolveOnchainMint claims to onClaim. Grounded on the original's
// MintChecker.poll_for_new_mints loop (subscribe, stream logs, track
// highest block, reconnect on stream error with a fixed backoff).
type Watcher struct {
	chainID   uint64
	pool      *Pool
	mapper    premint.ClaimMapper
	onClaim   func(premint.InclusionClaim)
	address   common.Address
	topicHash common.Hash
}

// NewWatcher constructs a watcher for one chain id against one premint
// variant's factory address and event signature. mapper.MapClaim is
// called for every matching log.
func NewWatcher(chainID uint64, pool *Pool, address common.Address, topicHash common.Hash, mapper premint.ClaimMapper, onClaim func(premint.InclusionClaim)) *Watcher {
	return &Watcher{
		chainID:   chainID,
		pool:      pool,
		mapper:    mapper,
		onClaim:   onClaim,
		address:   address,
		topicHash: topicHash,
	}
}

// Run blocks, reconnecting indefinitely until ctx is cancelled. It never
// terminates on its own otherwise, per spec.md §4.5/§5.
func (w *Watcher) Run(ctx context.Context) {
	var highestBlock *uint64

	for {
		if ctx.Err() != nil {
			return
		}

		provider, err := w.pool.Get(ctx, w.chainID)
		if err != nil {
			log.Error("chain watcher: error getting provider", "chain_id", w.chainID, "err", err)
			if !sleepOrDone(ctx, reconnectBackoff) {
				return
			}
			continue
		}

		log.Info("chain watcher starting", "chain_id", w.chainID)

		sub, err := provider.SubscribeLogs(ctx, w.address, w.topicHash, highestBlock)
		if err != nil {
			log.Error("chain watcher: error subscribing to logs", "chain_id", w.chainID, "err", err)
			if !sleepOrDone(ctx, reconnectBackoff) {
				return
			}
			continue
		}

		w.consume(ctx, sub, &highestBlock)
		sub.Unsubscribe()

		if !sleepOrDone(ctx, reconnectBackoff) {
			return
		}
	}
}

func (w *Watcher) consume(ctx context.Context, sub *LogSubscription, highestBlock **uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case l, ok := <-sub.Logs():
			if !ok {
				return
			}
			w.handleLog(l)
			blockNum := l.BlockNumber()
			*highestBlock = &blockNum
		}
	}
}

func (w *Watcher) handleLog(l Log) {
	chainLog := premint.ChainLog{
		Address:     w.address,
		TxHash:      l.TxHash,
		LogIndex:    l.LogIndex(),
		BlockNumber: l.BlockNumber(),
		Topics:      l.Topics,
	}

	claim, err := w.mapper.MapClaim(w.chainID, chainLog)
	if err != nil {
		log.Error("chain watcher: error processing log while checking premint", "chain_id", w.chainID, "err", err)
		return
	}
	log.Debug("chain watcher found claim of inclusion", "premint_id", claim.PremintID, "chain_id", w.chainID)
	w.onClaim(claim)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Package controller implements the pool controller: the central arbiter
// between the HTTP/CLI surface, the swarm, the chain watchers, and
// storage. Grounded on the original's src/controller.rs actor (a single
// task cooperatively polling four input streams: external commands, swarm
// events, a sync ticker, and outstanding swarm-command replies) and on
// the teacher's probe.Probeum service object, which likewise owns every
// subsystem handle and exposes plain getters/command methods rather than
// its own transport.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/sync/semaphore"

	"github.com/probeum/mintpool/chain"
	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/config"
	"github.com/probeum/mintpool/log"
	"github.com/probeum/mintpool/metrics"
	"github.com/probeum/mintpool/p2p"
	"github.com/probeum/mintpool/premint"
	"github.com/probeum/mintpool/rules"
	"github.com/probeum/mintpool/storage"
)

// syncInitialDelay and syncInterval are the sync ticker's cadence per
// spec.md §4.2/§8 scenario 6: the first anti-entropy round fires ~5s
// after startup (so a node joining an existing mesh backfills quickly),
// steady-state rounds fire every 60 minutes after that.
const (
	syncInitialDelay = 5 * time.Second
	syncInterval     = 60 * time.Minute
)

// maxInFlightRevalidations bounds concurrent rule evaluation during a
// sync pull, per spec.md §4.4.3 ("bounded concurrency, ≤10 in-flight
// validations").
const maxInFlightRevalidations = 10

// Swarm is the subset of *p2p.Swarm the controller drives. Kept as an
// interface so tests can substitute a fake without a real libp2p host.
type Swarm interface {
	PublishPremint(ctx context.Context, p premint.Premint) error
	PublishClaim(ctx context.Context, claim premint.InclusionClaim) error
	ConnectToPeer(ctx context.Context, addr string) error
	AnnounceSelf(ctx context.Context) error
	NetworkState() p2p.NetworkState
	RequestSync(ctx context.Context, peer peer.ID, opts storage.QueryOptions) ([]premint.Premint, error)
	RandomMeshPeer() (peer.ID, bool)
}

// NodeInfo answers ReturnNodeInfo: static identity and configuration a
// caller would otherwise have to piece together from several sources.
type NodeInfo struct {
	PeerID             string
	SupportedKinds     []premint.Kind
	ChainInclusionMode config.ChainInclusionMode
}

// BroadcastResult is delivered on a Broadcast command's reply channel:
// either the rule engine's combined verdict (possibly a rejection) or a
// hard error, per spec.md §4.2 ("Broadcast replies use a one-shot channel
// so the API can surface rule rejections as 400... and internal errors
// as 500").
type BroadcastResult struct {
	Results rules.Results
	Err     error
}

// QueryResult is delivered on a Query command's reply channel.
type QueryResult struct {
	Premints []premint.Premint
	Err      error
}

// Command is the controller's external command enumeration, per
// SPEC_FULL.md §6: ConnectToPeer, ReturnNetworkState, ReturnNodeInfo,
// AnnounceSelf, Broadcast{message, reply}, Query, ResolveOnchainMint,
// Sync.
type Command interface{ isCommand() }

type ConnectToPeerCommand struct {
	Addr  string
	Reply chan error
}

type ReturnNetworkStateCommand struct {
	Reply chan p2p.NetworkState
}

type ReturnNodeInfoCommand struct {
	Reply chan NodeInfo
}

type AnnounceSelfCommand struct {
	Reply chan error
}

type BroadcastCommand struct {
	Premint premint.Premint
	Reply   chan BroadcastResult
}

type QueryCommand struct {
	Options storage.QueryOptions
	Reply   chan QueryResult
}

type ResolveOnchainMintCommand struct {
	Claim premint.InclusionClaim
}

type SyncCommand struct {
	Reply chan error
}

func (ConnectToPeerCommand) isCommand()      {}
func (ReturnNetworkStateCommand) isCommand() {}
func (ReturnNodeInfoCommand) isCommand()     {}
func (AnnounceSelfCommand) isCommand()       {}
func (BroadcastCommand) isCommand()          {}
func (QueryCommand) isCommand()              {}
func (ResolveOnchainMintCommand) isCommand() {}
func (SyncCommand) isCommand()               {}

// commandChannelCapacity matches the bounded-channel rule of
// SPEC_FULL.md §5 ("capacity 1024, full channel blocks the producer").
const commandChannelCapacity = 1024

// asyncResult is how a goroutine spawned to perform blocking network I/O
// (dialing a peer, announcing, running a sync round) reports back to the
// controller's single select loop, so every mutation of controller state
// and every reply delivery still happens on one goroutine.
type asyncResult struct {
	apply func()
}

// Controller is the central arbiter described in spec.md §4.2: it owns
// storage, the rules engine, and a swarm handle, and is the only
// component allowed to mutate storage or publish to the swarm.
type Controller struct {
	storage *storage.Storage
	rules   *rules.Engine
	swarm   Swarm
	metrics *metrics.Registry

	mode         config.ChainInclusionMode
	trustedPeers mapset.Set
	verifiers    map[premint.Kind]premint.ClaimVerifier
	chainPool    *chain.Pool
	syncLookback time.Duration

	nodeInfo NodeInfo

	Commands chan Command
	events   <-chan p2p.Event
	replies  chan asyncResult
}

// receiptFetcher is the minimal RPC surface Check/Verify-mode claim
// verification needs; *chain.Provider satisfies it.
type receiptFetcher interface {
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, error)
}

// New constructs a controller. chainPool resolves a receipt-fetching
// client for a chain id lazily via Get; pass nil to disable RPC-backed
// claim verification entirely (Check/Verify mode claims are then always
// rejected, a fail-closed posture rather than a silent pass). syncLookback
// bounds every sync round's pull query to premints created within that
// window (spec.md §4.2's sync_lookback_hours); zero disables the bound
// entirely.
func New(
	store *storage.Storage,
	engine *rules.Engine,
	swarm Swarm,
	events <-chan p2p.Event,
	metricsReg *metrics.Registry,
	mode config.ChainInclusionMode,
	trustedPeers []string,
	verifiers map[premint.Kind]premint.ClaimVerifier,
	chainPool *chain.Pool,
	syncLookback time.Duration,
	nodeInfo NodeInfo,
) *Controller {
	trusted := mapset.NewThreadUnsafeSet()
	for _, p := range trustedPeers {
		trusted.Add(p)
	}
	return &Controller{
		storage:      store,
		rules:        engine,
		swarm:        swarm,
		metrics:      metricsReg,
		mode:         mode,
		trustedPeers: trusted,
		verifiers:    verifiers,
		chainPool:    chainPool,
		syncLookback: syncLookback,
		nodeInfo:     nodeInfo,
		Commands:     make(chan Command, commandChannelCapacity),
		events:       events,
		replies:      make(chan asyncResult, commandChannelCapacity),
	}
}

// Run is the controller's single actor loop, cooperatively polling the
// four input streams spec.md §4.2/SPEC_FULL.md §5 names: external
// commands, swarm events, the sync ticker, and outstanding swarm-command
// replies. Blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	// A plain Ticker fires on a fixed period from the moment it's created,
	// so the first sync round wouldn't land until syncInterval had
	// elapsed. Using a Timer reset after each fire — the same
	// discard-then-reset idiom the teacher's miner worker loop uses for
	// its seal-deadline timers — lets the first fire use a short delay
	// and every fire after that use the steady interval.
	timer := time.NewTimer(syncInitialDelay)
	defer timer.Stop()

	log.Info("pool controller started", "mode", c.mode)

	for {
		select {
		case <-ctx.Done():
			log.Info("pool controller stopping")
			return

		case cmd := <-c.Commands:
			c.handleCommand(ctx, cmd)

		case ev := <-c.events:
			c.handleSwarmEvent(ctx, ev)

		case <-timer.C:
			c.metrics.SyncTicks.Inc(1)
			c.startSyncRound(ctx, nil)
			timer.Reset(syncInterval)

		case result := <-c.replies:
			result.apply()
		}
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd Command) {
	switch cmd := cmd.(type) {
	case ConnectToPeerCommand:
		c.handleConnectToPeer(ctx, cmd)
	case ReturnNetworkStateCommand:
		cmd.Reply <- c.swarm.NetworkState()
	case ReturnNodeInfoCommand:
		cmd.Reply <- c.nodeInfo
	case AnnounceSelfCommand:
		c.handleAnnounceSelf(ctx, cmd)
	case BroadcastCommand:
		c.handleBroadcast(ctx, cmd)
	case QueryCommand:
		c.handleQuery(cmd)
	case ResolveOnchainMintCommand:
		c.handleResolveOnchainMint(ctx, cmd.Claim)
	case SyncCommand:
		c.startSyncRound(ctx, cmd.Reply)
	default:
		log.Error("pool controller: unknown command", "type", fmt.Sprintf("%T", cmd))
	}
}

// handleConnectToPeer dials asynchronously so a slow/unreachable peer
// never stalls the controller's other three input streams.
func (c *Controller) handleConnectToPeer(ctx context.Context, cmd ConnectToPeerCommand) {
	go func() {
		err := c.swarm.ConnectToPeer(ctx, cmd.Addr)
		c.replies <- asyncResult{apply: func() {
			if cmd.Reply != nil {
				cmd.Reply <- err
			}
		}}
	}()
}

func (c *Controller) handleAnnounceSelf(ctx context.Context, cmd AnnounceSelfCommand) {
	go func() {
		err := c.swarm.AnnounceSelf(ctx)
		c.replies <- asyncResult{apply: func() {
			if cmd.Reply != nil {
				cmd.Reply <- err
			}
		}}
	}()
}

// handleBroadcast implements spec.md §4.2's Broadcast: validate locally
// and insert before emitting to the network, so the local node never
// forwards what it would reject itself.
func (c *Controller) handleBroadcast(ctx context.Context, cmd BroadcastCommand) {
	results, err := c.validateAndInsert(ctx, cmd.Premint)
	if err != nil {
		cmd.Reply <- BroadcastResult{Err: err}
		return
	}
	if !results.IsAccept() {
		cmd.Reply <- BroadcastResult{Results: results}
		return
	}

	if err := c.swarm.PublishPremint(ctx, cmd.Premint); err != nil {
		cmd.Reply <- BroadcastResult{Results: results, Err: fmt.Errorf("controller: publishing premint: %w", err)}
		return
	}
	c.metrics.BroadcastsSent.Inc(1)
	cmd.Reply <- BroadcastResult{Results: results}
}

func (c *Controller) handleQuery(cmd QueryCommand) {
	premints, err := c.storage.ListAllWithOptions(cmd.Options)
	cmd.Reply <- QueryResult{Premints: premints, Err: err}
}

// handleResolveOnchainMint implements spec.md §4.2's
// ResolveOnchainMint(local watcher): mark seen on chain, then broadcast
// the claim to peers only in Check mode so nodes not watching that chain
// can also retire.
func (c *Controller) handleResolveOnchainMint(ctx context.Context, claim premint.InclusionClaim) {
	if err := c.storage.MarkSeenOnChain(claim); err != nil {
		log.Error("controller: marking premint seen on chain", "premint_id", claim.PremintID, "err", err)
		return
	}
	c.metrics.ClaimRetired(string(c.mode))

	if c.mode != config.ModeCheck {
		return
	}
	if err := c.swarm.PublishClaim(ctx, claim); err != nil {
		log.Error("controller: broadcasting inclusion claim", "premint_id", claim.PremintID, "err", err)
	}
}

// handleSwarmEvent dispatches the four event kinds the swarm emits.
func (c *Controller) handleSwarmEvent(ctx context.Context, ev p2p.Event) {
	switch ev.Kind {
	case p2p.EventPremintReceived:
		c.handlePremintReceived(ctx, ev.Premint)
	case p2p.EventClaimReceived:
		c.handlePeerClaim(ctx, ev.Claim)
	case p2p.EventPeerConnected:
		log.Debug("controller: peer connected", "peer", ev.Peer)
	case p2p.EventPeerDisconnected:
		log.Debug("controller: peer disconnected", "peer", ev.Peer)
	}
}

// handlePremintReceived implements spec.md §4.2's PremintReceived (from
// peers): same validate-and-insert path as Broadcast, silent drop on
// Reject/Ignore/error — unlike Broadcast there is no reply channel to
// report failure to.
func (c *Controller) handlePremintReceived(ctx context.Context, p premint.Premint) {
	c.metrics.PremintsReceived.Inc(1)
	results, err := c.validateAndInsert(ctx, p)
	if err != nil {
		log.Error("controller: evaluating peer premint", "err", err)
		return
	}
	if !results.IsAccept() {
		log.Debug("controller: dropping peer premint", "verdict", results.Summary())
	}
}

// validateAndInsert runs the rules engine and, only on an overall Accept,
// stores the premint. Shared by Broadcast and PremintReceived so neither
// path can forward or persist something the engine would reject.
func (c *Controller) validateAndInsert(ctx context.Context, p premint.Premint) (rules.Results, error) {
	results, err := c.rules.Evaluate(ctx, p, c.storage)
	if err != nil {
		return rules.Results{}, err
	}
	if results.IsError() {
		for _, reason := range results.Errors() {
			log.Error("controller: rule evaluation error", "err", reason)
		}
		return results, nil
	}
	if results.IsReject() {
		for _, name := range results.RejectedRuleNames() {
			c.metrics.PremintRejected(name)
		}
		return results, nil
	}

	if err := c.storage.Store(p); err != nil {
		return results, fmt.Errorf("controller: storing premint: %w", err)
	}
	c.metrics.PremintsAccepted.Inc(1)
	return results, nil
}

// handlePeerClaim implements spec.md §4.2's MintSeenOnchain(peer claim)
// mode-gated retirement: Check/Verify modes require an independent
// on-chain confirmation via inclusion_claim_correct; Trust mode retires
// solely on the source peer being in the trusted list.
func (c *Controller) handlePeerClaim(ctx context.Context, claim premint.PeerInclusionClaim) {
	switch c.mode {
	case config.ModeTrust:
		if !c.trustedPeers.Contains(claim.FromPeerID) {
			log.Debug("controller: dropping claim from untrusted peer", "peer", claim.FromPeerID)
			return
		}
		c.retire(claim.Claim)

	case config.ModeCheck, config.ModeVerify:
		ok, err := c.verifyInclusionClaim(ctx, claim.Claim)
		if err != nil {
			log.Error("controller: verifying peer claim", "err", err)
			return
		}
		if !ok {
			log.Debug("controller: peer claim failed verification", "premint_id", claim.Claim.PremintID, "peer", claim.FromPeerID)
			return
		}
		c.retire(claim.Claim)
	}
}

func (c *Controller) retire(claim premint.InclusionClaim) {
	if err := c.storage.MarkSeenOnChain(claim); err != nil {
		log.Error("controller: retiring premint from peer claim", "premint_id", claim.PremintID, "err", err)
		return
	}
	c.metrics.ClaimRetired(string(c.mode))
}

// startSyncRound fires one anti-entropy pull: pick a random mesh peer,
// request its active premints, re-validate each through the rules engine
// before inserting. Runs asynchronously so a slow peer never blocks the
// controller's other inputs; reply (if non-nil) is delivered once the
// round completes.
func (c *Controller) startSyncRound(ctx context.Context, reply chan error) {
	target, ok := c.swarm.RandomMeshPeer()
	if !ok {
		if reply != nil {
			c.replies <- asyncResult{apply: func() { reply <- fmt.Errorf("controller: no connected peers to sync against") }}
		}
		return
	}

	go func() {
		err := c.runSyncRound(ctx, target)
		c.replies <- asyncResult{apply: func() {
			if reply != nil {
				reply <- err
			}
		}}
	}()
}

func (c *Controller) runSyncRound(ctx context.Context, target peer.ID) error {
	opts := storage.QueryOptions{}
	if c.syncLookback > 0 {
		from := time.Now().Add(-c.syncLookback)
		opts.From = &from
	}

	premints, err := c.swarm.RequestSync(ctx, target, opts)
	if err != nil {
		return fmt.Errorf("controller: sync request to %s: %w", target, err)
	}

	c.logDigestDivergence(target, premints)

	var (
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(maxInFlightRevalidations)
		mu  sync.Mutex
		n   int
	)
	for _, p := range premints {
		p := p
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results, err := c.rules.Evaluate(ctx, p, c.storage)
			if err != nil || !results.IsAccept() {
				return
			}
			if err := c.storage.Store(p); err == nil {
				mu.Lock()
				n++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	c.metrics.SyncPremintsPulled.Inc(int64(n))
	log.Info("controller: sync round complete", "peer", target, "pulled", len(premints), "accepted", n)
	return nil
}

// logDigestDivergence builds the local digest trie and one over what the
// peer just returned, purely for observability: how much of the pool
// actually diverged this round. Per SPEC_FULL.md §4.6/§9 the digest is
// rebuilt lazily at sync time rather than maintained on the hot insert
// path, so this cost is paid only here.
func (c *Controller) logDigestDivergence(target peer.ID, remote []premint.Premint) {
	local, err := c.storage.Digest(storage.QueryOptions{})
	if err != nil {
		log.Debug("controller: skipping digest comparison", "err", err)
		return
	}
	diff := local.Diff(storage.BuildDigest(remote))
	log.Debug("controller: sync digest comparison", "peer", target, "divergentPaths", len(diff))
}

// verifyInclusionClaim implements inclusion_claim_correct: fetch the
// referenced local premint (if present) and the claim's receipt, then
// delegate to the variant's own ClaimVerifier.
func (c *Controller) verifyInclusionClaim(ctx context.Context, claim premint.InclusionClaim) (bool, error) {
	verifier, ok := c.verifiers[claim.Kind]
	if !ok {
		return false, fmt.Errorf("controller: no claim verifier registered for kind %q", claim.Kind)
	}

	_, err := c.storage.GetForIDAndKind(claim.PremintID, claim.Kind)
	if err != nil && err != storage.ErrNotFound {
		return false, fmt.Errorf("controller: loading claimed premint: %w", err)
	}

	fetcher, err := c.receiptFetcherFor(claim.ChainID)
	if err != nil {
		return false, err
	}
	receipt, err := fetcher.GetTransactionReceipt(ctx, claim.TxHash)
	if err != nil {
		return false, fmt.Errorf("controller: fetching claim receipt: %w", err)
	}
	if int(claim.LogIndex) >= len(receipt.Logs) {
		return false, nil
	}
	rawLog := receipt.Logs[claim.LogIndex]

	chainLog := premint.ChainLog{
		Address:     rawLog.Address,
		Topics:      rawLog.Topics,
		TxHash:      rawLog.TxHash,
		LogIndex:    rawLog.LogIndex(),
		BlockNumber: rawLog.BlockNumber(),
	}
	tx := premint.ChainTx{Hash: claim.TxHash}
	return verifier.VerifyClaim(claim.ChainID, tx, chainLog, claim), nil
}

func (c *Controller) receiptFetcherFor(chainID uint64) (receiptFetcher, error) {
	if c.chainPool == nil {
		return nil, fmt.Errorf("controller: no chain RPC configured to verify claims")
	}
	return c.chainPool.Get(context.Background(), chainID)
}

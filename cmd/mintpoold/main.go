// Command mintpoold is mintpool's process entrypoint: it loads
// configuration, wires storage, the rules engine, the chain provider pool
// and watchers, the p2p swarm, and the pool controller together, then
// blocks until an interrupt or terminate signal arrives. It has no HTTP
// API and no REPL — those are external collaborators per SPEC_FULL.md §1.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/probeum/mintpool/chain"
	"github.com/probeum/mintpool/config"
	"github.com/probeum/mintpool/controller"
	"github.com/probeum/mintpool/identity"
	"github.com/probeum/mintpool/log"
	"github.com/probeum/mintpool/metrics"
	"github.com/probeum/mintpool/p2p"
	"github.com/probeum/mintpool/premint"
	"github.com/probeum/mintpool/rules"
	"github.com/probeum/mintpool/storage"
)

func main() {
	if err := run(); err != nil {
		log.Crit("mintpoold: fatal error", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	seed, err := cfg.IdentitySeed()
	if err != nil {
		return fmt.Errorf("deriving identity: %w", err)
	}
	id, err := identity.FromSeed(seed)
	if err != nil {
		return fmt.Errorf("deriving identity: %w", err)
	}

	store, err := storage.New(cfg.DatabaseURL, cfg.PersistState, cfg.PruneMintedPremints)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	chainURLs := cfg.ChainRPCURLs()
	for _, chainID := range cfg.SupportedChainIDList() {
		if _, ok := chainURLs[chainID]; !ok {
			return fmt.Errorf("no RPC endpoint configured for supported chain %d", chainID)
		}
	}
	chainPool := chain.NewPool(chainURLs)
	defer chainPool.Close()

	var rpcFor func(chainID uint64) (rules.ChainClient, error)
	if cfg.EnableRPC {
		rpcFor = chainPool.RPCFor
	}
	engine := rules.NewEngine(cfg.EnableRPC, rpcFor)
	engine.AddDefaultRules()

	kinds, err := parseKinds(cfg.PremintKinds())
	if err != nil {
		return fmt.Errorf("parsing PREMINT_TYPES: %w", err)
	}

	mappers := map[premint.Kind]premint.ClaimMapper{
		premint.KindZoraPremint: &premint.ZoraPremintV2{},
	}
	verifiers := map[premint.Kind]premint.ClaimVerifier{
		premint.KindSimple:      &premint.Simple{},
		premint.KindZoraPremint: &premint.ZoraPremintV2{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	swarmDeps := p2p.Deps{
		ListAllWithOptions: store.ListAllWithOptions,
	}
	hostCfg := p2p.HostConfig{
		PrivateKey:      id.PrivateKey,
		PeerPort:        cfg.PeerPort,
		ConnectExternal: cfg.ConnectExternal,
		PeerLimit:       cfg.PeerLimit,
	}
	swarm, err := p2p.New(ctx, hostCfg, kinds, mappers, cfg.ExternalAddress, swarmDeps)
	if err != nil {
		return fmt.Errorf("constructing p2p swarm: %w", err)
	}
	if err := swarm.Start(ctx); err != nil {
		return fmt.Errorf("starting p2p swarm: %w", err)
	}
	defer swarm.Close()

	metricsReg := metrics.NewRegistry()
	go metricsReg.Process.Run()
	defer metricsReg.Process.Close()

	nodeInfo := controller.NodeInfo{
		PeerID:             id.PeerID.String(),
		SupportedKinds:     kinds,
		ChainInclusionMode: cfg.ChainInclusionMode,
	}

	pool := controller.New(
		store,
		engine,
		swarm,
		swarm.Events,
		metricsReg,
		cfg.ChainInclusionMode,
		cfg.TrustedPeerIDs(),
		verifiers,
		chainPool,
		time.Duration(cfg.SyncLookbackHours)*time.Hour,
		nodeInfo,
	)

	watchers := startChainWatchers(ctx, cfg, chainPool, pool)

	go pool.Run(ctx)

	printBanner(cfg, nodeInfo, len(watchers))
	log.Info("mintpoold: node started", "peerId", nodeInfo.PeerID, "mode", cfg.ChainInclusionMode)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("mintpoold: shutting down")
	cancel()
	return nil
}

// startChainWatchers spawns one ZoraPremintV2 Watcher (factory address plus
// PremintedV2 topic) per supported chain id, whichever premint kinds are
// configured. Simple premints have no factory contract and so get no
// watcher — their claims arrive only from peers.
func startChainWatchers(ctx context.Context, cfg *config.Config, pool *chain.Pool, ctrl *controller.Controller) []*chain.Watcher {
	var watchers []*chain.Watcher
	for _, chainID := range cfg.SupportedChainIDList() {
		w := chain.NewWatcher(
			chainID,
			pool,
			premint.PremintFactoryAddr,
			premint.MintedV2Topic0,
			&premint.ZoraPremintV2{},
			func(claim premint.InclusionClaim) {
				ctrl.Commands <- controller.ResolveOnchainMintCommand{Claim: claim}
			},
		)
		go w.Run(ctx)
		watchers = append(watchers, w)
	}
	return watchers
}

func parseKinds(names []string) ([]premint.Kind, error) {
	kinds := make([]premint.Kind, 0, len(names))
	for _, n := range names {
		k := premint.Kind(n)
		switch k {
		case premint.KindSimple, premint.KindZoraPremint:
			kinds = append(kinds, k)
		default:
			return nil, fmt.Errorf("unknown premint kind %q", n)
		}
	}
	return kinds, nil
}

// printBanner writes a startup summary table, mirroring the teacher's habit
// (e.g. go-probe-master's p2p.Server NodeInfo logging) of surfacing an
// operator-facing snapshot of what just came up.
func printBanner(cfg *config.Config, info controller.NodeInfo, numWatchers int) {
	kindNames := make([]string, len(info.SupportedKinds))
	for i, k := range info.SupportedKinds {
		kindNames[i] = string(k)
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"peer id", info.PeerID})
	table.Append([]string{"peer port", strconv.Itoa(int(cfg.PeerPort))})
	table.Append([]string{"inclusion mode", string(info.ChainInclusionMode)})
	table.Append([]string{"premint kinds", joinOrNone(kindNames)})
	table.Append([]string{"chain watchers", strconv.Itoa(numWatchers)})
	table.Append([]string{"rpc enabled", strconv.FormatBool(cfg.EnableRPC)})
	table.Render()

	fmt.Fprintln(os.Stderr, buf.String())
}

func joinOrNone(ss []string) string {
	if len(ss) == 0 {
		return "none"
	}
	out := ss[0]
	for _, s := range ss[1:] {
		out += ", " + s
	}
	return out
}

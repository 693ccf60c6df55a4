package controller

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/test"
	"github.com/stretchr/testify/require"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/config"
	"github.com/probeum/mintpool/metrics"
	"github.com/probeum/mintpool/p2p"
	"github.com/probeum/mintpool/premint"
	"github.com/probeum/mintpool/rules"
	"github.com/probeum/mintpool/storage"
)

type fakeSwarm struct {
	publishedPremints []premint.Premint
	publishedClaims   []premint.InclusionClaim
	connectedAddrs    []string
	announced         int
	networkState      p2p.NetworkState
	syncPeer          peer.ID
	syncPremints      []premint.Premint
	syncErr           error
	publishErr        error
}

func (f *fakeSwarm) PublishPremint(_ context.Context, p premint.Premint) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.publishedPremints = append(f.publishedPremints, p)
	return nil
}

func (f *fakeSwarm) PublishClaim(_ context.Context, claim premint.InclusionClaim) error {
	f.publishedClaims = append(f.publishedClaims, claim)
	return nil
}

func (f *fakeSwarm) ConnectToPeer(_ context.Context, addr string) error {
	f.connectedAddrs = append(f.connectedAddrs, addr)
	return nil
}

func (f *fakeSwarm) AnnounceSelf(_ context.Context) error {
	f.announced++
	return nil
}

func (f *fakeSwarm) NetworkState() p2p.NetworkState { return f.networkState }

func (f *fakeSwarm) RequestSync(_ context.Context, _ peer.ID, _ storage.QueryOptions) ([]premint.Premint, error) {
	return f.syncPremints, f.syncErr
}

func (f *fakeSwarm) RandomMeshPeer() (peer.ID, bool) {
	if f.syncPeer == "" {
		return "", false
	}
	return f.syncPeer, true
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New("", false, false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func simplePremint(uid, name string) *premint.Simple {
	return &premint.Simple{
		ChainID: 1,
		Sender:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		UID:     uid,
		Version: 1,
		Name:    name,
		Media:   "ipfs://" + uid,
	}
}

func newTestController(t *testing.T, swarm *fakeSwarm, mode config.ChainInclusionMode, trusted []string) (*Controller, *storage.Storage) {
	t.Helper()
	store := newTestStorage(t)
	engine := rules.NewEngine(false, nil)
	events := make(chan p2p.Event, 16)
	c := New(store, engine, swarm, events, metrics.NewRegistry(), mode, trusted, nil, nil, 0, NodeInfo{})
	return c, store
}

func runController(t *testing.T, c *Controller) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return cancel
}

func TestBroadcastValidatesInsertsAndPublishes(t *testing.T) {
	swarm := &fakeSwarm{}
	c, store := newTestController(t, swarm, config.ModeVerify, nil)
	cancel := runController(t, c)
	defer cancel()

	reply := make(chan BroadcastResult, 1)
	p := simplePremint("1", "first")
	c.Commands <- BroadcastCommand{Premint: p, Reply: reply}

	select {
	case res := <-reply:
		require.NoError(t, res.Err)
		require.True(t, res.Results.IsAccept())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast reply")
	}

	require.Len(t, swarm.publishedPremints, 1)
	got, err := store.GetForIDAndKind(p.Metadata().ID, p.Metadata().Kind)
	require.NoError(t, err)
	require.Equal(t, p.Metadata().ID, got.Metadata().ID)
}

func TestPremintReceivedValidatesAndInsertsWithoutPublishing(t *testing.T) {
	swarm := &fakeSwarm{}
	c, store := newTestController(t, swarm, config.ModeVerify, nil)
	events := make(chan p2p.Event, 1)
	c.events = events
	cancel := runController(t, c)
	defer cancel()

	p := simplePremint("2", "second")
	events <- p2p.Event{Kind: p2p.EventPremintReceived, Premint: p}

	require.Eventually(t, func() bool {
		_, err := store.GetForIDAndKind(p.Metadata().ID, p.Metadata().Kind)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.Empty(t, swarm.publishedPremints, "received premints must never be forwarded back to the network")
}

func TestResolveOnchainMintChecksModePublishesClaim(t *testing.T) {
	swarm := &fakeSwarm{}
	c, store := newTestController(t, swarm, config.ModeCheck, nil)
	cancel := runController(t, c)
	defer cancel()

	p := simplePremint("3", "third")
	require.NoError(t, store.Store(p))

	claim := premint.InclusionClaim{PremintID: p.Metadata().ID, ChainID: 1, Kind: premint.KindSimple}
	c.Commands <- ResolveOnchainMintCommand{Claim: claim}

	require.Eventually(t, func() bool {
		return len(swarm.publishedClaims) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		active, err := store.ListAllWithOptions(storage.QueryOptions{})
		require.NoError(t, err)
		return !containsID(active, p.Metadata().ID)
	}, 2*time.Second, 10*time.Millisecond, "seen-on-chain premints drop out of list_all")
}

func containsID(premints []premint.Premint, id string) bool {
	for _, p := range premints {
		if p.Metadata().ID == id {
			return true
		}
	}
	return false
}

func TestResolveOnchainMintVerifyModeDoesNotBroadcast(t *testing.T) {
	swarm := &fakeSwarm{}
	c, store := newTestController(t, swarm, config.ModeVerify, nil)
	cancel := runController(t, c)
	defer cancel()

	p := simplePremint("4", "fourth")
	require.NoError(t, store.Store(p))

	claim := premint.InclusionClaim{PremintID: p.Metadata().ID, ChainID: 1, Kind: premint.KindSimple}
	c.Commands <- ResolveOnchainMintCommand{Claim: claim}

	time.Sleep(200 * time.Millisecond)
	require.Empty(t, swarm.publishedClaims)
}

func TestTrustModeRetiresOnlyFromTrustedPeer(t *testing.T) {
	swarm := &fakeSwarm{}
	trustedPeerID, err := test.RandPeerID()
	require.NoError(t, err)
	untrustedPeerID, err := test.RandPeerID()
	require.NoError(t, err)

	c, store := newTestController(t, swarm, config.ModeTrust, []string{trustedPeerID.String()})
	events := make(chan p2p.Event, 2)
	c.events = events
	cancel := runController(t, c)
	defer cancel()

	p := simplePremint("5", "fifth")
	require.NoError(t, store.Store(p))
	claim := premint.InclusionClaim{PremintID: p.Metadata().ID, ChainID: 1, Kind: premint.KindSimple}

	events <- p2p.Event{
		Kind:  p2p.EventClaimReceived,
		Claim: premint.PeerInclusionClaim{Claim: claim, FromPeerID: untrustedPeerID.String()},
	}
	time.Sleep(150 * time.Millisecond)
	active, err := store.ListAllWithOptions(storage.QueryOptions{})
	require.NoError(t, err)
	require.True(t, containsID(active, p.Metadata().ID), "untrusted peer's claim must not retire the premint")

	events <- p2p.Event{
		Kind:  p2p.EventClaimReceived,
		Claim: premint.PeerInclusionClaim{Claim: claim, FromPeerID: trustedPeerID.String()},
	}
	require.Eventually(t, func() bool {
		active, err := store.ListAllWithOptions(storage.QueryOptions{})
		require.NoError(t, err)
		return !containsID(active, p.Metadata().ID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueryCommandReturnsActivePremints(t *testing.T) {
	swarm := &fakeSwarm{}
	c, store := newTestController(t, swarm, config.ModeVerify, nil)
	cancel := runController(t, c)
	defer cancel()

	require.NoError(t, store.Store(simplePremint("6", "sixth")))

	reply := make(chan QueryResult, 1)
	c.Commands <- QueryCommand{Reply: reply}

	select {
	case res := <-reply:
		require.NoError(t, res.Err)
		require.Len(t, res.Premints, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query reply")
	}
}

func TestSyncCommandPullsAndRevalidatesPeerPremints(t *testing.T) {
	remote, err := test.RandPeerID()
	require.NoError(t, err)
	swarm := &fakeSwarm{
		syncPeer:     remote,
		syncPremints: []premint.Premint{simplePremint("7", "seventh")},
	}
	c, store := newTestController(t, swarm, config.ModeVerify, nil)
	cancel := runController(t, c)
	defer cancel()

	reply := make(chan error, 1)
	c.Commands <- SyncCommand{Reply: reply}

	select {
	case err := <-reply:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync reply")
	}

	_, err = store.GetForIDAndKind(simplePremint("7", "seventh").Metadata().ID, premint.KindSimple)
	require.NoError(t, err)
}

func TestSyncCommandNoPeersReturnsError(t *testing.T) {
	swarm := &fakeSwarm{}
	c, _ := newTestController(t, swarm, config.ModeVerify, nil)
	cancel := runController(t, c)
	defer cancel()

	reply := make(chan error, 1)
	c.Commands <- SyncCommand{Reply: reply}

	select {
	case err := <-reply:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync reply")
	}
}

package p2p

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/test"
	"github.com/stretchr/testify/require"
)

func randPeerID(t *testing.T) peer.ID {
	t.Helper()
	id, err := test.RandPeerID()
	require.NoError(t, err)
	return id
}

func TestPeerLimitGaterZeroLimitAllowsUnbounded(t *testing.T) {
	g := newPeerLimitGater(0)
	require.True(t, g.InterceptAccept(nil))
	require.True(t, g.InterceptSecured(network.DirInbound, randPeerID(t), nil))
}

func TestPeerLimitGaterRejectsInboundOnceAtLimit(t *testing.T) {
	g := newPeerLimitGater(1)
	require.True(t, g.InterceptAccept(nil))

	p1 := randPeerID(t)
	_, _ = g.InterceptUpgraded(fakeConn{remote: p1})
	require.True(t, g.InterceptSecured(network.DirInbound, p1, nil))

	require.False(t, g.InterceptAccept(nil))
	require.False(t, g.InterceptSecured(network.DirInbound, randPeerID(t), nil))
}

func TestPeerLimitGaterNeverGatesOutbound(t *testing.T) {
	g := newPeerLimitGater(1)
	p1 := randPeerID(t)
	_, _ = g.InterceptUpgraded(fakeConn{remote: p1})

	require.True(t, g.InterceptSecured(network.DirOutbound, randPeerID(t), nil))
}

func TestPeerLimitGaterForgetFreesSlot(t *testing.T) {
	g := newPeerLimitGater(1)
	p1 := randPeerID(t)
	_, _ = g.InterceptUpgraded(fakeConn{remote: p1})
	require.False(t, g.InterceptAccept(nil))

	g.forget(p1)
	require.True(t, g.InterceptAccept(nil))
}

// fakeConn implements the single method InterceptUpgraded needs from
// network.Conn.
type fakeConn struct {
	network.Conn
	remote peer.ID
}

func (f fakeConn) RemotePeer() peer.ID { return f.remote }

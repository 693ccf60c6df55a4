package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolGetCachesProvider(t *testing.T) {
	server := newFakeNode("0x")
	defer server.Close()

	pool := NewPool(map[uint64]string{7777777: wsURL(t, server)})
	defer pool.Close()

	p1, err := pool.Get(context.Background(), 7777777)
	require.NoError(t, err)
	p2, err := pool.Get(context.Background(), 7777777)
	require.NoError(t, err)
	require.Same(t, p1, p2)
}

func TestPoolGetUnknownChainErrors(t *testing.T) {
	pool := NewPool(map[uint64]string{})
	defer pool.Close()

	_, err := pool.Get(context.Background(), 999)
	require.Error(t, err)
}

func TestPoolRPCForSatisfiesChainClient(t *testing.T) {
	server := newFakeNode("0x00")
	defer server.Close()

	pool := NewPool(map[uint64]string{7777777: wsURL(t, server)})
	defer pool.Close()

	client, err := pool.RPCFor(7777777)
	require.NoError(t, err)
	require.NotNil(t, client)
}

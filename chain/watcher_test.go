package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/premint"
)

type stubMapper struct {
	claim premint.InclusionClaim
}

func (m stubMapper) MapClaim(chainID uint64, log premint.ChainLog) (premint.InclusionClaim, error) {
	return m.claim, nil
}

func TestWatcherDeliversClaimFromLog(t *testing.T) {
	server := newFakeNode("0x")
	defer server.Close()

	pool := NewPool(map[uint64]string{7777777: wsURL(t, server)})
	defer pool.Close()

	claims := make(chan premint.InclusionClaim, 1)
	mapper := stubMapper{claim: premint.InclusionClaim{PremintID: "7777777:0xabc:1", ChainID: 7777777}}

	w := NewWatcher(7777777, pool, common.HexToAddress("0x7777773606e7e46C8Ba8B98C08f5cD218e31d340"), common.Hash{}, mapper, func(c premint.InclusionClaim) {
		claims <- c
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case c := <-claims:
		require.Equal(t, "7777777:0xabc:1", c.PremintID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher to deliver a claim")
	}
}

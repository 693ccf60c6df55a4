package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/probeum/mintpool/common"
)

// Log mirrors the JSON-RPC log shape `eth_subscribe(["logs", filter])`
// pushes and `eth_getLogs` returns.
type Log struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        string         `json:"data"`
	TxHash      common.Hash    `json:"transactionHash"`
	LogIndexHex string         `json:"logIndex"`
	BlockHex    string         `json:"blockNumber"`
}

// LogIndex parses the RPC's hex-encoded log index.
func (l Log) LogIndex() uint64 { return hexToUint64(l.LogIndexHex) }

// BlockNumber parses the RPC's hex-encoded block number.
func (l Log) BlockNumber() uint64 { return hexToUint64(l.BlockHex) }

// Receipt is the minimal transaction receipt projection VerifyClaim
// needs.
type Receipt struct {
	TransactionHash common.Hash `json:"transactionHash"`
	Logs            []Log       `json:"logs"`
}

type logFilter struct {
	Address   string   `json:"address,omitempty"`
	Topics    []string `json:"topics,omitempty"`
	FromBlock string   `json:"fromBlock,omitempty"`
}

// LogSubscription delivers logs matching a filter until Unsubscribe is
// called or the underlying connection drops.
type LogSubscription struct {
	ch       chan Log
	provider *Provider
	subID    string
}

func (s *LogSubscription) Logs() <-chan Log { return s.ch }

func (s *LogSubscription) Unsubscribe() {
	s.provider.mu.Lock()
	delete(s.provider.subs, s.subID)
	s.provider.mu.Unlock()
}

// SubscribeLogs opens an eth_subscribe("logs", ...) stream for the given
// factory address, event topic, and optional resume block (used after a
// reconnect to avoid re-delivering already-seen logs).
func (p *Provider) SubscribeLogs(ctx context.Context, address common.Address, topic0 common.Hash, fromBlock *uint64) (*LogSubscription, error) {
	filter := logFilter{
		Address: address.Hex(),
		Topics:  []string{topic0.Hex()},
	}
	if fromBlock != nil {
		filter.FromBlock = fmt.Sprintf("0x%x", *fromBlock)
	}

	raw, err := p.call(ctx, "eth_subscribe", []interface{}{"logs", filter})
	if err != nil {
		return nil, fmt.Errorf("chain: eth_subscribe: %w", err)
	}
	var subID string
	if err := json.Unmarshal(raw, &subID); err != nil {
		return nil, fmt.Errorf("chain: decoding subscription id: %w", err)
	}

	sub := &LogSubscription{ch: make(chan Log, 256), provider: p, subID: subID}
	p.mu.Lock()
	if p.subs == nil {
		p.subs = make(map[string]*LogSubscription)
	}
	p.subs[subID] = sub
	p.mu.Unlock()
	return sub, nil
}

func (p *Provider) dispatchSubscription(resp rpcResponse) {
	var notice struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(resp.Params, &notice); err != nil {
		return
	}
	p.mu.Lock()
	sub, ok := p.subs[notice.Subscription]
	p.mu.Unlock()
	if !ok {
		return
	}
	var l Log
	if err := json.Unmarshal(notice.Result, &l); err != nil {
		return
	}
	select {
	case sub.ch <- l:
	default:
	}
}

// GetTransactionReceipt fetches a transaction's receipt, used by the
// claim-verification path in Check/Verify mode.
func (p *Provider) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	raw, err := p.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash.Hex()})
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, fmt.Errorf("chain: transaction not found: %s", txHash.Hex())
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("chain: decoding receipt: %w", err)
	}
	return &r, nil
}

func hexToUint64(s string) uint64 {
	b := common.FromHex(s)
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

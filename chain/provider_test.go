package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/probeum/mintpool/common"
)

// fakeNode is a minimal JSON-RPC-over-WebSocket server standing in for a
// chain node during tests: it answers eth_call with a fixed hex result,
// eth_subscribe with a subscription id, and then pushes one eth_subscription
// notification carrying a single canned log.
type fakeNode struct {
	upgrader websocket.Upgrader
	callHex  string
}

func newFakeNode(callHex string) *httptest.Server {
	n := &fakeNode{callHex: callHex}
	return httptest.NewServer(http.HandlerFunc(n.handle))
}

func (n *fakeNode) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		switch req.Method {
		case "eth_call":
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": n.callHex}
			body, _ := json.Marshal(resp)
			conn.WriteMessage(websocket.TextMessage, body)
		case "eth_subscribe":
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0xsub1"}
			body, _ := json.Marshal(resp)
			conn.WriteMessage(websocket.TextMessage, body)

			notice := map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "eth_subscription",
				"params": map[string]interface{}{
					"subscription": "0xsub1",
					"result": map[string]interface{}{
						"address":         "0x7777773606e7e46C8Ba8B98C08f5cD218e31d340",
						"topics":          []string{"0x1111111111111111111111111111111111111111111111111111111111111111"},
						"data":            "0x",
						"transactionHash": "0x2222222222222222222222222222222222222222222222222222222222222222",
						"logIndex":        "0x1",
						"blockNumber":     "0x2a",
					},
				},
			}
			body, _ = json.Marshal(notice)
			conn.WriteMessage(websocket.TextMessage, body)
		case "eth_getTransactionReceipt":
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": nil}
			body, _ := json.Marshal(resp)
			conn.WriteMessage(websocket.TextMessage, body)
		}
	}
}

func wsURL(t *testing.T, server *httptest.Server) string {
	t.Helper()
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestProviderCall(t *testing.T) {
	server := newFakeNode("0x0000000000000000000000000000000000000000000000000000000000000001")
	defer server.Close()

	p, err := newProvider(context.Background(), 7777777, wsURL(t, server))
	require.NoError(t, err)
	defer p.Close()

	result, err := p.Call(context.Background(), common.HexToAddress("0xA"), []byte{0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, common.FromHex("0x0000000000000000000000000000000000000000000000000000000000000001"), result)
}

func TestProviderSubscribeLogsDeliversNotification(t *testing.T) {
	server := newFakeNode("0x")
	defer server.Close()

	p, err := newProvider(context.Background(), 7777777, wsURL(t, server))
	require.NoError(t, err)
	defer p.Close()

	sub, err := p.SubscribeLogs(context.Background(), common.HexToAddress("0x7777773606e7e46C8Ba8B98C08f5cD218e31d340"), common.Hash{}, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case l := <-sub.Logs():
		require.Equal(t, uint64(1), l.LogIndex())
		require.Equal(t, uint64(42), l.BlockNumber())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription notification")
	}
}

func TestProviderGetTransactionReceiptNotFound(t *testing.T) {
	server := newFakeNode("0x")
	defer server.Close()

	p, err := newProvider(context.Background(), 7777777, wsURL(t, server))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.GetTransactionReceipt(context.Background(), common.Hash{})
	require.Error(t, err)
}

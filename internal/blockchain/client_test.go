package blockchain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	mu       sync.Mutex
	calls    []rpcCall
	handlers map[string]func(params json.RawMessage) (any, *rpcError)
	status   int
}

type rpcCall struct {
	Method string
	Params json.RawMessage
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()

	node := &fakeNode{handlers: make(map[string]func(json.RawMessage) (any, *rpcError))}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     int64           `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		node.mu.Lock()
		node.calls = append(node.calls, rpcCall{Method: req.Method, Params: req.Params})
		status := node.status
		handler := node.handlers[req.Method]
		node.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if handler == nil {
			resp["error"] = rpcError{Code: -32601, Message: "method not found"}
		} else if result, rpcErr := handler(req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	return node, server
}

func (n *fakeNode) handle(method string, fn func(params json.RawMessage) (any, *rpcError)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = fn
}

func (n *fakeNode) callsTo(method string) []rpcCall {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []rpcCall
	for _, c := range n.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestClient(t *testing.T, url string, withKeys bool) *Client {
	t.Helper()

	options := Options{NodeURL: url, Account: "checkinbot"}
	if withKeys {
		options.PostingKey, _ = newTestWIF(t)
		options.ActiveKey, _ = newTestWIF(t)
	}

	client, err := NewClient(options)
	require.NoError(t, err)
	return client
}

func TestFetchCommunityPosts(t *testing.T) {
	node, server := newFakeNode(t)
	node.handle("bridge.get_ranked_posts", func(json.RawMessage) (any, *rpcError) {
		return []map[string]any{
			{
				"author":        "alice",
				"permlink":      "day-one",
				"title":         "Check in",
				"body":          "hello",
				"category":      "hive-115276",
				"community":     "hive-115276",
				"created":       "2024-05-01T10:00:00",
				"json_metadata": map[string]any{"app": "hiveblog/1"},
				"beneficiaries": []map[string]any{{"account": "ecency", "weight": 500}},
			},
			{
				"author":        "bob",
				"permlink":      "day-two",
				"category":      "hive-115276",
				"created":       "2024-05-01T09:00:00",
				"json_metadata": `{"app":"ecency/3"}`,
			},
		}, nil
	})

	client := newTestClient(t, server.URL, false)
	posts, err := client.FetchCommunityPosts(context.Background(), "hive-115276", PostCursor{Author: "carol", Permlink: "x"}, 20)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, PostRef{Author: "alice", Permlink: "day-one"}, posts[0].Ref())
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), posts[0].Created)
	assert.JSONEq(t, `{"app":"hiveblog/1"}`, string(posts[0].RawMetadata))
	assert.Equal(t, []Beneficiary{{Account: "ecency", Weight: 500}}, posts[0].Beneficiaries)

	assert.Equal(t, "hive-115276", posts[1].Community, "falls back to category")
	assert.JSONEq(t, `"{\"app\":\"ecency/3\"}"`, string(posts[1].RawMetadata))

	calls := node.callsTo("bridge.get_ranked_posts")
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"sort":"created","tag":"hive-115276","limit":20,"start_author":"carol","start_permlink":"x"}`, string(calls[0].Params))
}

func TestFetchBalance(t *testing.T) {
	node, server := newFakeNode(t)
	node.handle("condenser_api.get_accounts", func(params json.RawMessage) (any, *rpcError) {
		var names [][]string
		_ = json.Unmarshal(params, &names)
		if names[0][0] != "checkinbot" {
			return []any{}, nil
		}
		return []map[string]any{{"name": "checkinbot", "balance": "3.000 HIVE", "hbd_balance": "12.500 HBD"}}, nil
	})

	client := newTestClient(t, server.URL, false)

	balance, err := client.FetchBalance(context.Background(), "checkinbot", AssetHBD)
	require.NoError(t, err)
	assert.Equal(t, "12.500 HBD", balance.String())

	balance, err = client.FetchBalance(context.Background(), "checkinbot", AssetHIVE)
	require.NoError(t, err)
	assert.Equal(t, "3.000 HIVE", balance.String())

	err = client.VerifyAccount(context.Background(), "nobody")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRateLimitedStatus(t *testing.T) {
	node, server := newFakeNode(t)
	node.status = http.StatusTooManyRequests

	client := newTestClient(t, server.URL, false)
	_, err := client.FetchCommunityPosts(context.Background(), "hive-115276", PostCursor{}, 20)

	assert.True(t, IsRateLimited(err))
	assert.True(t, IsTransient(err))
}

func handleGlobalProperties(node *fakeNode) {
	node.handle("condenser_api.get_dynamic_global_properties", func(json.RawMessage) (any, *rpcError) {
		return map[string]any{
			"head_block_number": 0x01020304,
			"head_block_id":     "01020304aabbccdd000000000000000000000000",
			"time":              "2024-05-01T12:00:00",
		}, nil
	})
}

func TestSubmitVoteBroadcastsSignedTransaction(t *testing.T) {
	node, server := newFakeNode(t)
	handleGlobalProperties(node)
	node.handle("condenser_api.broadcast_transaction", func(json.RawMessage) (any, *rpcError) {
		return map[string]any{}, nil
	})

	client := newTestClient(t, server.URL, true)
	receipt, err := client.SubmitVote(context.Background(), PostRef{Author: "alice", Permlink: "day-one"}, 100)
	require.NoError(t, err)
	assert.Len(t, receipt.TxID, 40)

	calls := node.callsTo("condenser_api.broadcast_transaction")
	require.Len(t, calls, 1)

	var params []struct {
		RefBlockNum    uint16  `json:"ref_block_num"`
		RefBlockPrefix uint32  `json:"ref_block_prefix"`
		Expiration     string  `json:"expiration"`
		Operations     [][]any `json:"operations"`
		Signatures     []string
	}
	require.NoError(t, json.Unmarshal(calls[0].Params, &params))
	require.Len(t, params, 1)

	tx := params[0]
	assert.Equal(t, uint16(0x0304), tx.RefBlockNum)
	assert.Equal(t, uint32(0xddccbbaa), tx.RefBlockPrefix)
	assert.Equal(t, "2024-05-01T12:01:00", tx.Expiration)
	require.Len(t, tx.Signatures, 1)
	assert.Len(t, tx.Signatures[0], 130)

	require.Len(t, tx.Operations, 1)
	assert.Equal(t, "vote", tx.Operations[0][0])
	assert.Equal(t, map[string]any{
		"voter":    "checkinbot",
		"author":   "alice",
		"permlink": "day-one",
		"weight":   float64(10000),
	}, tx.Operations[0][1])
}

func TestSubmitTransferInsufficientFunds(t *testing.T) {
	node, server := newFakeNode(t)
	handleGlobalProperties(node)
	node.handle("condenser_api.broadcast_transaction", func(json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "Account checkinbot does not have sufficient funds for balance adjustment."}
	})

	client := newTestClient(t, server.URL, true)
	amount, err := ParseAsset("1.000 HBD")
	require.NoError(t, err)

	_, err = client.SubmitTransfer(context.Background(), "alice", amount, "welcome")
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
}

func TestSubmitWithoutKeyMakesNoCall(t *testing.T) {
	node, server := newFakeNode(t)
	client := newTestClient(t, server.URL, false)

	_, err := client.SubmitComment(context.Background(), Comment{
		Parent:   PostRef{Author: "alice", Permlink: "day-one"},
		Permlink: "re-day-one",
		Body:     "welcome",
	})

	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.Empty(t, node.callsTo("condenser_api.get_dynamic_global_properties"))
}

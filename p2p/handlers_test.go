package p2p_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"powledger_go/blockchain"
	"powledger_go/consensus"
	"powledger_go/node"
	"powledger_go/p2p"
	"powledger_go/utils"
)

const testDifficulty = 1

// newTestServer wires a complete node the way main does, without listening.
func newTestServer(t *testing.T, nodeID, selfAddress string) *p2p.Server {
	t.Helper()
	// Suppress log output during tests
	originalLogger := utils.GetLogger()
	utils.InitLogger(false, true)
	t.Cleanup(func() { utils.SetLogger(originalLogger) })

	nodeMgr := p2p.NewNodeManager()
	feed := p2p.NewBlockFeed()
	client := p2p.NewClient(5 * time.Second)
	resolver, err := consensus.NewConsensus(consensus.LongestChain, client)
	if err != nil {
		t.Fatalf("NewConsensus failed: %v", err)
	}

	coordinator := node.NewCoordinator(node.Config{
		NodeID:      nodeID,
		SelfAddress: selfAddress,
		Chain:       blockchain.NewBlockchain(testDifficulty),
		Resolver:    resolver,
		Peers:       nodeMgr,
		Pusher:      client,
		Notifier:    feed,
	})

	s := p2p.NewServer(coordinator, nodeMgr, feed, 0)
	s.SetupRoutes()
	t.Cleanup(feed.Close)
	return s
}

func doRequest(t *testing.T, s *p2p.Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		var payload []byte
		switch b := body.(type) {
		case string:
			payload = []byte(b)
		default:
			var err error
			if payload, err = json.Marshal(b); err != nil {
				t.Fatalf("Failed to marshal payload: %v", err)
			}
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func TestNewTransactionHandler(t *testing.T) {
	s := newTestServer(t, "node-a", "http://node-a:5000")

	t.Run("Created", func(t *testing.T) {
		rr := doRequest(t, s, "POST", "/transactions/new", `{"origin":"nodoA","destination":"nodoB","amount":10}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusCreated)
		}
		var resp struct {
			Message string `json:"message"`
			Index   int    `json:"index"`
		}
		decodeBody(t, rr, &resp)
		if resp.Index != 2 {
			t.Errorf("Expected index 2, got %d", resp.Index)
		}
		if resp.Message != "Transaction will be added to block 2" {
			t.Errorf("Unexpected message: %q", resp.Message)
		}
	})

	t.Run("MissingValues", func(t *testing.T) {
		rr := doRequest(t, s, "POST", "/transactions/new", `{"origin":"nodoA","destination":"nodoB"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rr.Body.String(), "Missing values") {
			t.Errorf("Unexpected body: %q", rr.Body.String())
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := doRequest(t, s, "POST", "/transactions/new", `{not json`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
		}
	})

	if n := len(s.Coordinator.GetPendingTransactions()); n != 1 {
		t.Errorf("Expected 1 pending transaction, got %d", n)
	}
}

func TestMineHandler(t *testing.T) {
	s := newTestServer(t, "node-a", "http://node-a:5000")

	rr := doRequest(t, s, "GET", "/mine", nil)
	var empty node.MineResult
	decodeBody(t, rr, &empty)
	if rr.Code != http.StatusOK || empty.Outcome != node.NoTransactions {
		t.Errorf("Expected NO_TRANSACTIONS with 200, got %v %+v", rr.Code, empty)
	}

	doRequest(t, s, "POST", "/transactions/new", map[string]interface{}{"origin": "nodoA", "destination": "nodoB", "amount": 10})
	rr = doRequest(t, s, "GET", "/mine", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	var mined node.MineResult
	decodeBody(t, rr, &mined)
	if mined.Outcome != node.Mined || mined.Index != 2 || mined.Hash == "" {
		t.Errorf("Unexpected mine result: %+v", mined)
	}

	rr = doRequest(t, s, "GET", "/chain", nil)
	var chain blockchain.ChainResponse
	decodeBody(t, rr, &chain)
	if chain.Length != 2 || len(chain.Chain) != 2 {
		t.Fatalf("Expected chain of length 2, got %d with %d blocks", chain.Length, len(chain.Chain))
	}
	if len(*chain.Chain[1].Transactions) != 2 {
		t.Errorf("Expected 2 transactions in block 2, got %d", len(*chain.Chain[1].Transactions))
	}

	rr = doRequest(t, s, "GET", "/mempool", nil)
	var mempool struct {
		Count int `json:"count"`
	}
	decodeBody(t, rr, &mempool)
	if mempool.Count != 0 {
		t.Errorf("Expected empty mempool, got %d", mempool.Count)
	}
}

func TestRegisterNodesHandler_Validation(t *testing.T) {
	s := newTestServer(t, "node-a", "http://node-a:5000")

	testCases := []struct {
		name string
		body string
	}{
		{"missing_nodes", `{}`},
		{"invalid_address", `{"nodes":["ftp://peer:21"]}`},
		{"empty_address", `{"nodes":[""]}`},
		{"invalid_json", `nodes`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, s, "POST", "/nodes/register", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestSyncHandler_Rejections(t *testing.T) {
	s := newTestServer(t, "node-a", "http://node-a:5000")

	testCases := []struct {
		name string
		body string
	}{
		{"no_blockchain", `{"nodes":[]}`},
		{"empty_chain", `{"nodes":[],"blockchain":{"chain":[],"length":0}}`},
		{"missing_hash", `{"blockchain":{"chain":[{"index":1,"transactions":[],"previous_hash":"1","timestamp":1,"proof":0}],"length":1}}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, s, "POST", "/nodes/sync", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("handler returned wrong status code: got %v want %v (%s)", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}

	if s.Coordinator.Chain().GetLength() != 1 {
		t.Errorf("Rejected syncs changed the ledger, length %d", s.Coordinator.Chain().GetLength())
	}
}

func TestRegisterAndResolve_BetweenNodes(t *testing.T) {
	// Node B runs behind a real listener so node A's client can reach it.
	var nodeB *p2p.Server
	httpB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nodeB.Router.ServeHTTP(w, r)
	}))
	defer httpB.Close()
	nodeB = newTestServer(t, "node-b", httpB.URL)

	nodeA := newTestServer(t, "node-a", "http://127.0.0.1:1")

	// Node A mines two blocks, then registers node B.
	for i := 0; i < 2; i++ {
		doRequest(t, nodeA, "POST", "/transactions/new", map[string]interface{}{"origin": "a", "destination": "b", "amount": i + 1})
		if rr := doRequest(t, nodeA, "GET", "/mine", nil); rr.Code != http.StatusOK {
			t.Fatalf("mine failed: %v %s", rr.Code, rr.Body.String())
		}
	}

	rr := doRequest(t, nodeA, "POST", "/nodes/register", map[string]interface{}{"nodes": []string{httpB.URL}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusCreated)
	}
	var reg struct {
		Message    string   `json:"message"`
		TotalNodes []string `json:"total_nodes"`
	}
	decodeBody(t, rr, &reg)
	if len(reg.TotalNodes) != 1 || reg.TotalNodes[0] != httpB.URL {
		t.Errorf("Expected total_nodes [%s], got %v", httpB.URL, reg.TotalNodes)
	}

	// The registration push carries node A's longer chain.
	if length := nodeB.Coordinator.Chain().GetLength(); length != 3 {
		t.Errorf("Expected node B to adopt the pushed chain of length 3, got %d", length)
	}
	peersOfB := nodeB.NodeMgr.GetPeerAddresses()
	if len(peersOfB) != 1 || peersOfB[0] != "http://127.0.0.1:1" {
		t.Errorf("Expected node B to learn about node A, got %v", peersOfB)
	}

	// Node B pulls ahead; its own resolution skips node A, which is unreachable.
	doRequest(t, nodeB, "POST", "/transactions/new", map[string]interface{}{"origin": "c", "destination": "d", "amount": 5})
	if rr := doRequest(t, nodeB, "GET", "/mine", nil); rr.Code != http.StatusOK {
		t.Fatalf("mine on node B failed: %v %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, nodeA, "POST", "/nodes/resolve", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	var resolved struct {
		Message string           `json:"message"`
		Result  consensus.Result `json:"result"`
	}
	decodeBody(t, rr, &resolved)
	if resolved.Result.Outcome != consensus.Replaced || resolved.Result.Length != 4 {
		t.Errorf("Expected node A to adopt length 4, got %+v", resolved.Result)
	}
	if resolved.Message != "Our chain was replaced" {
		t.Errorf("Unexpected message: %q", resolved.Message)
	}
}

func TestRegisterPeers_HostPortSeedReceivesPush(t *testing.T) {
	var nodeB *p2p.Server
	httpB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nodeB.Router.ServeHTTP(w, r)
	}))
	defer httpB.Close()
	nodeB = newTestServer(t, "node-b", httpB.URL)

	nodeA := newTestServer(t, "node-a", "http://127.0.0.1:1")
	doRequest(t, nodeA, "POST", "/transactions/new", `{"origin":"a","destination":"b","amount":1}`)
	if rr := doRequest(t, nodeA, "GET", "/mine", nil); rr.Code != http.StatusOK {
		t.Fatalf("mine failed: %v %s", rr.Code, rr.Body.String())
	}

	seed := strings.TrimPrefix(httpB.URL, "http://")
	known := nodeA.Coordinator.RegisterPeers(context.Background(), []string{seed})

	if len(known) != 1 || known[0] != httpB.URL {
		t.Errorf("Expected known peers [%s], got %v", httpB.URL, known)
	}
	if length := nodeB.Coordinator.Chain().GetLength(); length != 2 {
		t.Errorf("Expected the seed to adopt the pushed chain of length 2, got %d", length)
	}
}

func TestGetActiveNodesHandler(t *testing.T) {
	s := newTestServer(t, "node-a", "http://node-a:5000")
	s.NodeMgr.AddPeers([]string{"peer-b:5001", "http://peer-a:5002/"})

	rr := doRequest(t, s, "GET", "/nodes/active", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	var nodes []p2p.NodeInfo
	decodeBody(t, rr, &nodes)
	if len(nodes) != 2 || nodes[0].Address != "http://peer-a:5002" || nodes[1].Address != "http://peer-b:5001" {
		t.Errorf("Unexpected active nodes: %+v", nodes)
	}
}

func TestSystemAndPingHandlers(t *testing.T) {
	s := newTestServer(t, "node-a", "http://node-a:5000")

	rr := doRequest(t, s, "GET", "/ping", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "pong" {
		t.Errorf("Unexpected ping response: %v %q", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, s, "GET", "/system", nil)
	var info map[string]interface{}
	decodeBody(t, rr, &info)
	if info["node_id"] != "node-a" || info["system"] == "" || info["version"] == "" {
		t.Errorf("Unexpected system info: %v", info)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "node-a", "http://node-a:5000")

	rr := doRequest(t, s, "GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "powledger_ledger_chain_length") {
		t.Error("Expected the chain length gauge in the exposition")
	}
}

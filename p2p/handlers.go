package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"powledger_go/blockchain"
	"powledger_go/consensus"
	"powledger_go/node"
	"powledger_go/utils"
)

// NewTransactionRequest is the body of POST /transactions/new. Missing fields stay nil.
type NewTransactionRequest struct {
	Origin      *string `json:"origin"`
	Destination *string `json:"destination"`
	Amount      *int64  `json:"amount"`
}

// RegisterNodesRequest is the body of POST /nodes/register
type RegisterNodesRequest struct {
	Nodes []string `json:"nodes"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.LogError("Error encoding response: %v", err)
	}
}

// SystemHandler reports details about the machine the node runs on.
func (s *Server) SystemHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node_id": s.Coordinator.NodeID(),
		"machine": runtime.GOARCH,
		"system":  runtime.GOOS,
		"version": runtime.Version(),
		"cpus":    runtime.NumCPU(),
	})
}

// PingHandler is a liveness check
func (s *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// NewTransactionHandler queues a transaction for the next block.
func (s *Server) NewTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req NewTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.LogError("NewTransactionHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Origin == nil || req.Destination == nil || req.Amount == nil {
		http.Error(w, "Missing values", http.StatusBadRequest)
		return
	}

	index := s.Coordinator.SubmitTransaction(*req.Origin, *req.Destination, *req.Amount)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": fmt.Sprintf("Transaction will be added to block %d", index),
		"index":   index,
	})
}

// MineHandler mines the pending transactions into a new block. Mining stops
// if the caller goes away.
func (s *Server) MineHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.Coordinator.MineNext(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			utils.LogInfo("MineHandler: Mining cancelled: %v", err)
			http.Error(w, "Mining was cancelled", http.StatusServiceUnavailable)
			return
		}
		utils.LogError("MineHandler: %v", err)
		http.Error(w, "Mining failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ChainHandler returns the finalized chain and its length.
func (s *Server) ChainHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Coordinator.GetChain())
}

// MempoolHandler returns the pending transactions.
func (s *Server) MempoolHandler(w http.ResponseWriter, r *http.Request) {
	pending := s.Coordinator.GetPendingTransactions()
	records := make([]blockchain.TransactionRecord, 0, len(pending))
	for _, tx := range pending {
		records = append(records, blockchain.NewTransactionRecord(tx))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

// RegisterNodesHandler adds peers and pushes this node's state to them.
func (s *Server) RegisterNodesHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.LogError("RegisterNodesHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Nodes == nil {
		http.Error(w, "Error: Please supply a valid list of nodes", http.StatusBadRequest)
		return
	}

	peers := make([]string, 0, len(req.Nodes))
	for _, addr := range req.Nodes {
		normalized, err := NormalizePeerAddress(addr)
		if err != nil {
			utils.LogError("RegisterNodesHandler: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		peers = append(peers, normalized)
	}

	known := s.Coordinator.RegisterPeers(r.Context(), peers)
	utils.LogInfo("RegisterNodesHandler: %d peers registered, %d known", len(peers), len(known))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "New nodes have been added",
		"total_nodes": known,
	})
}

// SyncHandler receives the state a peer pushes when it registers this node.
func (s *Server) SyncHandler(w http.ResponseWriter, r *http.Request) {
	var req node.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.LogError("SyncHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	replaced, err := s.Coordinator.ImportState(req)
	if err != nil {
		if blockchain.IsErrorType(err, blockchain.ErrorTypeMalformedImport) ||
			blockchain.IsErrorType(err, blockchain.ErrorTypeCorruptPeerChain) {
			utils.LogError("SyncHandler: Rejected pushed chain: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		utils.LogError("SyncHandler: %v", err)
		http.Error(w, "Sync failed", http.StatusInternalServerError)
		return
	}

	message := "Local chain kept"
	if replaced {
		message = "Local chain replaced by pushed chain"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  message,
		"replaced": replaced,
		"length":   s.Coordinator.Chain().GetLength(),
	})
}

// ResolveHandler runs conflict resolution against all known peers.
func (s *Server) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.Coordinator.ResolveConflicts(r.Context())
	if err != nil {
		utils.LogError("ResolveHandler: %v", err)
		http.Error(w, "Conflict resolution was cancelled", http.StatusServiceUnavailable)
		return
	}

	message := "Our chain is authoritative"
	if res.Outcome == consensus.Replaced {
		message = "Our chain was replaced"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"result":  res,
	})
}

// GetActiveNodesHandler returns an http.HandlerFunc for retrieving the list of known peers.
func GetActiveNodesHandler(nodeManager *NodeManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeNodes := nodeManager.GetActiveNodes()
		writeJSON(w, http.StatusOK, activeNodes)
		utils.LogDebug("GetActiveNodesHandler: Responded with %d active nodes.", len(activeNodes))
	}
}

package consensus

import (
	"context"
	"sync"

	"powledger_go/blockchain"
	"powledger_go/metrics"
	"powledger_go/utils"
)

// Resolver reconciles the local ledger against peer chains using the
// longest-valid-chain rule.
type Resolver struct {
	source PeerSource
}

// NewResolver creates a resolver that fetches peer chains from source
func NewResolver(source PeerSource) *Resolver {
	return &Resolver{source: source}
}

// GetType returns the type of consensus algorithm
func (r *Resolver) GetType() ConsensusType {
	return LongestChain
}

type fetchResult struct {
	peer  string
	chain *blockchain.ChainResponse
	err   error
}

// fetchAll queries every peer concurrently and returns the answers in peer order.
func (r *Resolver) fetchAll(ctx context.Context, peers []string) []fetchResult {
	results := make([]fetchResult, len(peers))

	var wg sync.WaitGroup
	for i, peer := range peers {
		wg.Add(1)
		go func(i int, peer string) {
			defer wg.Done()
			chain, err := r.source.FetchChain(ctx, peer)
			results[i] = fetchResult{peer: peer, chain: chain, err: err}
		}(i, peer)
	}
	wg.Wait()
	return results
}

/**
 * Resolve looks for a peer chain that is strictly longer than the local one
 * and rebuilds cleanly from its own genesis. The longest such chain replaces
 * the local chain and empties the pending pool.
 *
 * Fetching and re-validation run without the ledger lock. The final length
 * comparison and the swap happen together inside ReplaceIfLonger, so a block
 * integrated locally in the meantime is never silently overwritten by a chain
 * that is no longer longer.
 *
 * Returns:
 *   - Result: Replaced or Retained, with the resulting local length
 *   - error: Only the context error if ctx was cancelled
 */
func (r *Resolver) Resolve(ctx context.Context, chain *blockchain.Blockchain, peers []string) (Result, error) {
	bestLength := chain.GetLength()
	var bestChain []*blockchain.Block
	var bestPeer string
	var rejected []string

	for _, res := range r.fetchAll(ctx, peers) {
		if res.err != nil {
			metrics.PeerFetchFailures.Inc()
			utils.LogError("Failed to fetch chain from %s: %v", res.peer, res.err)
			continue
		}
		if res.chain == nil {
			continue
		}
		if res.chain.Length <= bestLength {
			continue
		}
		if res.chain.Length != len(res.chain.Chain) {
			metrics.RejectedPeerChains.WithLabelValues("length_mismatch").Inc()
			utils.LogError("Peer %s reported length %d but sent %d blocks", res.peer, res.chain.Length, len(res.chain.Chain))
			rejected = append(rejected, res.peer)
			continue
		}

		rebuilt, err := blockchain.RebuildChain(res.chain.Chain, chain.GetDifficulty())
		if err != nil {
			metrics.RejectedPeerChains.WithLabelValues("invalid_chain").Inc()
			utils.LogError("Rejected chain from %s: %v", res.peer, err)
			rejected = append(rejected, res.peer)
			continue
		}

		bestLength = len(rebuilt)
		bestChain = rebuilt
		bestPeer = res.peer
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if bestChain != nil && chain.ReplaceIfLonger(bestChain) {
		metrics.ConsensusRounds.WithLabelValues("replaced").Inc()
		utils.LogInfo("Replaced local chain with chain from %s (length: %d)", bestPeer, len(bestChain))
		return Result{Outcome: Replaced, Length: len(bestChain), Source: bestPeer, Rejected: rejected}, nil
	}

	metrics.ConsensusRounds.WithLabelValues("retained").Inc()
	utils.LogDebug("Local chain retained, no longer valid alternative found")
	return Result{Outcome: Retained, Length: chain.GetLength(), Rejected: rejected}, nil
}

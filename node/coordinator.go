// Package node ties the ledger, the miner and the conflict resolver together
// behind the operations the transport layer exposes.
package node

import (
	"context"
	"fmt"
	"sync"

	"powledger_go/blockchain"
	"powledger_go/consensus"
	"powledger_go/metrics"
	"powledger_go/utils"
)

// MineOutcome is the status of one MineNext call
type MineOutcome string

const (
	Mined             MineOutcome = "MINED"
	NoTransactions    MineOutcome = "NO_TRANSACTIONS"
	ConflictResolved  MineOutcome = "CONFLICT_RESOLVED"
	IntegrationFailed MineOutcome = "INTEGRATION_FAILED"
)

// MineResult reports what MineNext did. Index and Hash are set only when Outcome is Mined.
type MineResult struct {
	Outcome MineOutcome `json:"outcome"`
	Index   uint64      `json:"index,omitempty"`
	Hash    string      `json:"hash,omitempty"`
	Message string      `json:"message"`
}

// PeerDirectory is the peer set the node resolves conflicts against.
// NormalizePeers returns the canonical form of every valid address, deduplicated.
type PeerDirectory interface {
	GetPeerAddresses() []string
	AddPeers(addresses []string) []string
	NormalizePeers(addresses []string) []string
}

// PeerPusher delivers the node's state to a newly registered peer.
type PeerPusher interface {
	PushState(ctx context.Context, peer string, req SyncRequest) error
}

// SnapshotStore persists ledger exports.
type SnapshotStore interface {
	SaveSnapshot(snapshot blockchain.Snapshot) error
}

// SyncRequest is pushed to peers on registration: the sender's view of the
// network and its full ledger export.
type SyncRequest struct {
	Nodes      []string             `json:"nodes"`
	Blockchain *blockchain.Snapshot `json:"blockchain"`
}

// Config holds the collaborators of a Coordinator
type Config struct {
	NodeID      string // credited with mining rewards
	SelfAddress string // URL peers reach this node at
	Chain       *blockchain.Blockchain
	Resolver    *consensus.Resolver
	Peers       PeerDirectory
	Pusher      PeerPusher
	Notifier    Notifier
}

// Coordinator is the single entry point the transport layer uses to read and
// mutate the ledger.
type Coordinator struct {
	nodeID      string
	selfAddress string
	chain       *blockchain.Blockchain
	miner       *blockchain.Miner
	resolver    *consensus.Resolver
	peers       PeerDirectory
	pusher      PeerPusher
	notifier    Notifier
}

// NewCoordinator creates a coordinator; Notifier and Pusher may be nil.
func NewCoordinator(cfg Config) *Coordinator {
	c := &Coordinator{
		nodeID:      cfg.NodeID,
		selfAddress: cfg.SelfAddress,
		chain:       cfg.Chain,
		miner:       blockchain.NewMiner(cfg.Chain.GetDifficulty()),
		resolver:    cfg.Resolver,
		peers:       cfg.Peers,
		pusher:      cfg.Pusher,
		notifier:    cfg.Notifier,
	}
	if self := c.normalizePeers([]string{cfg.SelfAddress}); cfg.SelfAddress != "" && len(self) == 1 {
		c.selfAddress = self[0]
	}
	c.observe()
	return c
}

// NodeID returns the identity credited with mining rewards
func (c *Coordinator) NodeID() string {
	return c.nodeID
}

// Chain returns the ledger
func (c *Coordinator) Chain() *blockchain.Blockchain {
	return c.chain
}

func (c *Coordinator) observe() {
	metrics.ChainLength.Set(float64(c.chain.GetLength()))
	metrics.PendingTransactions.Set(float64(c.chain.GetPendingCount()))
}

func (c *Coordinator) publish(event ChainEvent) {
	if c.notifier != nil {
		c.notifier.Publish(event)
	}
}

// SubmitTransaction queues a transaction and returns the index of the block it should land in.
func (c *Coordinator) SubmitTransaction(origin, destination string, amount int64) int {
	index, _ := c.chain.AddPendingTransaction(origin, destination, amount)
	c.observe()
	utils.LogInfo("Transaction %s -> %s (%d) queued for block %d", origin, destination, amount, index)
	return index
}

/**
 * MineNext runs the mining protocol once:
 *   1. refuse when the pending pool is empty
 *   2. queue the reward for this node and draft a candidate on the tip
 *   3. search a proof without holding the ledger lock
 *   4. resolve conflicts with peers; a replaced chain makes the candidate stale
 *   5. integrate the candidate, rolling the reward back if that fails
 *
 * A non-nil error means the search or the resolution was cancelled through
 * ctx; the reward has been rolled back in that case.
 */
func (c *Coordinator) MineNext(ctx context.Context) (MineResult, error) {
	defer c.observe()

	candidate, rewardID, err := c.chain.PrepareCandidate(c.nodeID)
	if err != nil {
		if blockchain.IsErrorType(err, blockchain.ErrorTypeEmptyPendingPool) {
			metrics.MineRequests.WithLabelValues("no_transactions").Inc()
			return MineResult{Outcome: NoTransactions, Message: "Cannot create a new block: there are no transactions"}, nil
		}
		metrics.MineRequests.WithLabelValues("error").Inc()
		return MineResult{}, err
	}

	provenHash, err := c.miner.Mine(ctx, candidate)
	if err != nil {
		c.chain.RemovePending(rewardID)
		metrics.MineRequests.WithLabelValues("error").Inc()
		return MineResult{}, fmt.Errorf("mining block %d: %w", candidate.Index, err)
	}

	resolution, err := c.resolver.Resolve(ctx, c.chain, c.peerAddresses())
	if err != nil {
		c.chain.RemovePending(rewardID)
		metrics.MineRequests.WithLabelValues("error").Inc()
		return MineResult{}, fmt.Errorf("resolving conflicts: %w", err)
	}
	if resolution.Outcome == consensus.Replaced {
		c.publish(newReplacedEvent(resolution))
		metrics.MineRequests.WithLabelValues("conflict_resolved").Inc()
		return MineResult{
			Outcome: ConflictResolved,
			Message: "There was a conflict. This chain has been updated with a longer version",
		}, nil
	}

	if err := c.chain.IntegrateBlock(candidate, provenHash); err != nil {
		c.chain.RemovePending(rewardID)
		utils.LogError("Failed to integrate mined block #%d: %v", candidate.Index, err)
		metrics.IntegrationResults.WithLabelValues(integrationLabel(err)).Inc()
		metrics.MineRequests.WithLabelValues("integration_failed").Inc()
		return MineResult{Outcome: IntegrationFailed, Message: "The new block could not be integrated"}, nil
	}

	metrics.IntegrationResults.WithLabelValues("accepted").Inc()
	metrics.MineRequests.WithLabelValues("mined").Inc()
	c.publish(newMinedEvent(candidate, c.chain.GetLength()))
	return MineResult{
		Outcome: Mined,
		Index:   candidate.Index,
		Hash:    candidate.Hash,
		Message: fmt.Sprintf("Block %d has been mined successfully", candidate.Index),
	}, nil
}

func integrationLabel(err error) string {
	switch {
	case blockchain.IsErrorType(err, blockchain.ErrorTypeInvalidLinkage):
		return "invalid_linkage"
	case blockchain.IsErrorType(err, blockchain.ErrorTypeInvalidProof):
		return "invalid_proof"
	default:
		return "error"
	}
}

func (c *Coordinator) peerAddresses() []string {
	if c.peers == nil {
		return nil
	}
	return c.peers.GetPeerAddresses()
}

// ResolveConflicts runs one conflict resolution round against all known peers.
func (c *Coordinator) ResolveConflicts(ctx context.Context) (consensus.Result, error) {
	defer c.observe()

	res, err := c.resolver.Resolve(ctx, c.chain, c.peerAddresses())
	if err != nil {
		return res, err
	}
	if res.Outcome == consensus.Replaced {
		c.publish(newReplacedEvent(res))
	}
	return res, nil
}

// GetChain returns the finalized chain.
func (c *Coordinator) GetChain() blockchain.ChainResponse {
	return c.chain.ChainView()
}

// GetPendingTransactions returns the pending pool.
func (c *Coordinator) GetPendingTransactions() []*blockchain.Transaction {
	return c.chain.GetPendingTransactions()
}

// ExportSnapshot returns the full ledger export.
func (c *Coordinator) ExportSnapshot() blockchain.Snapshot {
	return c.chain.ExportSnapshot()
}

/**
 * RegisterPeers adds peers to the known set and pushes this node's state to
 * each of them: the ledger export plus the list of the other registered
 * peers and this node itself. Push failures are logged, not returned.
 *
 * Returns:
 *   - []string: Every peer known after registration
 */
func (c *Coordinator) RegisterPeers(ctx context.Context, peers []string) []string {
	peers = c.normalizePeers(peers)
	if c.peers != nil {
		c.peers.AddPeers(c.withoutSelf(peers))
	}

	if c.pusher != nil {
		snapshot := c.chain.ExportSnapshot()
		var wg sync.WaitGroup
		for _, peer := range peers {
			if peer == c.selfAddress {
				continue
			}
			nodes := []string{c.selfAddress}
			for _, other := range peers {
				if other != peer && other != c.selfAddress {
					nodes = append(nodes, other)
				}
			}

			wg.Add(1)
			go func(peer string, req SyncRequest) {
				defer wg.Done()
				if err := c.pusher.PushState(ctx, peer, req); err != nil {
					utils.LogError("Failed to push state to %s: %v", peer, err)
					return
				}
				utils.LogDebug("State pushed to %s", peer)
			}(peer, SyncRequest{Nodes: nodes, Blockchain: &snapshot})
		}
		wg.Wait()
	}

	known := c.peerAddresses()
	metrics.KnownPeersGauge.Set(float64(len(known)))
	return known
}

/**
 * ImportState receives a registration push: the listed nodes join the peer
 * set, and the pushed chain is rebuilt and adopted when strictly longer
 * than the local one.
 *
 * Returns:
 *   - bool: Whether the local chain was replaced
 *   - error: MalformedImport or CorruptPeerChain; the ledger is untouched then
 */
func (c *Coordinator) ImportState(req SyncRequest) (bool, error) {
	if req.Blockchain == nil {
		return false, blockchain.NewError(blockchain.ErrorTypeMalformedImport, "request carries no blockchain")
	}

	if c.peers != nil {
		c.peers.AddPeers(c.withoutSelf(c.normalizePeers(req.Nodes)))
		metrics.KnownPeersGauge.Set(float64(len(c.peerAddresses())))
	}
	return c.Restore(*req.Blockchain)
}

// Restore rebuilds a snapshot and adopts it when strictly longer than the local chain.
func (c *Coordinator) Restore(snapshot blockchain.Snapshot) (bool, error) {
	defer c.observe()

	rebuilt, err := blockchain.RebuildChain(snapshot.Chain, c.chain.GetDifficulty())
	if err != nil {
		return false, err
	}
	if !c.chain.ReplaceIfLonger(rebuilt) {
		utils.LogDebug("Imported chain of length %d is not longer than local chain, keeping local", len(rebuilt))
		return false, nil
	}
	utils.LogInfo("Adopted imported chain (length: %d)", len(rebuilt))
	c.publish(newReplacedEvent(consensus.Result{Outcome: consensus.Replaced, Length: len(rebuilt)}))
	return true, nil
}

// normalizePeers maps addresses to the form the directory stores, so pushes
// and self checks use the same strings as the peer set.
func (c *Coordinator) normalizePeers(peers []string) []string {
	if c.peers == nil {
		return peers
	}
	return c.peers.NormalizePeers(peers)
}

func (c *Coordinator) withoutSelf(peers []string) []string {
	filtered := make([]string, 0, len(peers))
	for _, p := range peers {
		if p != "" && p != c.selfAddress {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

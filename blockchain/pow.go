package blockchain

import (
	"context"
	"strings"
	"time"

	"powledger_go/metrics"
	"powledger_go/utils"
)

// DefaultDifficulty is the number of leading hex zeros a block hash needs.
const DefaultDifficulty = 4

// cancelCheckInterval is how many hash attempts run between context checks.
const cancelCheckInterval = 4096

func meetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	return strings.Count(hash[:difficulty], "0") == difficulty
}

/**
 * IsValidProof checks that claimedHash starts with `difficulty` zero
 * characters and that it is exactly what the block hashes to under its
 * current Proof field.
 */
func IsValidProof(block *Block, claimedHash string, difficulty int) bool {
	return meetsDifficulty(claimedHash, difficulty) && claimedHash == block.CalculateHash()
}

/**
 * ProofOfWork resets the block's proof to 0 and increments it until the
 * digest meets the difficulty target. The block's Proof is left at the
 * winning nonce; block.Hash is never touched, finalization is the ledger's job.
 *
 * The search is unbounded. It only stops early when ctx is cancelled, in
 * which case the context error is returned and Proof holds the last nonce tried.
 */
func ProofOfWork(ctx context.Context, block *Block, difficulty int) (string, error) {
	block.Proof = 0
	hash := block.CalculateHash()
	for !meetsDifficulty(hash, difficulty) {
		if block.Proof%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		block.Proof++
		hash = block.CalculateHash()
	}
	return hash, nil
}

// Miner runs the proof-of-work search for candidate blocks at a fixed difficulty.
type Miner struct {
	difficulty int
}

// NewMiner creates a miner for the given difficulty
func NewMiner(difficulty int) *Miner {
	return &Miner{difficulty: difficulty}
}

// Difficulty returns the miner's target
func (m *Miner) Difficulty() int {
	return m.difficulty
}

// Mine searches a proof for a private candidate block. It must not be called
// while holding the ledger lock.
func (m *Miner) Mine(ctx context.Context, block *Block) (string, error) {
	utils.LogDebug("Mining block #%d with %d transactions (difficulty %d)", block.Index, len(block.Transactions), m.difficulty)

	start := time.Now()
	hash, err := ProofOfWork(ctx, block, m.difficulty)
	elapsed := time.Since(start)

	metrics.HashAttempts.Add(float64(block.Proof + 1))
	if err != nil {
		metrics.MiningDuration.WithLabelValues("aborted").Observe(elapsed.Seconds())
		utils.LogInfo("Mining of block #%d aborted after %d attempts: %v", block.Index, block.Proof+1, err)
		return "", err
	}
	metrics.MiningDuration.WithLabelValues("found").Observe(elapsed.Seconds())
	utils.LogInfo("Block #%d mined in %v seconds (proof %d, hash %s)", block.Index, elapsed.Seconds(), block.Proof, hash)
	return hash, nil
}

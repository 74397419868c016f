package blockchain

import (
	"sync"

	"powledger_go/mempool"
	"powledger_go/utils"
)

// RewardOrigin is the origin of the transaction crediting a miner.
const RewardOrigin = "0"

// RewardAmount is what a miner is credited per mined block.
const RewardAmount = 1

/**
 * Blockchain is the ledger: the chain of finalized blocks plus the pool of
 * pending transactions. Both are guarded by a single mutex; every exported
 * method takes it for its whole duration, so callers always observe a
 * consistent pair.
 */
type Blockchain struct {
	blocks     []*Block                       // Ordered list of finalized blocks
	pending    *mempool.Mempool[*Transaction] // Transactions not yet in a block
	difficulty int                            // Leading zero hex characters required in a hash
	mutex      sync.RWMutex                   // Guards blocks and pending together
}

/**
 * NewBlockchain initializes a new ledger with a freshly mined genesis block.
 *
 * Parameters:
 *   - difficulty: The number of leading zero hex characters a block hash needs
 *
 * Returns:
 *   - A pointer to the newly created blockchain
 */
func NewBlockchain(difficulty int) *Blockchain {
	return newBlockchainFromGenesis(NewGenesisBlock(difficulty), difficulty)
}

// newBlockchainFromGenesis starts a ledger on a genesis block that is trusted as-is.
func newBlockchainFromGenesis(genesis *Block, difficulty int) *Blockchain {
	return &Blockchain{
		blocks:     []*Block{genesis},
		pending:    mempool.NewMempool[*Transaction](),
		difficulty: difficulty,
	}
}

func (bc *Blockchain) lastBlock() (*Block, error) {
	if len(bc.blocks) == 0 {
		return nil, NewError(ErrorTypeEmptyChain, "chain has no genesis block")
	}
	return bc.blocks[len(bc.blocks)-1], nil
}

/**
 * GetLastBlock returns the most recent finalized block.
 *
 * Returns:
 *   - *Block: The latest block
 *   - error: EmptyChain if the chain has no genesis block
 */
func (bc *Blockchain) GetLastBlock() (*Block, error) {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.lastBlock()
}

/**
 * AddPendingTransaction appends a new transaction to the pending pool.
 * Any amount is accepted.
 *
 * Returns:
 *   - int: The index of the block the transaction is expected to land in
 *   - string: The pool entry ID of the transaction
 */
func (bc *Blockchain) AddPendingTransaction(origin, destination string, amount int64) (int, string) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	id := bc.pending.AddItem(NewTransaction(origin, destination, amount))
	return len(bc.blocks) + 1, id
}

// RemovePending drops one pending transaction by entry ID.
func (bc *Blockchain) RemovePending(id string) bool {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	return bc.pending.RemoveItem(id)
}

func (bc *Blockchain) draftBlock(previousHash string) (*Block, error) {
	last, err := bc.lastBlock()
	if err != nil {
		return nil, err
	}
	return NewBlock(last.Index+1, bc.pending.GetPendingItems(), previousHash), nil
}

/**
 * DraftBlock builds an unfinalized candidate following the current tip and
 * carrying the transactions pending at this moment. The candidate is private
 * to the caller: later submissions do not change it.
 *
 * Parameters:
 *   - previousHash: The hash the candidate links to
 */
func (bc *Blockchain) DraftBlock(previousHash string) (*Block, error) {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.draftBlock(previousHash)
}

/**
 * PrepareCandidate performs, as one step, the opening of the mining
 * protocol: refuse when nothing is pending, queue the reward for nodeID, and
 * draft a candidate on the current tip.
 *
 * Returns:
 *   - *Block: The candidate, ready for the proof-of-work search
 *   - string: The pool entry ID of the reward transaction, for rollback
 *   - error: EmptyPendingPool when there is nothing to mine
 */
func (bc *Blockchain) PrepareCandidate(nodeID string) (*Block, string, error) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if bc.pending.GetSize() == 0 {
		return nil, "", NewError(ErrorTypeEmptyPendingPool, "no pending transactions to mine")
	}
	last, err := bc.lastBlock()
	if err != nil {
		return nil, "", err
	}

	rewardID := bc.pending.AddItem(NewTransaction(RewardOrigin, nodeID, RewardAmount))
	candidate, err := bc.draftBlock(last.Hash)
	if err != nil {
		bc.pending.RemoveItem(rewardID)
		return nil, "", err
	}
	return candidate, rewardID, nil
}

/**
 * IntegrateBlock is the only way a block enters the chain. The candidate
 * must link to the current tip and provenHash must be a valid proof for it.
 * On success the hash is set, the block appended and its transactions
 * leave the pending pool. On failure nothing changes.
 *
 * The pool is not reset wholesale. The candidate is a private copy drafted
 * before the proof search, so transactions submitted during the search are
 * not in it and stay pending for the next block. When nothing arrived in the
 * meantime the pool ends up empty.
 */
func (bc *Blockchain) IntegrateBlock(candidate *Block, provenHash string) error {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	last, err := bc.lastBlock()
	if err != nil {
		return err
	}
	if candidate.PreviousHash != last.Hash {
		return NewErrorf(ErrorTypeInvalidLinkage, "previous hash %s does not match tip %s", candidate.PreviousHash, last.Hash).
			WithBlockIndex(candidate.Index)
	}
	if !IsValidProof(candidate, provenHash, bc.difficulty) {
		return NewErrorf(ErrorTypeInvalidProof, "hash %s is not a valid proof at difficulty %d", provenHash, bc.difficulty).
			WithBlockIndex(candidate.Index)
	}

	candidate.Hash = provenHash
	bc.blocks = append(bc.blocks, candidate)
	bc.removeEmbedded(candidate)
	utils.LogDebug("Block #%d integrated with hash %s", candidate.Index, candidate.Hash)
	return nil
}

// Integrate is IntegrateBlock reduced to accepted/rejected.
func (bc *Blockchain) Integrate(candidate *Block, provenHash string) bool {
	return bc.IntegrateBlock(candidate, provenHash) == nil
}

// removeEmbedded drops the pool entries that the block now owns.
func (bc *Blockchain) removeEmbedded(block *Block) {
	if len(block.Transactions) == 0 {
		return
	}
	embedded := make(map[*Transaction]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		embedded[tx] = struct{}{}
	}
	var ids []string
	for _, e := range bc.pending.GetAllEntries() {
		if _, ok := embedded[e.Item]; ok {
			ids = append(ids, e.ID)
		}
	}
	bc.pending.RemoveProcessedItems(ids)
}

/**
 * ReplaceIfLonger swaps in a whole new chain when it is strictly longer than
 * the chain held at the moment of the swap. The pending pool is emptied.
 * The caller must have validated blocks already (see RebuildChain).
 *
 * Returns:
 *   - bool: True if the chain was replaced, false otherwise
 */
func (bc *Blockchain) ReplaceIfLonger(blocks []*Block) bool {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if len(blocks) <= len(bc.blocks) {
		return false
	}
	replacement := make([]*Block, len(blocks))
	copy(replacement, blocks)
	bc.blocks = replacement
	bc.pending.Clear()
	return true
}

/**
 * GetLength returns the number of blocks in the blockchain.
 */
func (bc *Blockchain) GetLength() int {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return len(bc.blocks)
}

// GetDifficulty returns the mining difficulty.
func (bc *Blockchain) GetDifficulty() int {
	return bc.difficulty
}

/**
 * GetBlocks returns a snapshot of the finalized blocks in order. The slice
 * is a copy; the blocks themselves are final and must not be modified.
 */
func (bc *Blockchain) GetBlocks() []*Block {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()

	blocks := make([]*Block, 0, len(bc.blocks))
	for _, b := range bc.blocks {
		if b.IsFinalized() {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// GetPendingTransactions returns the pending transactions in submission order.
func (bc *Blockchain) GetPendingTransactions() []*Transaction {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.pending.GetPendingItems()
}

// GetPendingCount returns the size of the pending pool.
func (bc *Blockchain) GetPendingCount() int {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.pending.GetSize()
}

package blockchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// GenesisPreviousHash is the sentinel previous hash of every chain's first block.
const GenesisPreviousHash = "1"

/**
 * Block represents a single block in the blockchain.
 * A block is a candidate while Hash is empty and becomes final once the
 * ledger integrates it; a final block is never modified again.
 */
type Block struct {
	Index        uint64         `json:"index"`         // 1-based position of the block in the chain
	Transactions []*Transaction `json:"transactions"`  // Transactions embedded in the block, in order
	PreviousHash string         `json:"previous_hash"` // Hash of the previous block in the chain
	Timestamp    float64        `json:"timestamp"`     // Unix seconds when the block was drafted
	Proof        uint64         `json:"proof"`         // Nonce found by the proof-of-work search
	Hash         string         `json:"hash"`          // Set only on finalization
}

// hashRecord is the canonical form fed to SHA-256. Fields are declared in
// lexicographic key order so encoding/json emits sorted keys; Hash is excluded.
type hashRecord struct {
	Index        uint64         `json:"index"`
	PreviousHash string         `json:"previous_hash"`
	Proof        uint64         `json:"proof"`
	Timestamp    float64        `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
}

/**
 * CalculateHash returns the lowercase hex SHA-256 digest of the block's
 * canonical encoding. Two blocks with equal content (proof included) always
 * produce the same digest.
 */
func (b *Block) CalculateHash() string {
	return Digest(b)
}

// Digest is the block hash codec.
func Digest(b *Block) string {
	txs := b.Transactions
	if txs == nil {
		txs = []*Transaction{}
	}
	record := hashRecord{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Proof:        b.Proof,
		Timestamp:    b.Timestamp,
		Transactions: txs,
	}
	// Marshal cannot fail for this shape: no maps, channels or non-finite floats
	// reach it from the ledger.
	data, _ := json.Marshal(record)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsFinalized reports whether the block has been accepted into a chain.
func (b *Block) IsFinalized() bool {
	return b.Hash != ""
}

/**
 * NewBlock initializes an unfinalized candidate block.
 *
 * Parameters:
 *   - index: Position of the block in the blockchain
 *   - transactions: Transactions the block will carry
 *   - previousHash: Hash of the last block in the chain
 *
 * Returns:
 *   - A pointer to the newly created block with proof 0 and no hash
 */
func NewBlock(index uint64, transactions []*Transaction, previousHash string) *Block {
	return &Block{
		Index:        index,
		Transactions: transactions,
		PreviousHash: previousHash,
		Timestamp:    Now(),
		Proof:        0,
		Hash:         "",
	}
}

// NewGenesisBlock builds the fixed first block and finalizes its hash immediately,
// searching a proof so the genesis hash meets the same target as every other block.
func NewGenesisBlock(difficulty int) *Block {
	genesis := NewBlock(1, []*Transaction{}, GenesisPreviousHash)
	// A background context never cancels, so the search cannot fail.
	genesis.Hash, _ = ProofOfWork(context.Background(), genesis, difficulty)
	return genesis
}

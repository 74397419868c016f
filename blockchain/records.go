package blockchain

import (
	"time"
)

// TransactionRecord is the wire form of a Transaction. Pointer fields let
// ingestion tell a missing field from a zero value.
type TransactionRecord struct {
	Amount      *int64   `json:"amount"`
	Destination *string  `json:"destination"`
	Origin      *string  `json:"origin"`
	Timestamp   *float64 `json:"timestamp"`
}

// BlockRecord is the wire form of a finalized Block; it carries every field including hash.
type BlockRecord struct {
	Index        *uint64              `json:"index"`
	Transactions *[]TransactionRecord `json:"transactions"`
	PreviousHash *string              `json:"previous_hash"`
	Timestamp    *float64             `json:"timestamp"`
	Proof        *uint64              `json:"proof"`
	Hash         *string              `json:"hash"`
}

// ChainResponse is what a node serves to callers and peers asking for its chain.
type ChainResponse struct {
	Chain  []BlockRecord `json:"chain"`
	Length int           `json:"length"`
}

// Snapshot is the exported state of a ledger.
type Snapshot struct {
	Chain      []BlockRecord `json:"chain"`
	Length     int           `json:"length"`
	ExportedAt string        `json:"exported_at"`
}

// NewTransactionRecord converts a transaction to its wire form
func NewTransactionRecord(tx *Transaction) TransactionRecord {
	amount, destination, origin, timestamp := tx.Amount, tx.Destination, tx.Origin, tx.Timestamp
	return TransactionRecord{
		Amount:      &amount,
		Destination: &destination,
		Origin:      &origin,
		Timestamp:   &timestamp,
	}
}

// NewBlockRecord converts a block to its wire form
func NewBlockRecord(b *Block) BlockRecord {
	txs := make([]TransactionRecord, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txs = append(txs, NewTransactionRecord(tx))
	}
	index, previousHash, timestamp, proof, hash := b.Index, b.PreviousHash, b.Timestamp, b.Proof, b.Hash
	return BlockRecord{
		Index:        &index,
		Transactions: &txs,
		PreviousHash: &previousHash,
		Timestamp:    &timestamp,
		Proof:        &proof,
		Hash:         &hash,
	}
}

// NewBlockRecords converts a chain to its wire form
func NewBlockRecords(blocks []*Block) []BlockRecord {
	records := make([]BlockRecord, 0, len(blocks))
	for _, b := range blocks {
		records = append(records, NewBlockRecord(b))
	}
	return records
}

// NewChainResponse builds the chain view served to callers and peers
func NewChainResponse(blocks []*Block) ChainResponse {
	return ChainResponse{
		Chain:  NewBlockRecords(blocks),
		Length: len(blocks),
	}
}

// NewSnapshot builds an export of blocks stamped with the current time
func NewSnapshot(blocks []*Block) Snapshot {
	return Snapshot{
		Chain:      NewBlockRecords(blocks),
		Length:     len(blocks),
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func (r TransactionRecord) toTransaction(blockPos, txPos int) (*Transaction, error) {
	var missing string
	switch {
	case r.Origin == nil:
		missing = "origin"
	case r.Destination == nil:
		missing = "destination"
	case r.Amount == nil:
		missing = "amount"
	case r.Timestamp == nil:
		missing = "timestamp"
	}
	if missing != "" {
		return nil, NewErrorf(ErrorTypeMalformedImport, "block at position %d: transaction %d is missing %q", blockPos, txPos, missing)
	}
	return &Transaction{
		Origin:      *r.Origin,
		Destination: *r.Destination,
		Amount:      *r.Amount,
		Timestamp:   *r.Timestamp,
	}, nil
}

// ToBlock validates field presence and converts the record to a Block.
// pos is the record's position in its chain, used in error messages.
func (r BlockRecord) ToBlock(pos int) (*Block, error) {
	var missing string
	switch {
	case r.Index == nil:
		missing = "index"
	case r.Transactions == nil:
		missing = "transactions"
	case r.PreviousHash == nil:
		missing = "previous_hash"
	case r.Timestamp == nil:
		missing = "timestamp"
	case r.Proof == nil:
		missing = "proof"
	case r.Hash == nil || *r.Hash == "":
		missing = "hash"
	}
	if missing != "" {
		return nil, NewErrorf(ErrorTypeMalformedImport, "block at position %d is missing %q", pos, missing)
	}

	txs := make([]*Transaction, 0, len(*r.Transactions))
	for i, txr := range *r.Transactions {
		tx, err := txr.toTransaction(pos, i)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return &Block{
		Index:        *r.Index,
		Transactions: txs,
		PreviousHash: *r.PreviousHash,
		Timestamp:    *r.Timestamp,
		Proof:        *r.Proof,
		Hash:         *r.Hash,
	}, nil
}

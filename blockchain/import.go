package blockchain

/**
 * RebuildChain replays an externally supplied chain block by block.
 *
 * The first record is trusted verbatim as the genesis block. Every later
 * block must follow its predecessor's index and pass the same checks as
 * IntegrateBlock (linkage and proof) against the chain rebuilt so far.
 *
 * Returns:
 *   - []*Block: The rebuilt, fully validated chain
 *   - error: MalformedImport when a record lacks a field,
 *     CorruptPeerChain when a block fails re-validation
 */
func RebuildChain(records []BlockRecord, difficulty int) ([]*Block, error) {
	rebuilt, err := NewBlockchainFromRecords(records, difficulty)
	if err != nil {
		return nil, err
	}
	return rebuilt.blocks, nil
}

// NewBlockchainFromRecords rebuilds a ledger with an empty pending pool from
// exported records. See RebuildChain for the validation rules.
func NewBlockchainFromRecords(records []BlockRecord, difficulty int) (*Blockchain, error) {
	if len(records) == 0 {
		return nil, NewError(ErrorTypeMalformedImport, "chain has no blocks")
	}

	blocks := make([]*Block, 0, len(records))
	for i, r := range records {
		b, err := r.ToBlock(i)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}

	rebuilt := newBlockchainFromGenesis(blocks[0], difficulty)
	for _, b := range blocks[1:] {
		prev := rebuilt.blocks[len(rebuilt.blocks)-1]
		if b.Index != prev.Index+1 {
			return nil, NewErrorf(ErrorTypeCorruptPeerChain, "index %d does not follow %d", b.Index, prev.Index).
				WithBlockIndex(b.Index)
		}

		provenHash := b.Hash
		b.Hash = ""
		if err := rebuilt.IntegrateBlock(b, provenHash); err != nil {
			return nil, NewError(ErrorTypeCorruptPeerChain, "block failed re-validation").
				WithBlockIndex(b.Index).
				Wrap(err)
		}
	}
	return rebuilt, nil
}

// ExportSnapshot returns the full exported state of the ledger.
func (bc *Blockchain) ExportSnapshot() Snapshot {
	return NewSnapshot(bc.GetBlocks())
}

// ChainView returns the chain as served to callers and peers.
func (bc *Blockchain) ChainView() ChainResponse {
	return NewChainResponse(bc.GetBlocks())
}

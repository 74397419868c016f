package blockchain

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"powledger_go/utils"
)

// Database keys prefixes for better organization
const (
	blockHashKeyPrefix  = "blockhash_"  // Prefix for accessing blocks by hash
	blockIndexKeyPrefix = "blockindex_" // Prefix for accessing blocks by index
	blockHeightKey      = "height"      // Key for the current blockchain height
	snapshotKey         = "snapshot"    // Key for the latest full snapshot
)

// BlockchainDB persists ledger snapshots in LevelDB. It is write-mostly: the
// node saves a snapshot periodically and reads one back only on start.
type BlockchainDB struct {
	db        *leveldb.DB
	batchLock sync.Mutex
	path      string
}

// NewBlockchainDB creates a new database connection
func NewBlockchainDB(dataDir string) (*BlockchainDB, error) {
	dbPath := filepath.Join(dataDir, "blockchain")

	options := &opt.Options{
		BlockCacheCapacity:  8 * 1024 * 1024, // 8MB block cache
		WriteBuffer:         4 * 1024 * 1024, // 4MB write buffer
		CompactionTableSize: 2 * 1024 * 1024, // 2MB compaction table size
	}

	db, err := leveldb.OpenFile(dbPath, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open blockchain database: %w", err)
	}

	utils.LogInfo("Blockchain database initialized at: %s", dbPath)

	return &BlockchainDB{
		db:   db,
		path: dbPath,
	}, nil
}

// Close closes the database connection
func (bdb *BlockchainDB) Close() error {
	if bdb.db != nil {
		return bdb.db.Close()
	}
	return nil
}

// SaveSnapshot stores the snapshot and indexes each of its blocks by index
// and by hash, in one atomic batch. Index and hash keys of blocks that are
// no longer part of the saved chain are removed in the same batch.
func (bdb *BlockchainDB) SaveSnapshot(snapshot Snapshot) error {
	snapshotData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(snapshotKey), snapshotData)

	current := make(map[string]struct{}, len(snapshot.Chain))
	for pos, record := range snapshot.Chain {
		if record.Index == nil || record.Hash == nil {
			return NewErrorf(ErrorTypeMalformedImport, "snapshot block at position %d has no index or hash", pos)
		}
		blockData, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal block %d: %w", *record.Index, err)
		}
		batch.Put([]byte(fmt.Sprintf("%s%d", blockIndexKeyPrefix, *record.Index)), blockData)
		batch.Put([]byte(blockHashKeyPrefix+*record.Hash), blockData)
		current[*record.Hash] = struct{}{}
	}
	batch.Put([]byte(blockHeightKey), []byte(strconv.Itoa(snapshot.Length)))

	bdb.batchLock.Lock()
	defer bdb.batchLock.Unlock()

	previous, err := bdb.LoadSnapshot()
	if err != nil {
		utils.LogError("Previous snapshot unreadable, stale block keys may remain: %v", err)
	}
	orphaned := 0
	if previous != nil {
		for _, record := range previous.Chain {
			if record.Index != nil && int(*record.Index) > snapshot.Length {
				batch.Delete([]byte(fmt.Sprintf("%s%d", blockIndexKeyPrefix, *record.Index)))
			}
			if record.Hash == nil {
				continue
			}
			if _, ok := current[*record.Hash]; !ok {
				batch.Delete([]byte(blockHashKeyPrefix + *record.Hash))
				orphaned++
			}
		}
	}

	if err := bdb.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to save snapshot to database: %w", err)
	}

	utils.LogDebug("Snapshot with %d blocks saved to %s (%d orphaned blocks dropped)", snapshot.Length, bdb.path, orphaned)
	return nil
}

// LoadSnapshot returns the latest saved snapshot, or nil if none was saved yet
func (bdb *BlockchainDB) LoadSnapshot() (*Snapshot, error) {
	data, err := bdb.db.Get([]byte(snapshotKey), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to retrieve snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, NewError(ErrorTypeMalformedImport, "stored snapshot is not valid JSON").Wrap(err)
	}
	return &snapshot, nil
}

func (bdb *BlockchainDB) getBlock(key string) (*Block, error) {
	data, err := bdb.db.Get([]byte(key), nil)
	if err != nil {
		return nil, err
	}

	var record BlockRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block: %w", err)
	}
	return record.ToBlock(0)
}

// GetBlockByIndex retrieves a block by its index
func (bdb *BlockchainDB) GetBlockByIndex(index uint64) (*Block, error) {
	block, err := bdb.getBlock(fmt.Sprintf("%s%d", blockIndexKeyPrefix, index))
	if err == leveldb.ErrNotFound {
		return nil, fmt.Errorf("block with index %d not found", index)
	}
	return block, err
}

// GetBlockByHash retrieves a block by its hash
func (bdb *BlockchainDB) GetBlockByHash(hash string) (*Block, error) {
	block, err := bdb.getBlock(blockHashKeyPrefix + hash)
	if err == leveldb.ErrNotFound {
		return nil, fmt.Errorf("block with hash %s not found", hash)
	}
	return block, err
}

// GetBlockchainHeight returns the length of the last saved chain
func (bdb *BlockchainDB) GetBlockchainHeight() (int, error) {
	data, err := bdb.db.Get([]byte(blockHeightKey), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return 0, nil // Nothing saved yet
		}
		return 0, fmt.Errorf("failed to retrieve blockchain height: %w", err)
	}

	height, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("failed to parse blockchain height: %w", err)
	}
	return height, nil
}

// LoadVerifiedSnapshot returns the latest saved snapshot after checking it
// against the per-block keys written with it: the stored height, and the tip
// looked up both by index and by hash. A disagreement means the store is
// inconsistent and the snapshot must not be trusted.
func (bdb *BlockchainDB) LoadVerifiedSnapshot() (*Snapshot, error) {
	snapshot, err := bdb.LoadSnapshot()
	if err != nil || snapshot == nil {
		return snapshot, err
	}
	if len(snapshot.Chain) == 0 || snapshot.Length != len(snapshot.Chain) {
		return nil, NewErrorf(ErrorTypeMalformedImport, "stored snapshot reports length %d but holds %d blocks", snapshot.Length, len(snapshot.Chain))
	}

	height, err := bdb.GetBlockchainHeight()
	if err != nil {
		return nil, err
	}
	if height != snapshot.Length {
		return nil, NewErrorf(ErrorTypeMalformedImport, "stored height %d does not match snapshot length %d", height, snapshot.Length)
	}

	tip := snapshot.Chain[len(snapshot.Chain)-1]
	if tip.Index == nil || tip.Hash == nil {
		return nil, NewError(ErrorTypeMalformedImport, "stored snapshot tip has no index or hash")
	}
	byIndex, err := bdb.GetBlockByIndex(*tip.Index)
	if err != nil {
		return nil, err
	}
	byHash, err := bdb.GetBlockByHash(*tip.Hash)
	if err != nil {
		return nil, err
	}
	if byIndex.Hash != *tip.Hash || byHash.Index != *tip.Index {
		return nil, NewErrorf(ErrorTypeMalformedImport, "stored block #%d does not match the snapshot tip", *tip.Index).
			WithBlockIndex(*tip.Index)
	}
	return snapshot, nil
}

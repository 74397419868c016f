package node

import (
	"context"
	"time"

	"powledger_go/blockchain"
	"powledger_go/metrics"
	"powledger_go/utils"
)

// SaveBackup exports the ledger to the store and, when filePath is set, to a JSON file.
func (c *Coordinator) SaveBackup(store SnapshotStore, filePath string) error {
	snapshot := c.chain.ExportSnapshot()

	if store != nil {
		if err := store.SaveSnapshot(snapshot); err != nil {
			metrics.SnapshotsWritten.WithLabelValues("leveldb", "error").Inc()
			return err
		}
		metrics.SnapshotsWritten.WithLabelValues("leveldb", "ok").Inc()
	}

	if filePath != "" {
		if err := blockchain.WriteSnapshotFile(filePath, snapshot); err != nil {
			metrics.SnapshotsWritten.WithLabelValues("file", "error").Inc()
			return err
		}
		metrics.SnapshotsWritten.WithLabelValues("file", "ok").Inc()
	}

	utils.LogDebug("Backup written (%d blocks)", snapshot.Length)
	return nil
}

// RunBackups writes a backup immediately and then every interval until ctx is done.
func (c *Coordinator) RunBackups(ctx context.Context, interval time.Duration, store SnapshotStore, filePath string) {
	if err := c.SaveBackup(store, filePath); err != nil {
		utils.LogError("Backup failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			utils.LogInfo("Stopping periodic backups.")
			return
		case <-ticker.C:
			if err := c.SaveBackup(store, filePath); err != nil {
				utils.LogError("Backup failed: %v", err)
			}
		}
	}
}

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"powledger_go/blockchain"
	"powledger_go/consensus"
	"powledger_go/node"
	"powledger_go/p2p"
	"powledger_go/utils"
)

const testDifficulty = 1

func silenceLogs(t *testing.T) {
	t.Helper()
	originalLogger := utils.GetLogger()
	utils.InitLogger(false, true)
	t.Cleanup(func() { utils.SetLogger(originalLogger) })
}

func newTestCoordinator() *node.Coordinator {
	return node.NewCoordinator(node.Config{
		NodeID:      "node-a",
		SelfAddress: "http://127.0.0.1:5000",
		Chain:       blockchain.NewBlockchain(testDifficulty),
		Resolver:    consensus.NewResolver(p2p.NewClient(time.Second)),
	})
}

// minedSnapshot exports a ledger with the given number of mined blocks after genesis.
func minedSnapshot(t *testing.T, blocks int) blockchain.Snapshot {
	t.Helper()
	c := newTestCoordinator()
	for i := 0; i < blocks; i++ {
		c.SubmitTransaction("a", "b", int64(i+1))
		if res, err := c.MineNext(context.Background()); err != nil || res.Outcome != node.Mined {
			t.Fatalf("MineNext failed: %+v (%v)", res, err)
		}
	}
	return c.ExportSnapshot()
}

func TestSplitSeedNodes(t *testing.T) {
	silenceLogs(t)

	seeds := splitSeedNodes(" 127.0.0.1:5001, http://peer-b:5002/ ,,ftp://bad, http://127.0.0.1:5001")
	if len(seeds) != 2 || seeds[0] != "http://127.0.0.1:5001" || seeds[1] != "http://peer-b:5002" {
		t.Errorf("Expected [http://127.0.0.1:5001 http://peer-b:5002], got %v", seeds)
	}
	if seeds := splitSeedNodes(""); len(seeds) != 0 {
		t.Errorf("Expected no seeds, got %v", seeds)
	}
}

func TestRestoreLedger(t *testing.T) {
	silenceLogs(t)

	openDB := func(t *testing.T) *blockchain.BlockchainDB {
		t.Helper()
		db, err := blockchain.NewBlockchainDB(t.TempDir())
		if err != nil {
			t.Fatalf("NewBlockchainDB failed: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		return db
	}

	t.Run("FromDatabase", func(t *testing.T) {
		db := openDB(t)
		if err := db.SaveSnapshot(minedSnapshot(t, 2)); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
		c := newTestCoordinator()
		if !restoreLedger(c, db, filepath.Join(t.TempDir(), "missing.json")) {
			t.Fatal("Expected the database snapshot to be restored")
		}
		if length := c.Chain().GetLength(); length != 3 {
			t.Errorf("Expected length 3, got %d", length)
		}
	})

	t.Run("CorruptDatabaseFallsBackToFile", func(t *testing.T) {
		db := openDB(t)
		corrupt := minedSnapshot(t, 3)
		tampered := *corrupt.Chain[1].Proof + 1
		corrupt.Chain[1].Proof = &tampered
		if err := db.SaveSnapshot(corrupt); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}

		backupFile := filepath.Join(t.TempDir(), "backup-node-a-5000.json")
		if err := blockchain.WriteSnapshotFile(backupFile, minedSnapshot(t, 2)); err != nil {
			t.Fatalf("WriteSnapshotFile failed: %v", err)
		}

		c := newTestCoordinator()
		if !restoreLedger(c, db, backupFile) {
			t.Fatal("Expected the backup file to be restored")
		}
		if length := c.Chain().GetLength(); length != 3 {
			t.Errorf("Expected length 3 from the backup file, got %d", length)
		}
	})

	t.Run("NothingSaved", func(t *testing.T) {
		c := newTestCoordinator()
		if restoreLedger(c, openDB(t), filepath.Join(t.TempDir(), "missing.json")) {
			t.Error("Expected nothing to be restored")
		}
		if length := c.Chain().GetLength(); length != 1 {
			t.Errorf("Expected genesis only, got length %d", length)
		}
	})
}

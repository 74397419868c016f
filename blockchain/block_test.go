package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"powledger_go/utils"
)

// silenceLogs discards log output for the duration of a test.
func silenceLogs(t *testing.T) {
	t.Helper()
	originalLogger := utils.GetLogger()
	originalVerbose := utils.GetVerbose()
	utils.InitLogger(false, true)
	t.Cleanup(func() {
		utils.SetLogger(originalLogger)
		utils.SetVerbose(originalVerbose)
	})
}

func sampleBlock() *Block {
	return &Block{
		Index: 2,
		Transactions: []*Transaction{
			{Origin: "a", Destination: "b", Amount: 5, Timestamp: 1.25},
		},
		PreviousHash: "abc",
		Timestamp:    1.5,
		Proof:        7,
	}
}

func TestCalculateHash_CanonicalEncoding(t *testing.T) {
	canonical := `{"index":2,"previous_hash":"abc","proof":7,"timestamp":1.5,` +
		`"transactions":[{"amount":5,"destination":"b","origin":"a","timestamp":1.25}]}`
	sum := sha256.Sum256([]byte(canonical))
	expected := hex.EncodeToString(sum[:])

	if actual := sampleBlock().CalculateHash(); actual != expected {
		t.Errorf("Expected hash %s, got %s", expected, actual)
	}
}

func TestCalculateHash_Deterministic(t *testing.T) {
	a, b := sampleBlock(), sampleBlock()
	if a.CalculateHash() != b.CalculateHash() {
		t.Errorf("Equal blocks produced different hashes: %s vs %s", a.CalculateHash(), b.CalculateHash())
	}

	t.Run("HashFieldExcluded", func(t *testing.T) {
		before := a.CalculateHash()
		a.Hash = "ffff"
		if after := a.CalculateHash(); after != before {
			t.Errorf("Setting Hash changed the digest: %s -> %s", before, after)
		}
	})

	t.Run("ProofChangesHash", func(t *testing.T) {
		b.Proof++
		if b.CalculateHash() == sampleBlock().CalculateHash() {
			t.Error("Different proofs produced the same hash")
		}
	})

	t.Run("NilAndEmptyTransactionsAgree", func(t *testing.T) {
		withNil := &Block{Index: 1, PreviousHash: "1", Timestamp: 3}
		withEmpty := &Block{Index: 1, PreviousHash: "1", Timestamp: 3, Transactions: []*Transaction{}}
		if withNil.CalculateHash() != withEmpty.CalculateHash() {
			t.Error("Nil and empty transaction lists hashed differently")
		}
	})
}

func TestCalculateHash_Format(t *testing.T) {
	hash := sampleBlock().CalculateHash()
	if len(hash) != 64 {
		t.Fatalf("Expected 64 hex characters, got %d", len(hash))
	}
	if hash != strings.ToLower(hash) {
		t.Errorf("Expected lowercase hex, got %s", hash)
	}
}

func TestNewGenesisBlock(t *testing.T) {
	silenceLogs(t)

	genesis := NewGenesisBlock(2)
	if genesis.Index != 1 {
		t.Errorf("Expected genesis index 1, got %d", genesis.Index)
	}
	if genesis.PreviousHash != GenesisPreviousHash {
		t.Errorf("Expected previous hash %q, got %q", GenesisPreviousHash, genesis.PreviousHash)
	}
	if len(genesis.Transactions) != 0 {
		t.Errorf("Expected no transactions, got %d", len(genesis.Transactions))
	}
	if !genesis.IsFinalized() {
		t.Fatal("Expected genesis to be finalized")
	}
	if !strings.HasPrefix(genesis.Hash, "00") {
		t.Errorf("Expected genesis hash to meet difficulty 2, got %s", genesis.Hash)
	}
	if !IsValidProof(genesis, genesis.Hash, 2) {
		t.Error("Expected genesis hash to be a valid proof")
	}
}

func TestNewBlock_IsCandidate(t *testing.T) {
	b := NewBlock(3, nil, "prev")
	if b.IsFinalized() {
		t.Error("New block should not be finalized")
	}
	if b.Proof != 0 {
		t.Errorf("Expected proof 0, got %d", b.Proof)
	}
	if b.Timestamp <= 0 {
		t.Errorf("Expected a positive timestamp, got %f", b.Timestamp)
	}
}

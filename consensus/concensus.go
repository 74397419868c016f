package consensus

import (
	"context"

	"powledger_go/blockchain"
)

// ConsensusType represents the type of consensus algorithm
type ConsensusType string

const (
	// LongestChain adopts the longest fully re-validated chain known to any peer
	LongestChain ConsensusType = "LONGEST_CHAIN"
)

// PeerSource fetches the chain a peer currently holds.
type PeerSource interface {
	FetchChain(ctx context.Context, peer string) (*blockchain.ChainResponse, error)
}

// Outcome is the result of one conflict resolution round
type Outcome string

const (
	// Replaced means the local chain was swapped for a longer peer chain
	Replaced Outcome = "REPLACED"
	// Retained means no longer valid alternative was found
	Retained Outcome = "RETAINED"
)

// Result describes a finished resolution round.
type Result struct {
	Outcome  Outcome  `json:"outcome"`
	Length   int      `json:"length"`             // local chain length after the round
	Source   string   `json:"source,omitempty"`   // peer whose chain was adopted
	Rejected []string `json:"rejected,omitempty"` // peers whose longer chain failed re-validation
}

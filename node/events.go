package node

import (
	"time"

	"powledger_go/blockchain"
	"powledger_go/consensus"
)

// ChainEventType identifies what changed in the chain
type ChainEventType string

const (
	EventBlockMined    ChainEventType = "BLOCK_MINED"
	EventChainReplaced ChainEventType = "CHAIN_REPLACED"
)

// ChainEvent is published whenever the local chain grows or is replaced.
type ChainEvent struct {
	Type      ChainEventType          `json:"type"`
	Length    int                     `json:"length"`
	Block     *blockchain.BlockRecord `json:"block,omitempty"`  // set for EventBlockMined
	Source    string                  `json:"source,omitempty"` // peer the replacement came from
	Timestamp string                  `json:"timestamp"`
}

// Notifier receives chain events. Publish must not block.
type Notifier interface {
	Publish(event ChainEvent)
}

func newMinedEvent(b *blockchain.Block, length int) ChainEvent {
	record := blockchain.NewBlockRecord(b)
	return ChainEvent{
		Type:      EventBlockMined,
		Length:    length,
		Block:     &record,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func newReplacedEvent(res consensus.Result) ChainEvent {
	return ChainEvent{
		Type:      EventChainReplaced,
		Length:    res.Length,
		Source:    res.Source,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

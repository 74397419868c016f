package consensus

import (
	"fmt"
)

// NewConsensus creates a resolver for the given consensus type
func NewConsensus(consensusType ConsensusType, source PeerSource) (*Resolver, error) {
	if source == nil {
		return nil, fmt.Errorf("consensus %s needs a peer source", consensusType)
	}

	switch consensusType {
	case LongestChain:
		return NewResolver(source), nil
	default:
		return nil, fmt.Errorf("unsupported consensus type: %s", consensusType)
	}
}

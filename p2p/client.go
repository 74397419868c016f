package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"powledger_go/blockchain"
	"powledger_go/node"
)

// Client talks to peer nodes over HTTP. It is the consensus.PeerSource and
// node.PeerPusher of a running node.
type Client struct {
	client *resty.Client
}

// NewClient creates a peer client. A zero timeout leaves requests unbounded.
func NewClient(timeout time.Duration) *Client {
	c := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{client: c}
}

// FetchChain asks a peer for its chain.
func (c *Client) FetchChain(ctx context.Context, peer string) (*blockchain.ChainResponse, error) {
	resp, err := c.client.R().SetContext(ctx).Get(peer + "/chain")
	if err != nil {
		return nil, fmt.Errorf("fetching chain from %s: %w", peer, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching chain from %s: HTTP %d", peer, resp.StatusCode())
	}

	var chain blockchain.ChainResponse
	if err := json.Unmarshal(resp.Body(), &chain); err != nil {
		return nil, fmt.Errorf("decoding chain from %s: %w", peer, err)
	}
	return &chain, nil
}

// PushState sends the node list and ledger export to a peer's sync endpoint.
func (c *Client) PushState(ctx context.Context, peer string, req node.SyncRequest) error {
	resp, err := c.client.R().SetContext(ctx).SetBody(req).Post(peer + "/nodes/sync")
	if err != nil {
		return fmt.Errorf("pushing state to %s: %w", peer, err)
	}
	if resp.IsError() {
		return fmt.Errorf("pushing state to %s: HTTP %d: %s", peer, resp.StatusCode(), resp.String())
	}
	return nil
}

package p2p

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"powledger_go/utils"
)

// NodeInfo describes a registered peer.
type NodeInfo struct {
	Address  string `json:"address"`
	LastSeen int64  `json:"lastSeen"`
}

// NodeManager manages the set of known peer nodes.
type NodeManager struct {
	Nodes map[string]NodeInfo // Key is the normalized peer URL
	mu    sync.Mutex
}

// NewNodeManager creates and returns a new NodeManager instance.
func NewNodeManager() *NodeManager {
	return &NodeManager{
		Nodes: make(map[string]NodeInfo),
	}
}

// NormalizePeerAddress turns "host:port" or "http://host:port/" into "http://host:port".
func NormalizePeerAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("node address cannot be empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid node address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid node address %q: unsupported scheme %q", addr, u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", fmt.Errorf("invalid node address %q: missing host", addr)
	}
	return u.Scheme + "://" + u.Host, nil
}

// AddNode adds a new node or refreshes its LastSeen timestamp if it already exists.
func (nm *NodeManager) AddNode(address string) error {
	normalized, err := NormalizePeerAddress(address)
	if err != nil {
		return err
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.Nodes[normalized] = NodeInfo{
		Address:  normalized,
		LastSeen: time.Now().Unix(),
	}

	utils.LogInfo("Node registered/updated: %s", normalized)
	return nil
}

// AddPeers registers every valid address and returns the ones that were not known before.
// Invalid addresses are logged and skipped.
func (nm *NodeManager) AddPeers(addresses []string) []string {
	var added []string
	for _, addr := range addresses {
		normalized, err := NormalizePeerAddress(addr)
		if err != nil {
			utils.LogError("Skipping peer: %v", err)
			continue
		}
		nm.mu.Lock()
		_, known := nm.Nodes[normalized]
		nm.mu.Unlock()

		if err := nm.AddNode(normalized); err != nil {
			continue
		}
		if !known {
			added = append(added, normalized)
		}
	}
	return added
}

// NormalizePeers returns the canonical form of every valid address in order,
// without duplicates. Invalid addresses are logged and skipped.
func (nm *NodeManager) NormalizePeers(addresses []string) []string {
	normalized := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		n, err := NormalizePeerAddress(addr)
		if err != nil {
			utils.LogError("Skipping peer: %v", err)
			continue
		}
		if !utils.Contains(normalized, n) {
			normalized = append(normalized, n)
		}
	}
	return normalized
}

// GetActiveNodes returns all registered nodes ordered by address.
func (nm *NodeManager) GetActiveNodes() []NodeInfo {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	activeNodes := make([]NodeInfo, 0, len(nm.Nodes))
	for _, nodeInfo := range nm.Nodes {
		activeNodes = append(activeNodes, nodeInfo)
	}
	sort.Slice(activeNodes, func(i, j int) bool { return activeNodes[i].Address < activeNodes[j].Address })

	return activeNodes
}

// GetPeerAddresses returns the registered peer URLs ordered by address.
func (nm *NodeManager) GetPeerAddresses() []string {
	nodes := nm.GetActiveNodes()
	addresses := make([]string, 0, len(nodes))
	for _, n := range nodes {
		addresses = append(addresses, n.Address)
	}
	return addresses
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ledger Metrics
	ChainLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "powledger",
			Subsystem: "ledger",
			Name:      "chain_length",
			Help:      "Current number of finalized blocks in the local chain.",
		},
	)

	PendingTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "powledger",
			Subsystem: "ledger",
			Name:      "pending_transactions",
			Help:      "Current number of transactions waiting in the pending pool.",
		},
	)

	IntegrationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powledger",
			Subsystem: "ledger",
			Name:      "integrations_total",
			Help:      "Block integration attempts, labeled by outcome.",
		},
		[]string{"outcome"}, // accepted, invalid_linkage, invalid_proof
	)

	// Mining Metrics
	HashAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "powledger",
			Subsystem: "miner",
			Name:      "hash_attempts_total",
			Help:      "Total number of block digests computed by the proof-of-work search.",
		},
	)

	MiningDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "powledger",
			Subsystem: "miner",
			Name:      "search_duration_seconds",
			Help:      "Duration of proof-of-work searches.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"result"}, // found, aborted
	)

	MineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powledger",
			Subsystem: "miner",
			Name:      "mine_requests_total",
			Help:      "Mining protocol runs, labeled by outcome.",
		},
		[]string{"outcome"}, // mined, no_transactions, conflict_resolved, integration_failed, error
	)

	// Consensus Metrics
	ConsensusRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powledger",
			Subsystem: "consensus",
			Name:      "rounds_total",
			Help:      "Conflict resolution rounds, labeled by result.",
		},
		[]string{"result"}, // replaced, retained
	)

	PeerFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "powledger",
			Subsystem: "consensus",
			Name:      "peer_fetch_failures_total",
			Help:      "Failed peer chain fetches.",
		},
	)

	RejectedPeerChains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powledger",
			Subsystem: "consensus",
			Name:      "rejected_peer_chains_total",
			Help:      "Peer chains that failed re-validation, labeled by reason.",
		},
		[]string{"reason"}, // length_mismatch, invalid_chain
	)

	// Peer Metrics
	KnownPeersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "powledger",
			Subsystem: "p2p",
			Name:      "known_peers_count",
			Help:      "Current number of registered peers.",
		},
	)

	FeedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "powledger",
			Subsystem: "p2p",
			Name:      "block_feed_subscribers",
			Help:      "Current number of websocket block feed subscribers.",
		},
	)

	SnapshotsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powledger",
			Subsystem: "storage",
			Name:      "snapshots_written_total",
			Help:      "Snapshot exports, labeled by target and outcome.",
		},
		[]string{"target", "outcome"}, // target: leveldb, file; outcome: ok, error
	)
)

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"powledger_go/blockchain"
	"powledger_go/consensus"
	"powledger_go/node"
	"powledger_go/p2p"
	"powledger_go/utils"

	"github.com/joho/godotenv"
)

// AppConfig holds all startup configurations
type AppConfig struct {
	Port           int
	NodeID         string
	PublicURL      string
	Difficulty     int
	DataDir        string
	BackupInterval time.Duration
	PeerTimeout    time.Duration
	SeedNodesStr   string
	Verbose        bool
}

func getEnvInt(key string, defaultValue int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	valInt, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s: %s. Using default %d.", key, valStr, defaultValue)
		return defaultValue
	}
	return valInt
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	valDur, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s: %s. Using default %s.", key, valStr, defaultValue)
		return defaultValue
	}
	return valDur
}

func loadConfig() *AppConfig {
	config := &AppConfig{}

	flag.IntVar(&config.Port, "port", getEnvInt("API_PORT", 5000), "Port for the HTTP API")
	flag.StringVar(&config.NodeID, "nodeid", os.Getenv("NODE_ID"), "Identity credited with mining rewards")
	flag.StringVar(&config.PublicURL, "public", os.Getenv("PUBLIC_URL"), "URL peers reach this node at")
	flag.IntVar(&config.Difficulty, "difficulty", getEnvInt("DIFFICULTY", blockchain.DefaultDifficulty), "Number of leading zeros a block hash needs")
	flag.StringVar(&config.DataDir, "datadir", os.Getenv("DATA_DIR"), "Directory for ledger data and backups")
	flag.DurationVar(&config.BackupInterval, "backup", getEnvDuration("BACKUP_INTERVAL", time.Minute), "Interval between ledger backups")
	flag.DurationVar(&config.PeerTimeout, "peertimeout", getEnvDuration("PEER_TIMEOUT", 10*time.Second), "Timeout for requests to peers")
	flag.StringVar(&config.SeedNodesStr, "seed", os.Getenv("SEED_NODES"), "Comma-separated list of peers to register at startup")
	flag.BoolVar(&config.Verbose, "verbose", os.Getenv("VERBOSE") == "true" || os.Getenv("VERBOSE") == "1", "Enable detailed logging")

	flag.Parse()

	if config.DataDir == "" {
		config.DataDir = "data"
		utils.LogInfo("Data directory not specified, using default: %s", config.DataDir)
	}
	if config.NodeID == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "node"
		}
		config.NodeID = fmt.Sprintf("%s-%d", hostname, config.Port)
		utils.LogInfo("Node ID not specified, using: %s", config.NodeID)
	}
	if config.PublicURL == "" {
		config.PublicURL = fmt.Sprintf("http://localhost:%d", config.Port)
	}
	if config.Difficulty < 0 {
		log.Fatalf("Difficulty must not be negative, got %d", config.Difficulty)
	}
	if config.BackupInterval <= 0 {
		log.Fatalf("Backup interval must be positive, got %s", config.BackupInterval)
	}
	return config
}

// splitSeedNodes parses SEED_NODES into canonical peer URLs, so "host:port"
// seeds are pushed to the same address the peer set records.
func splitSeedNodes(s string) []string {
	var seeds []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seed, err := p2p.NormalizePeerAddress(part)
		if err != nil {
			utils.LogError("Ignoring seed node: %v", err)
			continue
		}
		if !utils.Contains(seeds, seed) {
			seeds = append(seeds, seed)
		}
	}
	return seeds
}

func main() {
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	// Attempt to load .env.test first, then .env
	if _, err := os.Stat(".env.test"); err == nil {
		if err := godotenv.Load(".env.test"); err != nil {
			log.Printf("Warning: Error loading .env.test file: %v", err)
		} else {
			log.Println("Successfully loaded .env.test file")
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: Error loading .env file: %v", err)
		} else {
			log.Println("Successfully loaded .env file")
		}
	} else {
		log.Println("No .env or .env.test file found, using environment variables or defaults.")
	}

	// 1. Load Configuration
	config := loadConfig()

	// 2. Setup Logging
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.SetOutput(os.Stdout)
	utils.SetVerbose(config.Verbose)

	utils.LogInfo("Application starting...")

	// 3. Create Data Directory
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory %s: %v", config.DataDir, err)
	}

	selfAddress, err := p2p.NormalizePeerAddress(config.PublicURL)
	if err != nil {
		log.Fatalf("Invalid public URL: %v", err)
	}

	// 4. Open storage
	db, err := blockchain.NewBlockchainDB(config.DataDir)
	if err != nil {
		log.Fatalf("Failed to open ledger database: %v", err)
	}
	defer db.Close()
	backupFile := filepath.Join(config.DataDir, fmt.Sprintf("backup-%s-%d.json", config.NodeID, config.Port))

	// 5. Build the node
	utils.LogInfo("Creating genesis block (difficulty %d)...", config.Difficulty)
	chain := blockchain.NewBlockchain(config.Difficulty)
	nodeMgr := p2p.NewNodeManager()
	feed := p2p.NewBlockFeed()
	client := p2p.NewClient(config.PeerTimeout)
	resolver, err := consensus.NewConsensus(consensus.LongestChain, client)
	if err != nil {
		log.Fatalf("Failed to create consensus: %v", err)
	}

	coordinator := node.NewCoordinator(node.Config{
		NodeID:      config.NodeID,
		SelfAddress: selfAddress,
		Chain:       chain,
		Resolver:    resolver,
		Peers:       nodeMgr,
		Pusher:      client,
		Notifier:    feed,
	})

	restoreLedger(coordinator, db, backupFile)

	// 6. Start HTTP server
	server := p2p.NewServer(coordinator, nodeMgr, feed, config.Port)
	server.SetupRoutes()
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	setupGracefulShutdown(cancelApp, server)

	// 7. Background jobs
	go coordinator.RunBackups(appCtx, config.BackupInterval, db, backupFile)

	if seeds := splitSeedNodes(config.SeedNodesStr); len(seeds) > 0 {
		go func() {
			known := coordinator.RegisterPeers(appCtx, seeds)
			utils.LogInfo("Registered %d seed nodes, %d peers known", len(seeds), len(known))
		}()
	}

	utils.PrintStartupMessage(config.NodeID, config.Port, config.Difficulty)

	// Wait for context cancellation (e.g. from shutdown signal)
	<-appCtx.Done()

	if err := coordinator.SaveBackup(db, backupFile); err != nil {
		utils.LogError("Final backup failed: %v", err)
	}
	utils.LogInfo("Application shutting down.")
}

// restoreLedger adopts the last saved snapshot, preferring the database over
// the backup file. A source that fails to load or rebuild falls through to the
// next one. A saved genesis-only chain is never adopted: it has the same
// length as the freshly mined genesis and carries no transactions.
func restoreLedger(coordinator *node.Coordinator, db *blockchain.BlockchainDB, backupFile string) bool {
	sources := []struct {
		name string
		load func() (*blockchain.Snapshot, error)
	}{
		{"database", db.LoadVerifiedSnapshot},
		{"backup file", func() (*blockchain.Snapshot, error) {
			if _, err := os.Stat(backupFile); err != nil {
				return nil, nil
			}
			return blockchain.ReadSnapshotFile(backupFile)
		}},
	}

	for _, source := range sources {
		snapshot, err := source.load()
		if err != nil {
			utils.LogError("Failed to load snapshot from %s: %v", source.name, err)
			continue
		}
		if snapshot == nil {
			continue
		}
		replaced, err := coordinator.Restore(*snapshot)
		if err != nil {
			utils.LogError("Snapshot from %s is invalid: %v", source.name, err)
			continue
		}
		if replaced {
			utils.LogInfo("Restored ledger with %d blocks from %s (exported at %s)", snapshot.Length, source.name, snapshot.ExportedAt)
		}
		return replaced
	}

	utils.LogInfo("No usable saved ledger found, starting from genesis.")
	return false
}

func setupGracefulShutdown(cancelApp context.CancelFunc, server *p2p.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-c
		utils.LogInfo("Received shutdown signal: %s. Initiating graceful shutdown...", sig.String())

		utils.LogInfo("Shutting down HTTP server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			utils.LogError("HTTP server shutdown error: %v", err)
		} else {
			utils.LogInfo("HTTP server shutdown complete.")
		}

		cancelApp()
	}()
}

package p2p

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"powledger_go/node"
	"powledger_go/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the ledger node
type Server struct {
	Router      *mux.Router
	Coordinator *node.Coordinator
	NodeMgr     *NodeManager
	Feed        *BlockFeed
	Port        int

	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(coordinator *node.Coordinator, nodeMgr *NodeManager, feed *BlockFeed, port int) *Server {
	return &Server{
		Router:      mux.NewRouter(),
		Coordinator: coordinator,
		NodeMgr:     nodeMgr,
		Feed:        feed,
		Port:        port,
	}
}

// SetupRoutes configures the API routes
func (s *Server) SetupRoutes() {
	s.Router.HandleFunc("/system", s.SystemHandler).Methods("GET")
	s.Router.HandleFunc("/ping", s.PingHandler).Methods("GET")

	// Transactions and mining
	s.Router.HandleFunc("/transactions/new", s.NewTransactionHandler).Methods("POST")
	s.Router.HandleFunc("/mine", s.MineHandler).Methods("GET")
	s.Router.HandleFunc("/chain", s.ChainHandler).Methods("GET")
	s.Router.HandleFunc("/mempool", s.MempoolHandler).Methods("GET")

	// Peers
	s.Router.HandleFunc("/nodes/register", s.RegisterNodesHandler).Methods("POST")
	s.Router.HandleFunc("/nodes/sync", s.SyncHandler).Methods("POST")
	s.Router.HandleFunc("/nodes/resolve", s.ResolveHandler).Methods("POST")
	s.Router.HandleFunc("/nodes/active", GetActiveNodesHandler(s.NodeMgr)).Methods("GET")

	if s.Feed != nil {
		s.Router.Handle("/ws/blocks", s.Feed).Methods("GET")
	}
	s.Router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	utils.LogInfo("Server starting on port %d", s.Port)

	// Mining can take a while at high difficulty, so writes get a generous timeout.
	s.httpServer = &http.Server{
		Handler:      s.Router,
		Addr:         fmt.Sprintf(":%d", s.Port),
		WriteTimeout: 5 * time.Minute,
		ReadTimeout:  15 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes the websocket feed.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Feed != nil {
		s.Feed.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

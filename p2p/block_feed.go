package p2p

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"powledger_go/metrics"
	"powledger_go/node"
	"powledger_go/utils"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedBufferSize   = 16
)

type feedClient struct {
	conn *websocket.Conn
	send chan node.ChainEvent
}

// BlockFeed streams chain events to websocket subscribers. It implements node.Notifier.
type BlockFeed struct {
	upgrader websocket.Upgrader
	clients  map[*feedClient]struct{}
	mutex    sync.RWMutex
}

// NewBlockFeed creates an empty feed
func NewBlockFeed() *BlockFeed {
	return &BlockFeed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Read-only public feed
			},
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and streams events until the subscriber goes away.
func (f *BlockFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.LogError("[FEED] Failed to upgrade connection for %s: %v", r.RemoteAddr, err)
		return
	}

	client := &feedClient{conn: conn, send: make(chan node.ChainEvent, feedBufferSize)}
	f.register(client)
	utils.LogDebug("[FEED] Subscriber connected: %s", r.RemoteAddr)

	go f.writeLoop(client)

	// Subscribers only listen; reading detects when they disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	utils.LogDebug("[FEED] Subscriber disconnected: %s", r.RemoteAddr)
	f.unregister(client)
}

func (f *BlockFeed) writeLoop(client *feedClient) {
	defer client.conn.Close()
	for event := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := client.conn.WriteJSON(event); err != nil {
			utils.LogError("[FEED] Failed to write event: %v", err)
			return
		}
	}
	client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (f *BlockFeed) register(client *feedClient) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.clients[client] = struct{}{}
	metrics.FeedSubscribers.Set(float64(len(f.clients)))
}

func (f *BlockFeed) unregister(client *feedClient) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, ok := f.clients[client]; ok {
		delete(f.clients, client)
		close(client.send)
	}
	metrics.FeedSubscribers.Set(float64(len(f.clients)))
}

// Publish hands the event to every subscriber without blocking; a subscriber
// whose buffer is full misses the event.
func (f *BlockFeed) Publish(event node.ChainEvent) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	for client := range f.clients {
		select {
		case client.send <- event:
		default:
			utils.LogError("[FEED] Subscriber buffer full, dropping %s event", event.Type)
		}
	}
}

// SubscriberCount returns the number of connected subscribers
func (f *BlockFeed) SubscriberCount() int {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return len(f.clients)
}

// Close disconnects every subscriber
func (f *BlockFeed) Close() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for client := range f.clients {
		delete(f.clients, client)
		close(client.send)
	}
	metrics.FeedSubscribers.Set(0)
}

package monitor

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RunState is the JSON payload pushed to dashboard clients.
type RunState struct {
	Instruction string        `json:"instruction"`
	DurationSec int           `json:"duration_sec"`
	VectorBits  int           `json:"vector_bits"`
	Workers     []WorkerState `json:"workers"`
}

// WorkerState is one worker's entry in RunState.
type WorkerState struct {
	Worker         int     `json:"worker"`
	State          string  `json:"state"`
	Loops          uint64  `json:"loops"`
	LoopsPerSecond float64 `json:"loops_per_second"`
}

// Broadcaster pushes run state to connected WebSocket clients.
type Broadcaster struct {
	log     *logrus.Logger
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewBroadcaster(log *logrus.Logger) *Broadcaster {
	return &Broadcaster{
		log:     log,
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWS is the WebSocket upgrade handler for /ws.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnf("⚠️  WebSocket upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	n := len(b.clients)
	b.mu.Unlock()
	b.log.Infof("📊 Dashboard client connected (%d total)", n)

	// Read loop only detects disconnects.
	go func() {
		defer b.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	_, ok := b.clients[conn]
	delete(b.clients, conn)
	n := len(b.clients)
	b.mu.Unlock()
	conn.Close()
	if ok {
		b.log.Infof("📊 Dashboard client disconnected (%d remain)", n)
	}
}

// Clients returns the number of connected dashboard clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast sends state to every connected client, dropping clients whose
// write fails.
func (b *Broadcaster) Broadcast(state *RunState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
}

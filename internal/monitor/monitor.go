// Package monitor exposes a live diagnostic surface over HTTP and
// WebSocket, modeled on the teacher's mq.Manager SSE fan-out and its
// viewer websocket upgrader.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"github.com/hhenrich/zmqbridge/internal/engine"
)

var log = logging.Logger("zmqbridge/monitor")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one diagnostic entry published to connected monitor clients.
type Event struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Socket string    `json:"socket,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// historyCapacity bounds how many recent events Snapshot/history recall;
// older events are overwritten, matching the teacher's diagnostic ring
// buffer sizing for its own presence/call log.
const historyCapacity = 256

// Monitor fans diagnostic events out to connected websocket clients and
// serves a point-in-time snapshot over HTTP.
type Monitor struct {
	ctx *engine.Context

	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	history   *ringBuffer[Event]

	startTime time.Time
}

// New builds a Monitor for ctx. Wire it up with ctx.SetHook(mon.Publish)
// to receive live bridge events.
func New(ctx *engine.Context) *Monitor {
	return &Monitor{
		ctx:       ctx,
		listeners: make(map[chan Event]struct{}),
		history:   newRingBuffer[Event](historyCapacity),
		startTime: time.Now(),
	}
}

// Publish fans an event out to every connected listener. It matches
// engine.Hook's signature, so it can be installed directly via
// Context.SetHook. Full listener buffers drop the event rather than block.
func (m *Monitor) Publish(kind, sockID, detail string) {
	evt := Event{ID: uuid.NewString(), Time: time.Now(), Kind: kind, Socket: sockID, Detail: detail}
	m.history.push(evt)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.listeners {
		select {
		case ch <- evt:
		default:
			log.Warnf("monitor: listener full, dropping %s event for %s", kind, sockID)
		}
	}
}

func (m *Monitor) subscribe() (chan Event, func()) {
	ch := make(chan Event, 64)
	m.mu.Lock()
	m.listeners[ch] = struct{}{}
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		if _, ok := m.listeners[ch]; ok {
			delete(m.listeners, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// RegisterRoutes wires the monitor's diagnostic HTTP and WS endpoints onto
// mux.
func (m *Monitor) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/monitor/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})

	mux.HandleFunc("/api/monitor/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.history.snapshot())
	})

	mux.HandleFunc("/api/monitor/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("monitor: websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		ch, cancel := m.subscribe()
		defer cancel()

		for evt := range ch {
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	})
}

// Snapshot is a point-in-time diagnostic report for the bridge.
type Snapshot struct {
	Uptime     string `json:"uptime"`
	Terminated bool   `json:"terminated"`
	EventCount int    `json:"eventCount"`
}

// Snapshot returns the bridge's current diagnostic state.
func (m *Monitor) Snapshot() Snapshot {
	return Snapshot{
		Uptime:     time.Since(m.startTime).Truncate(time.Second).String(),
		Terminated: m.ctx.Terminated(),
		EventCount: m.history.len(),
	}
}

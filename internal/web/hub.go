package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"gibster/internal/events"
	"gibster/internal/orchestrator"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	msgState    = "state"
	msgRedirect = "redirect"
	msgReload   = "reload"

	writeWait = 10 * time.Second
)

// Message is one websocket frame sent to the UI.
type Message struct {
	Type     string                    `json:"type"`
	State    *orchestrator.Snapshot    `json:"state,omitempty"`
	Location string                    `json:"location,omitempty"`
	Reload   *events.DataReloadPayload `json:"reload,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type outbound struct {
	data []byte
	// version of the carried snapshot, zero for other message types
	version uint64
}

// client remembers the newest snapshot version written to the connection.
type client struct {
	version uint64
}

// Hub fans bus events out to connected websocket clients.
type Hub struct {
	logger    *zerolog.Logger
	clients   map[*websocket.Conn]*client
	clientsMu sync.RWMutex
	broadcast chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(logger *zerolog.Logger) *Hub {
	h := &Hub{
		logger:    logger,
		clients:   make(map[*websocket.Conn]*client),
		broadcast: make(chan outbound, 256),
		done:      make(chan struct{}),
	}
	go h.handleBroadcasts()
	return h
}

// Subscribe forwards state changes, forced logouts and reload requests.
func (h *Hub) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventSyncStateChanged, func(e *events.Event) error {
		var snap orchestrator.Snapshot
		if err := e.Decode(&snap); err != nil {
			return err
		}
		h.Send(Message{Type: msgState, State: &snap})
		return nil
	})
	bus.Subscribe(events.EventSessionExpired, func(e *events.Event) error {
		var p events.SessionExpiredPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		location := p.Location
		if location == "" {
			location = events.LoginPath
		}
		h.Send(Message{Type: msgRedirect, Location: location})
		return nil
	})
	bus.Subscribe(events.EventDataReload, func(e *events.Event) error {
		var p events.DataReloadPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		h.Send(Message{Type: msgReload, Reload: &p})
		return nil
	})
}

// Send queues msg for every client. A full queue drops the message.
func (h *Hub) Send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to encode websocket message")
		return
	}
	out := outbound{data: data}
	if msg.State != nil {
		out.version = msg.State.Version
	}
	select {
	case <-h.done:
	case h.broadcast <- out:
	default:
		h.logger.Warn().Str("type", msg.Type).Msg("Websocket broadcast queue full, dropping message")
	}
}

// Serve upgrades the request and keeps the client registered until it
// disconnects. initial is called once the connection is up and its result is
// the first frame; queued snapshots not newer than it are skipped.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial func() Message) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	if err := h.register(conn, initial); err != nil {
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket initial frame failed")
		return
	}
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close stops broadcasting and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.clientsMu.Lock()
		for conn := range h.clients {
			conn.Close()
			delete(h.clients, conn)
		}
		h.clientsMu.Unlock()
	})
}

func (h *Hub) handleBroadcasts() {
	for {
		select {
		case <-h.done:
			return
		case message := <-h.broadcast:
			h.clientsMu.Lock()
			for conn, c := range h.clients {
				if message.version > 0 && message.version <= c.version {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message.data); err != nil {
					conn.Close()
					delete(h.clients, conn)
					continue
				}
				if message.version > 0 {
					c.version = message.version
				}
			}
			h.clientsMu.Unlock()
		}
	}
}

// register builds and writes the initial frame and adds conn under the same
// lock the broadcaster holds, so no broadcast falls between the two.
func (h *Hub) register(conn *websocket.Conn, initialFn func() Message) error {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	initial := initialFn()
	data, err := json.Marshal(initial)
	if err != nil {
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c := &client{}
	if initial.State != nil {
		c.version = initial.State.Version
	}
	h.clients[conn] = c
	return nil
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientsMu.Lock()
	delete(h.clients, conn)
	h.clientsMu.Unlock()
}

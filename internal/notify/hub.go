// Package notify pushes new-announcement events to connected websocket
// clients. Browsers render the popup and play the alert sound client-side;
// the hub only fans events out.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arjunrk/bsewatch/internal/config"
	"github.com/arjunrk/bsewatch/internal/model"
	"github.com/arjunrk/bsewatch/internal/pipe"
)

// historyLimit bounds the replay buffer sent to newly connected clients.
const historyLimit = 50

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

// Event is the wire message pushed to clients.
type Event struct {
	Type         string              `json:"type"` // "status", "announcement", "history"
	Text         string              `json:"text,omitempty"`
	Sound        bool                `json:"sound,omitempty"`
	Announcement *model.Announcement `json:"announcement,omitempty"`
	History      []Event             `json:"history,omitempty"`
}

type client struct {
	conn *websocket.Conn
	out  chan Event
	done chan struct{}
}

// Hub consumes new announcements from the pipe and broadcasts them to all
// connected websocket clients.
type Hub struct {
	cfg    config.NotifyConfig
	logger *slog.Logger

	input *pipe.Buffer[model.Announcement]

	mu      sync.RWMutex
	clients map[*client]struct{}
	history []Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub reading from input.
func NewHub(cfg config.NotifyConfig, input *pipe.Buffer[model.Announcement], logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		input:   input,
		clients: make(map[*client]struct{}),
	}
}

// Start begins consuming announcements and broadcasting them.
func (h *Hub) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()

	h.wg.Add(1)
	go h.consumeLoop()

	h.logger.Info("notifier started", "path", h.cfg.Path)
	return nil
}

// Stop disconnects clients and stops the broadcast loop.
func (h *Hub) Stop(ctx context.Context) error {
	h.logger.Info("stopping notifier")

	if h.cancel != nil {
		h.cancel()
	}

	// Closing connections unblocks the per-client reader, which in turn
	// signals the write loop to exit. Marking the hub closed under the same
	// lock keeps late handler registrations from racing the Wait below.
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("notifier stop timed out")
	}

	h.mu.Lock()
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	h.logger.Info("notifier stopped")
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event to every connected client. Slow clients drop
// events rather than blocking the hub.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- ev:
		default:
		}
	}
}

// consumeLoop drains the pipe and broadcasts each announcement.
func (h *Hub) consumeLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		default:
			ann, ok := h.input.TryReceive()
			if !ok {
				select {
				case <-h.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			ev := Event{
				Type:         "announcement",
				Sound:        h.cfg.Sound,
				Announcement: &ann,
			}
			h.remember(ev)
			h.Broadcast(ev)
		}
	}
}

// remember appends to the bounded replay history.
func (h *Hub) remember(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, ev)
	if len(h.history) > historyLimit {
		h.history = h.history[len(h.history)-historyLimit:]
	}
}

func (h *Hub) snapshotHistory() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.history))
	copy(out, h.history)
	return out
}

// Handler upgrades connections and serves them until they drop.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		cl := &client{conn: conn, out: make(chan Event, 64), done: make(chan struct{})}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.clients[cl] = struct{}{}
		h.wg.Add(1)
		h.mu.Unlock()

		go h.writeLoop(cl)

		// Greet and replay recent events so a reconnecting client catches up.
		cl.out <- Event{Type: "status", Text: "connected"}
		cl.out <- Event{Type: "history", History: h.snapshotHistory()}

		// Reader detects disconnects; inbound messages are ignored.
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(90 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		close(cl.done)
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
	})
}

// writeLoop serializes outbound events for one client and keeps it alive
// with pings.
func (h *Hub) writeLoop(cl *client) {
	defer h.wg.Done()

	ping := time.NewTicker(45 * time.Second)
	defer ping.Stop()

	for {
		select {
		case ev := <-cl.out:
			if err := cl.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}

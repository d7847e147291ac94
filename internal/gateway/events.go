package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// eventBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this starts losing events.
const eventBuffer = 64

// Event is one entry on the /v1/events stream.
type Event struct {
	TS       string `json:"ts"`
	TenantID string `json:"tenant_id"`
	Op       string `json:"op"`
	Count    int    `json:"count,omitempty"`
}

// EventHub fans store, prune, and checkpoint events out to WebSocket
// subscribers. Publishing never blocks: slow subscribers drop events
// instead of stalling request handlers.
type EventHub struct {
	logger    *slog.Logger
	mu        sync.Mutex
	subs      map[chan Event]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventHub creates a hub with no subscribers.
func NewEventHub(logger *slog.Logger) *EventHub {
	return &EventHub{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
		done:   make(chan struct{}),
	}
}

// Publish delivers ev to every subscriber without blocking. An empty
// timestamp is filled with the current time.
func (h *EventHub) Publish(ev Event) {
	if ev.TS == "" {
		ev.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of connected listeners.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects new ones. Safe to call
// more than once.
func (h *EventHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *EventHub) subscribe() chan Event {
	ch := make(chan Event, eventBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a WebSocket and streams events as
// JSON text messages until the client disconnects or the hub closes.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case ev := <-ch:
			data, _ := json.Marshal(ev)
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

package freeboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const defaultSubscriberBuffer = 16

// EventFilter selects which widget events a subscriber receives.
type EventFilter func(WidgetEvent) bool

// BroadcastHook fans widget value events out to in-process subscribers.
// Slow subscribers miss events rather than blocking propagation.
type BroadcastHook struct {
	mu     sync.RWMutex
	subs   map[int]subscriber
	next   int
	buffer int
}

type subscriber struct {
	ch     chan WidgetEvent
	filter EventFilter
}

// NewBroadcastHook creates a broadcast hook.
func NewBroadcastHook() *BroadcastHook {
	return &BroadcastHook{
		subs:   make(map[int]subscriber),
		buffer: defaultSubscriberBuffer,
	}
}

// WidgetUpdated satisfies RefreshHook.
func (h *BroadcastHook) WidgetUpdated(ctx context.Context, event WidgetEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of every widget event and a cancel func.
func (h *BroadcastHook) Subscribe() (<-chan WidgetEvent, func()) {
	return h.SubscribeFiltered(nil)
}

// SubscribeWidget only delivers events of one widget.
func (h *BroadcastHook) SubscribeWidget(widgetID string) (<-chan WidgetEvent, func()) {
	return h.SubscribeFiltered(func(e WidgetEvent) bool { return e.WidgetID == widgetID })
}

// SubscribeFiltered delivers events accepted by filter. A nil filter accepts all.
func (h *BroadcastHook) SubscribeFiltered(filter EventFilter) (<-chan WidgetEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan WidgetEvent, h.buffer)
	h.subs[id] = subscriber{ch: ch, filter: filter}
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// Subscribers reports the number of live subscriptions.
func (h *BroadcastHook) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the request and streams widget events as JSON.
// A `widget` query parameter limits the stream to one widget.
func (h *BroadcastHook) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer conn.Close()

	events, cancel := h.subscribeRequest(r)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

// ServeSSE streams widget events as Server-Sent Events named after the reason.
func (h *BroadcastHook) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	events, cancel := h.subscribeRequest(r)
	defer cancel()

	flusher, _ := w.(http.Flusher)
	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Reason, payload); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (h *BroadcastHook) subscribeRequest(r *http.Request) (<-chan WidgetEvent, func()) {
	if id := r.URL.Query().Get("widget"); id != "" {
		return h.SubscribeWidget(id)
	}
	return h.Subscribe()
}

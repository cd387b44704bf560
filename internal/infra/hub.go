package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
)

// Hub fans change events out to attached clients, room-per-session. The API
// process consumes the change feed once and the hub delivers each event to
// every subscriber of the event's session.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[string]*Subscriber
	logger *slog.Logger
}

// Subscriber is one attached client. Events is closed on Shutdown; a
// subscriber that stops draining is dropped rather than blocking the room.
type Subscriber struct {
	ID     string
	Events chan domain.ChangeEvent
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]*Subscriber),
		logger: logger,
	}
}

// Subscribe attaches a new subscriber to a session's room.
func (h *Hub) Subscribe(sessionID uuid.UUID, buffer int) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Events: make(chan domain.ChangeEvent, buffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[sessionID] == nil {
		h.rooms[sessionID] = make(map[string]*Subscriber)
	}
	h.rooms[sessionID][sub.ID] = sub
	return sub
}

// Unsubscribe detaches a subscriber from a session's room.
func (h *Hub) Unsubscribe(sessionID uuid.UUID, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[sessionID]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(h.rooms, sessionID)
		}
	}
}

// Publish delivers an event to every subscriber of its session.
func (h *Hub) Publish(ev domain.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.rooms[ev.SessionID]
	if !ok {
		return
	}
	for _, sub := range subs {
		select {
		case sub.Events <- ev:
		default:
			h.logger.Warn("subscriber buffer full, dropping event",
				"subscriber_id", sub.ID, "session_id", ev.SessionID, "table", ev.Table)
		}
	}
}

// SubscriberCount returns the total number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, subs := range h.rooms {
		count += len(subs)
	}
	return count
}

// Shutdown closes every subscriber channel.
func (h *Hub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, subs := range h.rooms {
		for _, sub := range subs {
			close(sub.Events)
		}
		delete(h.rooms, sessionID)
	}
}

// FeedPump consumes the change feed and pushes every event into the hub. It
// runs until ctx is cancelled. Decode failures are logged and skipped; a
// subscriber that misses events recovers through its polling fallback.
func FeedPump(ctx context.Context, consumer *KafkaConsumer, hub *Hub, logger *slog.Logger) {
	if !consumer.enabled {
		logger.Info("change feed disabled, push delivery inactive")
		return
	}
	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("change feed read failed", "error", err)
			}
			return
		}
		var ev domain.ChangeEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Error("decode change event", "error", err)
			continue
		}
		hub.Publish(ev)
	}
}

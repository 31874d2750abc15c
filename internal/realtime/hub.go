package realtime

import (
	"sync"
)

// Event kinds pushed over the project feed.
const (
	EventMessageCreated = "message.created"
	EventStatusChanged  = "project.status_changed"
)

// Event is one push on a project's live feed. Payload is the full row with
// its sender relation already embedded, so subscribers never need a second
// fetch.
type Event struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// Subscriber is a single feed consumer (one websocket connection).
type Subscriber struct {
	events chan Event
}

// Events returns the subscriber's receive channel.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Hub fans project-scoped events out to subscribed connections. Writes go
// through the API handlers, so the handlers themselves feed the hub right
// after each successful insert.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers a new consumer for a project's feed.
func (h *Hub) Subscribe(projectID string) *Subscriber {
	sub := &Subscriber{events: make(chan Event, 16)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[projectID] == nil {
		h.rooms[projectID] = make(map[*Subscriber]struct{})
	}
	h.rooms[projectID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Safe to call once
// per subscriber.
func (h *Hub) Unsubscribe(projectID string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[projectID]
	if !ok {
		return
	}
	if _, ok := room[sub]; !ok {
		return
	}
	delete(room, sub)
	if len(room) == 0 {
		delete(h.rooms, projectID)
	}
	close(sub.events)
}

// Broadcast delivers an event to every subscriber of a project. Slow
// consumers with a full buffer are skipped rather than blocking the sender.
func (h *Hub) Broadcast(projectID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.rooms[projectID] {
		select {
		case sub.events <- event:
		default:
		}
	}
}

// SubscriberCount reports how many connections are on a project's feed.
func (h *Hub) SubscriberCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}

// Package live streams session transitions to websocket subscribers.
package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
)

// subscriberBuffer is how many events a slow subscriber may fall behind
// before further events are dropped for it.
const subscriberBuffer = 16

// Event is one session transition.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Session   *domain.Session `json:"session,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subscription receives the events of one session until closed.
type Subscription struct {
	C <-chan Event

	ch        chan Event
	sessionID string
	hub       *Hub
	once      sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub fans session events out to subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers for events of sessionID.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, sessionID: sessionID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sessionID]; !ok {
		h.subs[sessionID] = make(map[*Subscription]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.logger.Debug("Live subscriber registered", "session_id", sessionID)
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[sub.sessionID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, sub.sessionID)
		}
	}
	close(sub.ch)
	h.logger.Debug("Live subscriber unregistered", "session_id", sub.sessionID)
}

// Publish delivers evt to every subscriber of its session without blocking.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[evt.SessionID] {
		select {
		case sub.ch <- evt:
		default:
			h.logger.Warn("Live subscriber lagging, event dropped", "session_id", evt.SessionID, "type", evt.Type)
		}
	}
}

// Notify publishes a snapshot of s.
func (h *Hub) Notify(eventType string, s *domain.Session) {
	if s == nil {
		return
	}
	h.Publish(Event{
		Type:      eventType,
		SessionID: s.ID,
		Session:   s.Clone(),
		Timestamp: time.Now(),
	})
}

// Subscribers returns the number of subscribers of sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

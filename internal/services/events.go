package services

import (
	"sync"

	"github.com/coursepulse/coursepulse/internal/models"
)

// Event types pushed to SSE subscribers.
const (
	EventTypeResult = "result"
	EventTypeAudit  = "audit"
)

// Event is one real-time notification: a finished scrape or a batch of
// detected changes.
type Event struct {
	Type    string      `json:"type"`
	Subject string      `json:"subject,omitempty"`
	Payload interface{} `json:"payload"`
}

// EventHub fans events out to connected SSE clients. Slow clients drop
// events rather than block the workers.
type EventHub struct {
	clients map[string]chan Event
	mu      sync.RWMutex
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]chan Event),
	}
}

// Subscribe registers a client and returns its receive channel.
func (h *EventHub) Subscribe(clientID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 100)
	h.clients[clientID] = ch
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (h *EventHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts an event to all connected clients, never blocking.
func (h *EventHub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
			// Client buffer full, skip this event.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishResult pushes a completed scrape outcome.
func (h *EventHub) PublishResult(result *models.ScrapeResult) {
	h.Publish(Event{
		Type:    EventTypeResult,
		Subject: result.Subject,
		Payload: result,
	})
}

// PublishAudits pushes a batch of field-level changes from one run.
func (h *EventHub) PublishAudits(subject string, entries []models.AuditEntry) {
	if len(entries) == 0 {
		return
	}
	h.Publish(Event{
		Type:    EventTypeAudit,
		Subject: subject,
		Payload: entries,
	})
}
